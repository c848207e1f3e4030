package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/careerpath-dev/careerpath/internal/cli/app"
	"github.com/careerpath-dev/careerpath/internal/cli/gateway"
)

// NewAptitudeCmd creates the aptitude command group
func NewAptitudeCmd(r *Runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aptitude",
		Short: "Aptitude test results",
	}
	cmd.AddCommand(newAptitudeSubmitCmd(r))
	return cmd
}

func newAptitudeSubmitCmd(r *Runtime) *cobra.Command {
	var answersFile string
	var scoreFlag string
	var breakdown map[string]string

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit aptitude test answers or a score",
		Long: `Submit aptitude test answers or a score.

Answers are read from a JSON object file mapping question IDs to answers
("-" reads stdin).

Examples:
  $ careerpath aptitude submit --answers answers.json
  $ careerpath aptitude submit --score 78 --breakdown logical=80,verbal=70`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sub, err := r.buildSubmission(answersFile, scoreFlag, breakdown)
			if err != nil {
				return err
			}

			return r.withApp(func(a *app.App) error {
				result, err := a.SubmitAptitude(commandContext(cmd), sub)
				if err != nil {
					return fmt.Errorf("failed to submit aptitude test: %w", err)
				}
				r.println("✓ Aptitude test submitted")
				if len(result) > 0 && string(result) != "null" {
					r.printJSON(result)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&answersFile, "answers", "", "JSON file with answers, or - for stdin")
	cmd.Flags().StringVar(&scoreFlag, "score", "", "Precomputed overall score")
	cmd.Flags().StringToStringVar(&breakdown, "breakdown", nil, "Per-area scores, e.g. logical=80,verbal=70")

	return cmd
}

func (r *Runtime) buildSubmission(answersFile, scoreFlag string, breakdown map[string]string) (gateway.AptitudeSubmission, error) {
	var sub gateway.AptitudeSubmission

	if answersFile == "" && scoreFlag == "" {
		return sub, fmt.Errorf("either --answers or --score is required")
	}

	if answersFile != "" {
		data, err := r.readInput(answersFile)
		if err != nil {
			return sub, err
		}
		if err := json.Unmarshal(data, &sub.Answers); err != nil {
			return sub, fmt.Errorf("failed to parse answers file: %w", err)
		}
	}

	if scoreFlag != "" {
		score, err := strconv.ParseFloat(scoreFlag, 64)
		if err != nil {
			return sub, fmt.Errorf("invalid --score %q: %w", scoreFlag, err)
		}
		sub.Score = &score
	}

	if len(breakdown) > 0 {
		sub.Breakdown = make(map[string]float64, len(breakdown))
		for area, raw := range breakdown {
			v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				return sub, fmt.Errorf("invalid score for %s: %w", area, err)
			}
			sub.Breakdown[area] = v
		}
	}

	return sub, nil
}

// readInput reads a file, or the runtime's input for "-"
func (r *Runtime) readInput(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(r.In)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}
