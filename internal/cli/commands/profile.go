package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/careerpath-dev/careerpath/internal/cli/app"
)

// NewProfileCmd creates the profile command group
func NewProfileCmd(r *Runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "View or update your student profile",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show your profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(func(a *app.App) error {
				profile, err := a.Gateway.Profile(commandContext(cmd))
				if err != nil {
					return fmt.Errorf("failed to load profile: %w", err)
				}
				r.printJSON(profile)
				return nil
			})
		},
	})
	cmd.AddCommand(newProfileSaveCmd(r))

	return cmd
}

func newProfileSaveCmd(r *Runtime) *cobra.Command {
	var file string
	var fields map[string]string

	cmd := &cobra.Command{
		Use:   "save",
		Short: "Save profile fields",
		Long: `Save profile fields from a JSON file and/or --set flags.

Examples:
  $ careerpath profile save --file profile.json
  $ careerpath profile save --set name="Alice",grade=12`,
		RunE: func(cmd *cobra.Command, args []string) error {
			profile := map[string]any{}
			if file != "" {
				data, err := r.readInput(file)
				if err != nil {
					return err
				}
				if err := json.Unmarshal(data, &profile); err != nil {
					return fmt.Errorf("failed to parse profile file: %w", err)
				}
			}
			for k, v := range fields {
				profile[k] = v
			}
			if len(profile) == 0 {
				return fmt.Errorf("nothing to save (use --file or --set)")
			}

			return r.withApp(func(a *app.App) error {
				if _, err := a.SaveProfile(commandContext(cmd), profile); err != nil {
					return fmt.Errorf("failed to save profile: %w", err)
				}
				r.println("✓ Profile saved")
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "JSON file with profile fields, or - for stdin")
	cmd.Flags().StringToStringVar(&fields, "set", nil, "Profile fields as key=value pairs")

	return cmd
}
