package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/careerpath-dev/careerpath/internal/cli/config"
	"github.com/careerpath-dev/careerpath/internal/cli/envselect"
	"github.com/careerpath-dev/careerpath/internal/cli/userconfig"
)

// NewEnvCmd creates the env command
func NewEnvCmd(r *Runtime) *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "env [name]",
		Short: "Select the environment to use for commands",
		Long: `Select the environment to use for commands.

If no name is provided, an interactive prompt will be shown.

Examples:
  $ careerpath env          # Interactive selection
  $ careerpath env prod     # Select by name
  $ careerpath env --list   # Show configured environments`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				return r.runEnvList()
			}
			var name string
			if len(args) > 0 {
				name = args[0]
			}
			return r.runEnvSelect(name)
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "List configured environments")

	return cmd
}

func (r *Runtime) runEnvSelect(name string) error {
	cfg, err := r.loadConfig()
	if err != nil {
		return err
	}

	var env *config.Environment
	if name != "" {
		env, err = cfg.GetEnvironment(name)
	} else {
		prompt := r.Prompt
		if prompt == nil {
			prompt = envselect.PromptEnvironmentSelection
		}
		env, err = prompt(cfg)
	}
	if err != nil {
		return err
	}

	if err := userconfig.SetSelectedEnvironment(env.Name); err != nil {
		return fmt.Errorf("failed to save selected environment: %w", err)
	}

	r.printf("Selected environment: %s (%s)\n", env.Name, env.APIURL)
	return nil
}

func (r *Runtime) runEnvList() error {
	cfg, err := r.loadConfig()
	if err != nil {
		return err
	}

	selected, err := userconfig.GetSelectedEnvironment()
	if err != nil {
		return err
	}
	if name := os.Getenv(envselect.EnvName); name != "" {
		selected = name
	}
	if r.EnvName != "" {
		selected = r.EnvName
	}

	w := tabwriter.NewWriter(r.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\tNAME\tAPI\tAUTH\tSTORAGE")
	for _, env := range cfg.Environments {
		marker := ""
		if env.Name == selected {
			marker = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", marker, env.Name, env.APIURL, env.AuthURL, env.StorageMedium())
	}
	return w.Flush()
}
