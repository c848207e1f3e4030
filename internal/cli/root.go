package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/careerpath-dev/careerpath/internal/cli/commands"
	"github.com/careerpath-dev/careerpath/internal/logger"
)

// EnvLogLevel sets the CLI log level; logs go to stderr
const EnvLogLevel = "CAREERPATH_LOG_LEVEL"

var version = "dev" // Will be set during build

// NewRootCmd builds the command tree around rt
func NewRootCmd(rt *commands.Runtime) *cobra.Command {
	var logLevel string

	rootCmd := &cobra.Command{
		Use:   "careerpath",
		Short: "careerpath - career guidance from the terminal",
		Long: `careerpath CLI - sign in, check your dashboard and skill gaps, and keep
your profile, aptitude results and portfolio up to date.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if cmd.Flags().Changed("log-level") || os.Getenv(EnvLogLevel) != "" {
				rt.Log = logger.New(logLevel, "console", os.Stderr)
			}
		},
	}

	defaultLevel := os.Getenv(EnvLogLevel)
	if defaultLevel == "" {
		defaultLevel = "warn"
	}
	rootCmd.PersistentFlags().StringVar(&rt.EnvName, "env", "", "Environment name from careerpath.json (or set CAREERPATH_ENV)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", defaultLevel, "Log level: debug, info, warn, error")

	// Add version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(rt.Out, "careerpath version %s\n", version)
		},
	})

	// Add all subcommands
	rootCmd.AddCommand(commands.NewInitCmd(rt))
	rootCmd.AddCommand(commands.NewEnvCmd(rt))
	rootCmd.AddCommand(commands.NewLoginCmd(rt))
	rootCmd.AddCommand(commands.NewRegisterCmd(rt))
	rootCmd.AddCommand(commands.NewLogoutCmd(rt))
	rootCmd.AddCommand(commands.NewWhoamiCmd(rt))
	rootCmd.AddCommand(commands.NewTokenCmd(rt))
	rootCmd.AddCommand(commands.NewResetPasswordCmd(rt))
	rootCmd.AddCommand(commands.NewDashboardCmd(rt))
	rootCmd.AddCommand(commands.NewSkillGapCmd(rt))
	rootCmd.AddCommand(commands.NewAptitudeCmd(rt))
	rootCmd.AddCommand(commands.NewProfileCmd(rt))
	rootCmd.AddCommand(commands.NewPortfolioCmd(rt))
	rootCmd.AddCommand(commands.NewAdminCmd(rt))

	return rootCmd
}

// Execute runs the root command
func Execute() error {
	rt := commands.NewRuntime(logger.New("warn", "console", os.Stderr))
	if err := NewRootCmd(rt).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
