package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/careerpath-dev/careerpath/internal/cli/app"
	"github.com/careerpath-dev/careerpath/internal/cli/config"
	"github.com/careerpath-dev/careerpath/internal/cli/envselect"
)

// Runtime carries what every command needs: where to print, which
// environment to use and how to build the App for it.
type Runtime struct {
	Out io.Writer
	In  io.Reader
	Log zerolog.Logger
	// EnvName is bound to the --env persistent flag
	EnvName string
	// Prompt picks an environment when none is selected; nil uses promptui
	Prompt     envselect.Prompter
	AppOptions []app.Option
	// ReadSecret reads a password; nil reads from the terminal
	ReadSecret func(prompt string) (string, error)
}

// NewRuntime returns a runtime printing to stdout
func NewRuntime(log zerolog.Logger) *Runtime {
	return &Runtime{
		Out: os.Stdout,
		In:  os.Stdin,
		Log: log,
	}
}

func (r *Runtime) printf(format string, args ...any) {
	fmt.Fprintf(r.Out, format, args...)
}

func (r *Runtime) println(args ...any) {
	fmt.Fprintln(r.Out, args...)
}

// loadConfig loads careerpath.json from the working directory or a parent
func (r *Runtime) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFromCurrentDir()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w\nRun 'careerpath init' to create a configuration file", err)
	}
	return cfg, nil
}

// environment resolves the environment commands run against
func (r *Runtime) environment() (*config.Environment, error) {
	cfg, err := r.loadConfig()
	if err != nil {
		return nil, err
	}
	return envselect.ResolveEnvironment(cfg, r.EnvName, r.Prompt)
}

// withApp builds the App, runs fn and closes the App on every path
func (r *Runtime) withApp(fn func(a *app.App) error, extra ...app.Option) error {
	env, err := r.environment()
	if err != nil {
		return err
	}

	opts := append(append([]app.Option{}, r.AppOptions...), extra...)
	a, err := app.New(env, r.Log, opts...)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(a)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// commandContext returns the command's context, or Background outside cobra
func commandContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}
