package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/careerpath-dev/careerpath/internal/cli/config"
)

type initOptions struct {
	name           string
	apiURL         string
	authURL        string
	storage        string
	googleClientID string
}

// NewInitCmd creates the init command
func NewInitCmd(r *Runtime) *cobra.Command {
	o := &initOptions{}

	cmd := &cobra.Command{
		Use:   "init [name]",
		Short: "Add an environment to careerpath.json",
		Long: `Add an environment to ./careerpath.json, creating the file if needed.

Examples:
  $ careerpath init
  $ careerpath init prod --api-url https://api.example.com --auth-url https://auth.example.com`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				o.name = args[0]
			}
			return r.runInit(o)
		},
	}

	defaults := config.DefaultConfig().Environments[0]
	cmd.Flags().StringVar(&o.apiURL, "api-url", defaults.APIURL, "Career API base URL")
	cmd.Flags().StringVar(&o.authURL, "auth-url", defaults.AuthURL, "Auth service base URL")
	cmd.Flags().StringVar(&o.storage, "storage", config.StorageKeyring, "Where to keep the session: keyring, file or memory")
	cmd.Flags().StringVar(&o.googleClientID, "google-client-id", "", "OAuth client ID for 'login --google'")

	return cmd
}

func (r *Runtime) runInit(o *initOptions) error {
	currentDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}

	configPath := filepath.Join(currentDir, config.ConfigFileName)

	cfg := &config.Config{}
	isNewConfig := true

	// Check if config already exists
	if _, err := os.Stat(configPath); err == nil {
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load existing config: %w", err)
		}
		r.printf("Found existing %s\n", config.ConfigFileName)
		isNewConfig = false
	}

	name := o.name
	if name == "" {
		name = "local"
		if len(cfg.Environments) > 0 {
			name = fmt.Sprintf("env-%d", len(cfg.Environments)+1)
		}
	}

	if _, err := cfg.GetEnvironment(name); err == nil {
		r.printf("Environment '%s' already exists in %s\n", name, config.ConfigFileName)
		return nil
	}

	cfg.Environments = append(cfg.Environments, config.Environment{
		Name:           name,
		APIURL:         o.apiURL,
		AuthURL:        o.authURL,
		Storage:        o.storage,
		GoogleClientID: o.googleClientID,
	})
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := config.Save(configPath, cfg); err != nil {
		return err
	}

	if isNewConfig {
		r.printf("✓ Created ./%s with environment %s (%s)\n", config.ConfigFileName, name, o.apiURL)
	} else {
		r.printf("✓ Added environment %s (%s) to ./%s\n", name, o.apiURL, config.ConfigFileName)
	}

	r.println("\nNext steps:")
	r.println("  1. Run 'careerpath register' or 'careerpath login' to sign in")
	r.println("  2. Run 'careerpath dashboard' to see your dashboard")

	return nil
}
