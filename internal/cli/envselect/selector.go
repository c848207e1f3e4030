package envselect

import (
	"fmt"
	"os"

	"github.com/manifoldco/promptui"

	"github.com/careerpath-dev/careerpath/internal/cli/config"
	"github.com/careerpath-dev/careerpath/internal/cli/userconfig"
)

// EnvName selects an environment without touching the saved selection
const EnvName = "CAREERPATH_ENV"

// Prompter asks the user to pick one of the configured environments
type Prompter func(cfg *config.Config) (*config.Environment, error)

// ResolveEnvironment determines which environment to use based on the following priority:
// 1. If name is provided (flag), use that environment
// 2. If CAREERPATH_ENV is set, use that environment
// 3. If user has a selected environment in their local config, use that
// 4. If only one environment in project config, use that
// 5. Otherwise, prompt user to select an environment interactively
func ResolveEnvironment(projectConfig *config.Config, name string, prompt Prompter) (*config.Environment, error) {
	if name == "" {
		name = os.Getenv(EnvName)
	}
	if name != "" {
		return projectConfig.GetEnvironment(name)
	}

	selected, err := userconfig.GetSelectedEnvironment()
	if err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}

	if selected != "" {
		env, err := projectConfig.GetEnvironment(selected)
		if err == nil {
			return env, nil
		}
		// Selected environment no longer exists in project config, clear it and continue
		_ = userconfig.SetSelectedEnvironment("")
	}

	var env *config.Environment
	if len(projectConfig.Environments) == 1 {
		env = &projectConfig.Environments[0]
	} else {
		if prompt == nil {
			prompt = PromptEnvironmentSelection
		}
		env, err = prompt(projectConfig)
		if err != nil {
			return nil, err
		}
	}

	if err := userconfig.SetSelectedEnvironment(env.Name); err != nil {
		// Don't fail if we can't save, just continue
		fmt.Fprintf(os.Stderr, "Warning: failed to save selected environment: %v\n", err)
	}
	return env, nil
}

// PromptEnvironmentSelection shows an interactive prompt for the user to select an environment
func PromptEnvironmentSelection(projectConfig *config.Config) (*config.Environment, error) {
	if len(projectConfig.Environments) == 0 {
		return nil, fmt.Errorf("no environments configured in %s", config.ConfigFileName)
	}

	type envOption struct {
		Label string
		Env   *config.Environment
	}

	options := make([]envOption, len(projectConfig.Environments))
	for i := range projectConfig.Environments {
		env := &projectConfig.Environments[i]
		options[i] = envOption{
			Label: fmt.Sprintf("%s (%s)", env.Name, env.APIURL),
			Env:   env,
		}
	}

	templates := &promptui.SelectTemplates{
		Label:    "{{ . }}",
		Active:   "> {{ .Label | cyan }}",
		Inactive: "  {{ .Label }}",
		Selected: "{{ .Label | green }}",
	}

	prompt := promptui.Select{
		Label:     "Select an environment",
		Items:     options,
		Templates: templates,
		Size:      10,
	}

	index, _, err := prompt.Run()
	if err != nil {
		return nil, fmt.Errorf("environment selection cancelled: %w", err)
	}

	return options[index].Env, nil
}
