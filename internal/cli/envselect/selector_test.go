package envselect

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careerpath-dev/careerpath/internal/cli/config"
	"github.com/careerpath-dev/careerpath/internal/cli/userconfig"
)

func twoEnvs() *config.Config {
	return &config.Config{Environments: []config.Environment{
		{Name: "local", APIURL: "http://localhost:5000", AuthURL: "http://localhost:8090"},
		{Name: "prod", APIURL: "https://api.example.com", AuthURL: "https://auth.example.com"},
	}}
}

func noPrompt(t *testing.T) Prompter {
	return func(*config.Config) (*config.Environment, error) {
		t.Fatal("prompt must not run")
		return nil, nil
	}
}

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv(userconfig.EnvConfigDir, t.TempDir())
	t.Setenv(EnvName, "")
}

func TestResolveEnvironment_FlagWins(t *testing.T) {
	isolate(t)
	require.NoError(t, userconfig.SetSelectedEnvironment("local"))
	t.Setenv(EnvName, "local")

	env, err := ResolveEnvironment(twoEnvs(), "prod", noPrompt(t))
	require.NoError(t, err)
	assert.Equal(t, "prod", env.Name)
}

func TestResolveEnvironment_EnvVar(t *testing.T) {
	isolate(t)
	t.Setenv(EnvName, "prod")

	env, err := ResolveEnvironment(twoEnvs(), "", noPrompt(t))
	require.NoError(t, err)
	assert.Equal(t, "prod", env.Name)
}

func TestResolveEnvironment_UnknownName(t *testing.T) {
	isolate(t)

	_, err := ResolveEnvironment(twoEnvs(), "qa", noPrompt(t))
	assert.ErrorContains(t, err, "environment 'qa' not found")
}

func TestResolveEnvironment_SavedSelection(t *testing.T) {
	isolate(t)
	require.NoError(t, userconfig.SetSelectedEnvironment("prod"))

	env, err := ResolveEnvironment(twoEnvs(), "", noPrompt(t))
	require.NoError(t, err)
	assert.Equal(t, "prod", env.Name)
}

func TestResolveEnvironment_StaleSelectionFallsBackToPrompt(t *testing.T) {
	isolate(t)
	require.NoError(t, userconfig.SetSelectedEnvironment("gone"))

	prompted := false
	env, err := ResolveEnvironment(twoEnvs(), "", func(cfg *config.Config) (*config.Environment, error) {
		prompted = true
		return &cfg.Environments[1], nil
	})
	require.NoError(t, err)
	assert.True(t, prompted)
	assert.Equal(t, "prod", env.Name)

	saved, err := userconfig.GetSelectedEnvironment()
	require.NoError(t, err)
	assert.Equal(t, "prod", saved)
}

func TestResolveEnvironment_SingleEnvironmentIsSaved(t *testing.T) {
	isolate(t)

	env, err := ResolveEnvironment(config.DefaultConfig(), "", noPrompt(t))
	require.NoError(t, err)
	assert.Equal(t, "local", env.Name)

	saved, err := userconfig.GetSelectedEnvironment()
	require.NoError(t, err)
	assert.Equal(t, "local", saved)
}

func TestResolveEnvironment_PromptCancelled(t *testing.T) {
	isolate(t)

	_, err := ResolveEnvironment(twoEnvs(), "", func(*config.Config) (*config.Environment, error) {
		return nil, errors.New("cancelled")
	})
	assert.EqualError(t, err, "cancelled")
}
