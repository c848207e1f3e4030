package commands

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"golang.org/x/term"

	"github.com/careerpath-dev/careerpath/internal/cli/app"
	"github.com/careerpath-dev/careerpath/internal/cli/config"
	"github.com/careerpath-dev/careerpath/internal/cli/identity"
)

// Credential environment variables, useful for CI
const (
	EnvEmail    = "CAREERPATH_EMAIL"
	EnvPassword = "CAREERPATH_PASSWORD"
)

// NewLoginCmd creates the login command
func NewLoginCmd(r *Runtime) *cobra.Command {
	var email, password string
	var google bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password, or with Google",
		RunE: func(cmd *cobra.Command, args []string) error {
			if google {
				return r.runGoogleLogin(cmd)
			}
			return r.runLogin(cmd, email, password)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address (or set "+EnvEmail+")")
	cmd.Flags().StringVar(&password, "password", "", "Password (or set "+EnvPassword+", will prompt if not provided)")
	cmd.Flags().BoolVar(&google, "google", false, "Sign in with Google using a device code")

	return cmd
}

// NewRegisterCmd creates the register command
func NewRegisterCmd(r *Runtime) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account with email and password",
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.runRegister(cmd, email, password)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address (or set "+EnvEmail+")")
	cmd.Flags().StringVar(&password, "password", "", "Password (or set "+EnvPassword+", will prompt if not provided)")

	return cmd
}

// NewLogoutCmd creates the logout command
func NewLogoutCmd(r *Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(func(a *app.App) error {
				if err := a.Identity.SignOut(commandContext(cmd)); err != nil {
					// The local session is gone either way
					return fmt.Errorf("signed out locally, but the auth service reported: %w", err)
				}
				r.println("✓ Signed out")
				return nil
			})
		},
	}
}

// credentials fills email and password from the environment or a prompt
func (r *Runtime) credentials(email, password string) (string, string, error) {
	if email == "" {
		email = os.Getenv(EnvEmail)
	}
	if password == "" {
		password = os.Getenv(EnvPassword)
	}

	if strings.TrimSpace(email) == "" {
		return "", "", fmt.Errorf("email is required (use --email flag or %s env var)", EnvEmail)
	}

	if password == "" {
		var err error
		password, err = r.readSecret("Password: ")
		if err != nil {
			return "", "", err
		}
	}
	return email, password, nil
}

func (r *Runtime) readSecret(prompt string) (string, error) {
	if r.ReadSecret != nil {
		return r.ReadSecret(prompt)
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("password is required in non-interactive mode (use --password flag or %s env var)", EnvPassword)
	}

	fmt.Fprint(os.Stderr, prompt)
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr) // New line after password input
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(secret), nil
}

func (r *Runtime) runLogin(cmd *cobra.Command, email, password string) error {
	email, password, err := r.credentials(email, password)
	if err != nil {
		return err
	}

	return r.withApp(func(a *app.App) error {
		r.printf("Signing in to %s...\n", a.Env.Name)

		user, err := a.Identity.SignInWithCredentials(commandContext(cmd), email, password)
		if err != nil {
			return authFailure("login", err)
		}

		r.printSignedIn(user)
		return nil
	})
}

func (r *Runtime) runRegister(cmd *cobra.Command, email, password string) error {
	email, password, err := r.credentials(email, password)
	if err != nil {
		return err
	}

	return r.withApp(func(a *app.App) error {
		user, err := a.Identity.Register(commandContext(cmd), email, password)
		if err != nil {
			return authFailure("registration", err)
		}

		r.println("✓ Account created")
		r.printSignedIn(user)
		return nil
	})
}

func (r *Runtime) runGoogleLogin(cmd *cobra.Command) error {
	prompt := func(da *oauth2.DeviceAuthResponse) {
		verifyURL := da.VerificationURIComplete
		if verifyURL == "" {
			verifyURL = da.VerificationURI
		}
		r.printf("To sign in, open %s and enter code %s\n", da.VerificationURI, da.UserCode)
		if err := openBrowser(verifyURL); err != nil {
			r.Log.Debug().Err(err).Msg("Could not open browser")
		}
		r.println("Waiting for approval...")
	}

	return r.withApp(func(a *app.App) error {
		if !a.Auth.FederatedConfigured() {
			return fmt.Errorf("sign-in with Google is not configured for %s; set google_client_id in %s", a.Env.Name, config.ConfigFileName)
		}
		user, err := a.Identity.SignInWithProvider(commandContext(cmd))
		if err != nil {
			return authFailure("Google sign-in", err)
		}

		r.printSignedIn(user)
		return nil
	}, app.WithDevicePrompt(prompt))
}

func (r *Runtime) printSignedIn(user *identity.User) {
	r.println("✓ Signed in")
	r.printf("  Email: %s\n", user.Email)
	r.printf("  UID:   %s\n", user.UID)
}

// authFailure prefixes the classified message with the operation
func authFailure(op string, err error) error {
	var authErr *identity.AuthError
	if errors.As(err, &authErr) {
		return fmt.Errorf("%s failed: %w", op, authErr)
	}
	return fmt.Errorf("%s failed: %w", op, err)
}
