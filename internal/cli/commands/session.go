package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/careerpath-dev/careerpath/internal/cli/app"
	"github.com/careerpath-dev/careerpath/internal/cli/gateway"
)

// NewWhoamiCmd creates the whoami command
func NewWhoamiCmd(r *Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user and the identity sent to the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(r.runWhoami)
		},
	}
}

func (r *Runtime) runWhoami(a *app.App) error {
	r.printf("Environment: %s (%s)\n", a.Env.Name, a.Env.APIURL)

	user := a.Auth.CurrentUser()
	if user == nil {
		r.println("Not signed in.")
		r.printf("Requests are sent as %s <%s>\n", gateway.DefaultDemoID, gateway.DefaultDemoEmail)
		return nil
	}

	session := a.Identity.Session()
	r.printf("Email:     %s\n", user.Email)
	r.printf("UID:       %s\n", user.UID)
	r.printf("Providers: %s\n", strings.Join(user.Providers, ", "))
	if exp := a.Auth.ExpiresAt(); !exp.IsZero() {
		r.printf("Token:     expires %s\n", exp.Local().Format(time.RFC3339))
	}
	r.printf("Requests are sent as %s <%s>\n", session.DemoID, session.DemoEmail)
	return nil
}

// NewTokenCmd creates the token command
func NewTokenCmd(r *Runtime) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a bearer token for the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(func(a *app.App) error {
				ctx := commandContext(cmd)

				var token string
				var err error
				if refresh {
					token, err = a.Identity.RefreshToken(ctx)
				} else {
					token, err = a.Identity.CurrentToken(ctx)
				}
				if err != nil {
					return err
				}
				if token == "" {
					return fmt.Errorf("not signed in. Please run 'careerpath login' first")
				}

				r.println(token)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "Redeem a new token even if the current one is still valid")

	return cmd
}

// NewResetPasswordCmd creates the reset-password command
func NewResetPasswordCmd(r *Runtime) *cobra.Command {
	var email, code, password string

	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Request a password reset code, or set a new password with one",
		Long: `Request a password reset code, or set a new password with one.

Examples:
  $ careerpath reset-password --email alice@example.com
  $ careerpath reset-password --code <code>`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(func(a *app.App) error {
				ctx := commandContext(cmd)

				if code == "" {
					if email == "" {
						email = envOr(EnvEmail, "")
					}
					if err := a.Identity.SendPasswordReset(ctx, email); err != nil {
						return err
					}
					r.println("If an account exists for that email, a reset code has been sent.")
					r.println("Then run: careerpath reset-password --code <code>")
					return nil
				}

				if password == "" {
					var err error
					password, err = r.readSecret("New password: ")
					if err != nil {
						return err
					}
				}
				if err := a.Auth.ConfirmPasswordReset(ctx, code, password); err != nil {
					return fmt.Errorf("failed to reset password: %w", err)
				}
				r.println("✓ Password updated. Sign in with 'careerpath login'.")
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email (or set "+EnvEmail+")")
	cmd.Flags().StringVar(&code, "code", "", "Reset code received by email")
	cmd.Flags().StringVar(&password, "password", "", "New password (will prompt if not provided)")

	return cmd
}
