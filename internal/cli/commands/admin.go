package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/careerpath-dev/careerpath/internal/cli/app"
	"github.com/careerpath-dev/careerpath/internal/cli/gateway"
)

var adminResources = []string{
	string(gateway.AdminStudents),
	string(gateway.AdminTests),
	string(gateway.AdminQuestions),
}

func parseAdminResource(name string) (gateway.AdminResource, error) {
	for _, r := range adminResources {
		if r == name {
			return gateway.AdminResource(name), nil
		}
	}
	return "", fmt.Errorf("unknown resource %q (expected one of %v)", name, adminResources)
}

// NewAdminCmd creates the admin command group
func NewAdminCmd(r *Runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administer students, tests and questions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:       "ls <resource>",
		Aliases:   []string{"list"},
		Short:     "List students, tests or questions",
		Args:      cobra.ExactArgs(1),
		ValidArgs: adminResources,
		RunE: func(cmd *cobra.Command, args []string) error {
			resource, err := parseAdminResource(args[0])
			if err != nil {
				return err
			}
			return r.withApp(func(a *app.App) error {
				list, err := a.Gateway.AdminList(commandContext(cmd), resource)
				if err != nil {
					return err
				}
				r.printJSON(list)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <resource> <id>",
		Short: "Delete a test or question",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resource, err := parseAdminResource(args[0])
			if err != nil {
				return err
			}
			return r.withApp(func(a *app.App) error {
				if err := a.AdminDelete(commandContext(cmd), resource, args[1]); err != nil {
					return err
				}
				r.printf("✓ Deleted %s %s\n", resource, args[1])
				return nil
			})
		},
	})

	return cmd
}
