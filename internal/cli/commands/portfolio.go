package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/careerpath-dev/careerpath/internal/cli/app"
	"github.com/careerpath-dev/careerpath/internal/cli/gateway"
)

// NewPortfolioCmd creates the portfolio command group
func NewPortfolioCmd(r *Runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "portfolio",
		Short: "Manage your project portfolio",
	}

	cmd.AddCommand(newPortfolioListCmd(r))
	cmd.AddCommand(newPortfolioAddCmd(r))
	cmd.AddCommand(newPortfolioDeleteCmd(r))

	return cmd
}

func newPortfolioListCmd(r *Runtime) *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List portfolio items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(func(a *app.App) error {
				items, err := a.Gateway.ListPortfolio(commandContext(cmd))
				if err != nil {
					return err
				}
				r.renderPortfolio(items)
				return nil
			})
		},
	}
}

func (r *Runtime) renderPortfolio(items []gateway.PortfolioItem) {
	if len(items) == 0 {
		r.println("No portfolio items found.")
		r.println("\nAdd one with: careerpath portfolio add --name <name>")
		return
	}

	w := tabwriter.NewWriter(r.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tURL\tTAGS")
	fmt.Fprintln(w, "──\t────\t───\t────")
	for _, item := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", item.ID, item.Name, item.URL, strings.Join(item.Tags, ","))
	}
	w.Flush()
}

func newPortfolioAddCmd(r *Runtime) *cobra.Command {
	var item gateway.PortfolioItem

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a portfolio item",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(item.Name) == "" {
				return fmt.Errorf("--name is required")
			}

			return r.withApp(func(a *app.App) error {
				created, err := a.AddPortfolio(commandContext(cmd), item)
				if err != nil {
					return fmt.Errorf("failed to add portfolio item: %w", err)
				}
				if created != nil && created.ID != "" {
					r.printf("✓ Added %s (%s)\n", created.Name, created.ID)
				} else {
					r.printf("✓ Added %s\n", item.Name)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&item.Name, "name", "", "Project name")
	cmd.Flags().StringVar(&item.URL, "url", "", "Project URL")
	cmd.Flags().StringVar(&item.Description, "description", "", "Short description")
	cmd.Flags().StringSliceVar(&item.Tags, "tag", nil, "Tags (repeatable)")

	return cmd
}

func newPortfolioDeleteCmd(r *Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a portfolio item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(func(a *app.App) error {
				if err := a.DeletePortfolio(commandContext(cmd), args[0]); err != nil {
					return fmt.Errorf("failed to delete portfolio item: %w", err)
				}
				r.printf("✓ Deleted %s\n", args[0])
				return nil
			})
		},
	}
}
