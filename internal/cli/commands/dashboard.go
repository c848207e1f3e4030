package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/careerpath-dev/careerpath/internal/cli/app"
	"github.com/careerpath-dev/careerpath/internal/cli/freshness"
	"github.com/careerpath-dev/careerpath/internal/cli/gateway"
	"github.com/careerpath-dev/careerpath/internal/cli/views"
)

const requiresTestHint = "Take the aptitude test first: careerpath aptitude submit --answers <file>"

type watchOptions struct {
	watch    bool
	interval time.Duration
	json     bool
}

func (o *watchOptions) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&o.watch, "watch", false, "Keep running and redraw when data changes")
	cmd.Flags().DurationVar(&o.interval, "interval", 30*time.Second, "Polling interval in watch mode")
	cmd.Flags().BoolVar(&o.json, "json", false, "Print the raw data as JSON")
}

// NewDashboardCmd creates the dashboard command
func NewDashboardCmd(r *Runtime) *cobra.Command {
	o := &watchOptions{}

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show your career dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(func(a *app.App) error {
				view := views.NewDashboard(a.Gateway, a.Bus, r.Log)
				return runView(r, cmd, a, view, o, r.renderDashboard)
			})
		},
	}
	o.bind(cmd)

	return cmd
}

// NewSkillGapCmd creates the skill-gap command
func NewSkillGapCmd(r *Runtime) *cobra.Command {
	o := &watchOptions{}

	cmd := &cobra.Command{
		Use:   "skill-gap",
		Short: "Compare your skills with your target career",
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(func(a *app.App) error {
				view := views.NewSkillGap(a.Gateway, a.Bus, r.Log)
				return runView(r, cmd, a, view, o, r.renderSkillGap)
			})
		},
	}
	o.bind(cmd)

	return cmd
}

// runView mounts view, renders every snapshot and, in watch mode, keeps
// publishing data-updated on the polling interval until interrupted.
func runView[T any](r *Runtime, cmd *cobra.Command, a *app.App, view *views.View[T], o *watchOptions, render func(T)) error {
	ctx := commandContext(cmd)

	draw := func(s views.Snapshot[T]) {
		switch s.Status {
		case views.StatusFailed:
			if o.watch {
				r.printf("Failed to load: %v\n", s.Err)
			}
		case views.StatusRequiresTest:
			r.println(requiresTestHint)
		default:
			if o.json {
				r.printJSON(s.Data)
				return
			}
			render(s.Data)
		}
	}

	if !o.watch {
		view.OnRender(draw)
		if err := view.Mount(ctx); err != nil {
			return err
		}
		defer view.Unmount()

		if s := view.Snapshot(); s.Status == views.StatusFailed {
			return fmt.Errorf("failed to load: %w", s.Err)
		}
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Watch(); err != nil {
		return err
	}

	view.OnRender(func(s views.Snapshot[T]) {
		r.printf("\n── %s ──\n", time.Now().Format(time.Kitchen))
		draw(s)
	})
	if err := view.Mount(ctx); err != nil {
		return err
	}
	defer view.Unmount()

	if o.interval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.Bus.Publish(freshness.TopicDataUpdated)
		}
	}
}

func (r *Runtime) printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		r.printf("%v\n", v)
		return
	}
	r.println(string(data))
}

func (r *Runtime) renderDashboard(d *gateway.Dashboard) {
	if d == nil {
		r.println("No dashboard data.")
		return
	}

	r.printf("Portfolio projects: %d\n", d.Portfolio.Count)
	if a := d.Aptitude; a != nil {
		r.printf("Aptitude: %.0f%% (logical %.0f%%, creative %.0f%%)\n", a.Overall, a.Logical, a.Creative)
	}
	if g := d.StreamGuidance; g != nil {
		r.printf("Recommended stream: %s\n", g.RecommendedStream)
		for _, reason := range g.Reasons {
			r.printf("  - %s\n", reason)
		}
		if len(g.SuggestedSubjects) > 0 {
			r.printf("Suggested subjects: %s\n", strings.Join(g.SuggestedSubjects, ", "))
		}
		for _, step := range g.NextSteps {
			r.printf("Next: %s\n", step)
		}
	}

	if len(d.Careers) == 0 {
		return
	}
	r.println("\nSuggested careers:")
	w := tabwriter.NewWriter(r.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TITLE\tDOMAIN")
	fmt.Fprintln(w, "─────\t──────")
	for _, c := range d.Careers {
		fmt.Fprintf(w, "%s\t%s\n", c.Title, c.Domain)
	}
	w.Flush()
}

func (r *Runtime) renderSkillGap(g *gateway.SkillGap) {
	if g == nil {
		r.println("No skill gap data.")
		return
	}

	target := g.TargetLabel
	if target == "" {
		target = "target profile"
	}
	r.printf("Skills compared with %s:\n\n", target)

	w := tabwriter.NewWriter(r.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SKILL\tYOU\tTARGET")
	fmt.Fprintln(w, "─────\t───\t──────")
	for i, skill := range g.Skills {
		fmt.Fprintf(w, "%s\t%s\t%s\n", skill, score(g.User, i), score(g.Target, i))
	}
	w.Flush()

	if len(g.Gaps) > 0 {
		gaps := make([]string, 0, len(g.Gaps))
		for _, gap := range g.Gaps {
			gaps = append(gaps, fmt.Sprintf("%s (-%.0f)", gap.Skill, gap.Gap))
		}
		r.printf("\nBiggest gaps: %s\n", strings.Join(gaps, ", "))
	}
	for _, rec := range g.Recommendations {
		r.printf("  → %s\n", rec)
	}
}

func score(values []float64, i int) string {
	if i >= len(values) {
		return "-"
	}
	return fmt.Sprintf("%.0f", values[i])
}

