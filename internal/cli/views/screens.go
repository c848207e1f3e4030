package views

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/careerpath-dev/careerpath/internal/cli/freshness"
	"github.com/careerpath-dev/careerpath/internal/cli/gateway"
)

// DashboardSource fetches the dashboard
type DashboardSource interface {
	Dashboard(ctx context.Context) (*gateway.Dashboard, error)
}

// SkillGapSource fetches the skill gap report
type SkillGapSource interface {
	SkillGap(ctx context.Context) (*gateway.SkillGap, error)
}

// NewDashboard creates the dashboard view
func NewDashboard(src DashboardSource, bus *freshness.Bus, log zerolog.Logger) *View[*gateway.Dashboard] {
	return newView("dashboard", bus, log, src.Dashboard, func(d *gateway.Dashboard) bool {
		return d != nil && d.RequiresTest
	})
}

// NewSkillGap creates the skill gap view
func NewSkillGap(src SkillGapSource, bus *freshness.Bus, log zerolog.Logger) *View[*gateway.SkillGap] {
	return newView("skill-gap", bus, log, src.SkillGap, func(g *gateway.SkillGap) bool {
		return g != nil && g.RequiresTest
	})
}
