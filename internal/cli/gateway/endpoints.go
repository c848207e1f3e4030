package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Career is one career path suggestion
type Career struct {
	ID     string `json:"id,omitempty"`
	Title  string `json:"title"`
	Domain string `json:"domain,omitempty"`
}

// StreamGuidance is the recommended stream for the student
type StreamGuidance struct {
	RecommendedStream string   `json:"recommended_stream"`
	Reasons           []string `json:"why,omitempty"`
	SuggestedSubjects []string `json:"suggested_subjects_in_11_12,omitempty"`
	NextSteps         []string `json:"next_steps,omitempty"`
}

// AptitudeScores are percentage scores from the latest aptitude test
type AptitudeScores struct {
	Overall  float64 `json:"overall"`
	Logical  float64 `json:"logical"`
	Creative float64 `json:"creative"`
}

// Dashboard is the student dashboard summary. Raw keeps the response body
// as received and is what Dashboard marshals back to.
type Dashboard struct {
	RequiresTest   bool               `json:"requires_test"`
	Portfolio      PortfolioSummary   `json:"portfolio"`
	Careers        []Career           `json:"careers,omitempty"`
	StreamGuidance *StreamGuidance    `json:"stream_guidance,omitempty"`
	Aptitude       *AptitudeScores    `json:"aptitude,omitempty"`
	Skills         map[string]float64 `json:"skills,omitempty"`

	Raw json.RawMessage `json:"-"`
}

type dashboardFields Dashboard

func (d *Dashboard) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, (*dashboardFields)(d)); err != nil {
		return err
	}
	d.Raw = append(json.RawMessage(nil), data...)
	return nil
}

func (d Dashboard) MarshalJSON() ([]byte, error) {
	if len(d.Raw) > 0 {
		return d.Raw, nil
	}
	return json.Marshal(dashboardFields(d))
}

// PortfolioSummary counts completed projects
type PortfolioSummary struct {
	Count int `json:"count"`
}

// SkillGap compares the student's skills against a target profile. Raw
// works as on Dashboard.
type SkillGap struct {
	RequiresTest    bool      `json:"requires_test"`
	Skills          []string  `json:"skills,omitempty"`
	User            []float64 `json:"user,omitempty"`
	Target          []float64 `json:"target,omitempty"`
	TargetLabel     string    `json:"target_label,omitempty"`
	Gaps            []Gap     `json:"gaps,omitempty"`
	Recommendations []string  `json:"recommendations,omitempty"`

	Raw json.RawMessage `json:"-"`
}

type skillGapFields SkillGap

func (g *SkillGap) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, (*skillGapFields)(g)); err != nil {
		return err
	}
	g.Raw = append(json.RawMessage(nil), data...)
	return nil
}

func (g SkillGap) MarshalJSON() ([]byte, error) {
	if len(g.Raw) > 0 {
		return g.Raw, nil
	}
	return json.Marshal(skillGapFields(g))
}

// Gap is a single skill shortfall
type Gap struct {
	Skill  string  `json:"skill"`
	Gap    float64 `json:"gap"`
	Target float64 `json:"target,omitempty"`
}

// AptitudeSubmission carries either raw answers or a precomputed score
type AptitudeSubmission struct {
	Answers   map[string]string  `json:"answers,omitempty"`
	Score     *float64           `json:"score,omitempty"`
	Breakdown map[string]float64 `json:"breakdown,omitempty"`
}

// PortfolioItem is one portfolio entry
type PortfolioItem struct {
	ID          string   `json:"id,omitempty"`
	Name        string   `json:"name"`
	URL         string   `json:"url,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// AdminResource names an admin-managed collection
type AdminResource string

const (
	AdminStudents  AdminResource = "students"
	AdminTests     AdminResource = "tests"
	AdminQuestions AdminResource = "questions"
)

var adminHeader = map[string]string{HeaderAdmin: "true"}

// Dashboard loads the dashboard. RequiresTest is a business state, not an error.
func (c *Client) Dashboard(ctx context.Context) (*Dashboard, error) {
	var out Dashboard
	if err := c.Do(ctx, Request{Path: "/api/dashboard"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SkillGap loads the skill gap analysis
func (c *Client) SkillGap(ctx context.Context) (*SkillGap, error) {
	var out SkillGap
	if err := c.Do(ctx, Request{Path: "/api/skill-gap"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Profile returns the stored student profile as an opaque document
func (c *Client) Profile(ctx context.Context) (json.RawMessage, error) {
	resp, err := c.Call(ctx, Request{Path: "/api/profile"})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// SaveProfile stores the student profile
func (c *Client) SaveProfile(ctx context.Context, profile map[string]any) (json.RawMessage, error) {
	resp, err := c.Call(ctx, Request{Method: http.MethodPost, Path: "/api/register", Body: profile})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// SubmitAptitude submits an aptitude test attempt
func (c *Client) SubmitAptitude(ctx context.Context, sub AptitudeSubmission) (json.RawMessage, error) {
	resp, err := c.Call(ctx, Request{Method: http.MethodPost, Path: "/api/aptitude/submit", Body: sub})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Careers lists career paths
func (c *Client) Careers(ctx context.Context) ([]Career, error) {
	var out []Career
	if err := c.Do(ctx, Request{Path: "/api/careers"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListPortfolio lists the student's portfolio items
func (c *Client) ListPortfolio(ctx context.Context) ([]PortfolioItem, error) {
	var out []PortfolioItem
	if err := c.Do(ctx, Request{Path: "/api/portfolio"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddPortfolio creates a portfolio item
func (c *Client) AddPortfolio(ctx context.Context, item PortfolioItem) (*PortfolioItem, error) {
	var out PortfolioItem
	if err := c.Do(ctx, Request{Method: http.MethodPost, Path: "/api/portfolio", Body: item}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeletePortfolio removes a portfolio item
func (c *Client) DeletePortfolio(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("portfolio item id is required")
	}
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: "/api/portfolio/" + url.PathEscape(id)}, nil)
}

// AdminList lists an admin collection
func (c *Client) AdminList(ctx context.Context, resource AdminResource) (json.RawMessage, error) {
	resp, err := c.Call(ctx, Request{Path: "/api/admin/" + string(resource), Header: adminHeader})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// AdminDelete deletes one entry of an admin collection
func (c *Client) AdminDelete(ctx context.Context, resource AdminResource, id string) error {
	if resource == AdminStudents {
		return fmt.Errorf("students cannot be deleted")
	}
	if id == "" {
		return fmt.Errorf("%s id is required", resource)
	}
	return c.Do(ctx, Request{
		Method: http.MethodDelete,
		Path:   "/api/admin/" + string(resource) + "/" + url.PathEscape(id),
		Header: adminHeader,
	}, nil)
}
