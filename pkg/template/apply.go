package template

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/sitesync/sitesync/pkg/execute"
	"github.com/sitesync/sitesync/pkg/normalize"
	"github.com/sitesync/sitesync/pkg/plan"
	"github.com/sitesync/sitesync/pkg/provider"
)

// SiteBinding names one target site and its binding overrides.
type SiteBinding struct {
	// SiteID is the target site.
	SiteID string `yaml:"siteId" json:"siteId" validate:"required"`

	// Bindings override the template defaults for this site.
	Bindings map[string]any `yaml:"bindings" json:"bindings"`
}

// Applier fans a template out to many sites: expand per site, capture
// and normalize the live state, plan, then execute all plans through a
// shared worker pool. A site that fails before execution (bad bindings,
// unreachable provider) is reported and does not stop the others.
type Applier struct {
	engine     *Engine
	provider   provider.Provider
	normalizer *normalize.Normalizer
	pool       *execute.Pool
	logger     zerolog.Logger
}

// NewApplier wires an applier from its collaborators.
func NewApplier(engine *Engine, p provider.Provider, n *normalize.Normalizer, pool *execute.Pool, logger zerolog.Logger) *Applier {
	return &Applier{
		engine:     engine,
		provider:   p,
		normalizer: n,
		pool:       pool,
		logger:     logger.With().Str("component", "applier").Logger(),
	}
}

// Plan expands the template and plans every site without writing
// anything. Sites that fail planning get a not-started report; the
// returned plans cover the rest.
func (a *Applier) Plan(ctx context.Context, t *Template, sites []SiteBinding) ([]*plan.RestorePlan, *execute.Report, error) {
	report := &execute.Report{Sites: make(map[string]*execute.SiteReport, len(sites))}
	var plans []*plan.RestorePlan

	for _, site := range sites {
		rp, err := a.planSite(ctx, t, site)
		if err != nil {
			now := time.Now()
			report.Sites[site.SiteID] = &execute.SiteReport{
				SiteID:      site.SiteID,
				Status:      execute.RunNotStarted,
				Error:       err.Error(),
				StartedAt:   now,
				CompletedAt: now,
			}
			a.logger.Error().Err(err).Str("site_id", site.SiteID).Msg("Site planning failed")
			continue
		}
		plans = append(plans, rp)
	}
	return plans, report, nil
}

// Apply plans and executes the template on every site. The report
// covers all sites; the error is a *execute.PartialExecutionError when
// any site did not complete.
func (a *Applier) Apply(ctx context.Context, t *Template, sites []SiteBinding) (*execute.Report, error) {
	plans, report, err := a.Plan(ctx, t, sites)
	if err != nil {
		return report, err
	}

	// The pool's own partial error is recomputed over the merged
	// report, which also covers sites that failed planning.
	execReport, _ := a.pool.Run(ctx, plans)
	report.RunID = execReport.RunID
	for id, r := range execReport.Sites {
		report.Sites[id] = r
	}

	for _, r := range report.Sites {
		if r.Status != execute.RunCompleted {
			return report, &execute.PartialExecutionError{Report: report}
		}
	}
	return report, nil
}

// planSite expands, captures, normalizes and plans one site.
func (a *Applier) planSite(ctx context.Context, t *Template, site SiteBinding) (*plan.RestorePlan, error) {
	target, err := a.engine.Expand(ctx, t, site.SiteID, site.Bindings)
	if err != nil {
		return nil, err
	}
	live, err := provider.Capture(ctx, a.provider, site.SiteID)
	if err != nil {
		return nil, err
	}
	liveNorm, err := a.normalizer.Normalize(ctx, live)
	if err != nil {
		return nil, err
	}
	targetNorm, err := a.normalizer.Normalize(ctx, target)
	if err != nil {
		return nil, err
	}
	return plan.Build(liveNorm, targetNorm)
}
