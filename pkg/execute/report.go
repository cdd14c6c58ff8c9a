package execute

import (
	"fmt"
	"time"

	"github.com/sitesync/sitesync/pkg/model"
	"github.com/sitesync/sitesync/pkg/plan"
)

// OutcomeStatus is the terminal status of one planned operation.
type OutcomeStatus string

const (
	// StatusSucceeded means the provider applied the operation.
	StatusSucceeded OutcomeStatus = "succeeded"

	// StatusFailed means the operation failed terminally, after any
	// retries.
	StatusFailed OutcomeStatus = "failed"

	// StatusSkipped means the plan refused the operation (protected or
	// generated entity).
	StatusSkipped OutcomeStatus = "skipped"

	// StatusBlocked means a dependency of the operation failed, so it
	// was not attempted.
	StatusBlocked OutcomeStatus = "blocked"

	// StatusNotStarted means execution stopped (cancellation or site
	// abort) before the operation was reached.
	StatusNotStarted OutcomeStatus = "not_started"
)

// Outcome is the result of one planned operation.
type Outcome struct {
	// Kind is the planned operation kind.
	Kind plan.Kind `json:"kind"`

	// EntityType is the target entity type.
	EntityType model.EntityType `json:"entityType"`

	// Key is the target identity key.
	Key string `json:"key"`

	// Status is the terminal status.
	Status OutcomeStatus `json:"status"`

	// Attempts is the number of provider calls made, 0 when none.
	Attempts int `json:"attempts,omitempty"`

	// Reason carries the skip or block explanation, or the final error
	// message for failures.
	Reason string `json:"reason,omitempty"`
}

// RunStatus is the terminal status of one site's run.
type RunStatus string

const (
	// RunCompleted means every executable operation succeeded.
	RunCompleted RunStatus = "completed"

	// RunPartial means some operations succeeded and some failed, were
	// blocked, or never started.
	RunPartial RunStatus = "partial"

	// RunNotStarted means no operation was attempted.
	RunNotStarted RunStatus = "not_started"
)

// SiteReport is the execution record of one site.
type SiteReport struct {
	// SiteID is the site the plan applied to.
	SiteID string `json:"siteId"`

	// Status is the terminal run status.
	Status RunStatus `json:"status"`

	// Outcomes lists every operation's result in plan order.
	Outcomes []Outcome `json:"outcomes"`

	// Retries is the total retry count across all operations.
	Retries int `json:"retries"`

	// Error explains a run that never started (capture, expansion or
	// planning failed before execution).
	Error string `json:"error,omitempty"`

	// StartedAt and CompletedAt bound the run.
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
}

// TypeCounts are per-entity-type outcome tallies.
type TypeCounts struct {
	Created          int `json:"created"`
	Updated          int `json:"updated"`
	Deleted          int `json:"deleted"`
	SkippedProtected int `json:"skippedProtected"`
	SkippedBlocked   int `json:"skippedBlocked"`
	Failed           int `json:"failed"`
}

// Counts tallies outcomes per entity type. Skips of protected and
// generated entities count as SkippedProtected; blocked and
// not-started operations count as SkippedBlocked.
func (r *SiteReport) Counts() map[model.EntityType]TypeCounts {
	out := make(map[model.EntityType]TypeCounts)
	for _, o := range r.Outcomes {
		c := out[o.EntityType]
		switch o.Status {
		case StatusSucceeded:
			switch o.Kind {
			case plan.KindCreate:
				c.Created++
			case plan.KindUpdate:
				c.Updated++
			case plan.KindDelete:
				c.Deleted++
			}
		case StatusSkipped:
			c.SkippedProtected++
		case StatusBlocked, StatusNotStarted:
			c.SkippedBlocked++
		case StatusFailed:
			c.Failed++
		}
		out[o.EntityType] = c
	}
	return out
}

// Skips counts skipped outcomes. A run that completed but skipped
// operations did not fully converge the site, which callers surface in
// their exit status.
func (r *SiteReport) Skips() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == StatusSkipped {
			n++
		}
	}
	return n
}

// FailedKeys returns the identity keys of failed operations, in plan
// order.
func (r *SiteReport) FailedKeys() []string {
	var out []string
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			out = append(out, string(o.EntityType)+"/"+o.Key)
		}
	}
	return out
}

// resolveStatus derives the run status from the outcomes.
func (r *SiteReport) resolveStatus() {
	attempted, unfinished := 0, 0
	for _, o := range r.Outcomes {
		switch o.Status {
		case StatusSucceeded:
			attempted++
		case StatusFailed:
			attempted++
			unfinished++
		case StatusBlocked, StatusNotStarted:
			unfinished++
		}
	}
	switch {
	case unfinished == 0:
		r.Status = RunCompleted
	case attempted == 0:
		r.Status = RunNotStarted
	default:
		r.Status = RunPartial
	}
}

// Report aggregates the per-site reports of one multi-site run.
type Report struct {
	// RunID uniquely identifies the run.
	RunID string `json:"runId"`

	// Sites maps site ids to their reports.
	Sites map[string]*SiteReport `json:"sites"`
}

// Skips counts skipped outcomes across all sites.
func (r *Report) Skips() int {
	n := 0
	for _, sr := range r.Sites {
		n += sr.Skips()
	}
	return n
}

// PartialExecutionError reports a run in which at least one site did
// not complete. The full report stays available on the error.
type PartialExecutionError struct {
	// Report is the complete multi-site report.
	Report *Report
}

// Error implements the error interface.
func (e *PartialExecutionError) Error() string {
	incomplete := 0
	for _, r := range e.Report.Sites {
		if r.Status != RunCompleted {
			incomplete++
		}
	}
	return fmt.Sprintf("execution incomplete on %d of %d sites", incomplete, len(e.Report.Sites))
}
