package execute

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/sitesync/sitesync/pkg/plan"
)

// Pool fans site plans out to a bounded set of workers sharing one
// executor (and through it, one rate budget). Reports flow through a
// channel to a single aggregating reader, so the result map needs no
// locking.
type Pool struct {
	executor *Executor
	workers  int
}

// NewPool creates a pool with the given worker count.
func NewPool(executor *Executor, workers int) *Pool {
	if workers <= 0 {
		workers = 4
	}
	return &Pool{executor: executor, workers: workers}
}

// Run executes every plan and aggregates the reports. The report
// covers every plan even under cancellation; it returns a
// *PartialExecutionError when any site did not complete.
func (p *Pool) Run(ctx context.Context, plans []*plan.RestorePlan) (*Report, error) {
	report := &Report{RunID: uuid.NewString(), Sites: make(map[string]*SiteReport, len(plans))}
	if len(plans) == 0 {
		return report, nil
	}

	work := make(chan *plan.RestorePlan)
	results := make(chan *SiteReport)

	var wg sync.WaitGroup
	workers := p.workers
	if workers > len(plans) {
		workers = len(plans)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rp := range work {
				results <- p.executor.ExecuteSite(ctx, rp)
			}
		}()
	}

	go func() {
		defer close(work)
		for _, rp := range plans {
			// Keep feeding even when cancelled: ExecuteSite turns a
			// cancelled plan into a not-started report, so every site
			// appears in the output.
			work <- rp
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	incomplete := false
	for r := range results {
		report.Sites[r.SiteID] = r
		if r.Status != RunCompleted {
			incomplete = true
		}
	}

	if incomplete {
		return report, &PartialExecutionError{Report: report}
	}
	return report, nil
}
