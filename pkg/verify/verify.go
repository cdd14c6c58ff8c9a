// Package verify checks live site configuration against a baseline
// snapshot and summarizes drift per section. Watch mode re-verifies
// whenever the baseline file changes on disk.
package verify

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/sitesync/sitesync/pkg/diff"
	"github.com/sitesync/sitesync/pkg/model"
	"github.com/sitesync/sitesync/pkg/normalize"
	"github.com/sitesync/sitesync/pkg/provider"
	"github.com/sitesync/sitesync/pkg/telemetry"
)

// Drift is the verification result for one site.
type Drift struct {
	// SiteID is the verified site.
	SiteID string `json:"siteId"`

	// VerifiedAt is when the live state was captured.
	VerifiedAt time.Time `json:"verifiedAt"`

	// Changes is the change set from baseline to live: what an
	// operator changed (or broke) since the snapshot.
	Changes *diff.ChangeSet `json:"changes"`

	// Sections counts drifted entities per section.
	Sections map[model.Section]int `json:"sections"`
}

// InSync reports whether the live state matches the baseline.
func (d *Drift) InSync() bool {
	return d.Changes.Empty()
}

// Verifier re-reads live state and diffs it against baselines.
type Verifier struct {
	provider   provider.Provider
	normalizer *normalize.Normalizer
	metrics    *telemetry.Metrics
	logger     zerolog.Logger
}

// New creates a verifier. metrics may be nil.
func New(p provider.Provider, n *normalize.Normalizer, metrics *telemetry.Metrics, logger zerolog.Logger) *Verifier {
	return &Verifier{
		provider:   p,
		normalizer: n,
		metrics:    metrics,
		logger:     logger.With().Str("component", "verify").Logger(),
	}
}

// Verify captures the site's live state and diffs it against the
// baseline. Both sides are normalized, so volatile fields and
// generated entities never count as drift.
func (v *Verifier) Verify(ctx context.Context, baseline *model.Snapshot) (*Drift, error) {
	live, err := provider.Capture(ctx, v.provider, baseline.SiteID)
	if err != nil {
		return nil, err
	}
	liveNorm, err := v.normalizer.Normalize(ctx, live)
	if err != nil {
		return nil, err
	}
	baseNorm, err := v.normalizer.Normalize(ctx, baseline)
	if err != nil {
		return nil, err
	}

	cs := diff.Compute(baseNorm, liveNorm, diff.Options{})
	drift := &Drift{
		SiteID:     baseline.SiteID,
		VerifiedAt: live.CapturedAt,
		Changes:    cs,
		Sections:   cs.SectionCounts(),
	}

	for _, sec := range model.Sections() {
		status := "in_sync"
		if drift.Sections[sec] > 0 {
			status = "drifted"
		}
		v.metrics.RecordDriftDetection(string(sec), status)
	}
	v.logger.Info().
		Str("site_id", baseline.SiteID).
		Bool("in_sync", drift.InSync()).
		Interface("sections", drift.Sections).
		Msg("Verification finished")
	return drift, nil
}

// VerifyFile loads a baseline snapshot document and verifies against it.
func (v *Verifier) VerifyFile(ctx context.Context, path string) (*Drift, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	baseline, err := model.Decode(data)
	if err != nil {
		return nil, err
	}
	return v.Verify(ctx, baseline)
}

// Watch verifies against the baseline file now and again on every
// change to it, invoking fn with each result. It blocks until the
// context ends.
func (v *Verifier) Watch(ctx context.Context, path string, fn func(*Drift, error)) error {
	fn(v.VerifyFile(ctx, path))

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors replace files on
	// save and the old inode stops receiving events.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	var debounce *time.Timer
	trigger := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name, _ := filepath.Abs(event.Name)
			if name != abs || !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			// Coalesce bursts of write events from one save.
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(200*time.Millisecond, func() {
				select {
				case trigger <- struct{}{}:
				default:
				}
			})
		case <-trigger:
			fn(v.VerifyFile(ctx, path))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			v.logger.Warn().Err(err).Msg("Watcher error")
		}
	}
}
