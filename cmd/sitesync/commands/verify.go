package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sitesync/sitesync/pkg/model"
	"github.com/sitesync/sitesync/pkg/telemetry"
	"github.com/sitesync/sitesync/pkg/verify"
)

func newVerifyCommand() *cobra.Command {
	var (
		siteID string
		watch  bool
	)

	cmd := &cobra.Command{
		Use:   "verify <snapshot>",
		Short: "Report drift between a snapshot and the live site",
		Long: `Capture the live site and compare it with the snapshot. Volatile
fields and provider-generated entities never count as drift.

Exits 0 when the site is in sync, 1 when it drifted. With --watch the
snapshot file is re-verified on every change until interrupted.`,
		Example: `  sitesync verify site-a/site-a-20260820T093000.000000000Z.json

  # Keep verifying while editing the intended state
  sitesync verify intended/site-a.json --watch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			v := verify.New(a.provider, a.normalizer, a.metrics, a.logger)

			baseline, err := a.loadSnapshot(ctx, args[0])
			if err != nil {
				return err
			}
			if siteID != "" && baseline.SiteID != siteID {
				return fmt.Errorf("snapshot belongs to site %s, not %s", baseline.SiteID, siteID)
			}

			if watch {
				return v.Watch(ctx, args[0], func(d *verify.Drift, err error) {
					if err != nil {
						a.logger.Error().Err(err).Msg("Verification failed")
						return
					}
					printDrift(d)
				})
			}

			spanCtx, span := a.tracer.Start(ctx, "verify")
			drift, err := v.Verify(spanCtx, baseline)
			if err != nil {
				telemetry.RecordError(span, err)
				span.End()
				return err
			}
			telemetry.RecordSuccess(span)
			span.End()

			if jsonOutput {
				if err := printJSON(drift); err != nil {
					return err
				}
			} else {
				printDrift(drift)
			}
			if !drift.InSync() {
				return &ExitError{Code: 1, Msg: "drift detected"}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&siteID, "site", "", "expected site id (checked against the snapshot)")
	cmd.Flags().BoolVar(&watch, "watch", false, "re-verify whenever the snapshot file changes")

	return cmd
}

// printDrift renders one drift report with a per-section summary.
func printDrift(d *verify.Drift) {
	if d.InSync() {
		fmt.Printf("Site %s is in sync.\n", d.SiteID)
		return
	}
	fmt.Printf("Site %s drifted:\n", d.SiteID)
	for _, sec := range model.Sections() {
		if n := d.Sections[sec]; n > 0 {
			fmt.Printf("  %s: %d entities\n", sec, n)
		}
	}
	printChangeSet(d.Changes)
}
