package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sitesync/sitesync/pkg/execute"
	"github.com/sitesync/sitesync/pkg/plan"
	"github.com/sitesync/sitesync/pkg/provider"
	"github.com/sitesync/sitesync/pkg/telemetry"
)

func newRestoreCommand() *cobra.Command {
	var (
		siteID  string
		dryRun  bool
		force   bool
		rate    float64
		burst   int
		retries int
	)

	cmd := &cobra.Command{
		Use:   "restore <snapshot>",
		Short: "Plan and apply a snapshot back onto a site",
		Long: `Compute the ordered operation set that brings the live site back to the
snapshot's state, then apply it. Creates and updates run in dependency
order, deletes in reverse; protected and provider-generated entities
are never deleted.

Exits 0 on a complete run, 1 when the run finished partially or any
operation was skipped.`,
		Example: `  # Preview without writing
  sitesync restore site-a/site-a-20260820T093000.000000000Z.json --site site-a --dry-run

  # Restore onto a different site
  sitesync restore golden.json --site site-b --force`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			target, err := a.loadSnapshot(ctx, args[0])
			if err != nil {
				return err
			}
			if siteID == "" {
				siteID = target.SiteID
			}
			if target.SiteID != siteID {
				if !force {
					return fmt.Errorf("snapshot belongs to site %s, not %s (use --force to retarget)", target.SiteID, siteID)
				}
				target = target.Clone()
				target.SiteID = siteID
			}

			live, err := provider.Capture(ctx, a.provider, siteID)
			if err != nil {
				return err
			}
			liveNorm, err := a.normalizer.Normalize(ctx, live)
			if err != nil {
				return err
			}
			targetNorm, err := a.normalizer.Normalize(ctx, target)
			if err != nil {
				return err
			}
			rp, err := plan.Build(liveNorm, targetNorm)
			if err != nil {
				return err
			}

			if dryRun {
				if jsonOutput {
					return printJSON(rp)
				}
				printPlan(rp)
				return nil
			}
			if len(rp.Operations) == 0 {
				fmt.Println("Site already matches the snapshot.")
				return nil
			}

			policy := execute.DefaultRetryPolicy()
			if retries > 0 {
				policy.MaxAttempts = retries
			}
			var gate *execute.RateGate
			if rate > 0 {
				gate = execute.NewRateGate(rate, burst, a.metrics)
			}
			executor := execute.NewExecutor(a.provider, gate, policy, a.logger, a.metrics).WithTracer(a.tracer)

			spanCtx, span := a.tracer.StartSiteSpan(ctx, siteID)
			report := executor.ExecuteSite(spanCtx, rp)
			if report.Status == execute.RunCompleted {
				telemetry.RecordSuccess(span)
			} else {
				telemetry.RecordError(span, fmt.Errorf("restore finished %s", report.Status))
			}
			span.End()

			if jsonOutput {
				if err := printJSON(report); err != nil {
					return err
				}
			} else {
				printSiteReport(report)
			}
			if report.Status != execute.RunCompleted {
				return &ExitError{Code: 1, Msg: "restore finished " + string(report.Status)}
			}
			if n := report.Skips(); n > 0 {
				return &ExitError{Code: 1, Msg: fmt.Sprintf("restore completed with %d skipped operations", n)}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&siteID, "site", "", "target site (defaults to the snapshot's site)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the plan without writing")
	cmd.Flags().BoolVar(&force, "force", false, "allow restoring onto a different site")
	cmd.Flags().Float64Var(&rate, "rate", 8, "provider calls per second (0 for unlimited)")
	cmd.Flags().IntVar(&burst, "burst", 4, "rate gate burst allowance")
	cmd.Flags().IntVar(&retries, "retries", 0, "max attempts per operation (0 for the default)")

	return cmd
}

// printPlan renders the ordered operations of one plan. Skips are part
// of the plan and print like any other operation.
func printPlan(rp *plan.RestorePlan) {
	if len(rp.Operations) == 0 {
		fmt.Println("Nothing to do.")
		return
	}
	fmt.Printf("Plan %s for site %s:\n", rp.PlanID, rp.SiteID)
	for _, op := range rp.Operations {
		line := fmt.Sprintf("  %-6s %s/%s", op.Kind, op.EntityType, op.Key)
		if op.Reason != "" {
			line += "  (" + op.Reason + ")"
		}
		fmt.Println(line)
	}
}

// printSiteReport renders one site's execution outcomes.
func printSiteReport(r *execute.SiteReport) {
	fmt.Printf("Site %s: %s (%d retries)\n", r.SiteID, r.Status, r.Retries)
	for _, o := range r.Outcomes {
		line := fmt.Sprintf("  %-11s %-6s %s/%s", o.Status, o.Kind, o.EntityType, o.Key)
		if o.Reason != "" {
			line += "  (" + o.Reason + ")"
		}
		fmt.Println(line)
	}
}
