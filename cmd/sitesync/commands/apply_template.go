package commands

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/sitesync/sitesync/pkg/execute"
	"github.com/sitesync/sitesync/pkg/model"
	"github.com/sitesync/sitesync/pkg/telemetry"
	"github.com/sitesync/sitesync/pkg/template"
)

func newApplyTemplateCommand() *cobra.Command {
	var (
		templatePath string
		bindingsPath string
		parallel     int
		dryRun       bool
		rate         float64
		burst        int
	)

	cmd := &cobra.Command{
		Use:   "apply-template",
		Short: "Fan a template out to many sites with per-site bindings",
		Long: `Expand a template per site, plan each site against its live state and
execute all plans concurrently. Workers share one provider rate budget;
a failing site never stops the others.

Exits 0 when every site completes without skips, 1 when any site
finished partially or skipped operations.`,
		Example: `  sitesync apply-template --template branch.yaml --bindings sites.yaml

  # Preview the per-site plans
  sitesync apply-template --template branch.yaml --bindings sites.yaml --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			tmplData, err := os.ReadFile(templatePath)
			if err != nil {
				return err
			}
			tmpl, err := template.Load(tmplData)
			if err != nil {
				return err
			}
			bindData, err := os.ReadFile(bindingsPath)
			if err != nil {
				return err
			}
			bindings, err := template.LoadBindings(bindData)
			if err != nil {
				return err
			}

			// Flags beat the bindings document.
			if parallel == 0 {
				parallel = bindings.Parallel
			}
			if rate == 0 {
				rate = bindings.RatePerSecond
			}
			if burst == 0 {
				burst = bindings.Burst
			}

			schemas, err := model.NewSchemaRegistry()
			if err != nil {
				return err
			}
			engine := template.NewEngine(schemas, a.logger)

			var gate *execute.RateGate
			if rate > 0 {
				gate = execute.NewRateGate(rate, burst, a.metrics)
			}
			executor := execute.NewExecutor(a.provider, gate, execute.DefaultRetryPolicy(), a.logger, a.metrics).WithTracer(a.tracer)
			pool := execute.NewPool(executor, parallel)
			applier := template.NewApplier(engine, a.provider, a.normalizer, pool, a.logger)

			if dryRun {
				plans, report, err := applier.Plan(ctx, tmpl, bindings.Sites)
				if err != nil {
					return err
				}
				for _, rp := range plans {
					printPlan(rp)
				}
				for _, r := range report.Sites {
					fmt.Printf("Site %s: planning failed: %s\n", r.SiteID, r.Error)
				}
				if len(report.Sites) > 0 {
					return &ExitError{Code: 1, Msg: "planning failed on some sites"}
				}
				return nil
			}

			spanCtx, span := a.tracer.Start(ctx, "template.apply")
			report, err := applier.Apply(spanCtx, tmpl, bindings.Sites)
			var partial *execute.PartialExecutionError
			if err != nil && !errors.As(err, &partial) {
				telemetry.RecordError(span, err)
				span.End()
				return err
			}
			if partial != nil {
				telemetry.RecordError(span, partial)
			} else {
				telemetry.RecordSuccess(span)
			}
			span.End()

			if jsonOutput {
				if perr := printJSON(report); perr != nil {
					return perr
				}
			} else {
				ids := make([]string, 0, len(report.Sites))
				for id := range report.Sites {
					ids = append(ids, id)
				}
				sort.Strings(ids)
				for _, id := range ids {
					r := report.Sites[id]
					if r.Error != "" {
						fmt.Printf("Site %s: %s: %s\n", id, r.Status, r.Error)
						continue
					}
					printSiteReport(r)
				}
			}
			if partial != nil {
				return &ExitError{Code: 1, Msg: partial.Error()}
			}
			if n := report.Skips(); n > 0 {
				return &ExitError{Code: 1, Msg: fmt.Sprintf("template applied with %d skipped operations", n)}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&templatePath, "template", "", "template file")
	cmd.Flags().StringVar(&bindingsPath, "bindings", "", "per-site bindings file")
	cmd.Flags().IntVar(&parallel, "parallel", 0, "concurrent site workers (0 uses the bindings file or the default)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the per-site plans without writing")
	cmd.Flags().Float64Var(&rate, "rate", 0, "shared provider calls per second across all workers")
	cmd.Flags().IntVar(&burst, "burst", 0, "rate gate burst allowance")
	_ = cmd.MarkFlagRequired("template")
	_ = cmd.MarkFlagRequired("bindings")

	return cmd
}
