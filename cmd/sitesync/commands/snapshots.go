package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newSnapshotsCommand() *cobra.Command {
	var (
		siteID string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "List the capture catalog",
		Example: `  # Every capture, newest first
  sitesync snapshots

  # One site's history
  sitesync snapshots --site site-a --limit 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			catalog, err := a.openCatalog(ctx)
			if err != nil {
				return err
			}
			defer catalog.Close()

			recs, err := catalog.ListCaptures(ctx, siteID, limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(recs)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SITE\tCAPTURED\tENTITIES\tREF")
			for _, rec := range recs {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
					rec.SiteID, rec.CapturedAt.Format(time.RFC3339), rec.Entities, rec.Ref)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&siteID, "site", "", "only list this site")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows (0 for all)")

	return cmd
}
