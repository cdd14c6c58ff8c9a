package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/sitesync/sitesync/pkg/diff"
	"github.com/sitesync/sitesync/pkg/model"
)

func newDiffCommand() *cobra.Command {
	var includeGenerated bool

	cmd := &cobra.Command{
		Use:   "diff <snapshotA> <snapshotB>",
		Short: "Semantic diff between two snapshots",
		Long: `Compare two snapshots by entity identity, ignoring ordering and
volatile fields. Arguments are local files or store references.

Exits 0 when the snapshots match, 1 when they differ.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			base, err := a.loadSnapshot(ctx, args[0])
			if err != nil {
				return err
			}
			target, err := a.loadSnapshot(ctx, args[1])
			if err != nil {
				return err
			}
			baseNorm, err := a.normalizer.Normalize(ctx, base)
			if err != nil {
				return err
			}
			targetNorm, err := a.normalizer.Normalize(ctx, target)
			if err != nil {
				return err
			}

			cs := diff.Compute(baseNorm, targetNorm, diff.Options{IncludeGenerated: includeGenerated})
			if jsonOutput {
				if err := printJSON(cs); err != nil {
					return err
				}
			} else {
				printChangeSet(cs)
			}
			if !cs.Empty() {
				return &ExitError{Code: 1, Msg: "snapshots differ"}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&includeGenerated, "include-generated", false, "also diff provider-generated entities")

	return cmd
}

// printChangeSet renders a change set with +/-/~ markers per type.
func printChangeSet(cs *diff.ChangeSet) {
	if cs.Empty() {
		fmt.Println("No differences.")
		return
	}

	types := make([]model.EntityType, 0, len(cs.Deltas))
	for t := range cs.Deltas {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	for _, t := range types {
		delta := cs.Deltas[t]
		if len(delta.Added) == 0 && len(delta.Removed) == 0 && len(delta.Modified) == 0 {
			continue
		}
		fmt.Printf("%s:\n", t)
		for _, e := range delta.Added {
			fmt.Printf("  + %s\n", e.Key)
		}
		for _, e := range delta.Removed {
			fmt.Printf("  - %s\n", e.Key)
		}
		for _, m := range delta.Modified {
			for _, fd := range m.Fields {
				fmt.Printf("  ~ %s: %s %v -> %v\n", m.Key, fd.Field, fd.Before, fd.After)
			}
		}
	}
}
