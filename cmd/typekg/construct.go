package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aferrante/typekg/dataset"
)

var (
	flagLines   bool
	flagSources string
)

var constructCmd = &cobra.Command{
	Use:   "construct [titles...]",
	Short: "Extract graph statements from stored documents",
	Long: `Extract graph statements from the named stored documents.

By default the model emits formal statements directly, each validated against
the schema before entering the statement log. With --lines the model emits
the simplified line format instead, which is compiled deterministically into
statements with cross-batch entity dedup.

With --sources, each line of the file is a JSON list of titles and runs as
its own batch.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		batches := [][]string{args}
		if flagSources != "" {
			loaded, err := dataset.LoadSources(flagSources)
			if err != nil {
				return err
			}
			batches = loaded
		} else if len(args) == 0 {
			return fmt.Errorf("no titles given: pass title arguments or --sources")
		}

		for i, titles := range batches {
			if flagLines {
				res, err := engine.ConstructLines(ctx, titles)
				if err != nil {
					return fmt.Errorf("batch %d: %w", i+1, err)
				}
				fmt.Printf("batch %d: %d statements (%d malformed, %d unknown, %d new entities, %d merged)\n",
					i+1, len(res.Statements), len(res.Malformed), len(res.Unknown),
					res.NewEntities, res.MergedEntities)
				continue
			}
			res, err := engine.ConstructDirect(ctx, titles)
			if err != nil {
				return fmt.Errorf("batch %d: %w", i+1, err)
			}
			fmt.Printf("batch %d: %d statements accepted, %d rejected\n",
				i+1, len(res.Accepted), len(res.Rejected))
		}
		return nil
	},
}

func init() {
	constructCmd.Flags().BoolVar(&flagLines, "lines", false, "use the line-format pipeline")
	constructCmd.Flags().StringVar(&flagSources, "sources", "", "file with one JSON title list per line")
	rootCmd.AddCommand(constructCmd)
}
