package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var flagDataset string

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Store and embed documents",
	Long: `Store documents under unique titles and embed them for retrieval.

With --dataset, loads a multi-hop QA dataset JSON file and ingests the unique
context paragraphs. File arguments are loaded by extension: .pdf one document
per page, .xlsx one per sheet, anything else as plain text.

Duplicate titles are skipped; the first stored text wins.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if flagDataset == "" && len(args) == 0 {
			return fmt.Errorf("nothing to ingest: pass --dataset or file arguments")
		}

		stored, skipped := 0, 0
		if flagDataset != "" {
			res, err := engine.IngestDataset(ctx, flagDataset)
			if err != nil {
				return err
			}
			stored += res.Stored
			skipped += res.Skipped
		}
		for _, path := range args {
			res, err := engine.IngestFile(ctx, path)
			if err != nil {
				return err
			}
			stored += res.Stored
			skipped += res.Skipped
		}
		fmt.Printf("stored %d documents, skipped %d duplicates\n", stored, skipped)
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&flagDataset, "dataset", "", "multi-hop QA dataset JSON file")
	rootCmd.AddCommand(ingestCmd)
}
