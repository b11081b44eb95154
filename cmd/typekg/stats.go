package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aferrante/typekg/store"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database row counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := engine.Stats(cmd.Context())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

var statementsCmd = &cobra.Command{
	Use:   "statements [origin]",
	Short: "Print the statement log, optionally filtered by origin title",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		var err error
		var stmts []store.StatementRecord
		if len(args) == 1 {
			stmts, err = engine.Store().StatementsByOrigin(ctx, args[0])
		} else {
			stmts, err = engine.Store().ListStatements(ctx)
		}
		if err != nil {
			return err
		}
		for _, st := range stmts {
			fmt.Println(st.Text)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd, statementsCmd)
}
