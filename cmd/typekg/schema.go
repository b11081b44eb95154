package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Manage the active graph schema",
}

var schemaLoadCmd = &cobra.Command{
	Use:   "load <file>",
	Short: "Parse a schema file and install it as the active schema",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := engine.LoadSchema(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("schema loaded: %d types\n", len(engine.Schema().Types()))
		return nil
	},
}

var schemaShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the active schema definition",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := engine.FetchSchema(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(text)
		return nil
	},
}

func init() {
	schemaCmd.AddCommand(schemaLoadCmd, schemaShowCmd)
	rootCmd.AddCommand(schemaCmd)
}
