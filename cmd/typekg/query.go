package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aferrante/typekg/dataset"
)

var (
	flagShowHits      bool
	flagQuestionsFile string
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Translate a question into a graph match query",
	Long: `Translate a natural-language question into a graph match query.

With --questions, translates every line of the file instead, printing one
generated query per input line in input order (newlines inside a query are
flattened).`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if flagQuestionsFile != "" {
			questions, err := dataset.LoadLines(flagQuestionsFile)
			if err != nil {
				return err
			}
			for _, question := range questions {
				q, err := engine.GenerateQuery(ctx, question)
				if err != nil {
					return err
				}
				fmt.Println(strings.ReplaceAll(q, "\n", " "))
			}
			return nil
		}
		if len(args) != 1 {
			return fmt.Errorf("pass a question or --questions")
		}
		q, err := engine.GenerateQuery(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Println(q)
		return nil
	},
}

var answerCmd = &cobra.Command{
	Use:   "answer <question>",
	Short: "Answer a question from the stored documents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := engine.Answer(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Println(res.Answer)
		if flagShowHits {
			for _, h := range res.Hits {
				fmt.Printf("  %.4f  %s\n", h.Score, h.Title)
			}
		}
		return nil
	},
}

func init() {
	queryCmd.Flags().StringVar(&flagQuestionsFile, "questions", "", "file with one question per line")
	answerCmd.Flags().BoolVar(&flagShowHits, "show-hits", false, "print retrieved documents with scores")
	rootCmd.AddCommand(queryCmd, answerCmd)
}
