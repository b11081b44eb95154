package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aferrante/typekg/dataset"
	"github.com/aferrante/typekg/eval"
)

var (
	flagQuestions string
	flagAnswers   string
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Answer a question set and score it against gold answers",
	Long: `Answer every question from --questions and score the predictions
against the matching lines of --answers with exact match and token F1.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		questions, err := dataset.LoadLines(flagQuestions)
		if err != nil {
			return err
		}
		golds, err := dataset.LoadLines(flagAnswers)
		if err != nil {
			return err
		}

		predictions := make([]string, len(questions))
		for i, q := range questions {
			res, err := engine.Answer(ctx, q)
			if err != nil {
				return fmt.Errorf("question %d: %w", i+1, err)
			}
			predictions[i] = res.Answer
			fmt.Printf("[%d/%d] %s -> %s\n", i+1, len(questions), q, res.Answer)
		}

		sum, err := eval.EvaluateAll(predictions, golds)
		if err != nil {
			return err
		}
		fmt.Printf("n=%d  EM=%.4f  F1=%.4f\n", sum.Count, sum.ExactMatch, sum.F1)
		return nil
	},
}

func init() {
	evalCmd.Flags().StringVar(&flagQuestions, "questions", "", "file with one question per line")
	evalCmd.Flags().StringVar(&flagAnswers, "answers", "", "file with one gold answer per line")
	evalCmd.MarkFlagRequired("questions")
	evalCmd.MarkFlagRequired("answers")
	rootCmd.AddCommand(evalCmd)
}
