// Command typekg builds schema-constrained knowledge graphs from documents
// and answers questions over them.
//
// Typical session:
//
//	typekg schema load ./schema.tql
//	typekg ingest --dataset ./dev.json
//	typekg construct --lines "Marie Curie" "Poland"
//	typekg answer "Where was Marie Curie born?"
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	typekg "github.com/aferrante/typekg"
)

var (
	flagConfig  string
	flagDBPath  string
	flagLogFile string
	flagVerbose bool

	engine *typekg.Engine
)

var rootCmd = &cobra.Command{
	Use:           "typekg",
	Short:         "LLM knowledge-graph construction and question answering",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		cfg, err := typekg.LoadConfig(flagConfig)
		if err != nil {
			return err
		}
		if flagDBPath != "" {
			cfg.DBPath = flagDBPath
		}
		engine, err = typekg.New(cfg)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if engine != nil {
			engine.Close()
		}
	},
}

// setupLogging points slog at stderr, or at a size-rotated file when
// --log-file is set.
func setupLogging() {
	var w io.Writer = os.Stderr
	if flagLogFile != "" {
		w = &lumberjack.Logger{
			Filename:   flagLogFile,
			MaxSize:    20, // MB
			MaxBackups: 3,
			MaxAge:     14, // days
		}
	}
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

func main() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to TOML config file")
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "override database path")
	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "write logs to a rotated file instead of stderr")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
