// Package cli implements the context-engine CLI commands.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rcliao/context-engine/internal/embedding"
	"github.com/rcliao/context-engine/internal/engine"
	"github.com/rcliao/context-engine/internal/lateral"
	"github.com/rcliao/context-engine/internal/reason"
	"github.com/rcliao/context-engine/internal/rerank"
	"github.com/rcliao/context-engine/internal/retrieve"
	"github.com/rcliao/context-engine/internal/store"
)

var (
	dbPath      string
	indexPath   string
	formatFlag  string
	verboseFlag bool
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "context-engine",
	Short: "Context intelligence over a tiered memory store",
	Long:  "Ingest observations, then query them back as assembled context: hybrid retrieval, step-by-step reasoning over the evidence, and lateral connections across records. SQLite-backed, single binary.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $CONTEXT_ENGINE_DB or ~/.context-engine/engine.db)")
	RootCmd.PersistentFlags().StringVar(&indexPath, "index", "", "Vector index directory (default: alongside the database)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
	RootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Log engine internals to stderr")
}

func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	if env := os.Getenv("CONTEXT_ENGINE_DB"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".context-engine", "engine.db")
}

func getIndexPath() string {
	if indexPath != "" {
		return indexPath
	}
	if env := os.Getenv("CONTEXT_ENGINE_INDEX"); env != "" {
		return env
	}
	return filepath.Join(filepath.Dir(getDBPath()), "index")
}

func newLogger() *zap.Logger {
	if !verboseFlag {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func openStore() (*store.TieredStore, error) {
	return store.NewTieredStore(getDBPath(), getIndexPath(), newLogger())
}

// openEngine assembles the full engine from environment-selected backends.
// The returned closer stops the background worker and closes the store.
func openEngine(ctx context.Context) (*engine.Orchestrator, func(), error) {
	logger := newLogger()

	s, err := store.NewTieredStore(getDBPath(), getIndexPath(), logger)
	if err != nil {
		return nil, nil, err
	}

	emb, err := embedding.NewFromEnv(ctx)
	if err != nil {
		s.Close()
		return nil, nil, err
	}

	var rr rerank.Reranker
	switch os.Getenv("CONTEXT_ENGINE_RERANKER") {
	case "gemini":
		rr, err = rerank.NewGeminiReranker(ctx, os.Getenv("CONTEXT_ENGINE_RERANK_MODEL"))
		if err != nil {
			s.Close()
			return nil, nil, err
		}
	case "off":
	default:
		rr = rerank.NewLexicalReranker()
	}

	o := engine.New(s,
		retrieve.New(s, emb, rr, retrieve.DefaultConfig(), logger),
		reason.New(reason.NewOverlapStrategy(), reason.DefaultConfig(), logger),
		lateral.New(s, lateral.DefaultConfig(), logger),
		emb, engine.DefaultConfig(), logger)

	closer := func() {
		o.Close()
		s.Close()
	}
	return o, closer, nil
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
