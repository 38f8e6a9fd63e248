// ragc finds the GitHub repository best matching a natural-language
// description of an algorithm.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/kcxain/ragc/internal/config"
	"github.com/kcxain/ragc/internal/corpus"
	"github.com/kcxain/ragc/internal/embeddings"
	"github.com/kcxain/ragc/internal/githubclient"
	"github.com/kcxain/ragc/internal/index"
	"github.com/kcxain/ragc/internal/llm"
	"github.com/kcxain/ragc/internal/logging"
	"github.com/kcxain/ragc/internal/planner"
	"github.com/kcxain/ragc/internal/session"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:     "ragc",
		Short:   "Find the GitHub repository best matching an algorithm description",
		Version: version,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")

	match := &cobra.Command{
		Use:   "match <requirement>",
		Short: "Run one ranking session for a requirement",
		Long: `Run one ranking session: derive search keywords, fetch candidate
repository READMEs, rank them in a hybrid lexical+semantic index, and let
the review model pick the best match. Prints the session outcome as JSON.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMatch(cmd, configPath, strings.Join(args, " "))
		},
	}
	root.AddCommand(match)

	return root
}

func runMatch(cmd *cobra.Command, configPath, requirement string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	sess, err := buildSession(cfg, logger)
	if err != nil {
		return err
	}

	outcome, err := sess.Run(cmd.Context(), requirement)
	if err != nil && !errors.Is(err, session.ErrMaxRoundsExceeded) {
		return err
	}

	out, jsonErr := json.MarshalIndent(outcome, "", "  ")
	if jsonErr != nil {
		return jsonErr
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	// Round exhaustion still printed the outcome; exit non-zero for scripts.
	return err
}

// buildSession wires the dependency graph from config.
func buildSession(cfg *config.Config, logger *zap.Logger) (*session.Session, error) {
	gh, err := githubclient.New(githubclient.Config{
		Token:           cfg.GitHub.Token,
		PerPage:         cfg.GitHub.PerPage,
		MaxPages:        cfg.GitHub.MaxPages,
		KeywordCooldown: cfg.GitHub.KeywordCooldown,
		RetryDelay:      cfg.GitHub.RetryDelay,
		MaxRetries:      cfg.GitHub.MaxRetries,
		Timeout:         cfg.GitHub.Timeout,
		BaseURL:         cfg.GitHub.BaseURL,
	}, logger.Named("github"))
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewService(embeddings.Config{
		BaseURL: cfg.Embeddings.BaseURL,
		Model:   cfg.Embeddings.Model,
		APIKey:  cfg.Embeddings.APIKey,
	})
	if err != nil {
		return nil, err
	}

	completions, err := llm.NewOpenAIClient(llm.Config{
		BaseURL:    cfg.LLM.BaseURL,
		Model:      cfg.LLM.Model,
		APIKey:     cfg.LLM.APIKey,
		MaxTokens:  cfg.LLM.MaxTokens,
		MaxRetries: cfg.LLM.MaxRetries,
	}, logger.Named("llm"))
	if err != nil {
		return nil, err
	}

	builder := corpus.NewBuilder(gh, corpus.Config{
		Workers:       cfg.Corpus.Workers,
		ChunkSize:     cfg.Corpus.ChunkSize,
		ChunkOverlap:  cfg.Corpus.ChunkOverlap,
		MinStars:      cfg.Corpus.MinStars,
		MaxRepoSizeMB: cfg.Corpus.MaxRepoSizeMB,
	}, logger.Named("corpus"))

	cache := index.NewCache(cfg.Index.CacheDir, embedder, index.Config{
		LexicalWeight: cfg.Index.LexicalWeight,
		DenseWeight:   cfg.Index.DenseWeight,
	}, logger.Named("index"))

	plan := planner.New(completions, logger.Named("planner"))

	return session.New(plan, gh, builder, cache, completions, session.Config{
		TopK:          cfg.Session.TopK,
		MaxRounds:     cfg.Session.MaxRounds,
		ExcerptBytes:  cfg.Session.ExcerptBytes,
		MinFusedScore: cfg.Session.MinFusedScore,
	}, logger.Named("session")), nil
}
