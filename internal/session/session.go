// Package session orchestrates one ranking session: plan keywords, fetch
// or reuse the README corpus, retrieve candidates from the hybrid index,
// and review them with the text-generation collaborator, replanning until
// a candidate is accepted or the round bound is hit.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/kcxain/ragc/internal/githubclient"
	"github.com/kcxain/ragc/internal/index"
	"github.com/kcxain/ragc/internal/llm"
	"go.uber.org/zap"
)

// ErrMaxRoundsExceeded is returned when no candidate is accepted within the
// configured round bound.
var ErrMaxRoundsExceeded = errors.New("max rounds exceeded")

// State identifies one step of the ranking loop.
type State string

// Loop states. REPLAN transitions back to PLAN; ACCEPT and the round bound
// are terminal.
const (
	StatePlan         State = "PLAN"
	StateFetchOrReuse State = "FETCH_OR_REUSE"
	StateRetrieve     State = "RETRIEVE"
	StateReview       State = "REVIEW"
	StateAccept       State = "ACCEPT"
	StateReplan       State = "REPLAN"
)

// Decision is the terminal output of one ranking round: either a selected
// repository with a justification, or a rejection with a reason that seeds
// the next round's planning hint.
type Decision struct {
	Accepted      bool   `json:"accepted"`
	RepoFullName  string `json:"repo_full_name,omitempty"`
	Justification string `json:"justification,omitempty"`
	Reason        string `json:"reason,omitempty"`
	RetryHint     string `json:"retry_hint,omitempty"`
}

// Outcome is the session output, with the auxiliary fields needed for
// offline scoring against a ground-truth mapping.
type Outcome struct {
	Decision  Decision             `json:"decision"`
	TopK      []index.RankedResult `json:"top_k"`
	Keywords  []string             `json:"keywords"`
	QueryText string               `json:"query_text"`
	Rounds    int                  `json:"rounds"`
}

// Searcher is the keyword-search slice of the code host client.
type Searcher interface {
	SearchAll(ctx context.Context, keywords []string) ([]githubclient.Repository, error)
}

// CorpusBuilder builds README documents for a candidate set.
type CorpusBuilder interface {
	Build(ctx context.Context, candidates []githubclient.Repository) ([]index.Document, error)
}

// IndexCache resolves keyword sets to hybrid indexes.
type IndexCache interface {
	Lookup(ctx context.Context, keywords []string) (*index.Index, error)
	Store(ctx context.Context, keywords []string, docs []index.Document) (*index.Index, error)
}

// Planner plans keywords and query text for a requirement.
type Planner interface {
	Keywords(ctx context.Context, requirement, hint string) ([]string, error)
	QueryText(ctx context.Context, requirement string) (string, error)
}

// Config holds session configuration.
type Config struct {
	// TopK is the size of the ranked list sent to review. Default: 5.
	TopK int

	// MaxRounds bounds PLAN/REVIEW cycles. Default: 5.
	MaxRounds int

	// ExcerptBytes truncates each README excerpt in the review prompt.
	// Default: 1500.
	ExcerptBytes int

	// MinFusedScore is the acceptance threshold policy: a review pick whose
	// fused score is below it counts as a rejection. 0 leaves acceptance to
	// the review step alone.
	MinFusedScore float64
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.TopK == 0 {
		c.TopK = 5
	}
	if c.MaxRounds == 0 {
		c.MaxRounds = 5
	}
	if c.ExcerptBytes == 0 {
		c.ExcerptBytes = 1500
	}
}

// Session runs the ranking loop for one requirement. A session runs its
// state machine sequentially; the only internal parallelism is the corpus
// builder's worker pool.
type Session struct {
	planner  Planner
	searcher Searcher
	builder  CorpusBuilder
	cache    IndexCache
	reviewer llm.Client
	cfg      Config
	logger   *zap.Logger
}

// New creates a Session from its collaborators.
func New(planner Planner, searcher Searcher, builder CorpusBuilder, cache IndexCache, reviewer llm.Client, cfg Config, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	return &Session{
		planner:  planner,
		searcher: searcher,
		builder:  builder,
		cache:    cache,
		reviewer: reviewer,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run executes rounds of PLAN -> FETCH_OR_REUSE -> RETRIEVE -> REVIEW until
// a repository is accepted or MaxRounds is exceeded. The returned Outcome
// always carries the last round's evaluation fields; on round exhaustion it
// is returned together with ErrMaxRoundsExceeded.
func (s *Session) Run(ctx context.Context, requirement string) (*Outcome, error) {
	outcome := &Outcome{}
	hint := ""
	var keywords []string
	var queryText string

	for round := 1; round <= s.cfg.MaxRounds; round++ {
		outcome.Rounds = round
		log := s.logger.With(zap.Int("round", round))

		var idx *index.Index
		var ranked []index.RankedResult

		state := StatePlan
	round:
		for {
			log.Debug("state transition", zap.String("state", string(state)))
			switch state {
			case StatePlan:
				kws, err := s.planner.Keywords(ctx, requirement, hint)
				switch {
				case err == nil:
					keywords = kws
				case len(keywords) > 0:
					// Planning exhausted its retries; fall back to the
					// previous round's keyword set instead of failing.
					log.Warn("keyword planning failed, reusing previous set",
						zap.Strings("keywords", keywords), zap.Error(err))
				default:
					return outcome, err
				}

				qt, err := s.planner.QueryText(ctx, requirement)
				switch {
				case err == nil:
					queryText = qt
				case queryText != "":
					log.Warn("query text planning failed, reusing previous text", zap.Error(err))
				default:
					return outcome, err
				}

				outcome.Keywords = keywords
				outcome.QueryText = queryText
				state = StateFetchOrReuse

			case StateFetchOrReuse:
				got, err := s.fetchOrReuse(ctx, keywords, log)
				switch {
				case errors.Is(err, index.ErrEmptyCorpus):
					outcome.Decision = Decision{
						Accepted:  false,
						Reason:    "no candidates",
						RetryHint: fmt.Sprintf("keywords %v matched no qualifying repositories", keywords),
					}
					state = StateReplan
					continue
				case err != nil:
					return outcome, err
				}
				idx = got
				state = StateRetrieve

			case StateRetrieve:
				r, err := idx.Search(ctx, queryText, s.cfg.TopK)
				switch {
				case errors.Is(err, index.ErrEmptyCorpus):
					outcome.Decision = Decision{Accepted: false, Reason: "no candidates"}
					state = StateReplan
					continue
				case err != nil:
					return outcome, err
				}
				ranked = r
				outcome.TopK = ranked
				state = StateReview

			case StateReview:
				decision := s.review(ctx, requirement, ranked, log)
				outcome.Decision = decision
				if decision.Accepted {
					state = StateAccept
				} else {
					state = StateReplan
				}

			case StateAccept:
				log.Info("repository accepted",
					zap.String("repo", outcome.Decision.RepoFullName))
				return outcome, nil

			case StateReplan:
				hint = outcome.Decision.Reason
				if outcome.Decision.RetryHint != "" {
					hint = outcome.Decision.RetryHint
				}
				log.Info("round rejected, replanning", zap.String("hint", hint))
				break round
			}
		}
	}

	return outcome, fmt.Errorf("%w after %d rounds", ErrMaxRoundsExceeded, s.cfg.MaxRounds)
}

// fetchOrReuse resolves the keyword set to an index: cache hit, or search +
// corpus build + index build + store. Zero qualifying repositories or zero
// documents yield ErrEmptyCorpus.
func (s *Session) fetchOrReuse(ctx context.Context, keywords []string, log *zap.Logger) (*index.Index, error) {
	idx, err := s.cache.Lookup(ctx, keywords)
	if err == nil {
		return idx, nil
	}
	if !errors.Is(err, index.ErrCacheMiss) {
		return nil, err
	}

	repos, err := s.searcher.SearchAll(ctx, keywords)
	if err != nil {
		// A transient failure during keyword search itself surfaces.
		return nil, err
	}
	if len(repos) == 0 {
		return nil, index.ErrEmptyCorpus
	}
	log.Info("candidates found", zap.Int("repos", len(repos)))

	docs, err := s.builder.Build(ctx, repos)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, index.ErrEmptyCorpus
	}

	return s.cache.Store(ctx, keywords, docs)
}
