package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kcxain/ragc/internal/index"
	"go.uber.org/zap"
)

const reviewPrompt = `You are an AI assistant tasked with reviewing %d repository README excerpts and selecting the best match for the user's algorithm requirements.

User Requirement:
%s

Repositories with README excerpts:
%s

Return a JSON object with two fields: "repo_name" (the full name of the single best matching repository, or "none" if no repository matches the requirements) and "reason" (a short explanation).`

// reviewPick is the structured review response. Both name keys are
// accepted; models use either.
type reviewPick struct {
	RepoName     string `json:"repo_name"`
	SelectedRepo string `json:"selected_repo"`
	Reason       string `json:"reason"`
}

func (p reviewPick) name() string {
	if p.RepoName != "" {
		return p.RepoName
	}
	return p.SelectedRepo
}

// review sends the top-K to the collaborator and turns its structured
// response into a Decision. Review never fails a round: an unusable or
// unparseable response falls back to the top-ranked result.
func (s *Session) review(ctx context.Context, requirement string, ranked []index.RankedResult, log *zap.Logger) Decision {
	prompt := fmt.Sprintf(reviewPrompt, len(ranked), requirement, formatCandidates(ranked, s.cfg.ExcerptBytes))

	response, err := s.reviewer.CompleteJSON(ctx, prompt)
	if err != nil {
		log.Warn("review call failed, falling back to top-ranked result", zap.Error(err))
		return s.fallbackDecision(ranked, "review call failed")
	}

	pick, err := parseReview(response)
	if err != nil {
		log.Warn("review response unparseable, falling back to top-ranked result",
			zap.String("response", response), zap.Error(err))
		return s.fallbackDecision(ranked, "review response unparseable")
	}

	name := pick.name()
	if name == "" || strings.EqualFold(name, "none") {
		reason := pick.Reason
		if reason == "" {
			reason = "no acceptable candidate"
		}
		return Decision{Accepted: false, Reason: reason, RetryHint: reason}
	}

	chosen, ok := findRanked(ranked, name)
	if !ok {
		log.Warn("review picked a repository outside the ranked list, falling back",
			zap.String("pick", name))
		return s.fallbackDecision(ranked, "review pick not in ranked list")
	}
	if s.cfg.MinFusedScore > 0 && chosen.Score < s.cfg.MinFusedScore {
		return Decision{
			Accepted:  false,
			Reason:    fmt.Sprintf("best candidate %s scored %.4f, below threshold %.4f", chosen.RepoFullName, chosen.Score, s.cfg.MinFusedScore),
			RetryHint: "candidates were only weakly related",
		}
	}

	return Decision{
		Accepted:      true,
		RepoFullName:  chosen.RepoFullName,
		Justification: pick.Reason,
	}
}

// fallbackDecision accepts the top-1 retrieved result. Used whenever the
// review step cannot produce a usable pick; the round must not fail for
// that alone.
func (s *Session) fallbackDecision(ranked []index.RankedResult, cause string) Decision {
	if len(ranked) == 0 {
		return Decision{Accepted: false, Reason: "no candidates"}
	}
	return Decision{
		Accepted:      true,
		RepoFullName:  ranked[0].RepoFullName,
		Justification: fmt.Sprintf("top-ranked retrieval result (%s)", cause),
	}
}

// parseReview decodes the structured response, tolerating markdown code
// fences around the JSON object.
func parseReview(response string) (reviewPick, error) {
	content := strings.TrimSpace(response)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var pick reviewPick
	if err := json.Unmarshal([]byte(content), &pick); err != nil {
		return reviewPick{}, fmt.Errorf("decoding review response: %w", err)
	}
	return pick, nil
}

// findRanked matches a picked name against the ranked list. Exact match
// first; a suffix match tolerates answers that drop the owner prefix.
func findRanked(ranked []index.RankedResult, name string) (index.RankedResult, bool) {
	for _, r := range ranked {
		if strings.EqualFold(r.RepoFullName, name) {
			return r, true
		}
	}
	for _, r := range ranked {
		if strings.HasSuffix(strings.ToLower(r.RepoFullName), "/"+strings.ToLower(name)) {
			return r, true
		}
	}
	return index.RankedResult{}, false
}

// formatCandidates renders the numbered candidate list for the review
// prompt, truncating each excerpt to the configured budget.
func formatCandidates(ranked []index.RankedResult, excerptBytes int) string {
	var b strings.Builder
	for i, r := range ranked {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "repo_name_%d: %s, repo_readme%d: %s",
			i, r.RepoFullName, i, truncate(r.Excerpt, excerptBytes))
	}
	return b.String()
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
