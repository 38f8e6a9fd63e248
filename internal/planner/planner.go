// Package planner turns a free-text requirement into search keywords and a
// synthetic README-like query text.
//
// Both operations are single-shot text-generation calls; the only logic
// here is prompt construction and trivial post-processing. The synthetic
// query text covers the vocabulary mismatch between terse keywords and
// prose requirements when searching the index.
package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kcxain/ragc/internal/llm"
	"go.uber.org/zap"
)

// ErrPlanning is returned when the text-generation collaborator fails after
// bounded retries, or keeps producing unusable output.
var ErrPlanning = errors.New("planning failed")

// maxKeywords caps the keyword set; more terms blow out search volume.
const maxKeywords = 3

// outputAttempts bounds re-prompting when the model returns no usable
// keywords. Transport-level retries live in the llm client.
const outputAttempts = 2

const keywordsPrompt = `You are an AI assistant tasked with generating keywords for searching GitHub repositories.

User Requirement:
%s
%s
Your goal is to produce a concise list of 2 or 3 relevant keywords that can be used to effectively search for repositories on GitHub. The keywords should:
1. Be relevant to the user's requirement.
2. Include both technical terms and common phrases related to the functionality described.
3. Avoid unnecessary words or overly generic terms.
4. Each keyword covers all user requirements as much as possible.
5. To minimize the search results, avoid using overly broad terms, such as 'cpp' or 'algorithm'.

Please return the keywords as a comma-separated list without any additional commentary.`

const queryTextPrompt = `You are an AI assistant tasked with generating text for searching README content from a vector database.

User Requirement:
%s

Your task is to generate a README text of about 100 words that aligns as closely as possible with the user's specified algorithm requirements.
The README must highlight and prioritize the user's specific needs, such as programming language, hardware compatibility (CPU/GPU), performance optimization, and any other explicit details provided in the algorithm description.

Please return the text only.`

// Planner plans retrieval queries for a requirement.
type Planner struct {
	llm    llm.Client
	logger *zap.Logger
}

// New creates a Planner.
func New(client llm.Client, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{llm: client, logger: logger}
}

// Keywords derives 2-3 short, lower-cased search terms from the
// requirement. On replan rounds, hint carries the previous round's
// rejection reason so the model steers away from the failed keyword set.
func (p *Planner) Keywords(ctx context.Context, requirement, hint string) ([]string, error) {
	hintSection := ""
	if hint != "" {
		hintSection = fmt.Sprintf("\nA previous search with different keywords failed: %s. Choose a different angle.\n", hint)
	}
	prompt := fmt.Sprintf(keywordsPrompt, requirement, hintSection)

	var lastErr error
	for attempt := 0; attempt < outputAttempts; attempt++ {
		response, err := p.llm.Complete(ctx, prompt)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPlanning, err)
		}
		keywords := splitKeywords(response)
		if len(keywords) > 0 {
			p.logger.Info("keywords planned", zap.Strings("keywords", keywords))
			return keywords, nil
		}
		lastErr = fmt.Errorf("no usable keywords in response %q", response)
	}
	return nil, fmt.Errorf("%w: %v", ErrPlanning, lastErr)
}

// QueryText generates the synthetic README-like passage used as the
// similarity-search query.
func (p *Planner) QueryText(ctx context.Context, requirement string) (string, error) {
	response, err := p.llm.Complete(ctx, fmt.Sprintf(queryTextPrompt, requirement))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPlanning, err)
	}
	text := strings.TrimSpace(response)
	if text == "" {
		return "", fmt.Errorf("%w: empty query text", ErrPlanning)
	}
	return text, nil
}

// splitKeywords post-processes the comma-separated model output: trim,
// lower-case, drop empties and duplicates, cap the count.
func splitKeywords(response string) []string {
	response = strings.Trim(strings.TrimSpace(response), "`\"")
	seen := make(map[string]bool)
	var keywords []string
	for _, part := range strings.Split(response, ",") {
		kw := strings.ToLower(strings.TrimSpace(part))
		kw = strings.Trim(kw, `"'.`)
		if kw == "" || seen[kw] || strings.ContainsAny(kw, "\n") {
			continue
		}
		seen[kw] = true
		keywords = append(keywords, kw)
		if len(keywords) == maxKeywords {
			break
		}
	}
	return keywords
}
