// Package spam scores comment submissions with cheap, deterministic
// heuristics. A score never rejects a comment on its own; it is stored with
// the comment so moderators can triage the queue.
//
// Signals:
//   - link density (links counted in the rendered Markdown, autolinks included)
//   - blocklisted terms in the author name or body
//   - low vocabulary variety and long single-character runs
//
// The final score is clamped to [0,1].
package spam

import (
	"regexp"
	"sort"
	"strings"

	"github.com/tbourn/go-blog-backend/internal/content"
)

// Verdict is the outcome of scoring one submission.
type Verdict struct {
	Score   float64
	Links   int
	Matched []string // blocklisted terms found, sorted
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithBlocklist sets the terms that raise the score when present.
// Terms are case-insensitive and may be phrases ("buy now"); they match
// whole words in order, ignoring punctuation and spacing between them.
func WithBlocklist(terms []string) Option {
	return func(s *Scorer) {
		m := make(map[string]string, len(terms))
		for _, t := range terms {
			t = strings.ToLower(strings.TrimSpace(t))
			if words := tokenize(t); len(words) > 0 {
				m[t] = " " + strings.Join(words, " ") + " "
			}
		}
		s.blocklist = m
	}
}

// WithMaxLinks sets how many links a comment may carry before the link
// signal saturates.
func WithMaxLinks(n int) Option {
	return func(s *Scorer) {
		if n >= 0 {
			s.maxLinks = n
		}
	}
}

// Scorer is immutable after construction and safe for concurrent use.
type Scorer struct {
	blocklist map[string]string // term -> padded word sequence
	maxLinks  int
}

// New returns a Scorer with the given options applied.
func New(opts ...Option) *Scorer {
	s := &Scorer{maxLinks: 3}
	for _, o := range opts {
		o(s)
	}
	return s
}

const (
	weightLinks      = 0.5
	weightBlocklist  = 0.4
	weightRepetition = 0.2
	minRunLength     = 10
	minVarietyTokens = 8
	lowVariety       = 0.3
)

// Score evaluates author and body and returns a Verdict.
func (s *Scorer) Score(author, body string) Verdict {
	var v Verdict

	rendered := content.Render(body)
	v.Links = len(content.Links(rendered))
	switch {
	case v.Links == 0:
	case v.Links > s.maxLinks:
		v.Score += weightLinks
	default:
		v.Score += weightLinks * float64(v.Links) / float64(s.maxLinks+1)
	}

	if len(s.blocklist) > 0 {
		text := " " + strings.Join(tokenize(author+" "+body), " ") + " "
		for term, words := range s.blocklist {
			if strings.Contains(text, words) {
				v.Matched = append(v.Matched, term)
			}
		}
		sort.Strings(v.Matched)
		v.Score += weightBlocklist * float64(len(v.Matched))
	}

	// markup such as thematic breaks is not repetition
	if repetitive(content.Plain(rendered)) {
		v.Score += weightRepetition
	}

	if v.Score > 1 {
		v.Score = 1
	}
	return v
}

var wordRE = regexp.MustCompile(`[\p{L}\p{M}\p{N}]+`)

func tokenize(s string) []string {
	return wordRE.FindAllString(strings.ToLower(s), -1)
}

func tokenSet(toks []string) map[string]struct{} {
	out := make(map[string]struct{}, len(toks))
	for _, w := range toks {
		out[w] = struct{}{}
	}
	return out
}

// repetitive reports long runs of one character or a body that keeps
// repeating the same few words.
func repetitive(body string) bool {
	run, prev := 0, rune(-1)
	for _, r := range body {
		if r == prev {
			run++
			if run >= minRunLength {
				return true
			}
			continue
		}
		prev, run = r, 1
	}

	toks := tokenize(body)
	if len(toks) < minVarietyTokens {
		return false
	}
	return float64(len(tokenSet(toks)))/float64(len(toks)) < lowVariety
}
