package grading

import (
	"context"
	"errors"
	"strings"
)

// Question types understood by the default grader.
const (
	TypeMultipleChoice = "multiple_choice"
	TypeTrueFalse      = "true_false"
	TypeWritten        = "written"
	TypeFillBlank      = "fill_blank"
	TypeEssay          = "essay"
)

// Q is a minimal view of a question needed for grading.
type Q struct {
	Type      string
	Points    float64
	AnswerKey []string // correct option ids, or reference text for fill_blank
	Aliases   []string // extra accepted spellings (true/false option text)
}

// Result is the outcome of grading a single question response.
type Result struct {
	AutoPoints  float64  // points awarded automatically
	MaxPoints   float64  // the question's max points
	NeedsManual bool     // true if instructor review is required
	Feedback    []string // optional notes
}

// Strategy grades a single question. values holds the submitted answer:
// one element for single-valued answers, several for multi-select.
type Strategy interface {
	Grade(ctx context.Context, q Q, values []string) (Result, error)
}

// Grader routes by question type to the correct Strategy.
type Grader interface {
	Grade(ctx context.Context, q Q, values []string) (Result, error)
}

var errEmptyResponse = errors.New("empty response")

type defaultGrader struct {
	strategies map[string]Strategy
}

func (g *defaultGrader) Grade(ctx context.Context, q Q, values []string) (Result, error) {
	s, ok := g.strategies[q.Type]
	if !ok {
		return Result{MaxPoints: q.Points, NeedsManual: true, Feedback: []string{"no strategy available"}}, nil
	}
	return s.Grade(ctx, q, values)
}

// Engine options

type Option func(*config)

type config struct {
	MaxEditDistance   int  // for fill_blank fuzzy matching
	AllowPartialMulti bool // partial credit for multi-answer MCQ without false positives
	MatchFillBlank    bool // auto-grade fill_blank against the reference answer
}

func WithMaxEditDistance(n int) Option   { return func(c *config) { c.MaxEditDistance = n } }
func WithPartialMulti(b bool) Option     { return func(c *config) { c.AllowPartialMulti = b } }
func WithFillBlankMatching(b bool) Option { return func(c *config) { c.MatchFillBlank = b } }

// NewDefaultGrader installs built-in strategies.
func NewDefaultGrader(opts ...Option) Grader {
	cfg := &config{MaxEditDistance: 1}
	for _, o := range opts {
		o(cfg)
	}
	var fill Strategy = manualStrategy{}
	if cfg.MatchFillBlank {
		fill = fillBlankStrategy{maxEdit: cfg.MaxEditDistance}
	}
	return &defaultGrader{
		strategies: map[string]Strategy{
			TypeMultipleChoice: choiceStrategy{allowPartial: cfg.AllowPartialMulti},
			TypeTrueFalse:      trueFalseStrategy{},
			TypeFillBlank:      fill,
			TypeWritten:        manualStrategy{},
			TypeEssay:          manualStrategy{},
		},
	}
}

// --- Strategies ---

// choiceStrategy handles multiple choice. A single correct option needs exactly
// that option selected; several correct options need the selected set to match.
type choiceStrategy struct{ allowPartial bool }

func (s choiceStrategy) Grade(_ context.Context, q Q, values []string) (Result, error) {
	res := Result{MaxPoints: q.Points}
	if len(values) == 0 {
		return res, errEmptyResponse
	}
	correct := toSet(q.AnswerKey)
	resp := toSet(values)

	if setEqual(correct, resp) {
		res.AutoPoints = q.Points
		return res, nil
	}
	if len(correct) < 2 || !s.allowPartial {
		return res, nil
	}
	for r := range resp {
		if _, ok := correct[r]; !ok {
			return res, nil // false positive: no partial credit
		}
	}
	res.AutoPoints = q.Points * (float64(len(resp)) / float64(len(correct)))
	return res, nil
}

type trueFalseStrategy struct{}

func (trueFalseStrategy) Grade(_ context.Context, q Q, values []string) (Result, error) {
	res := Result{MaxPoints: q.Points}
	if len(values) != 1 {
		return res, errors.New("true/false response must be a single value")
	}
	resp := strings.ToLower(strings.TrimSpace(values[0]))
	for _, k := range append(append([]string{}, q.AnswerKey...), q.Aliases...) {
		if resp == strings.ToLower(strings.TrimSpace(k)) {
			res.AutoPoints = q.Points
			return res, nil
		}
	}
	return res, nil
}

type fillBlankStrategy struct{ maxEdit int }

func (s fillBlankStrategy) Grade(_ context.Context, q Q, values []string) (Result, error) {
	res := Result{MaxPoints: q.Points}
	if len(values) != 1 {
		return res, errors.New("fill-in-the-blank response must be a single value")
	}
	if len(q.AnswerKey) == 0 {
		res.NeedsManual = true
		res.Feedback = append(res.Feedback, "no reference answer")
		return res, nil
	}
	normResp := normalize(values[0])

	near := false
	for _, k := range q.AnswerKey {
		if pass, numeric := numericMatch(k, values[0]); numeric {
			if pass {
				res.AutoPoints = q.Points
				return res, nil
			}
			continue
		}
		nk := normalize(k)
		if nk == normResp {
			res.AutoPoints = q.Points
			return res, nil
		}
		if s.maxEdit > 0 && levenshtein(nk, normResp) <= s.maxEdit {
			near = true
		}
	}
	if near {
		res.AutoPoints = q.Points * 0.5
		res.Feedback = append(res.Feedback, "close match (fuzzy)")
	}
	return res, nil
}

type manualStrategy struct{}

func (manualStrategy) Grade(_ context.Context, q Q, _ []string) (Result, error) {
	return Result{MaxPoints: q.Points, NeedsManual: true, Feedback: []string{"manual grading required"}}, nil
}

// helpers

func toSet(arr []string) map[string]struct{} {
	m := make(map[string]struct{}, len(arr))
	for _, s := range arr {
		m[s] = struct{}{}
	}
	return m
}

func setEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
