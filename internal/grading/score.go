package grading

import (
	"context"
	"math"
)

// Item is one question of an attempt ready for scoring.
type Item struct {
	QuestionID string
	Q          Q
	Values     []string // nil when unanswered
}

// ItemResult is the per-question outcome kept on the attempt.
type ItemResult struct {
	Points      float64  `json:"points"`
	MaxPoints   float64  `json:"max_points"`
	Answered    bool     `json:"answered"`
	NeedsManual bool     `json:"needs_manual,omitempty"`
	Feedback    []string `json:"feedback,omitempty"`
}

// Outcome aggregates an attempt's grading.
type Outcome struct {
	Score       float64
	MaxScore    float64
	Percentage  float64
	Passed      bool
	NeedsManual bool
	Items       map[string]ItemResult
}

// Evaluate grades every item and derives the totals. totalMarks <= 0 means the
// sum of the items' points. Ungradable responses (wrong shape) score zero.
func Evaluate(ctx context.Context, g Grader, items []Item, totalMarks, passingMarks float64) Outcome {
	out := Outcome{Items: make(map[string]ItemResult, len(items))}
	sum := 0.0
	for _, it := range items {
		sum += it.Q.Points
		ir := ItemResult{MaxPoints: it.Q.Points, Answered: len(it.Values) > 0}
		if !ir.Answered {
			out.Items[it.QuestionID] = ir
			continue
		}
		res, err := g.Grade(ctx, it.Q, it.Values)
		if err != nil {
			ir.Feedback = []string{err.Error()}
			out.Items[it.QuestionID] = ir
			continue
		}
		ir.Points = res.AutoPoints
		ir.NeedsManual = res.NeedsManual
		ir.Feedback = res.Feedback
		out.Items[it.QuestionID] = ir

		out.Score += res.AutoPoints
		if res.NeedsManual {
			out.NeedsManual = true
		}
	}

	out.MaxScore = totalMarks
	if out.MaxScore <= 0 {
		out.MaxScore = sum
	}
	if out.MaxScore > 0 {
		out.Percentage = round2(out.Score / out.MaxScore * 100)
		out.Passed = out.Score >= passingMarks
	}
	out.Score = round2(out.Score)
	return out
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
