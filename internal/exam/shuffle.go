package exam

import (
	"hash/fnv"
	"math/rand"
)

// StudentView returns a copy of e with correctness flags, reference answers
// and explanations removed.
func StudentView(e Exam) Exam {
	out := e
	out.Questions = make([]Question, len(e.Questions))
	for i, q := range e.Questions {
		q.CorrectAnswer = ""
		q.Explanation = ""
		if q.Options != nil {
			opts := make([]Option, len(q.Options))
			for j, o := range q.Options {
				opts[j] = Option{ID: o.ID, Text: o.Text}
			}
			q.Options = opts
		}
		out.Questions[i] = q
	}
	out.QuestionIDs = questionIDs(out.Questions)
	return out
}

// OrderFor returns a copy of e arranged for one attempt. The permutation is a
// pure function of the attempt id, so reloads see the same order.
func OrderFor(e Exam, attemptID string) Exam {
	out := e
	out.Questions = append([]Question(nil), e.Questions...)

	if e.ShuffleQuestions {
		r := seeded(attemptID)
		r.Shuffle(len(out.Questions), func(i, j int) {
			out.Questions[i], out.Questions[j] = out.Questions[j], out.Questions[i]
		})
	}
	if e.ShuffleOptions {
		for i, q := range out.Questions {
			// true/false keeps its natural order
			if q.Type != TypeMultipleChoice || len(q.Options) < 2 {
				continue
			}
			opts := append([]Option(nil), q.Options...)
			r := seeded(attemptID + "/" + q.ID)
			r.Shuffle(len(opts), func(a, b int) { opts[a], opts[b] = opts[b], opts[a] })
			out.Questions[i].Options = opts
		}
	}
	out.QuestionIDs = questionIDs(out.Questions)
	return out
}

func seeded(key string) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return rand.New(rand.NewSource(int64(h.Sum64())))
}

func questionIDs(qs []Question) []string {
	ids := make([]string, len(qs))
	for i, q := range qs {
		ids[i] = q.ID
	}
	return ids
}
