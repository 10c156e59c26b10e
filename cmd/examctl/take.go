package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/mind-engage/mindengage-exams/internal/client"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/session"
)

const takeHelp = `commands:
  n | p          next / previous question
  j N            jump to question N
  a TEXT         answer the current question (option ids: a B  or  a A,C)
  f              toggle the review flag
  l              list questions and their state
  t              time left
  s              save now
  submit         finish the exam
  q              save and quit without submitting`

func runTake(ctx context.Context, examID string, in io.Reader, out io.Writer, log zerolog.Logger) error {
	user, pw, err := credentials()
	if err != nil {
		return err
	}
	c := client.New(client.Config{BaseURL: *server})
	if _, err := c.Login(ctx, user, pw); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	view, created, err := c.StartAttempt(ctx, examID)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	if created {
		fmt.Fprintf(out, "started %s\n", view.Exam.Title)
	} else {
		fmt.Fprintf(out, "resumed %s\n", view.Exam.Title)
	}

	sess := session.New(view, c, session.WithLogger(log))
	w := &syncWriter{w: out}
	return takeLoop(ctx, sess, in, w)
}

// takeLoop drives a session from line commands while its timer runs in the
// background.
func takeLoop(ctx context.Context, sess *session.Session, in io.Reader, out io.Writer) error {
	if printResult(sess, out) {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	var finished atomic.Bool
	timerDone := make(chan struct{})
	go func() {
		defer close(timerDone)
		warned := map[int]bool{}
		err := sess.Run(runCtx, func(remaining int, timed bool) {
			for _, mark := range []int{300, 60, 10} {
				if timed && remaining == mark && !warned[mark] {
					warned[mark] = true
					fmt.Fprintf(out, "\n%s left\n", clock(remaining))
				}
			}
		})
		if err == nil && !finished.Load() {
			fmt.Fprintln(out, "\nthe attempt was submitted. press enter for the result.")
		}
	}()
	defer func() {
		finished.Store(true)
		cancel()
		<-timerDone
	}()

	fmt.Fprintln(out, takeHelp)
	printCurrent(sess, out)
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if printResult(sess, out) {
			return nil
		}
		quit, err := handleLine(ctx, sess, sc.Text(), out)
		if err != nil {
			fmt.Fprintln(out, "error:", err)
		}
		if quit || printResult(sess, out) {
			return nil
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	// input closed: keep what we have
	return sess.Save(ctx)
}

func handleLine(ctx context.Context, sess *session.Session, line string, out io.Writer) (quit bool, err error) {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "":
		return false, nil
	case "n":
		sess.Next()
		printCurrent(sess, out)
	case "p":
		sess.Prev()
		printCurrent(sess, out)
	case "j":
		n, err := strconv.Atoi(arg)
		if err != nil {
			return false, fmt.Errorf("jump needs a question number")
		}
		sess.Jump(n - 1)
		printCurrent(sess, out)
	case "a":
		q, ok := sess.Current()
		if !ok {
			return false, fmt.Errorf("no question")
		}
		return false, sess.Answer(q.ID, parseAnswer(q, arg))
	case "f":
		q, ok := sess.Current()
		if !ok {
			return false, fmt.Errorf("no question")
		}
		return false, sess.Flag(q.ID, sess.State(q.ID) != session.StateFlagged)
	case "l":
		for i, st := range sess.States() {
			marker := " "
			if i == sess.Index() {
				marker = ">"
			}
			fmt.Fprintf(out, "%s %2d  %s\n", marker, i+1, st)
		}
	case "t":
		if secs, timed := sess.Remaining(); timed {
			fmt.Fprintf(out, "%s left\n", clock(secs))
		} else {
			fmt.Fprintln(out, "untimed")
		}
	case "s":
		if err := sess.Save(ctx); err != nil {
			return false, err
		}
		fmt.Fprintln(out, "saved")
	case "submit":
		if _, err := sess.Submit(ctx); err != nil {
			return false, err
		}
	case "q":
		return true, sess.Save(ctx)
	default:
		return false, fmt.Errorf("unknown command %q", cmd)
	}
	return false, nil
}

// parseAnswer turns "A,C" into a list answer on option questions and
// anything else into a single value.
func parseAnswer(q exam.Question, raw string) exam.Answer {
	if q.Type.HasOptions() && strings.Contains(raw, ",") {
		parts := strings.Split(raw, ",")
		ids := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				ids = append(ids, p)
			}
		}
		return exam.Choices(ids...)
	}
	return exam.Text(raw)
}

func printCurrent(sess *session.Session, out io.Writer) {
	q, ok := sess.Current()
	if !ok {
		fmt.Fprintln(out, "this exam has no questions")
		return
	}
	fmt.Fprintf(out, "\n[%d/%d] (%d marks) %s\n", sess.Index()+1, sess.Len(), q.Marks, q.Prompt)
	for _, o := range q.Options {
		fmt.Fprintf(out, "   %s) %s\n", o.ID, o.Text)
	}
	if a, ok := sess.AnswerFor(q.ID); ok {
		fmt.Fprintf(out, "   answer: %s\n", a)
	}
}

// printResult prints the outcome once the attempt is finished.
func printResult(sess *session.Session, out io.Writer) bool {
	res, ok := sess.Result()
	if !ok {
		return false
	}
	a := res.Attempt
	switch {
	case a.Status == exam.StatusAbandoned:
		fmt.Fprintln(out, "attempt abandoned")
	case a.Score != nil && a.MaxScore != nil:
		verdict := "not passed"
		if a.Passed != nil && *a.Passed {
			verdict = "passed"
		}
		fmt.Fprintf(out, "score %.2f / %.2f (%.2f%%) %s\n", *a.Score, *a.MaxScore, derefOr(a.Percentage), verdict)
		if a.NeedsManual {
			fmt.Fprintln(out, "some answers will be graded by your instructor")
		}
	default:
		fmt.Fprintf(out, "attempt %s\n", a.Status)
	}
	return true
}

func derefOr(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func clock(secs int) string {
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// syncWriter lets the timer goroutine and the prompt share one output.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
