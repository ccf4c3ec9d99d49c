// Package console runs a quiz attempt in a terminal.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"quiz-client/internal/app"
	"quiz-client/internal/countdown"
	"quiz-client/internal/domain"
)

const help = `commands:
  <n>          select answer n of the current question
  n, next      next question          p, prev   previous question
  g <k>        go to question k       s, save   save current answer
  ss           save and submit        submit    submit the quiz
  v            show the question      q, quit   leave (resume later)
`

// Console reads commands line by line and renders the attempt. It doubles
// as the app.Gate: prompts are answered on the same input stream.
type Console struct {
	lines <-chan string

	mu  sync.Mutex
	out io.Writer

	finished chan struct{}
	once     sync.Once
}

func New(in io.Reader, out io.Writer) *Console {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
	}()
	return &Console{lines: lines, out: out, finished: make(chan struct{})}
}

func (c *Console) Confirm(ctx context.Context, prompt domain.Prompt) (bool, error) {
	c.printf("%s [y/N] ", prompt.Message)
	select {
	case line, ok := <-c.lines:
		if !ok {
			return false, io.EOF
		}
		switch strings.ToLower(line) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Hooks reports expiry and results, and ends Run once a result is in.
func (c *Console) Hooks() app.Hooks {
	return app.Hooks{
		OnExpired: func() {
			c.printf("\nTime is up. Submitting your answers...\n")
		},
		OnSubmitted: func(r domain.Result, _ app.Trigger) {
			c.printResult(r)
			c.once.Do(func() { close(c.finished) })
		},
		OnSubmitError: func(err error, trigger app.Trigger) {
			if trigger == app.TriggerTimeout {
				c.printf("\nAutomatic submission failed: %v\nType submit to try again.\n", err)
			}
		},
	}
}

// Run starts quizID and processes commands until the attempt is submitted,
// the user quits, input ends or ctx is done.
func (c *Console) Run(ctx context.Context, ctrl *app.Controller, quizID int64) error {
	if err := ctrl.Start(ctx, quizID); err != nil {
		return err
	}
	c.render(ctrl.View())
	c.printf("%s", help)

	for {
		c.printf("> ")
		select {
		case <-ctx.Done():
			ctrl.Flush(context.WithoutCancel(ctx))
			return ctx.Err()
		case <-c.finished:
			return nil
		case line, ok := <-c.lines:
			if !ok {
				return nil
			}
			if done := c.exec(ctx, ctrl, line); done {
				return nil
			}
		}
	}
}

func (c *Console) exec(ctx context.Context, ctrl *app.Controller, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	var err error
	switch cmd := strings.ToLower(fields[0]); cmd {
	case "h", "help", "?":
		c.printf("%s", help)
		return false
	case "v", "view":
	case "n", "next":
		_, err = ctrl.Next(ctx)
	case "p", "prev":
		_, err = ctrl.Prev(ctx)
	case "g", "goto":
		if len(fields) < 2 {
			c.printf("usage: g <question number>\n")
			return false
		}
		k, convErr := strconv.Atoi(fields[1])
		if convErr != nil {
			c.printf("not a number: %s\n", fields[1])
			return false
		}
		_, err = ctrl.Navigate(ctx, k-1)
	case "s", "save", "ss":
		_, err = ctrl.ConfirmCurrentQuestion(ctx, cmd == "ss")
	case "submit":
		_, err = ctrl.Submit(ctx, app.TriggerManual)
	case "q", "quit":
		if err := ctrl.Abandon(ctx); err != nil && !errors.Is(err, domain.ErrNotActive) {
			c.printf("%v\n", err)
		}
		c.printf("Progress saved. Run take again to resume.\n")
		return true
	default:
		n, convErr := strconv.Atoi(cmd)
		if convErr != nil {
			c.printf("unknown command %q, type h for help\n", line)
			return false
		}
		err = c.selectNth(ctx, ctrl, n)
	}

	switch {
	case err == nil, errors.Is(err, domain.ErrDeclined):
	case errors.Is(err, domain.ErrSubmitFailed):
		c.printf("Failed to submit quiz: %v\n", err)
	default:
		c.printf("%v\n", err)
	}
	if ctrl.Phase() == app.PhaseSubmitted {
		return true
	}
	c.render(ctrl.View())
	return false
}

func (c *Console) selectNth(ctx context.Context, ctrl *app.Controller, n int) error {
	q, ok := ctrl.View().Current()
	if !ok {
		return domain.ErrQuestionNotFound
	}
	if n < 1 || n > len(q.Answers) {
		return fmt.Errorf("%w: choose 1-%d", domain.ErrOptionNotFound, len(q.Answers))
	}
	return ctrl.SelectAnswer(ctx, q.ID, q.Answers[n-1].ID)
}

func (c *Console) render(v app.View) {
	q, ok := v.Current()
	if !ok {
		c.printf("%s has no questions.\n", v.Quiz.Title)
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n%s", v.Quiz.Title)
	if v.Timed {
		fmt.Fprintf(&b, "  [time left %s]", v.Display)
	}
	b.WriteString("\n")

	for i, question := range v.Quiz.Questions {
		mark := " "
		if v.Answers[question.ID] != nil {
			mark = "*"
		}
		if i == v.CurrentIndex {
			fmt.Fprintf(&b, "[%d%s] ", i+1, mark)
		} else {
			fmt.Fprintf(&b, " %d%s  ", i+1, mark)
		}
	}
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Question %d/%d: %s", v.CurrentIndex+1, len(v.Quiz.Questions), q.Title)
	if v.Saved[q.ID] {
		b.WriteString("  (saved)")
	}
	b.WriteString("\n")
	if q.Description != "" {
		fmt.Fprintf(&b, "%s\n", q.Description)
	}
	selected := v.Answers[q.ID]
	for i, a := range q.Answers {
		box := "( )"
		if selected != nil && *selected == a.ID {
			box = "(x)"
		}
		fmt.Fprintf(&b, "  %s %d. %s\n", box, i+1, a.Text)
	}
	c.printf("%s", b.String())
}

func (c *Console) printResult(r domain.Result) {
	msg := fmt.Sprintf("\nYour score: %d/%d", r.Score, r.Total)
	if r.Passed != nil {
		if *r.Passed {
			msg += " (passed)"
		} else {
			msg += " (not passed)"
		}
	}
	c.printf("%s\n", msg)
}

// Tick renders a countdown line; wire it to Hooks.OnTick when the terminal
// can redraw in place.
func (c *Console) Tick(t countdown.Tick) {
	c.printf("\r[time left %s] > ", t.Display)
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}
