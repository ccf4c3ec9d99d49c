package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"quiz-client/internal/countdown"
	"quiz-client/internal/domain"
	"quiz-client/internal/expiry"
	"quiz-client/internal/ledger"
	"quiz-client/internal/metrics"
)

// QuizAPI is the server contract the engine consumes.
type QuizAPI interface {
	Start(ctx context.Context, quizID int64) (domain.StartResponse, error)
	ConfirmAnswer(ctx context.Context, req domain.AnswerConfirmation) error
	Submit(ctx context.Context, req domain.Submission) (domain.Result, error)
}

// Trigger says what caused a submission.
type Trigger string

const (
	TriggerManual  Trigger = "manual"
	TriggerTimeout Trigger = "timeout"
)

// Phase of a quiz attempt.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseLoading    Phase = "loading"
	PhaseActive     Phase = "active"
	PhaseSubmitting Phase = "submitting"
	PhaseSubmitted  Phase = "submitted"
	PhaseAbandoned  Phase = "abandoned"
)

// Hooks let a view react to events raised off the caller's goroutine.
// OnTick runs on the timer goroutine and must not block.
type Hooks struct {
	OnTick        func(countdown.Tick)
	OnExpired     func()
	OnSubmitted   func(domain.Result, Trigger)
	OnSubmitError func(error, Trigger)
}

// Options tune a Controller. Zero values pick sensible defaults.
type Options struct {
	TickInterval   time.Duration
	Grace          time.Duration
	ExposePassed   bool
	TimeoutRetries uint64
	RetryInterval  time.Duration
	Now            func() time.Time
	NewTicker      countdown.TickerFunc
	Logger         *log.Logger
	Hooks          Hooks
}

// View is a read-only snapshot for rendering.
type View struct {
	Phase        Phase            `json:"phase"`
	Quiz         domain.Quiz      `json:"quiz"`
	SessionID    string           `json:"sessionId,omitempty"`
	CurrentIndex int              `json:"currentIndex"`
	Answers      map[int64]*int64 `json:"answers"`
	Saved        map[int64]bool   `json:"saved"`
	Timed        bool             `json:"timed"`
	RemainingMs  int64            `json:"remainingMs"`
	Display      string           `json:"display,omitempty"`
	Result       *domain.Result   `json:"result,omitempty"`
}

// Current returns the displayed question.
func (v View) Current() (domain.Question, bool) {
	if v.CurrentIndex < 0 || v.CurrentIndex >= len(v.Quiz.Questions) {
		return domain.Question{}, false
	}
	return v.Quiz.Questions[v.CurrentIndex], true
}

// Controller runs one quiz attempt: start or resume, answer capture,
// per-question confirmation, navigation, countdown and submission.
type Controller struct {
	api        QuizAPI
	store      *LocalSessionStore
	gate       Gate
	normalizer *expiry.Normalizer
	opts       Options
	logger     *log.Logger

	mu     sync.Mutex
	phase  Phase
	quiz   domain.Quiz
	state  domain.SessionState
	ledger *ledger.Ledger
	saved  map[int64]bool
	timer  *countdown.Timer
	result *domain.Result
	life   context.Context
	cancel context.CancelFunc
}

func NewController(api QuizAPI, store *LocalSessionStore, gate Gate, opts Options) *Controller {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = countdown.DefaultInterval
	}
	if opts.Grace <= 0 {
		opts.Grace = countdown.DefaultGrace
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 2 * time.Second
	}
	if gate == nil {
		gate = AlwaysConfirm
	}
	return &Controller{
		api:        api,
		store:      store,
		gate:       gate,
		normalizer: expiry.NewNormalizer(opts.Now, opts.Logger),
		opts:       opts,
		logger:     opts.Logger,
		phase:      PhaseIdle,
		saved:      make(map[int64]bool),
		life:       context.Background(),
	}
}

// Start resumes or creates the attempt for quizID. The server is always
// asked first; a rejection leaves the controller idle with ErrSessionUnavailable.
func (c *Controller) Start(ctx context.Context, quizID int64) error {
	c.mu.Lock()
	switch c.phase {
	case PhaseLoading, PhaseActive, PhaseSubmitting:
		phase := c.phase
		c.mu.Unlock()
		return fmt.Errorf("start quiz %d: attempt is %s", quizID, phase)
	}
	c.phase = PhaseLoading
	c.mu.Unlock()

	saved, resumable := c.store.Load(ctx, quizID)

	resp, err := c.api.Start(ctx, quizID)
	if err == nil && resp.Quiz == nil {
		err = errors.New("start response carries no quiz")
	}
	if err != nil {
		metrics.StartFailures.Inc()
		c.logger.Printf("session: start quiz %d: %v", quizID, err)
		c.setPhase(PhaseIdle)
		if errors.Is(err, domain.ErrSessionUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrSessionUnavailable, err)
	}

	quiz := *resp.Quiz
	now := c.opts.Now()

	mode := "resumed"
	var state domain.SessionState
	if !resumable || saved.QuizID != quiz.ID {
		mode = "fresh"
		state = domain.SessionState{
			QuizID:  quiz.ID,
			StartAt: c.normalizer.StartAt(resp.Session, now).UnixMilli(),
		}
	} else {
		state = saved
		if state.StartAt == 0 {
			state.StartAt = now.UnixMilli()
		}
	}
	if resp.Session != nil && resp.Session.SessionID != "" {
		state.SessionID = resp.Session.SessionID
	}

	led := ledger.New(quiz.QuestionIDs(), state.AnswersMap)
	state.AnswersMap = led.Snapshot()
	state.CurrentIndex = clampIndex(state.CurrentIndex, len(quiz.Questions))

	expiresAt, timed := c.normalizer.ExpiresAt(resp.Session, quiz.TimeLimit, time.UnixMilli(state.StartAt))
	state.ExpiresAt = nil
	if timed {
		ms := expiresAt.UnixMilli()
		state.ExpiresAt = &ms
	}

	life, cancel := context.WithCancel(context.WithoutCancel(ctx))

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.quiz = quiz
	c.state = state
	c.ledger = led
	c.saved = make(map[int64]bool)
	c.result = nil
	c.life, c.cancel = life, cancel
	c.phase = PhaseActive
	led.OnChange(func(answers map[int64]*int64) {
		c.state.AnswersMap = answers
		c.persistLocked()
	})
	snapshot := c.state.Clone()
	c.mu.Unlock()

	c.store.Save(ctx, snapshot)
	metrics.SessionsStarted.WithLabelValues(mode).Inc()

	switch {
	case timed && c.normalizer.ServerExpired(resp.Session):
		c.logger.Printf("session: quiz %d already expired on the server", quiz.ID)
		c.stopTimer()
		go c.onExpire()
	case timed:
		c.startTimer(expiresAt)
	}
	return nil
}

// Navigate moves the cursor to target, clamped to the question range.
// Moving forward past an unanswered question goes through the gate first.
// It reports whether the cursor moved.
func (c *Controller) Navigate(ctx context.Context, target int) (bool, error) {
	c.mu.Lock()
	if c.phase != PhaseActive {
		c.mu.Unlock()
		return false, domain.ErrNotActive
	}
	n := len(c.quiz.Questions)
	if n == 0 {
		c.mu.Unlock()
		return false, nil
	}
	target = clampIndex(target, n)
	current := c.state.CurrentIndex
	if target == current {
		c.mu.Unlock()
		return false, nil
	}
	needsGate := target > current && !c.ledger.Answered(c.quiz.Questions[current].ID)
	c.mu.Unlock()

	if needsGate {
		err := c.confirm(ctx, domain.Prompt{
			Kind:    domain.PromptSkipUnanswered,
			Message: "You did not answer the current question. Continue to next question?",
		})
		if err != nil {
			return false, err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseActive {
		return false, domain.ErrNotActive
	}
	c.state.CurrentIndex = target
	c.persistLocked()
	return true, nil
}

// Next moves one question forward.
func (c *Controller) Next(ctx context.Context) (bool, error) {
	return c.Navigate(ctx, c.currentIndex()+1)
}

// Prev moves one question back; it never asks for confirmation.
func (c *Controller) Prev(ctx context.Context) (bool, error) {
	return c.Navigate(ctx, c.currentIndex()-1)
}

// SelectAnswer records answerID for the displayed question and persists it.
// The server is not contacted until the question is confirmed.
func (c *Controller) SelectAnswer(_ context.Context, questionID, answerID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseActive {
		return domain.ErrNotActive
	}
	q, ok := c.currentLocked()
	if !ok || q.ID != questionID {
		return fmt.Errorf("%w: %d is not the displayed question", domain.ErrQuestionNotFound, questionID)
	}
	if !q.HasAnswer(answerID) {
		return fmt.Errorf("%w: %d", domain.ErrOptionNotFound, answerID)
	}
	if prev, ok := c.ledger.Selected(questionID); ok && prev == answerID {
		return nil
	}
	delete(c.saved, questionID)
	return c.ledger.Select(questionID, answerID)
}

// ConfirmCurrentQuestion asks the server to acknowledge the displayed
// question's selection. A failed acknowledgment is logged and the question
// is marked saved anyway, since the final submission carries every answer.
// With submitAfter the attempt is then submitted and its result returned.
func (c *Controller) ConfirmCurrentQuestion(ctx context.Context, submitAfter bool) (*domain.Result, error) {
	c.mu.Lock()
	if c.phase != PhaseActive {
		c.mu.Unlock()
		return nil, domain.ErrNotActive
	}
	q, ok := c.currentLocked()
	if !ok {
		c.mu.Unlock()
		return nil, domain.ErrQuestionNotFound
	}
	req := domain.AnswerConfirmation{
		QuizID:     c.quiz.ID,
		QuestionID: q.ID,
		SessionID:  c.state.SessionID,
	}
	if selected, answered := c.ledger.Selected(q.ID); answered {
		req.AnswerID = &selected
	}
	c.mu.Unlock()

	if req.AnswerID == nil {
		err := c.confirm(ctx, domain.Prompt{
			Kind:    domain.PromptSaveEmpty,
			Message: "No answer selected. Save an empty answer?",
		})
		if err != nil {
			return nil, err
		}
	}

	if err := c.api.ConfirmAnswer(ctx, req); err != nil {
		metrics.Confirmations.WithLabelValues("failed").Inc()
		c.logger.Printf("session: %v", fmt.Errorf("%w: quiz %d question %d: %v", domain.ErrConfirmFailed, req.QuizID, req.QuestionID, err))
	} else {
		metrics.Confirmations.WithLabelValues("ok").Inc()
	}

	c.mu.Lock()
	c.saved[req.QuestionID] = true
	c.mu.Unlock()

	if !submitAfter {
		return nil, nil
	}
	result, err := c.Submit(ctx, TriggerManual)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Submit sends every answer to the server. Manual submissions with
// unanswered questions go through the gate; timeout submissions never do.
// A submit issued while another is pending returns ErrSubmitInFlight and
// sends nothing.
func (c *Controller) Submit(ctx context.Context, trigger Trigger) (domain.Result, error) {
	if trigger == TriggerManual {
		c.mu.Lock()
		unanswered := 0
		if c.phase == PhaseActive {
			unanswered = len(c.ledger.Unanswered())
		}
		c.mu.Unlock()

		if unanswered > 0 {
			err := c.confirm(ctx, domain.Prompt{
				Kind:       domain.PromptSubmitUnanswered,
				Message:    fmt.Sprintf("There are %d unanswered questions. Submit anyway?", unanswered),
				Unanswered: unanswered,
			})
			if err != nil {
				return domain.Result{}, err
			}
		}
	}
	return c.submit(ctx, trigger)
}

func (c *Controller) submit(ctx context.Context, trigger Trigger) (domain.Result, error) {
	c.mu.Lock()
	switch c.phase {
	case PhaseActive:
	case PhaseSubmitting:
		c.mu.Unlock()
		return domain.Result{}, domain.ErrSubmitInFlight
	case PhaseSubmitted:
		result := *c.result
		c.mu.Unlock()
		return result, nil
	default:
		c.mu.Unlock()
		return domain.Result{}, domain.ErrNotActive
	}
	c.phase = PhaseSubmitting
	req := domain.Submission{
		QuizID:    c.quiz.ID,
		SessionID: c.state.SessionID,
		Answers:   c.ledger.Payload(),
	}
	c.mu.Unlock()

	started := time.Now()
	result, err := c.send(ctx, trigger, req)
	metrics.SubmitLatency.WithLabelValues(string(trigger)).Observe(time.Since(started).Seconds())

	if err != nil {
		c.setPhase(PhaseActive)
		metrics.Submissions.WithLabelValues(string(trigger), "failed").Inc()
		err = fmt.Errorf("%w: %v", domain.ErrSubmitFailed, err)
		c.logger.Printf("session: quiz %d (%s): %v", req.QuizID, trigger, err)
		if c.opts.Hooks.OnSubmitError != nil {
			c.opts.Hooks.OnSubmitError(err, trigger)
		}
		return domain.Result{}, err
	}

	if !c.opts.ExposePassed {
		result.Passed = nil
	}

	c.mu.Lock()
	c.phase = PhaseSubmitted
	c.result = &result
	timer := c.timer
	c.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	c.store.Clear(context.WithoutCancel(ctx), req.QuizID)
	metrics.Submissions.WithLabelValues(string(trigger), "ok").Inc()

	if c.opts.Hooks.OnSubmitted != nil {
		c.opts.Hooks.OnSubmitted(result, trigger)
	}
	return result, nil
}

// send retries timeout submissions: nobody is around to press a retry button.
func (c *Controller) send(ctx context.Context, trigger Trigger, req domain.Submission) (domain.Result, error) {
	if trigger != TriggerTimeout || c.opts.TimeoutRetries == 0 {
		return c.api.Submit(ctx, req)
	}

	var result domain.Result
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.opts.RetryInterval), c.opts.TimeoutRetries),
		ctx,
	)
	err := backoff.RetryNotify(func() error {
		r, err := c.api.Submit(ctx, req)
		if err != nil {
			if errors.Is(err, domain.ErrAttemptClosed) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = r
		return nil
	}, policy, func(err error, wait time.Duration) {
		c.logger.Printf("session: timeout submit of quiz %d failed, retrying in %s: %v", req.QuizID, wait, err)
	})
	return result, err
}

// Abandon persists the attempt and leaves it without submitting; Start resumes it later.
func (c *Controller) Abandon(ctx context.Context) error {
	c.mu.Lock()
	if c.phase != PhaseActive {
		c.mu.Unlock()
		return domain.ErrNotActive
	}
	c.phase = PhaseAbandoned
	snapshot := c.state.Clone()
	timer, cancel := c.timer, c.cancel
	c.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	c.store.Save(ctx, snapshot)
	if cancel != nil {
		cancel()
	}
	return nil
}

// Flush synchronously persists the current state (unload path).
func (c *Controller) Flush(ctx context.Context) {
	c.mu.Lock()
	if c.phase != PhaseActive && c.phase != PhaseSubmitting {
		c.mu.Unlock()
		return
	}
	snapshot := c.state.Clone()
	c.mu.Unlock()
	c.store.Save(ctx, snapshot)
}

// Close tears the view down: an active attempt is abandoned, and the
// countdown and any pending timeout retries are released in every case.
func (c *Controller) Close(ctx context.Context) {
	if err := c.Abandon(ctx); err == nil {
		return
	}
	c.Flush(ctx)
	c.mu.Lock()
	timer, cancel := c.timer, c.cancel
	c.mu.Unlock()
	if timer != nil {
		timer.Stop()
	}
	if cancel != nil {
		cancel()
	}
}

// Phase reports the attempt phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Saved reports whether the server acknowledged questionID in this process.
func (c *Controller) Saved(questionID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saved[questionID]
}

// View returns a snapshot of the attempt.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		Phase:        c.phase,
		Quiz:         c.quiz,
		SessionID:    c.state.SessionID,
		CurrentIndex: c.state.CurrentIndex,
		Saved:        make(map[int64]bool, len(c.saved)),
	}
	for id, ok := range c.saved {
		v.Saved[id] = ok
	}
	if c.ledger != nil {
		v.Answers = c.ledger.Snapshot()
	}
	if c.state.ExpiresAt != nil {
		remaining := countdown.Remaining(time.UnixMilli(*c.state.ExpiresAt), c.opts.Now())
		v.Timed = true
		v.RemainingMs = remaining.Milliseconds()
		v.Display = countdown.Format(remaining)
	}
	if c.result != nil {
		r := *c.result
		v.Result = &r
	}
	return v
}

func (c *Controller) startTimer(expiresAt time.Time) {
	t := countdown.New(expiresAt, countdown.Config{
		Interval:  c.opts.TickInterval,
		Grace:     c.opts.Grace,
		Now:       c.opts.Now,
		NewTicker: c.opts.NewTicker,
		OnTick:    c.opts.Hooks.OnTick,
		OnExpire:  c.onExpire,
	})

	c.mu.Lock()
	previous := c.timer
	c.timer = t
	c.mu.Unlock()

	if previous != nil {
		previous.Stop()
	}
	if err := t.Start(); err != nil {
		c.logger.Printf("session: start countdown: %v", err)
	}
}

func (c *Controller) stopTimer() {
	c.mu.Lock()
	previous := c.timer
	c.timer = nil
	c.mu.Unlock()
	if previous != nil {
		previous.Stop()
	}
}

func (c *Controller) onExpire() {
	c.mu.Lock()
	quizID, ctx := c.quiz.ID, c.life
	c.mu.Unlock()

	c.logger.Printf("session: time is up, submitting quiz %d", quizID)
	if c.opts.Hooks.OnExpired != nil {
		c.opts.Hooks.OnExpired()
	}
	// Failures are reported through Hooks.OnSubmitError by submit.
	_, _ = c.submit(ctx, TriggerTimeout)
}

func (c *Controller) confirm(ctx context.Context, prompt domain.Prompt) error {
	ok, err := c.gate.Confirm(ctx, prompt)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrDeclined
	}
	return nil
}

func (c *Controller) currentIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.CurrentIndex
}

func (c *Controller) currentLocked() (domain.Question, bool) {
	i := c.state.CurrentIndex
	if i < 0 || i >= len(c.quiz.Questions) {
		return domain.Question{}, false
	}
	return c.quiz.Questions[i], true
}

func (c *Controller) persistLocked() {
	c.store.Save(c.life, c.state.Clone())
}

func (c *Controller) setPhase(p Phase) {
	c.mu.Lock()
	c.phase = p
	c.mu.Unlock()
}

func clampIndex(i, n int) int {
	if n <= 0 || i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
