package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"quiz-client/internal/app"
	"quiz-client/internal/countdown"
	"quiz-client/internal/domain"
)

const writeWait = 10 * time.Second

var errClientGone = errors.New("client disconnected")

// ControllerFactory builds the engine for one browser connection. The bridge
// supplies the gate and hooks; everything else comes from configuration.
type ControllerFactory func(gate app.Gate, hooks app.Hooks) *app.Controller

// WSHandler bridges a browser UI to a quiz Controller over a websocket.
type WSHandler struct {
	newController ControllerFactory
	upgrader      websocket.Upgrader
	logger        *log.Logger
}

func NewWSHandler(newController ControllerFactory, logger *log.Logger) *WSHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &WSHandler{
		newController: newController,
		logger:        logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type selectPayload struct {
	QuestionID int64 `json:"questionID"`
	AnswerID   int64 `json:"answerID"`
}

type navigatePayload struct {
	Index int `json:"index"`
}

type confirmPayload struct {
	Submit bool `json:"submit"`
}

type gateReplyPayload struct {
	ID int64 `json:"id"`
	OK bool  `json:"ok"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type tickPayload struct {
	RemainingMs int64  `json:"remainingMs"`
	Display     string `json:"display"`
}

type promptPayload struct {
	ID int64 `json:"id"`
	domain.Prompt
}

type resultPayload struct {
	Trigger app.Trigger `json:"trigger"`
	domain.Result
}

type errorPayload struct {
	Message string `json:"message"`
}

// busyPayload names a command dropped because the queue was full.
type busyPayload struct {
	Command string `json:"command"`
}

// ServeWS upgrades the request and runs one quiz attempt for quizId until the
// browser disconnects. On disconnect the attempt is flushed and left resumable.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID, err := strconv.ParseInt(r.URL.Query().Get("quizId"), 10, 64)
	if err != nil || quizID <= 0 {
		http.Error(w, "missing or invalid quizId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("bridge: ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	g, ctx := errgroup.WithContext(r.Context())
	s := &bridgeSession{
		conn:     conn,
		ctx:      ctx,
		send:     make(chan outboundMessage[any], 32),
		commands: make(chan inboundMessage, 16),
		pending:  make(map[int64]chan bool),
		logger:   h.logger,
	}
	ctrl := h.newController(s, s.hooks())

	g.Go(s.writeLoop)
	g.Go(s.readLoop)
	g.Go(func() error { return s.commandLoop(ctrl, quizID) })
	g.Go(func() error {
		// unblocks readLoop once any side has stopped
		<-ctx.Done()
		_ = conn.Close()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errClientGone) && !errors.Is(err, context.Canceled) {
		h.logger.Printf("bridge: quiz %d: %v", quizID, err)
	}

	teardown := context.WithoutCancel(r.Context())
	ctrl.Flush(teardown)
	ctrl.Close(teardown)
}

// bridgeSession is the per-connection state. It implements app.Gate by
// round-tripping prompts to the browser.
type bridgeSession struct {
	conn     *websocket.Conn
	ctx      context.Context
	send     chan outboundMessage[any]
	commands chan inboundMessage
	logger   *log.Logger

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan bool
}

func (s *bridgeSession) Confirm(ctx context.Context, prompt domain.Prompt) (bool, error) {
	reply := make(chan bool, 1)
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.pending[id] = reply
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	s.emit("prompt", promptPayload{ID: id, Prompt: prompt})
	select {
	case ok := <-reply:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	case <-s.ctx.Done():
		return false, errClientGone
	}
}

func (s *bridgeSession) resolve(id int64, ok bool) {
	s.mu.Lock()
	reply, found := s.pending[id]
	s.mu.Unlock()
	if !found {
		return
	}
	select {
	case reply <- ok:
	default:
	}
}

func (s *bridgeSession) hooks() app.Hooks {
	return app.Hooks{
		OnTick: func(t countdown.Tick) {
			// runs under the timer lock; drop rather than block
			select {
			case s.send <- outboundMessage[any]{Type: "tick", Payload: tickPayload{RemainingMs: t.Remaining.Milliseconds(), Display: t.Display}}:
			default:
			}
		},
		OnExpired: func() {
			s.emit("expired", errorPayload{Message: "Time is up. Submitting your answers."})
		},
		OnSubmitted: func(r domain.Result, trigger app.Trigger) {
			s.emit("result", resultPayload{Trigger: trigger, Result: r})
		},
		OnSubmitError: func(err error, _ app.Trigger) {
			s.emit("error", errorPayload{Message: err.Error()})
		},
	}
}

// emit queues a message unless the connection is already gone.
func (s *bridgeSession) emit(typ string, payload any) {
	select {
	case s.send <- outboundMessage[any]{Type: typ, Payload: payload}:
	case <-s.ctx.Done():
	}
}

func (s *bridgeSession) writeLoop() error {
	for {
		select {
		case <-s.ctx.Done():
			return nil
		case msg := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(msg); err != nil {
				return err
			}
		}
	}
}

// readLoop answers gate prompts inline; everything else goes to commandLoop,
// which may itself be blocked waiting on a prompt. readLoop never waits on
// the command queue: when it is full the command is refused with a busy frame
// so a later gateReply is still read.
func (s *bridgeSession) readLoop() error {
	for {
		var in inboundMessage
		if err := s.conn.ReadJSON(&in); err != nil {
			return errClientGone
		}
		if in.Type == "gateReply" {
			var p gateReplyPayload
			if err := json.Unmarshal(in.Payload, &p); err != nil {
				s.emit("error", errorPayload{Message: "invalid gateReply payload"})
				continue
			}
			s.resolve(p.ID, p.OK)
			continue
		}
		select {
		case s.commands <- in:
		case <-s.ctx.Done():
			return nil
		default:
			s.emit("busy", busyPayload{Command: in.Type})
		}
	}
}

func (s *bridgeSession) commandLoop(ctrl *app.Controller, quizID int64) error {
	s.start(ctrl, quizID)
	for {
		select {
		case <-s.ctx.Done():
			return nil
		case in := <-s.commands:
			s.handle(ctrl, quizID, in)
		}
	}
}

func (s *bridgeSession) start(ctrl *app.Controller, quizID int64) {
	if err := ctrl.Start(s.ctx, quizID); err != nil {
		s.emit("error", errorPayload{Message: err.Error()})
		return
	}
	s.emit("state", ctrl.View())
}

func (s *bridgeSession) handle(ctrl *app.Controller, quizID int64, in inboundMessage) {
	var err error
	switch in.Type {
	case "start":
		s.start(ctrl, quizID)
		return
	case "state":
	case "select":
		var p selectPayload
		if err = json.Unmarshal(in.Payload, &p); err == nil {
			err = ctrl.SelectAnswer(s.ctx, p.QuestionID, p.AnswerID)
		}
	case "navigate":
		var p navigatePayload
		if err = json.Unmarshal(in.Payload, &p); err == nil {
			_, err = ctrl.Navigate(s.ctx, p.Index)
		}
	case "next":
		_, err = ctrl.Next(s.ctx)
	case "prev":
		_, err = ctrl.Prev(s.ctx)
	case "confirm":
		var p confirmPayload
		if len(in.Payload) > 0 {
			err = json.Unmarshal(in.Payload, &p)
		}
		if err == nil {
			_, err = ctrl.ConfirmCurrentQuestion(s.ctx, p.Submit)
		}
	case "submit":
		_, err = ctrl.Submit(s.ctx, app.TriggerManual)
	case "abandon":
		err = ctrl.Abandon(s.ctx)
	default:
		s.emit("error", errorPayload{Message: "unsupported message type"})
		return
	}

	// A declined prompt is the user's choice, not a failure; submit errors
	// were already reported through the hook.
	if err != nil && !errors.Is(err, domain.ErrDeclined) && !errors.Is(err, domain.ErrSubmitFailed) {
		s.emit("error", errorPayload{Message: err.Error()})
	}
	s.emit("state", ctrl.View())
}
