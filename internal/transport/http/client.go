package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"quiz-client/internal/domain"
)

// Client is the engine's QuizAPI over HTTP/JSON. Every request carries the
// bearer token when one is configured.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// Start begins or resumes an attempt. Any refusal, transport failure or
// malformed response is reported as domain.ErrSessionUnavailable.
func (c *Client) Start(ctx context.Context, quizID int64) (domain.StartResponse, error) {
	var resp domain.StartResponse
	status, body, err := c.post(ctx, quizID, "start", nil)
	if err != nil {
		return resp, fmt.Errorf("%w: %v", domain.ErrSessionUnavailable, err)
	}
	if err := json.Unmarshal(body, &resp); err != nil && status == http.StatusOK {
		return resp, fmt.Errorf("%w: decode start response: %v", domain.ErrSessionUnavailable, err)
	}
	if status != http.StatusOK || !resp.OK || resp.Quiz == nil {
		msg := resp.Message
		if msg == "" {
			msg = http.StatusText(status)
		}
		return domain.StartResponse{}, fmt.Errorf("%w: %d %s", domain.ErrSessionUnavailable, status, msg)
	}
	return resp, nil
}

func (c *Client) ConfirmAnswer(ctx context.Context, req domain.AnswerConfirmation) error {
	status, body, err := c.post(ctx, req.QuizID, "answers", req)
	if err != nil {
		return err
	}
	if status/100 != 2 {
		return statusError(status, body)
	}
	return nil
}

// Submit sends the final answers. A 409 maps to domain.ErrAttemptClosed so
// callers stop retrying.
func (c *Client) Submit(ctx context.Context, req domain.Submission) (domain.Result, error) {
	status, body, err := c.post(ctx, req.QuizID, "submit", req)
	if err != nil {
		return domain.Result{}, err
	}
	if status == http.StatusConflict {
		return domain.Result{}, fmt.Errorf("%w: %s", domain.ErrAttemptClosed, statusError(status, body))
	}
	if status/100 != 2 {
		return domain.Result{}, statusError(status, body)
	}
	var result domain.Result
	if err := json.Unmarshal(body, &result); err != nil {
		return domain.Result{}, fmt.Errorf("decode submit response: %w", err)
	}
	return result, nil
}

func (c *Client) post(ctx context.Context, quizID int64, action string, payload any) (int, []byte, error) {
	var reader io.Reader = http.NoBody
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encode %s request: %w", action, err)
		}
		reader = bytes.NewReader(raw)
	}

	url := c.baseURL + "/api/quizzes/" + strconv.FormatInt(quizID, 10) + "/" + action
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read %s response: %w", action, err)
	}
	return resp.StatusCode, body, nil
}

func statusError(status int, body []byte) error {
	var msg struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &msg)
	detail := msg.Error
	if detail == "" {
		detail = msg.Message
	}
	if detail == "" {
		detail = http.StatusText(status)
	}
	return fmt.Errorf("quiz api: %d %s", status, detail)
}
