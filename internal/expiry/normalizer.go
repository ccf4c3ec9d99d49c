// Package expiry reconciles server and client clocks into a single expiry instant.
package expiry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"time"

	"quiz-client/internal/domain"
)

// Epoch values below this are seconds, at or above it milliseconds.
const secondsThreshold = 1_000_000_000_000

var calendarLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02 15:04:05.000",
}

// Normalizer turns whatever timing the server sent into a client-clock expiry.
type Normalizer struct {
	now    func() time.Time
	logger *log.Logger
}

// NewNormalizer builds a normalizer; nil arguments fall back to time.Now and log.Default.
func NewNormalizer(now func() time.Time, logger *log.Logger) *Normalizer {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Normalizer{now: now, logger: logger}
}

// ExpiresAt returns the expiry in client time and whether the attempt is timed.
// Priority: server-relative remaining time, then an absolute server expiry,
// then startAt plus the quiz time limit. A false result always means untimed.
func (n *Normalizer) ExpiresAt(desc *domain.SessionDescriptor, timeLimitMinutes int, startAt time.Time) (time.Time, bool) {
	clientNow := n.now()

	if desc != nil {
		if desc.ServerNowMs != nil && desc.ExpiresAtMs != nil {
			// Only the remaining duration is trusted, so absolute skew cancels out.
			// A non-positive remainder yields an instant in the past: zero remaining.
			// ServerExpired reports that case.
			remaining := *desc.ExpiresAtMs - *desc.ServerNowMs
			return clientNow.Add(time.Duration(remaining) * time.Millisecond), true
		}

		if desc.ExpiresAtMs != nil || present(desc.ExpiresAt) {
			at, err := absoluteExpiry(desc)
			if err != nil {
				n.logger.Printf("expiry: falling back to untimed: %v", err)
				return time.Time{}, false
			}
			return at, true
		}
	}

	if timeLimitMinutes > 0 {
		return startAt.Add(time.Duration(timeLimitMinutes) * time.Minute), true
	}
	return time.Time{}, false
}

// ServerExpired reports whether the server's own clock already has the
// attempt at or past its expiry. Skew plays no part in that verdict, so the
// caller expires the attempt right away instead of waiting out a grace window.
func (n *Normalizer) ServerExpired(desc *domain.SessionDescriptor) bool {
	return desc != nil && desc.ServerNowMs != nil && desc.ExpiresAtMs != nil &&
		*desc.ExpiresAtMs <= *desc.ServerNowMs
}

// StartAt maps the server's start instant onto the client clock when the server
// also reported its own now; otherwise fallback is returned unchanged.
func (n *Normalizer) StartAt(desc *domain.SessionDescriptor, fallback time.Time) time.Time {
	if desc == nil || desc.ServerNowMs == nil {
		return fallback
	}

	var serverStart time.Time
	switch {
	case desc.StartAtMs != nil:
		serverStart = fromEpoch(float64(*desc.StartAtMs))
	case present(desc.StartAt):
		parsed, err := ParseTimestamp(desc.StartAt)
		if err != nil {
			n.logger.Printf("expiry: ignoring start_at: %v", err)
			return fallback
		}
		serverStart = parsed
	default:
		return fallback
	}

	elapsed := time.UnixMilli(*desc.ServerNowMs).Sub(serverStart)
	if elapsed < 0 {
		elapsed = 0
	}
	return n.now().Add(-elapsed)
}

func absoluteExpiry(desc *domain.SessionDescriptor) (time.Time, error) {
	if desc.ExpiresAtMs != nil {
		if *desc.ExpiresAtMs <= 0 {
			return time.Time{}, fmt.Errorf("%w: expires_at_ms=%d", domain.ErrTimestampUnparseable, *desc.ExpiresAtMs)
		}
		return fromEpoch(float64(*desc.ExpiresAtMs)), nil
	}
	return ParseTimestamp(desc.ExpiresAt)
}

// ParseTimestamp accepts a JSON number (epoch seconds or milliseconds), a
// numeric string, or a calendar string.
func ParseTimestamp(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if !present(raw) {
		return time.Time{}, fmt.Errorf("%w: empty", domain.ErrTimestampUnparseable)
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, fmt.Errorf("%w: %v", domain.ErrTimestampUnparseable, err)
		}
		return parseString(s)
	}

	var num json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&num); err != nil {
		return time.Time{}, fmt.Errorf("%w: %s", domain.ErrTimestampUnparseable, raw)
	}
	return parseNumber(string(num))
}

func parseString(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty string", domain.ErrTimestampUnparseable)
	}
	if t, err := parseNumber(s); err == nil {
		return t, nil
	}
	for _, layout := range calendarLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", domain.ErrTimestampUnparseable, s)
}

func parseNumber(s string) (time.Time, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !(v > 0) || math.IsInf(v, 0) {
		return time.Time{}, fmt.Errorf("%w: %q", domain.ErrTimestampUnparseable, s)
	}
	return fromEpoch(v), nil
}

func fromEpoch(v float64) time.Time {
	if v < secondsThreshold {
		v *= 1000
	}
	return time.UnixMilli(int64(v))
}

func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}
