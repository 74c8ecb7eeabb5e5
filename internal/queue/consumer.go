// Package queue contains the background consumer that listens to the
// screening.status_changed queue and appends an audit line per transition
// to logs/screening.log.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	xlog "github.com/iliyamo/cinema-screening-room/internal/log"
)

// DefaultAuditLog is where StartStatusConsumer writes when no path is given.
var DefaultAuditLog = filepath.Join("logs", "screening.log")

// StartStatusConsumer connects to RabbitMQ, declares the status queue
// (durable) and consumes it until ctx is cancelled.  Broker failures are
// logged and retried with exponential backoff so the server keeps running
// without a broker.  Offending messages are rejected without requeue.
func StartStatusConsumer(ctx context.Context, url, auditPath string) error {
	logger := xlog.WithComponent("queue")
	if auditPath == "" {
		auditPath = DefaultAuditLog
	}

	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(url)
		if err != nil {
			logger.Warn().Err(err).Dur("retry_in", backoff).Msg("status consumer failed to dial broker")
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = consumeLoop(ctx, conn, auditPath)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn().Err(err).Msg("status consume loop ended, reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, auditPath string) error {
	logger := xlog.WithComponent("queue")
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		logger.Warn().Err(err).Msg("set QoS failed")
	}

	if _, err = ch.QueueDeclare(StatusChangedQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(StatusChangedQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := HandleMessage(d.Body, auditPath); err != nil {
				logger.Error().Err(err).Msg("handle status message failed")
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// HandleMessage decodes one StatusChangedEvent and appends its audit line to
// auditPath, creating the directory when needed.
func HandleMessage(body []byte, auditPath string) error {
	var ev StatusChangedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.SessionID == "" || ev.To == "" {
		return errors.New("event missing session_id or to")
	}
	if err := os.MkdirAll(filepath.Dir(auditPath), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(auditPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(FormatLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatLine renders the single-line audit entry for ev.
func FormatLine(ev StatusChangedEvent) string {
	return fmt.Sprintf("[%s] Session status changed | session_id=%s | movie=%q | %s -> %s\n",
		ev.ChangedAt, ev.SessionID, ev.MovieTitle, ev.From, ev.To)
}
