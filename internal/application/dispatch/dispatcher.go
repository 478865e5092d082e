package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/offerhub-api/internal/domain"
	"github.com/offerhub-api/internal/infrastructure/push"
)

type queueStore interface {
	ListDue(ctx context.Context, now time.Time, limit int32) ([]domain.QueueItem, error)
	Claim(ctx context.Context, itemID, owner string, now time.Time, lease time.Duration) (bool, error)
	MarkResolved(ctx context.Context, itemID, status string) error
	Reschedule(ctx context.Context, itemID string, attemptCount int, nextAttempt time.Time, lastErr string) error
	DeadLetter(ctx context.Context, itemID, lastErr string) error
}

type notificationStore interface {
	Get(ctx context.Context, notificationID string) (*domain.Notification, error)
	MarkSent(ctx context.Context, notificationID string) error
}

type tokenStore interface {
	ListActiveByUser(ctx context.Context, userID string) ([]domain.PushToken, error)
	Deactivate(ctx context.Context, token string) error
}

// archiveStore receives the final payload of dead-lettered items. Optional.
type archiveStore interface {
	Upload(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
}

// Config tunes the dispatcher worker.
type Config struct {
	WorkerID     string
	Workers      int
	PollInterval time.Duration
	Lease        time.Duration
	SendTimeout  time.Duration
	MaxAttempts  int
	BackoffBase  time.Duration
	BackoffCap   time.Duration
	BatchSize    int32
}

// Dispatcher drains the retry queue: it claims items by lease, fans each
// notification out across the user's active tokens via the transport
// adapters, and records the per-item resolution. Dispatch failures are never
// surfaced to end users — the in-app notification row stays visible whatever
// happens here.
type Dispatcher struct {
	queue         queueStore
	notifications notificationStore
	tokens        tokenStore
	native        push.Sender // nil when no native relay is configured
	universal     push.Sender
	archive       archiveStore // nil disables dead-letter archiving
	cfg           Config
	log           *slog.Logger
	now           func() time.Time
}

func New(queue queueStore, notifications notificationStore, tokens tokenStore,
	native, universal push.Sender, archive archiveStore, cfg Config, log *slog.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 30 * time.Second
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 30 * time.Minute
	}
	return &Dispatcher{
		queue:         queue,
		notifications: notifications,
		tokens:        tokens,
		native:        native,
		universal:     universal,
		archive:       archive,
		cfg:           cfg,
		log:           log,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Run polls until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.RunOnce(ctx); err != nil {
				d.log.Error("dispatch cycle failed", "err", err)
			}
		}
	}
}

// RunOnce claims and processes one batch of due items across the worker pool.
func (d *Dispatcher) RunOnce(ctx context.Context) error {
	now := d.now()
	due, err := d.queue.ListDue(ctx, now, d.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("list due items: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	sem := make(chan struct{}, d.cfg.Workers)
	var wg sync.WaitGroup
	for _, item := range due {
		claimed, err := d.queue.Claim(ctx, item.ItemID, d.cfg.WorkerID, now, d.cfg.Lease)
		if err != nil {
			d.log.Error("lease claim failed", "item_id", item.ItemID, "err", err)
			continue
		}
		if !claimed {
			// Another worker holds a live lease.
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(it domain.QueueItem) {
			defer wg.Done()
			defer func() { <-sem }()
			d.process(ctx, it)
		}(item)
	}
	wg.Wait()
	return nil
}

// process resolves one claimed item. Resolution precedence: any Delivered
// wins; otherwise a transient failure schedules a retry (or dead-letters once
// attempts are exhausted); otherwise a permanent failure dead-letters; all
// tokens invalid degrades to delivered-in-app, same as having no tokens.
func (d *Dispatcher) process(ctx context.Context, item domain.QueueItem) {
	n, err := d.notifications.Get(ctx, item.NotificationID)
	if err != nil {
		d.log.Error("load notification", "item_id", item.ItemID, "err", err)
		d.fail(ctx, item, fmt.Sprintf("load notification: %v", err))
		return
	}

	tokens, err := d.tokens.ListActiveByUser(ctx, item.UserID)
	if err != nil {
		d.log.Error("load tokens", "item_id", item.ItemID, "err", err)
		d.fail(ctx, item, fmt.Sprintf("load tokens: %v", err))
		return
	}

	if len(tokens) == 0 {
		// No endpoints: the in-app row is the delivery. No transport call.
		d.resolve(ctx, item, n, domain.QueueStatusDeliveredInApp)
		return
	}

	var (
		sawTransient bool
		sawPermanent bool
		lastErr      error
		invalid      int
	)
	for _, t := range tokens {
		outcome, sendErr := d.send(ctx, n, t)
		switch outcome {
		case push.OutcomeDelivered:
			d.resolve(ctx, item, n, domain.QueueStatusDelivered)
			return
		case push.OutcomeInvalidToken:
			invalid++
			if err := d.tokens.Deactivate(ctx, t.Token); err != nil {
				d.log.Error("deactivate token", "token_id", t.TokenID, "err", err)
			}
		case push.OutcomeTransient:
			sawTransient = true
			lastErr = sendErr
		case push.OutcomePermanent:
			sawPermanent = true
			lastErr = sendErr
		}
	}

	switch {
	case sawTransient:
		d.fail(ctx, item, errString(lastErr))
	case sawPermanent:
		d.deadLetter(ctx, item, n, errString(lastErr))
	case invalid == len(tokens):
		d.resolve(ctx, item, n, domain.QueueStatusDeliveredInApp)
	}
}

// send routes one token to the matching adapter: native relay when it covers
// the platform, universal relay otherwise. Each attempt carries its own
// timeout; a timeout counts as a transient failure inside the adapters.
func (d *Dispatcher) send(ctx context.Context, n *domain.Notification, t domain.PushToken) (push.Outcome, error) {
	sender := d.universal
	if d.native != nil && d.native.Supports(t.Platform) {
		sender = d.native
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()

	return sender.Send(sendCtx, push.Message{
		Token:     t.Token,
		Platform:  t.Platform,
		Title:     n.Title,
		Body:      n.Body,
		Data:      n.Data,
		Sound:     "default",
		ChannelID: domain.Channel(n.Type),
	})
}

func (d *Dispatcher) resolve(ctx context.Context, item domain.QueueItem, n *domain.Notification, status string) {
	if err := d.queue.MarkResolved(ctx, item.ItemID, status); err != nil {
		d.log.Error("mark resolved", "item_id", item.ItemID, "err", err)
		return
	}
	if err := d.notifications.MarkSent(ctx, n.NotificationID); err != nil {
		d.log.Error("mark sent", "notification_id", n.NotificationID, "err", err)
	}
	d.log.Info("queue item resolved", "item_id", item.ItemID, "status", status)
}

// fail books a retry with exponential backoff, or dead-letters once the
// attempt budget is spent.
func (d *Dispatcher) fail(ctx context.Context, item domain.QueueItem, lastErr string) {
	attempts := item.AttemptCount + 1
	if attempts >= d.cfg.MaxAttempts {
		n, err := d.notifications.Get(ctx, item.NotificationID)
		if err != nil {
			n = nil
		}
		d.deadLetter(ctx, item, n, lastErr)
		return
	}
	next := d.now().Add(d.backoff(attempts))
	if err := d.queue.Reschedule(ctx, item.ItemID, attempts, next, lastErr); err != nil {
		d.log.Error("reschedule", "item_id", item.ItemID, "err", err)
		return
	}
	d.log.Info("queue item rescheduled", "item_id", item.ItemID, "attempt", attempts, "next_attempt_at", next)
}

func (d *Dispatcher) deadLetter(ctx context.Context, item domain.QueueItem, n *domain.Notification, lastErr string) {
	if err := d.queue.DeadLetter(ctx, item.ItemID, lastErr); err != nil {
		d.log.Error("dead-letter", "item_id", item.ItemID, "err", err)
		return
	}
	d.log.Warn("queue item dead-lettered", "item_id", item.ItemID, "last_error", lastErr)
	d.archiveDeadLetter(ctx, item, n, lastErr)
}

// archiveDeadLetter writes the final payload to the audit bucket. Best
// effort: archive failures are logged, never retried.
func (d *Dispatcher) archiveDeadLetter(ctx context.Context, item domain.QueueItem, n *domain.Notification, lastErr string) {
	if d.archive == nil {
		return
	}
	record := map[string]interface{}{
		"item_id":         item.ItemID,
		"notification_id": item.NotificationID,
		"user_id":         item.UserID,
		"attempt_count":   item.AttemptCount + 1,
		"last_error":      lastErr,
		"dead_lettered":   d.now().Format(time.RFC3339),
	}
	if n != nil {
		record["type"] = n.Type
		record["title"] = n.Title
		record["body"] = n.Body
		record["data"] = n.Data
	}
	payload, err := json.Marshal(record)
	if err != nil {
		d.log.Error("marshal dead-letter record", "item_id", item.ItemID, "err", err)
		return
	}
	key := fmt.Sprintf("dead-letter/%s.json", item.ItemID)
	if _, err := d.archive.Upload(ctx, key, bytes.NewReader(payload), "application/json"); err != nil {
		d.log.Error("archive dead-letter record", "item_id", item.ItemID, "err", err)
	}
}

// backoff returns the delay before the given attempt number:
// base·2^(n−1), capped.
func (d *Dispatcher) backoff(attempt int) time.Duration {
	delay := d.cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= d.cfg.BackoffCap {
			return d.cfg.BackoffCap
		}
	}
	if delay > d.cfg.BackoffCap {
		return d.cfg.BackoffCap
	}
	return delay
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
