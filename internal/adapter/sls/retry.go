package sls

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/V4T54L/rumtrack/internal/domain"
)

// retryableErrors are the error message fragments that schedule a retry pass.
var retryableErrors = []string{
	"Network timeout",
	"Connection failed",
	"Service unavailable",
	"Rate limit exceeded",
}

// RetryItem is a payload whose send failed.
type RetryItem struct {
	ID         string
	Payload    domain.LogPayload
	Err        error
	EnqueuedAt time.Time
	RetryCount int

	// scope is re-attached on resend so page context survives the delay.
	scope    domain.Scope
	hasScope bool
}

// ShouldRetry reports whether err matches one of the transient failure messages.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, pattern := range retryableErrors {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// handleSendError queues payload for retry. A retry pass is scheduled only for
// transient errors; other failures stay queued until some later pass picks
// them up.
func (a *Adapter) handleSendError(ctx context.Context, payload domain.LogPayload, err error) {
	item := &RetryItem{
		ID:         uuid.NewString(),
		Payload:    payload,
		Err:        err,
		EnqueuedAt: a.now(),
	}
	item.scope, item.hasScope = domain.ScopeFrom(ctx)

	a.mu.Lock()
	if a.destroyed {
		a.mu.Unlock()
		return
	}
	a.retryQueue = append(a.retryQueue, item)
	size := len(a.retryQueue)
	interval := a.cfg.RetryInterval
	a.mu.Unlock()
	a.setQueueGauge(size)

	if ShouldRetry(err) {
		a.scheduler.AfterFunc(interval, a.retryFailedLogs)
	} else {
		a.logger.Warn("non-retryable send error, log kept in retry queue", "error", err, "retry_id", item.ID)
	}
}

// retryFailedLogs runs one retry pass. The queue is partitioned under the lock
// before any resend starts, so concurrent passes never send the same item.
func (a *Adapter) retryFailedLogs() {
	a.mu.Lock()
	if len(a.retryQueue) == 0 {
		a.mu.Unlock()
		return
	}
	maxRetries := a.cfg.RetryCount
	var attempt []*RetryItem
	for _, item := range a.retryQueue {
		if item.RetryCount < maxRetries {
			attempt = append(attempt, item)
			continue
		}
		a.logger.Error("max retries reached, dropping log", "retry_id", item.ID, "attempts", item.RetryCount, "error", item.Err)
		a.drop("max_retries")
	}
	a.retryQueue = nil
	a.mu.Unlock()
	a.setQueueGauge(0)

	for _, item := range attempt {
		a.retryOne(item, maxRetries)
	}
}

func (a *Adapter) retryOne(item *RetryItem, maxRetries int) {
	item.RetryCount++
	if a.metrics != nil {
		a.metrics.RetriesTotal.Inc()
	}

	ctx := context.Background()
	if item.hasScope {
		ctx = domain.WithScope(ctx, item.scope)
	}

	transport, err := a.ready()
	if err == nil {
		err = a.send(ctx, transport, item.Payload)
	}
	if err == nil {
		a.debug("retry succeeded", "retry_id", item.ID, "attempt", item.RetryCount)
		return
	}

	item.Err = err
	a.logger.Warn("retry failed", "retry_id", item.ID, "attempt", item.RetryCount, "error", err)
	if item.RetryCount >= maxRetries {
		a.logger.Error("max retries reached, dropping log", "retry_id", item.ID, "attempts", item.RetryCount)
		a.drop("max_retries")
		return
	}

	a.mu.Lock()
	if a.destroyed {
		a.mu.Unlock()
		return
	}
	a.retryQueue = append(a.retryQueue, item)
	size := len(a.retryQueue)
	delay := a.cfg.RetryInterval * time.Duration(item.RetryCount)
	a.mu.Unlock()
	a.setQueueGauge(size)

	a.scheduler.AfterFunc(delay, a.retryFailedLogs)
}

// RetryQueue returns a snapshot of the queued items.
func (a *Adapter) RetryQueue() []RetryItem {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]RetryItem, 0, len(a.retryQueue))
	for _, item := range a.retryQueue {
		out = append(out, *item)
	}
	return out
}

func (a *Adapter) setQueueGauge(n int) {
	if a.metrics != nil {
		a.metrics.RetryQueueSize.Set(float64(n))
	}
}
