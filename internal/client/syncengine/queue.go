package syncengine

import (
	"context"

	"github.com/simonexmachina/the-work/internal/models"
)

type OpType string

const (
	OpUpload OpType = "upload"
)

// PendingOp is a local write waiting to reach the remote store.
type PendingOp struct {
	Type   OpType
	Record models.Worksheet
}

// QueueLen returns the number of writes waiting for retry.
func (e *Engine) QueueLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// Pending returns a copy of the retry queue in FIFO order.
func (e *Engine) Pending() []PendingOp {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]PendingOp, len(e.queue))
	copy(out, e.queue)
	return out
}

func (e *Engine) enqueue(ctx context.Context, w *models.Worksheet, reason string) {
	e.mu.Lock()
	e.queue = append(e.queue, PendingOp{Type: OpUpload, Record: *w.Clone()})
	n := len(e.queue)
	e.mu.Unlock()

	e.logger.Info(ctx, "record queued for upload", "id", w.ID, "reason", reason, "queued", n)
}

// DrainQueue retries queued writes in FIFO order. Writes that fail again are
// put back at the end of the queue. An authentication failure stops the
// drain: the failing write is dropped (the next full pass after sign-in
// uploads it from the local store) and the rest stay queued.
func (e *Engine) DrainQueue(ctx context.Context) {
	e.mu.Lock()
	if e.draining || !e.online || !e.authenticatedLocked() {
		e.mu.Unlock()
		return
	}
	e.draining = true
	items := e.queue
	e.queue = nil
	e.mu.Unlock()

	if len(items) > 0 {
		e.logger.Info(ctx, "draining upload queue", "count", len(items))
	}

	var failed []PendingOp
	for i, op := range items {
		if ctx.Err() != nil {
			failed = append(failed, items[i:]...)
			break
		}

		err := e.upload(ctx, &op.Record)
		if err == nil {
			continue
		}
		if IsAuthError(err) {
			e.logger.Warn(ctx, "queue drain stopped by auth failure", "id", op.Record.ID, "error", err)
			failed = append(failed, items[i+1:]...)
			e.reportAuthFailure(ctx, err)
			break
		}
		e.logger.Warn(ctx, "queued upload failed", "id", op.Record.ID, "error", err)
		failed = append(failed, op)
	}

	e.mu.Lock()
	e.queue = append(e.queue, failed...)
	e.draining = false
	e.mu.Unlock()
}
