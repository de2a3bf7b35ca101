package utils

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MailQueue hands messages to a background worker so request handlers never wait
// on mail delivery. Each message is retried with exponential backoff up to
// maxAttempts, then dropped with an error log.
type MailQueue struct {
	mailer      Mailer
	log         *zap.Logger
	jobs        chan Message
	maxAttempts int
	backoff     time.Duration

	mu     sync.RWMutex
	closed bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMailQueue buffers up to size messages.
func NewMailQueue(mailer Mailer, log *zap.Logger, size, maxAttempts int, backoff time.Duration) *MailQueue {
	if size < 1 {
		size = 1
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &MailQueue{
		mailer:      mailer,
		log:         log,
		jobs:        make(chan Message, size),
		maxAttempts: maxAttempts,
		backoff:     backoff,
	}
}

// Start launches the worker. The worker stops when Stop is called or ctx ends.
func (q *MailQueue) Start(ctx context.Context) {
	ctx, q.cancel = context.WithCancel(ctx)
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for {
			select {
			case msg, ok := <-q.jobs:
				if !ok {
					return
				}
				q.deliver(ctx, msg)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Enqueue never blocks. It reports false when the queue is full or stopped.
func (q *MailQueue) Enqueue(msg Message) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.log.Warn("mail queue stopped, dropping message", zap.String("subject", msg.Subject))
		return false
	}
	select {
	case q.jobs <- msg:
		return true
	default:
		q.log.Warn("mail queue full, dropping message", zap.String("subject", msg.Subject))
		return false
	}
}

// Stop refuses new messages and drains the queue until ctx expires, then abandons
// whatever is left.
func (q *MailQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		if q.cancel != nil {
			q.cancel()
		}
		<-done
		return ctx.Err()
	}
}

func (q *MailQueue) deliver(ctx context.Context, msg Message) {
	wait := q.backoff
	for attempt := 1; ; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := q.mailer.Send(sendCtx, msg)
		cancel()
		if err == nil {
			q.log.Info("email sent", zap.String("subject", msg.Subject), zap.Int("attempt", attempt))
			return
		}
		if attempt >= q.maxAttempts {
			q.log.Error("email delivery failed, giving up",
				zap.String("subject", msg.Subject), zap.Int("attempts", attempt), zap.Error(err))
			return
		}
		q.log.Warn("email delivery failed, retrying",
			zap.String("subject", msg.Subject), zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}
		wait *= 2
	}
}
