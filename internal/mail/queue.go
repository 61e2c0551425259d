// queue.go -- Redis list between the HTTP handlers and SMTP.
package mail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/metrics"
	"github.com/redis/go-redis/v9"
)

// QueueKey is the Redis list holding pending Messages.
const QueueKey = "bizfinder:mail:queue"

// DefaultMaxQueueSize bounds the list while SMTP is down.
const DefaultMaxQueueSize int64 = 1000

// DefaultSendTimeout bounds a single SMTP delivery.
const DefaultSendTimeout = 30 * time.Second

// ErrQueueFull is returned by Send when the list is at its cap.
var ErrQueueFull = errors.New("mail queue full")

// pushScript appends ARGV[2] to KEYS[1] unless the list already holds ARGV[1] items.
// ARGV[1] = 0 disables the cap. Returns 1 when pushed.
var pushScript = redis.NewScript(`
local max = tonumber(ARGV[1])
if max > 0 and redis.call('LLEN', KEYS[1]) >= max then
    return 0
end
redis.call('RPUSH', KEYS[1], ARGV[2])
return 1
`)

// Queue is a Mailer that defers delivery to a background worker, so a slow or
// unreachable SMTP server never holds up a request.
type Queue struct {
	inner   Mailer
	rdb     *redis.Client
	maxSize int64

	// PopTimeout is how long Run blocks on an empty list before rechecking ctx.
	PopTimeout time.Duration
	// SendTimeout bounds each delivery to inner.
	SendTimeout time.Duration
}

// NewQueue wraps inner. maxSize caps the list (0 = unbounded).
func NewQueue(inner Mailer, rdb *redis.Client, maxSize int64) *Queue {
	return &Queue{
		inner:       inner,
		rdb:         rdb,
		maxSize:     maxSize,
		PopTimeout:  2 * time.Second,
		SendTimeout: DefaultSendTimeout,
	}
}

// Send enqueues msg. Returns ErrQueueFull when the cap is reached.
func (q *Queue) Send(ctx context.Context, msg Message) error {
	if _, ok := templates[msg.Kind]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, msg.Kind)
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding mail job: %w", err)
	}
	pushed, err := pushScript.Run(ctx, q.rdb, []string{QueueKey}, q.maxSize, payload).Int64()
	if err != nil {
		return fmt.Errorf("enqueuing mail job: %w", err)
	}
	if pushed == 0 {
		metrics.MailJobs.WithLabelValues(string(msg.Kind), "full").Inc()
		return ErrQueueFull
	}
	metrics.MailJobs.WithLabelValues(string(msg.Kind), "queued").Inc()
	return nil
}

// Run pops and delivers jobs until ctx is cancelled. Call in a goroutine.
// Failed deliveries are logged and dropped; the user can ask for another link.
func (q *Queue) Run(ctx context.Context) {
	slog.Info("mail worker started", "queue", QueueKey)
	for {
		res, err := q.rdb.BLPop(ctx, q.PopTimeout, QueueKey).Result()
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("mail worker stopped")
				return
			}
			if !errors.Is(err, redis.Nil) {
				slog.Error("mail worker: pop failed", "error", err)
				// Back off so a Redis outage doesn't spin.
				select {
				case <-time.After(q.PopTimeout):
				case <-ctx.Done():
				}
			}
			continue
		}
		// res[0] is the key, res[1] the payload.
		q.deliver(ctx, res[1])
	}
}

func (q *Queue) deliver(ctx context.Context, payload string) {
	var msg Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		slog.Error("mail worker: bad payload", "error", err)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, q.SendTimeout)
	defer cancel()
	if err := q.inner.Send(sendCtx, msg); err != nil {
		metrics.MailJobs.WithLabelValues(string(msg.Kind), "failed").Inc()
		slog.Error("mail worker: send failed", "kind", msg.Kind, "to", msg.To, "error", err)
		return
	}
	metrics.MailJobs.WithLabelValues(string(msg.Kind), "sent").Inc()
	slog.Debug("mail sent", "kind", msg.Kind, "to", msg.To)
}
