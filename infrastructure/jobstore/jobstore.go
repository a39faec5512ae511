// Package jobstore implements the durable, at-least-once job queue the
// workflow step worker drains (site build jobs are claimed from Postgres
// instead, not from this queue): a Redis list
// per queue for ready jobs, a Redis sorted set per queue for jobs scheduled
// in the future (DELAY nodes, retry backoff), and a reliable-delivery
// processing list so a crashed worker's claimed jobs are recovered rather
// than lost.
//
// Effectively-once semantics are NOT provided here — per the engine's
// idempotency gate, a Job's ID should already encode the caller's
// idempotency key so re-delivery is cheap to detect downstream.
package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	svcerrors "github.com/R3E-Network/service_layer/infrastructure/errors"
)

// ErrDuplicate is returned by Enqueue when a job with the same dedup key
// was already enqueued and has not yet expired from the dedup set.
var ErrDuplicate = errors.New("jobstore: duplicate job")

// ErrEmpty is returned by Dequeue when no job became available before ctx
// or the blocking timeout expired.
var ErrEmpty = errors.New("jobstore: queue empty")

// Job is one unit of work moving through a queue.
type Job struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Payload     json.RawMessage `json:"payload"`
	Attempts    int             `json:"attempts"`
	EnqueuedAt  time.Time       `json:"enqueuedAt"`
	AvailableAt time.Time       `json:"availableAt"`
}

// Store is a Redis-backed durable job queue. The zero value is not usable;
// construct with New.
type Store struct {
	client    *redis.Client
	keyPrefix string
	dedupTTL  time.Duration
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithDedupTTL overrides the default 24h window a job's dedup key is
// remembered for.
func WithDedupTTL(ttl time.Duration) Option {
	return func(s *Store) { s.dedupTTL = ttl }
}

// New wraps an existing Redis client. keyPrefix namespaces all keys this
// Store touches, so one Redis instance can back multiple logical job
// stores (e.g. "wf", the prefix the workflow service uses).
func New(client *redis.Client, keyPrefix string, opts ...Option) *Store {
	s := &Store{
		client:    client,
		keyPrefix: keyPrefix,
		dedupTTL:  24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HealthCheck implements infrastructure/service.HealthChecker.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) readyKey(queue string) string    { return fmt.Sprintf("%s:q:%s:ready", s.keyPrefix, queue) }
func (s *Store) delayedKey(queue string) string  { return fmt.Sprintf("%s:q:%s:delayed", s.keyPrefix, queue) }
func (s *Store) processingKey(queue string) string {
	return fmt.Sprintf("%s:q:%s:processing", s.keyPrefix, queue)
}
func (s *Store) dedupKey(queue, id string) string {
	return fmt.Sprintf("%s:dedup:%s:%s", s.keyPrefix, queue, id)
}

// Enqueue pushes job onto queue. If job.AvailableAt is in the future, it is
// placed on the delayed set instead of the ready list and picked up by a
// later Sweep call. Enqueue is a no-op returning ErrDuplicate when a job
// with the same ID was already enqueued within the dedup TTL window.
func (s *Store) Enqueue(ctx context.Context, queue string, job Job) error {
	job.Queue = queue
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}

	reserved, err := s.client.SetNX(ctx, s.dedupKey(queue, job.ID), 1, s.dedupTTL).Result()
	if err != nil {
		return svcerrors.Wrap(svcerrors.CodeInternal, "jobstore: dedup check failed", err)
	}
	if !reserved {
		return ErrDuplicate
	}

	encoded, err := json.Marshal(job)
	if err != nil {
		return svcerrors.Wrap(svcerrors.CodeInternal, "jobstore: encode job failed", err)
	}

	if job.AvailableAt.After(time.Now()) {
		score := float64(job.AvailableAt.Unix())
		if err := s.client.ZAdd(ctx, s.delayedKey(queue), &redis.Z{Score: score, Member: encoded}).Err(); err != nil {
			return svcerrors.Wrap(svcerrors.CodeInternal, "jobstore: schedule delayed job failed", err)
		}
		return nil
	}

	if err := s.client.LPush(ctx, s.readyKey(queue), encoded).Err(); err != nil {
		return svcerrors.Wrap(svcerrors.CodeInternal, "jobstore: enqueue job failed", err)
	}
	return nil
}

// Dequeue blocks up to timeout waiting for a ready job, atomically moving
// it onto the queue's processing list so a crash between Dequeue and Ack
// leaves the job recoverable by Requeue. Returns ErrEmpty on timeout.
func (s *Store) Dequeue(ctx context.Context, queue string, timeout time.Duration) (*Job, error) {
	raw, err := s.client.BRPopLPush(ctx, s.readyKey(queue), s.processingKey(queue), timeout).Result()
	if err == redis.Nil {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, svcerrors.Wrap(svcerrors.CodeInternal, "jobstore: dequeue failed", err)
	}

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, svcerrors.Wrap(svcerrors.CodeInternal, "jobstore: decode job failed", err)
	}
	return &job, nil
}

// Ack removes job from the processing list once the worker has durably
// recorded its outcome (a completed Step, a failed Step past retries, etc).
func (s *Store) Ack(ctx context.Context, queue string, job Job) error {
	encoded, err := json.Marshal(job)
	if err != nil {
		return svcerrors.Wrap(svcerrors.CodeInternal, "jobstore: encode job failed", err)
	}
	if err := s.client.LRem(ctx, s.processingKey(queue), 1, encoded).Err(); err != nil {
		return svcerrors.Wrap(svcerrors.CodeInternal, "jobstore: ack failed", err)
	}
	return nil
}

// Requeue moves job from the processing list back onto the ready list,
// incrementing its attempt counter. Used both for explicit retry-after-
// failure and for recovering jobs orphaned by a crashed worker.
func (s *Store) Requeue(ctx context.Context, queue string, job Job) error {
	stale, err := json.Marshal(job)
	if err != nil {
		return svcerrors.Wrap(svcerrors.CodeInternal, "jobstore: encode job failed", err)
	}

	job.Attempts++
	fresh, err := json.Marshal(job)
	if err != nil {
		return svcerrors.Wrap(svcerrors.CodeInternal, "jobstore: encode job failed", err)
	}

	pipe := s.client.TxPipeline()
	pipe.LRem(ctx, s.processingKey(queue), 1, stale)
	pipe.LPush(ctx, s.readyKey(queue), fresh)
	if _, err := pipe.Exec(ctx); err != nil {
		return svcerrors.Wrap(svcerrors.CodeInternal, "jobstore: requeue failed", err)
	}
	return nil
}

// Sweep moves every delayed job whose AvailableAt has passed onto the
// ready list, returning the count moved. Intended to be driven by a
// periodic worker (see infrastructure/service.BaseService.AddTickerWorker).
func (s *Store) Sweep(ctx context.Context, queue string) (int, error) {
	now := float64(time.Now().Unix())
	due, err := s.client.ZRangeByScore(ctx, s.delayedKey(queue), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%f", now),
	}).Result()
	if err != nil {
		return 0, svcerrors.Wrap(svcerrors.CodeInternal, "jobstore: sweep query failed", err)
	}

	moved := 0
	for _, encoded := range due {
		pipe := s.client.TxPipeline()
		pipe.ZRem(ctx, s.delayedKey(queue), encoded)
		pipe.LPush(ctx, s.readyKey(queue), encoded)
		if _, err := pipe.Exec(ctx); err != nil {
			return moved, svcerrors.Wrap(svcerrors.CodeInternal, "jobstore: sweep move failed", err)
		}
		moved++
	}
	return moved, nil
}

// Len reports the number of jobs currently ready to dequeue.
func (s *Store) Len(ctx context.Context, queue string) (int64, error) {
	n, err := s.client.LLen(ctx, s.readyKey(queue)).Result()
	if err != nil {
		return 0, svcerrors.Wrap(svcerrors.CodeInternal, "jobstore: len failed", err)
	}
	return n, nil
}
