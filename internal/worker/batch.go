package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // must be >= 1s to satisfy Redis

	shutdownFlushTimeout = 5 * time.Second
	redisRetryDelay      = 3 * time.Second
	requeueBackoff       = 2 * time.Second
)

// store persists a batch of jobs. bulk is the fast path; single is the
// row-by-row recovery used when bulk fails.
type store[T any] struct {
	bulk   func(ctx context.Context, batch []T) error
	single func(ctx context.Context, job T) error
	// after runs once a batch is persisted, by either path.
	after func(ctx context.Context, done []T)
}

// queueConsumer drains one Redis list into PostgreSQL in batches.
type queueConsumer[T any] struct {
	rdb   *redis.Client
	queue string
	store store[T]
	log   zerolog.Logger
}

// run blocks until ctx is cancelled, then flushes what it holds.
func (q *queueConsumer[T]) run(ctx context.Context) {
	q.log.Info().Str("queue", q.queue).Msg("Worker started")

	buffer := make([]T, 0, BatchSize)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 && (len(buffer) >= BatchSize || time.Since(lastFlush) >= BatchTimeout) {
			q.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			q.shutdown(buffer)
			return
		default:
		}

		result, err := q.rdb.BLPop(ctx, PollTimeout, q.queue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			q.log.Error().Err(err).Msg("Redis connection error, sleeping")
			sleep(ctx, redisRetryDelay)
			continue
		}
		if len(result) < 2 {
			continue
		}

		var job T
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			// A malformed payload can never succeed; drop it.
			q.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed job")
			continue
		}
		buffer = append(buffer, job)
	}
}

// flushSafe tries the bulk path, then row by row, then requeues what is left.
func (q *queueConsumer[T]) flushSafe(ctx context.Context, batch []T) {
	if len(batch) == 0 {
		return
	}

	err := q.store.bulk(ctx, batch)
	if err == nil {
		if q.store.after != nil {
			q.store.after(ctx, batch)
		}
		return
	}
	q.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk write failed, attempting row-by-row recovery")

	done := make([]T, 0, len(batch))
	failed := make([]T, 0)
	for _, job := range batch {
		if err := q.store.single(ctx, job); err != nil {
			q.log.Error().Err(err).Msg("Row write failed, requeueing")
			failed = append(failed, job)
			continue
		}
		done = append(done, job)
	}

	if q.store.after != nil && len(done) > 0 {
		q.store.after(ctx, done)
	}
	if len(failed) > 0 {
		q.requeue(ctx, failed)
	}
}

func (q *queueConsumer[T]) requeue(ctx context.Context, jobs []T) {
	pipe := q.rdb.Pipeline()
	for _, job := range jobs {
		raw, _ := json.Marshal(job)
		pipe.RPush(ctx, q.queue, raw)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		q.log.Error().Err(err).Int("count", len(jobs)).Msg("CRITICAL: failed to requeue jobs, data lost")
		return
	}
	q.log.Info().Int("count", len(jobs)).Msg("Requeued failed jobs")
	// Back off so a database outage does not spin the loop.
	sleep(ctx, requeueBackoff)
}

func (q *queueConsumer[T]) shutdown(buffer []T) {
	q.log.Info().Int("pending", len(buffer)).Msg("Worker stopping, flushing remaining buffer")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
	defer cancel()
	q.flushSafe(ctx, buffer)
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
