package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/talktrack/internal/core"
	"github.com/markdave123-py/talktrack/internal/logger"
	"github.com/markdave123-py/talktrack/internal/models"
)

var _ core.JobQueue = (*RedisQueue)(nil)

// RedisQueue is a reliable queue on plain Redis lists.
//
//	wait    -> BRPOPLPUSH -> active:{consumer} -> LREM on ack
//	failure -> delayed (zset, score = due time) -> promoted back to wait
//	exhausted or permanent -> failed
//
// Each instance is one consumer with its own active list and a heartbeat
// key that expires after HeartbeatTTL. Only the active lists of consumers
// whose heartbeat has expired are moved back to wait, so a job is never
// taken from a live worker. Call Consume at most once per instance.
type RedisQueue struct {
	client *redis.Client
	name   string
	id     string
	opts   Options
	log    logger.AppLogger
}

func NewRedisQueue(ctx context.Context, url, name string, opts Options, log logger.AppLogger) (*RedisQueue, error) {
	ropts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrokerNotConfigured, err)
	}
	client := redis.NewClient(ropts)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisQueueFromClient(client, name, opts, log), nil
}

func NewRedisQueueFromClient(client *redis.Client, name string, opts Options, log logger.AppLogger) *RedisQueue {
	id := uuid.NewString()
	return &RedisQueue{
		client: client,
		name:   name,
		id:     id,
		opts:   opts.withDefaults(),
		log: log.With(
			slog.String("service", "queue"),
			slog.String("queue", name),
			slog.String("consumer", id),
		),
	}
}

func (q *RedisQueue) key(part string) string { return "talktrack:" + q.name + ":" + part }

func (q *RedisQueue) activeKey(consumer string) string    { return q.key("active:" + consumer) }
func (q *RedisQueue) heartbeatKey(consumer string) string { return q.key("consumer:" + consumer) }

func (q *RedisQueue) Enqueue(ctx context.Context, fileID string) (models.IngestionJob, error) {
	job := models.IngestionJob{
		ID:         uuid.NewString(),
		FileID:     fileID,
		EnqueuedAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return models.IngestionJob{}, err
	}
	if err := q.client.LPush(ctx, q.key("wait"), raw).Err(); err != nil {
		return models.IngestionJob{}, fmt.Errorf("enqueue %s: %w", fileID, err)
	}
	return job, nil
}

// Consume runs concurrency delivery slots, the delayed-job promoter and the
// consumer heartbeat.
func (q *RedisQueue) Consume(ctx context.Context, concurrency int, handler core.JobHandler) error {
	if concurrency <= 0 {
		concurrency = 1
	}

	if err := q.register(ctx); err != nil {
		return err
	}
	defer q.unregister(context.WithoutCancel(ctx))

	q.reapOrphans(ctx)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		t := time.NewTicker(q.opts.PromoteInterval)
		defer t.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-t.C:
				if _, err := q.promoteDue(gctx, time.Now()); err != nil && gctx.Err() == nil {
					q.log.Error("promote delayed jobs", err)
				}
			}
		}
	})

	g.Go(func() error {
		t := time.NewTicker(q.opts.HeartbeatTTL / 3)
		defer t.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-t.C:
				if err := q.client.Set(gctx, q.heartbeatKey(q.id), time.Now().UnixMilli(), q.opts.HeartbeatTTL).Err(); err != nil && gctx.Err() == nil {
					q.log.Error("refresh consumer heartbeat", err)
				}
				q.reapOrphans(gctx)
			}
		}
	})

	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			for gctx.Err() == nil {
				raw, err := q.client.BRPopLPush(gctx, q.key("wait"), q.activeKey(q.id), q.opts.BlockTimeout).Result()
				if errors.Is(err, redis.Nil) {
					continue
				}
				if err != nil {
					if gctx.Err() != nil {
						return nil
					}
					q.log.Error("dequeue", err)
					sleepCtx(gctx, q.opts.BlockTimeout)
					continue
				}
				q.process(gctx, raw, handler)
			}
			return nil
		})
	}

	return g.Wait()
}

func (q *RedisQueue) process(ctx context.Context, raw string, handler core.JobHandler) {
	// Bookkeeping must land even while shutting down.
	bctx := context.WithoutCancel(ctx)

	var job models.IngestionJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		q.log.Error("dropping undecodable job", err, slog.String("raw", raw))
		q.moveFromActive(bctx, raw, func(p redis.Pipeliner) { p.LPush(bctx, q.key("failed"), raw) })
		return
	}

	herr := handler(ctx, job)
	switch {
	case herr == nil:
		if err := q.client.LRem(bctx, q.activeKey(q.id), 1, raw).Err(); err != nil {
			q.log.Error("ack job", err, slog.String("job_id", job.ID))
		}
		return

	case ctx.Err() != nil:
		// Interrupted by shutdown: deliver again without spending an attempt.
		q.moveFromActive(bctx, raw, func(p redis.Pipeliner) { p.RPush(bctx, q.key("wait"), raw) })
		return
	}

	job.Attempts++
	job.LastError = herr.Error()
	next, err := json.Marshal(job)
	if err != nil {
		q.log.Error("encode failed job", err, slog.String("job_id", job.ID))
		return
	}

	if q.opts.retryable(herr, job.Attempts) {
		due := time.Now().Add(q.opts.backoffFor(job.Attempts))
		q.moveFromActive(bctx, raw, func(p redis.Pipeliner) {
			p.ZAdd(bctx, q.key("delayed"), redis.Z{Score: float64(due.UnixMilli()), Member: string(next)})
		})
		q.log.Warn("job scheduled for retry",
			slog.String("job_id", job.ID),
			slog.String("file_id", job.FileID),
			slog.Int("attempts", job.Attempts),
			slog.Time("due", due),
		)
		return
	}

	q.moveFromActive(bctx, raw, func(p redis.Pipeliner) { p.LPush(bctx, q.key("failed"), next) })
	q.log.Warn("job moved to failed",
		slog.String("job_id", job.ID),
		slog.String("file_id", job.FileID),
		slog.Int("attempts", job.Attempts),
		slog.Bool("permanent", core.IsPermanent(herr)),
	)
}

// moveFromActive removes raw from active and applies then in one MULTI.
func (q *RedisQueue) moveFromActive(ctx context.Context, raw string, then func(redis.Pipeliner)) {
	_, err := q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, q.activeKey(q.id), 1, raw)
		then(p)
		return nil
	})
	if err != nil {
		q.log.Error("move job out of active", err)
	}
}

// promoteDue moves delayed jobs whose due time has passed back to wait.
func (q *RedisQueue) promoteDue(ctx context.Context, now time.Time) (int, error) {
	due, err := q.client.ZRangeByScore(ctx, q.key("delayed"), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}

	moved := 0
	for _, raw := range due {
		// Only the consumer that wins ZREM pushes the job.
		n, err := q.client.ZRem(ctx, q.key("delayed"), raw).Result()
		if err != nil {
			return moved, err
		}
		if n == 0 {
			continue
		}
		if err := q.client.LPush(ctx, q.key("wait"), raw).Err(); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}

// register publishes the heartbeat and joins the consumer set in one MULTI,
// so no other consumer can see the id without a live heartbeat.
func (q *RedisQueue) register(ctx context.Context) error {
	_, err := q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, q.heartbeatKey(q.id), time.Now().UnixMilli(), q.opts.HeartbeatTTL)
		p.SAdd(ctx, q.key("consumers"), q.id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}
	return nil
}

// unregister drops the heartbeat. An empty active list is removed with the
// membership; anything still active is left for the next reaper.
func (q *RedisQueue) unregister(ctx context.Context) {
	if err := q.client.Del(ctx, q.heartbeatKey(q.id)).Err(); err != nil {
		q.log.Error("drop consumer heartbeat", err)
		return
	}
	n, err := q.client.LLen(ctx, q.activeKey(q.id)).Result()
	if err != nil || n > 0 {
		return
	}
	if err := q.client.SRem(ctx, q.key("consumers"), q.id).Err(); err != nil {
		q.log.Error("leave consumer set", err)
	}
}

func (q *RedisQueue) reapOrphans(ctx context.Context) {
	recovered, err := q.recoverOrphans(ctx)
	if err != nil && ctx.Err() == nil {
		q.log.Error("recover orphaned jobs", err)
	}
	if recovered > 0 {
		q.log.Warn("requeued jobs left active by a dead consumer", slog.Int("count", recovered))
	}
}

// recoverOrphans moves the active jobs of consumers whose heartbeat has
// expired back to wait. RPOPLPUSH is atomic per job, so concurrent reapers
// never requeue the same job twice.
func (q *RedisQueue) recoverOrphans(ctx context.Context) (int, error) {
	consumers, err := q.client.SMembers(ctx, q.key("consumers")).Result()
	if err != nil {
		return 0, err
	}

	n := 0
	for _, id := range consumers {
		if id == q.id {
			continue
		}
		alive, err := q.client.Exists(ctx, q.heartbeatKey(id)).Result()
		if err != nil {
			return n, err
		}
		if alive > 0 {
			continue
		}
		for {
			err := q.client.RPopLPush(ctx, q.activeKey(id), q.key("wait")).Err()
			if errors.Is(err, redis.Nil) {
				break
			}
			if err != nil {
				return n, fmt.Errorf("recover jobs of consumer %s: %w", id, err)
			}
			n++
		}
		if err := q.client.SRem(ctx, q.key("consumers"), id).Err(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Failed returns the dead-lettered jobs, newest first.
func (q *RedisQueue) Failed(ctx context.Context) ([]models.IngestionJob, error) {
	raws, err := q.client.LRange(ctx, q.key("failed"), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.IngestionJob, 0, len(raws))
	for _, raw := range raws {
		var job models.IngestionJob
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			continue
		}
		out = append(out, job)
	}
	return out, nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
