package worker

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/mohankp/sales-enablement-training/internal/config"
	"github.com/mohankp/sales-enablement-training/internal/observability"
	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
)

// memoryQueueSize bounds the in-process queue; Enqueue blocks once it is full
const memoryQueueSize = 1024

// Queue carries ingestion job ids from the API to the worker pool
type Queue interface {
	Enqueue(ctx context.Context, jobID int) error
	// Dequeue waits up to wait for a job id. ok is false when nothing arrived in time.
	Dequeue(ctx context.Context, wait time.Duration) (jobID int, ok bool, err error)
	Close() error
}

// NewQueue builds the queue selected by cfg.Worker.Queue
func NewQueue(ctx context.Context, cfg *config.Config, logger *observability.Logger) (Queue, error) {
	switch strings.ToLower(cfg.Worker.Queue) {
	case "", config.QueueMemory:
		return NewMemoryQueue(memoryQueueSize), nil
	case config.QueueRedis:
		return NewRedisQueue(ctx, cfg.Worker.RedisURL, cfg.Worker.QueueKey, logger)
	default:
		return nil, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "unknown worker queue %q", cfg.Worker.Queue)
	}
}

// MemoryQueue is a buffered channel shared by the API and an in-process worker
type MemoryQueue struct {
	ch chan int
}

// NewMemoryQueue creates a MemoryQueue holding up to size pending ids
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = memoryQueueSize
	}
	return &MemoryQueue{ch: make(chan int, size)}
}

// Enqueue adds jobID, waiting for room if the buffer is full
func (q *MemoryQueue) Enqueue(ctx context.Context, jobID int) error {
	select {
	case q.ch <- jobID:
		return nil
	case <-ctx.Done():
		return contextutils.WrapErrorf(contextutils.ErrTimeout, "enqueue job %d: %v", jobID, ctx.Err())
	}
}

// Dequeue returns the next id, or ok=false after wait
func (q *MemoryQueue) Dequeue(ctx context.Context, wait time.Duration) (int, bool, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case id := <-q.ch:
		return id, true, nil
	case <-timer.C:
		return 0, false, nil
	case <-ctx.Done():
		return 0, false, ctx.Err()
	}
}

// Len reports how many ids are waiting
func (q *MemoryQueue) Len() int {
	return len(q.ch)
}

// Close is a no-op; pending ids are recovered from the database on the next start
func (q *MemoryQueue) Close() error {
	return nil
}

// RedisQueue is a redis list used as a FIFO: LPUSH to enqueue, BRPOP to dequeue
type RedisQueue struct {
	rdb    *redis.Client
	key    string
	logger *observability.Logger
}

// NewRedisQueue connects to redisURL and checks the connection
func NewRedisQueue(ctx context.Context, redisURL, key string, logger *observability.Logger) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "invalid redis url: %v", err)
	}
	if key == "" {
		key = config.DefaultQueueKey
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, contextutils.WrapErrorf(contextutils.ErrServiceUnavailable, "redis ping: %v", err)
	}

	logger.Info(ctx, "Connected to redis job queue", map[string]interface{}{"addr": opts.Addr, "key": key})
	return &RedisQueue{rdb: rdb, key: key, logger: logger}, nil
}

// Enqueue pushes jobID onto the list
func (q *RedisQueue) Enqueue(ctx context.Context, jobID int) (err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "redis_enqueue",
		observability.AttributeJobID(jobID),
		attribute.String("queue.key", q.key),
	)
	defer observability.FinishSpan(span, &err)

	if err = q.rdb.LPush(ctx, q.key, strconv.Itoa(jobID)).Err(); err != nil {
		return contextutils.WrapErrorf(contextutils.ErrServiceUnavailable, "redis lpush: %v", err)
	}
	return nil
}

// Dequeue blocks on BRPOP for up to wait. Malformed entries are logged and dropped.
func (q *RedisQueue) Dequeue(ctx context.Context, wait time.Duration) (int, bool, error) {
	res, err := q.rdb.BRPop(ctx, wait, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return 0, false, ctx.Err()
		}
		return 0, false, contextutils.WrapErrorf(contextutils.ErrServiceUnavailable, "redis brpop: %v", err)
	}

	// res is [key, value]
	if len(res) != 2 {
		return 0, false, nil
	}
	id, err := strconv.Atoi(res[1])
	if err != nil {
		q.logger.Warn(ctx, "Dropping malformed queue entry", map[string]interface{}{"key": q.key, "value": res[1]})
		return 0, false, nil
	}
	return id, true, nil
}

// Close closes the redis client
func (q *RedisQueue) Close() error {
	return q.rdb.Close()
}
