package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	// Queue names
	QueueForwardConversion = "forward_conversion"

	// Default values
	DefaultRetryCount = 5
	DefaultTTL        = 24 * time.Hour
)

// Redis key prefixes
const (
	delayedPrefix = "delayed:"
	failedPrefix  = "failed:"
	jobPrefix     = "jobs:"
)

// RedisQueue is a list-backed job queue with a sorted set for delayed and
// retried jobs
type RedisQueue struct {
	client *redis.Client
	nowFn  func() time.Time
}

// NewRedisQueue creates a new Redis queue
func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{
		client: client,
		nowFn:  time.Now,
	}
}

// Enqueue adds a job to the queue
func (q *RedisQueue) Enqueue(ctx context.Context, queueName string, payload interface{}, opts ...EnqueueOption) (string, error) {
	return q.EnqueueIn(ctx, queueName, payload, 0, opts...)
}

// EnqueueIn adds a job to the queue with a delay
func (q *RedisQueue) EnqueueIn(ctx context.Context, queueName string, payload interface{}, delay time.Duration, opts ...EnqueueOption) (string, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	now := q.nowFn()
	job := &Job{
		ID:         uuid.New().String(),
		Queue:      queueName,
		Payload:    payloadBytes,
		Status:     JobStatusPending,
		MaxRetries: DefaultRetryCount,
		CreatedAt:  now,
		UpdatedAt:  now,
		RunAt:      now.Add(delay),
	}

	for _, opt := range opts {
		opt(job)
	}

	jobBytes, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	if err := q.storeJob(ctx, job.ID, jobBytes); err != nil {
		return "", err
	}

	if delay > 0 {
		err = q.client.ZAdd(ctx, delayedPrefix+queueName, &redis.Z{
			Score:  float64(job.RunAt.Unix()),
			Member: job.ID,
		}).Err()
		if err != nil {
			return "", fmt.Errorf("failed to add job to delayed queue: %w", err)
		}
		return job.ID, nil
	}

	if err := q.client.LPush(ctx, queueName, job.ID).Err(); err != nil {
		return "", fmt.Errorf("failed to push job to queue: %w", err)
	}

	return job.ID, nil
}

// Dequeue pops the next job, waiting up to timeout. It returns nil, nil when
// the queue stays empty.
func (q *RedisQueue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Job, error) {
	// First, check for delayed jobs that are ready to run
	q.moveReadyDelayedJobs(ctx, queueName)

	result, err := q.client.BRPop(ctx, timeout, queueName).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pop job from queue: %w", err)
	}

	if len(result) < 2 {
		return nil, fmt.Errorf("unexpected result format from BRPOP")
	}

	job, err := q.loadJob(ctx, result[1])
	if err != nil {
		return nil, err
	}

	job.Status = JobStatusProcessing
	job.UpdatedAt = q.nowFn()
	if err := q.saveJob(ctx, job); err != nil {
		log.Printf("Warning: failed to update job status: %v", err)
	}

	return job, nil
}

// moveReadyDelayedJobs moves delayed jobs that are ready to run to the main queue
func (q *RedisQueue) moveReadyDelayedJobs(ctx context.Context, queueName string) {
	now := q.nowFn().Unix()

	ids, err := q.client.ZRangeByScore(ctx, delayedPrefix+queueName, &redis.ZRangeBy{
		Min: "0",
		Max: fmt.Sprintf("%d", now),
	}).Result()
	if err != nil {
		log.Printf("Error getting ready delayed jobs: %v", err)
		return
	}

	for _, id := range ids {
		// ZRem first so two workers never both move the same job
		removed, err := q.client.ZRem(ctx, delayedPrefix+queueName, id).Result()
		if err != nil || removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, queueName, id).Err(); err != nil {
			log.Printf("Error moving delayed job %s to main queue: %v", id, err)
		}
	}
}

// Complete marks a job as completed
func (q *RedisQueue) Complete(ctx context.Context, job *Job) error {
	job.Status = JobStatusCompleted
	job.UpdatedAt = q.nowFn()
	return q.saveJob(ctx, job)
}

// Fail records a failed attempt and schedules a retry with backoff while
// retries remain. Permanent errors fail the job immediately.
func (q *RedisQueue) Fail(ctx context.Context, job *Job, jobErr error) error {
	if jobErr != nil {
		job.LastError = jobErr.Error()
	}

	if job.RetryCount < job.MaxRetries && !IsPermanent(jobErr) {
		return q.Retry(ctx, job, calculateBackoff(job.RetryCount+1))
	}

	job.Status = JobStatusFailed
	job.UpdatedAt = q.nowFn()
	if err := q.saveJob(ctx, job); err != nil {
		return err
	}

	if err := q.client.HSet(ctx, failedPrefix+job.Queue, job.ID, job.LastError).Err(); err != nil {
		return fmt.Errorf("failed to add job to failed set: %w", err)
	}
	return nil
}

// Retry re-schedules a job after a delay
func (q *RedisQueue) Retry(ctx context.Context, job *Job, delay time.Duration) error {
	job.Status = JobStatusPending
	job.RetryCount++
	job.UpdatedAt = q.nowFn()
	job.RunAt = job.UpdatedAt.Add(delay)

	if err := q.saveJob(ctx, job); err != nil {
		return err
	}

	err := q.client.ZAdd(ctx, delayedPrefix+job.Queue, &redis.Z{
		Score:  float64(job.RunAt.Unix()),
		Member: job.ID,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to add job to delayed queue: %w", err)
	}
	return nil
}

// Stats gets statistics for a queue
func (q *RedisQueue) Stats(ctx context.Context, queueName string) (*QueueStats, error) {
	stats := &QueueStats{Queue: queueName}

	waiting, err := q.client.LLen(ctx, queueName).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get waiting count: %w", err)
	}
	stats.Waiting = int(waiting)

	delayed, err := q.client.ZCard(ctx, delayedPrefix+queueName).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get delayed count: %w", err)
	}
	stats.Delayed = int(delayed)

	failed, err := q.client.HLen(ctx, failedPrefix+queueName).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get failed count: %w", err)
	}
	stats.Failed = int(failed)

	return stats, nil
}

func (q *RedisQueue) loadJob(ctx context.Context, id string) (*Job, error) {
	data, err := q.client.HGet(ctx, jobPrefix+id, "data").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get job details for %s: %w", id, err)
	}

	var job Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

func (q *RedisQueue) saveJob(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	return q.storeJob(ctx, job.ID, data)
}

func (q *RedisQueue) storeJob(ctx context.Context, id string, data []byte) error {
	if err := q.client.HSet(ctx, jobPrefix+id, "data", data).Err(); err != nil {
		return fmt.Errorf("failed to store job details: %w", err)
	}
	if err := q.client.Expire(ctx, jobPrefix+id, DefaultTTL).Err(); err != nil {
		log.Printf("Warning: failed to set TTL on job %s: %v", id, err)
	}
	return nil
}
