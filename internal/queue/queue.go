// Package queue is a Redis-backed job queue. Jobs live in a hash keyed by id; a sorted
// set scored by scheduled time orders the ones still waiting to run.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	jobsKey  = "jobs"
	queueKey = "job_queue"
)

var ErrJobNotFound = errors.New("job not found")

type Queue struct {
	client *redis.Client
}

func NewQueue(redisAddr string) (*Queue, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Queue{client: client}, nil
}

// Client exposes the connection so sessions and the change feed can share it.
func (q *Queue) Client() *redis.Client {
	return q.client
}

func (q *Queue) Enqueue(ctx context.Context, job *Job) error {
	jobJSON, err := job.ToJSON()
	if err != nil {
		return err
	}

	if err := q.client.HSet(ctx, jobsKey, job.ID, jobJSON).Err(); err != nil {
		return err
	}

	return q.client.ZAdd(ctx, queueKey, redis.Z{
		Score:  float64(job.ScheduledAt.UnixMilli()),
		Member: job.ID,
	}).Err()
}

// Dequeue claims the earliest due job, or returns nil when none is due. Two workers racing
// for the same id are settled by ZREM: only the one that removed it gets the job.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	results, err := q.client.ZRangeByScore(ctx, queueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(time.Now().UnixMilli(), 10),
		Count: 1,
	}).Result()
	if err != nil || len(results) == 0 {
		return nil, err
	}

	jobID := results[0]

	removed, err := q.client.ZRem(ctx, queueKey, jobID).Result()
	if err != nil {
		return nil, err
	}
	if removed == 0 {
		return nil, nil
	}

	return q.GetJob(ctx, jobID)
}

func (q *Queue) UpdateJob(ctx context.Context, job *Job) error {
	jobJSON, err := job.ToJSON()
	if err != nil {
		return err
	}

	return q.client.HSet(ctx, jobsKey, job.ID, jobJSON).Err()
}

func (q *Queue) GetJob(ctx context.Context, jobID string) (*Job, error) {
	jobJSON, err := q.client.HGet(ctx, jobsKey, jobID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	return JobFromJSON(jobJSON)
}

func (q *Queue) GetAllJobs(ctx context.Context) ([]*Job, error) {
	jobMap, err := q.client.HGetAll(ctx, jobsKey).Result()
	if err != nil {
		return nil, err
	}

	jobs := make([]*Job, 0, len(jobMap))
	for id, jobJSON := range jobMap {
		job, err := JobFromJSON(jobJSON)
		if err != nil {
			log.Printf("Skipping unreadable job %s: %v", id, err)
			continue
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}

// Depth is the number of jobs waiting to be claimed.
func (q *Queue) Depth(ctx context.Context) (int, error) {
	n, err := q.client.ZCard(ctx, queueKey).Result()
	return int(n), err
}

func (q *Queue) Close() error {
	return q.client.Close()
}
