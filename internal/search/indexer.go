// Package search implements the asynchronous search-indexing step of
// spec §4.6 step 9 and its §9 design note: indexing a freshly
// published artifact happens off the request path, but the naive
// "fire off a goroutine and forget" approach loses index updates on a
// crash between publish and index. This queues the job durably in
// Redis instead, grounded on the teacher's internal/cache/redis.go
// client construction (redis.ParseURL + redis.NewClient), adapted
// from a key/value cache client to a list-backed work queue.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// queueKey is the Redis list jobs are pushed to and popped from.
const queueKey = "deploy-ingest:search-index-jobs"

// Job describes one artifact to (re)index.
type Job struct {
	Group   string `json:"group"`
	Name    string `json:"name"`
	Version string `json:"version"`
	// At is the indexed POM file's mtime (spec §4.6 step 9: "index the
	// POM, with lastModified as at"), not the time the job was queued.
	At       time.Time `json:"at"`
	QueuedAt time.Time `json:"queued_at"`
	Attempts int       `json:"attempts"`
}

// Indexer is a Redis-backed durable queue of indexing jobs. Enqueue is
// called synchronously from the finalizer; a separate worker (started
// by server.Server.Run) drains the queue with Run.
type Indexer struct {
	client *redis.Client
	log    *logrus.Logger
}

// New connects to the Redis instance at redisURL.
func New(redisURL string, log *logrus.Logger) (*Indexer, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	return &Indexer{client: client, log: log}, nil
}

// Enqueue durably records that (group, name, version) needs indexing,
// carrying at (the POM file's mtime) as the job's lastModified value.
// It returns once Redis has acknowledged the push, so a finalizer that
// has called Enqueue and returned has not lost the job even if the
// process dies immediately after (spec §9).
func (ix *Indexer) Enqueue(ctx context.Context, group, name, version string, at time.Time) error {
	job := Job{Group: group, Name: name, Version: version, At: at, QueuedAt: time.Now()}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal index job: %w", err)
	}
	if err := ix.client.LPush(ctx, queueKey, payload).Err(); err != nil {
		return fmt.Errorf("enqueue index job for %s:%s:%s: %w", group, name, version, err)
	}
	return nil
}

// IndexFunc performs the actual indexing side effect for one job.
type IndexFunc func(ctx context.Context, job Job) error

// maxAttempts bounds the number of redeliveries before a job is
// logged and dropped rather than retried forever.
const maxAttempts = 5

// Run blocks, draining jobs from the queue and invoking index for
// each, until ctx is cancelled. A job whose index call fails is
// requeued with its attempt count incremented; one that fails
// maxAttempts times is dropped with an error log rather than retried
// forever.
func (ix *Indexer) Run(ctx context.Context, index IndexFunc) error {
	for {
		result, err := ix.client.BRPop(ctx, 5*time.Second, queueKey).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			ix.log.WithError(err).Warn("search indexer: queue read failed, retrying")
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			ix.log.WithError(err).Error("search indexer: dropping malformed job")
			continue
		}

		if err := index(ctx, job); err != nil {
			job.Attempts++
			ix.log.WithError(err).WithField("attempts", job.Attempts).
				Warnf("search indexer: failed to index %s:%s:%s", job.Group, job.Name, job.Version)
			if job.Attempts >= maxAttempts {
				ix.log.WithField("job", job).Error("search indexer: giving up on job after max attempts")
				continue
			}
			payload, _ := json.Marshal(job)
			if err := ix.client.LPush(ctx, queueKey, payload).Err(); err != nil {
				ix.log.WithError(err).Error("search indexer: failed to requeue job")
			}
		}
	}
}

// Close releases the underlying Redis connection.
func (ix *Indexer) Close() error {
	return ix.client.Close()
}
