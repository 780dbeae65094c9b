package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/Marketly/internal/pkg/cache"
)

const (
	// Redis keys
	JobKeyPrefix     = "marketly:job:"
	JobQueueKey      = "marketly:jobs:pending"
	JobProcessingKey = "marketly:jobs:processing"
	JobDelayedKey    = "marketly:jobs:delayed"
	JobStatsKey      = "marketly:jobs:stats"

	DefaultMaxRetries = 3
	JobTTL            = 24 * time.Hour

	// A job still in processing after staleAfter lost its worker.
	staleAfter          = 10 * time.Minute
	maintenanceInterval = 15 * time.Second
	retryBackoff        = 30 * time.Second
)

// Handler runs one job. A returned error marks the job failed and schedules a
// retry while retries remain.
type Handler func(ctx context.Context, job *Job) error

// Enqueuer is the producer side of the queue.
type Enqueuer interface {
	EnqueueJob(jobType JobType, payload map[string]interface{}) (*Job, error)
}

// Queue runs mail, OTP and subscription maintenance jobs stored in Redis.
// Retries wait in a sorted set scored by their due time, so they survive a
// restart.
type Queue struct {
	client  *redis.Client
	workers int
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	handlersMu sync.RWMutex
	handlers   map[JobType]Handler
}

// NewQueue creates a job queue on the shared cache client.
func NewQueue(workers int) *Queue {
	return NewQueueWithClient(cache.GetClient(), workers)
}

func NewQueueWithClient(client *redis.Client, workers int) *Queue {
	if workers <= 0 {
		workers = 3
	}
	return &Queue{
		client:   client,
		workers:  workers,
		stopCh:   make(chan struct{}),
		handlers: make(map[JobType]Handler),
	}
}

// Register binds a handler to a job type, replacing any previous one.
func (q *Queue) Register(jobType JobType, h Handler) {
	q.handlersMu.Lock()
	defer q.handlersMu.Unlock()
	q.handlers[jobType] = h
}

func (q *Queue) handler(jobType JobType) (Handler, bool) {
	q.handlersMu.RLock()
	defer q.handlersMu.RUnlock()
	h, ok := q.handlers[jobType]
	return h, ok
}

// Start launches the workers and the maintenance loop. It is a no-op while
// running; a stopped queue can be started again.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.running = true
	q.stopCh = make(chan struct{})

	log.Infof("[JobQueue] Starting %d workers", q.workers)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.wg.Add(1)
	go q.maintain()
}

// Stop signals the workers and waits for in-flight jobs to finish.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.running {
		return
	}
	close(q.stopCh)
	q.running = false
	q.wg.Wait()
	log.Info("[JobQueue] All workers stopped")
}

func (q *Queue) maintain() {
	defer q.wg.Done()
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()
	ctx := context.Background()
	for {
		select {
		case <-q.stopCh:
			return
		case <-ticker.C:
			now := time.Now()
			if n, err := q.promoteDue(ctx, now); err != nil {
				log.Errorf("[JobQueue] Promoting delayed jobs: %v", err)
			} else if n > 0 {
				log.Infof("[JobQueue] Promoted %d delayed jobs", n)
			}
			if err := q.requeueStale(ctx, now); err != nil {
				log.Errorf("[JobQueue] Requeueing stale jobs: %v", err)
			}
		}
	}
}

// promoteDue moves retries whose time has come back onto the pending list.
func (q *Queue) promoteDue(ctx context.Context, now time.Time) (int, error) {
	ids, err := q.client.ZRangeByScore(ctx, JobDelayedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}
	promoted := 0
	for _, id := range ids {
		// ZRem decides the winner when several instances share the queue.
		removed, err := q.client.ZRem(ctx, JobDelayedKey, id).Result()
		if err != nil {
			return promoted, err
		}
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, JobQueueKey, id).Err(); err != nil {
			return promoted, err
		}
		promoted++
	}
	return promoted, nil
}

// requeueStale puts jobs back whose worker died mid-run.
func (q *Queue) requeueStale(ctx context.Context, now time.Time) error {
	ids, err := q.client.LRange(ctx, JobProcessingKey, 0, -1).Result()
	if err != nil {
		return err
	}
	for _, id := range ids {
		job, err := q.loadJob(ctx, id)
		if err != nil {
			log.Warnf("[JobQueue] Dropping processing entry %s: %v", id, err)
			q.removeFromProcessing(ctx, id)
			continue
		}
		if job.Status != JobStatusProcessing {
			q.removeFromProcessing(ctx, id)
			continue
		}
		started := job.UpdatedAt
		if job.ProcessedAt != nil {
			started = *job.ProcessedAt
		}
		if now.Sub(started) <= staleAfter {
			continue
		}
		log.Warnf("[JobQueue] Requeueing stale %s job %s", job.Type, job.ID)
		job.Status = JobStatusPending
		job.ErrorMsg = "worker lost"
		job.UpdatedAt = now
		q.saveJob(ctx, job)
		q.removeFromProcessing(ctx, id)
		if err := q.client.RPush(ctx, JobQueueKey, id).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	ctx := context.Background()
	for {
		select {
		case <-q.stopCh:
			return
		default:
		}

		job, err := q.dequeueJob(ctx)
		switch {
		case errors.Is(err, redis.Nil):
			// BRPopLPush timed out on an empty queue.
		case err != nil:
			log.Errorf("[JobQueue] Worker %d: %v", id, err)
			time.Sleep(time.Second)
		default:
			q.processJob(ctx, job)
		}
	}
}

// EnqueueJob stores the job and pushes it onto the pending list.
func (q *Queue) EnqueueJob(jobType JobType, payload map[string]interface{}) (*Job, error) {
	ctx := context.Background()
	now := time.Now()
	job := &Job{
		ID:         uuid.New().String(),
		Type:       jobType,
		Status:     JobStatusPending,
		Payload:    payload,
		CreatedAt:  now,
		UpdatedAt:  now,
		MaxRetries: DefaultMaxRetries,
	}
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal %s job: %w", jobType, err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, JobKeyPrefix+job.ID, data, JobTTL)
	pipe.LPush(ctx, JobQueueKey, job.ID)
	pipe.HIncrBy(ctx, JobStatsKey, string(JobStatusPending), 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("enqueue %s job: %w", jobType, err)
	}
	log.Debugf("[JobQueue] Enqueued %s job %s", job.Type, job.ID)
	return job, nil
}

func (q *Queue) dequeueJob(ctx context.Context) (*Job, error) {
	id, err := q.client.BRPopLPush(ctx, JobQueueKey, JobProcessingKey, time.Second).Result()
	if err != nil {
		return nil, err
	}
	job, err := q.loadJob(ctx, id)
	if err != nil {
		log.Warnf("[JobQueue] Dropping job %s: %v", id, err)
		q.removeFromProcessing(ctx, id)
		return nil, err
	}
	return job, nil
}

func (q *Queue) loadJob(ctx context.Context, id string) (*Job, error) {
	data, err := q.client.Get(ctx, JobKeyPrefix+id).Result()
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	var job Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

func (q *Queue) processJob(ctx context.Context, job *Job) {
	job.MarkAsProcessing()
	q.saveJob(ctx, job)
	defer q.removeFromProcessing(ctx, job.ID)

	var err error
	if h, ok := q.handler(job.Type); ok {
		err = h(ctx, job)
	} else {
		err = fmt.Errorf("unknown job type: %s", job.Type)
	}

	if err == nil {
		job.MarkAsCompleted()
		q.incrStat(ctx, JobStatusCompleted)
		if err := q.client.Del(ctx, JobKeyPrefix+job.ID).Err(); err != nil {
			log.Errorf("[JobQueue] Deleting completed job %s: %v", job.ID, err)
		}
		return
	}

	job.MarkAsFailed(err.Error())
	if !job.IsRetryable() {
		log.Errorf("[JobQueue] %s job %s failed for good after %d attempts: %v", job.Type, job.ID, job.RetryCount, err)
		q.incrStat(ctx, JobStatusFailed)
		q.saveJob(ctx, job)
		return
	}

	job.MarkAsRetrying()
	due := time.Now().Add(time.Duration(job.RetryCount) * retryBackoff)
	log.Warnf("[JobQueue] %s job %s failed (attempt %d/%d), retry at %s: %v",
		job.Type, job.ID, job.RetryCount, job.MaxRetries, due.Format(time.RFC3339), err)
	q.saveJob(ctx, job)
	if err := q.client.ZAdd(ctx, JobDelayedKey, redis.Z{Score: float64(due.Unix()), Member: job.ID}).Err(); err != nil {
		log.Errorf("[JobQueue] Scheduling retry for job %s: %v", job.ID, err)
	}
}

func (q *Queue) saveJob(ctx context.Context, job *Job) {
	data, err := json.Marshal(job)
	if err != nil {
		log.Errorf("[JobQueue] Marshal job %s: %v", job.ID, err)
		return
	}
	if err := q.client.Set(ctx, JobKeyPrefix+job.ID, data, JobTTL).Err(); err != nil {
		log.Errorf("[JobQueue] Saving job %s: %v", job.ID, err)
	}
}

func (q *Queue) removeFromProcessing(ctx context.Context, id string) {
	if err := q.client.LRem(ctx, JobProcessingKey, 1, id).Err(); err != nil {
		log.Errorf("[JobQueue] Removing job %s from processing: %v", id, err)
	}
}

func (q *Queue) incrStat(ctx context.Context, status JobStatus) {
	if err := q.client.HIncrBy(ctx, JobStatsKey, string(status), 1).Err(); err != nil {
		log.Errorf("[JobQueue] Updating stats: %v", err)
	}
}

// GetJobStats returns the per-status counters; pending counts every enqueue.
func (q *Queue) GetJobStats(ctx context.Context) (map[JobStatus]int64, error) {
	raw, err := q.client.HGetAll(ctx, JobStatsKey).Result()
	if err != nil {
		return nil, err
	}
	stats := make(map[JobStatus]int64, len(raw))
	for status, count := range raw {
		if n, err := strconv.ParseInt(count, 10, 64); err == nil {
			stats[JobStatus(status)] = n
		}
	}
	return stats, nil
}

// GetQueueSize returns the number of pending jobs, retries excluded.
func (q *Queue) GetQueueSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, JobQueueKey).Result()
}

func (q *Queue) GetProcessingSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, JobProcessingKey).Result()
}
