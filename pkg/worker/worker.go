package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/robfig/cron/v3"
)

const (
	redisNameing = "%s:%s:%s"

	TypeQueued    queueType = iota
	TypeScheduled queueType = iota
	TypePeriodic  queueType = iota
)

const defaultPollInterval = 100 * time.Millisecond

var ErrNoQueue = errors.New("job queue is required")

type Args map[string]interface{}

type queueType int

type Job struct {
	Queue       string     `json:"queue"`
	Args        Args       `json:"args"`
	BatchID     string     `json:"batch_id"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	RunAt       *time.Time `json:"run_at,omitempty"`
	Cron        string     `json:"cron,omitempty"`
	Retry       int64      `json:"retry"`
	Type        queueType  `json:"type"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	CancelledBy string     `json:"cancelled_by,omitempty"`
}

type Handler func(ctx context.Context, args Args) error

type Option func(*Dispatcher)

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

func WithPollInterval(i time.Duration) Option {
	return func(d *Dispatcher) {
		d.pollInterval = i
	}
}

// Dispatcher moves jobs from redis queues to a fixed set of workers. Queued
// jobs are lists, scheduled and periodic jobs are sorted sets scored by
// their run time. A job being processed sits in "<queue>:working".
type Dispatcher struct {
	MaxWorkers int

	redisPool    *redis.Pool
	namespace    string
	logger       *slog.Logger
	pollInterval time.Duration

	mu         sync.RWMutex
	queueTasks map[string]Handler
	lastQueue  int
}

func NewDispatcher(namespace string, pool *redis.Pool, maxWorkers int, opts ...Option) *Dispatcher {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	d := &Dispatcher{
		MaxWorkers:   maxWorkers,
		redisPool:    pool,
		namespace:    namespace,
		logger:       slog.Default(),
		pollInterval: defaultPollInterval,
		queueTasks:   make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func NewRedisPool(redisURL string) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     3,
		IdleTimeout: 240 * time.Second,
		Dial:        func() (redis.Conn, error) { return redis.DialURL(redisURL) },
	}
}

func (d *Dispatcher) AddHandler(queue string, fn Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queueTasks[queue] = fn
}

func (d *Dispatcher) Close() error {
	return d.redisPool.Close()
}

// Run processes jobs until ctx is done, then waits for running jobs.
func (d *Dispatcher) Run(ctx context.Context) {
	jobs := make(chan *Job)

	var wg sync.WaitGroup
	for i := 0; i < d.MaxWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				d.process(ctx, job)
			}
		}()
	}

	defer func() {
		close(jobs)
		wg.Wait()
	}()

	for {
		if job := d.getNextJob(); job != nil {
			select {
			case jobs <- job:
			case <-ctx.Done():
				// back to its queue for the next run
				d.finish(job, nil, true)
				return
			}
			continue
		}

		// no jobs in any queue
		select {
		case <-time.After(d.pollInterval):
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, job *Job) {
	d.mu.RLock()
	fn, ok := d.queueTasks[job.Queue]
	d.mu.RUnlock()

	var err error
	if !ok {
		err = fmt.Errorf("no handler for queue %s", job.Queue)
	} else {
		err = safeRun(ctx, fn, job.Args)
	}

	if err != nil {
		d.logger.Error("job failed", "queue", job.Queue, "batch", job.BatchID, "err", err)
	} else {
		d.logger.Debug("job done", "queue", job.Queue, "batch", job.BatchID)
	}
	d.finish(job, err, false)
}

func safeRun(ctx context.Context, fn Handler, args Args) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, args)
}

// finish removes the job from the working list. Failed jobs go to the error
// list, or back to their queue while retries are left.
func (d *Dispatcher) finish(job *Job, runErr error, requeue bool) {
	rawData, err := json.Marshal(job)
	if err != nil {
		d.logger.Error("job encode failed", "queue", job.Queue, "err", err)
		return
	}

	conn := d.redisPool.Get()
	defer conn.Close()

	working := d.redisName(job.Queue, job.Type) + ":working"
	if _, err := conn.Do("LREM", working, -1, rawData); err != nil {
		d.logger.Error("job cleanup failed", "queue", job.Queue, "err", err)
	}

	// periodic jobs were rescheduled when they were picked up
	periodic := job.Type == TypePeriodic

	switch {
	case requeue && !periodic:
		err = d.push(conn, job)
	case runErr != nil && job.Retry > 0 && !periodic:
		job.Retry--
		err = d.push(conn, job)
	case runErr != nil:
		processed := time.Now().UTC()
		job.ProcessedAt = &processed
		job.Error = runErr.Error()
		var data []byte
		if data, err = json.Marshal(job); err == nil {
			_, err = conn.Do("RPUSH", getRedisNameForError(d.namespace, job.Queue), data)
		}
	}
	if err != nil {
		d.logger.Error("job requeue failed", "queue", job.Queue, "err", err)
	}
}

// EnqueueJob adds a job: queued jobs run as soon as possible, scheduled ones
// at RunAt and periodic ones on their cron schedule.
func (d *Dispatcher) EnqueueJob(job *Job) error {
	if job.Queue == "" {
		return ErrNoQueue
	}
	if job.CreatedAt == nil {
		now := time.Now().UTC()
		job.CreatedAt = &now
	}

	// Args lose their types and marshal as a map with sorted keys
	rawData, err := json.Marshal(job.Args)
	if err != nil {
		return err
	}
	if err = json.Unmarshal(rawData, &job.Args); err != nil {
		return err
	}

	switch job.Type {
	case TypePeriodic:
		next, err := NextRun(job.Cron, time.Now())
		if err != nil {
			return err
		}
		job.RunAt = &next
	case TypeScheduled:
		if job.RunAt == nil {
			return fmt.Errorf("scheduled job on %s has no run time", job.Queue)
		}
	}

	conn := d.redisPool.Get()
	defer conn.Close()
	return d.push(conn, job)
}

func (d *Dispatcher) push(conn redis.Conn, job *Job) error {
	rawData, err := json.Marshal(job)
	if err != nil {
		return err
	}
	name := d.redisName(job.Queue, job.Type)
	if job.Type == TypeQueued {
		_, err = conn.Do("RPUSH", name, rawData)
		return err
	}
	_, err = conn.Do("ZADD", name, job.RunAt.Unix(), rawData)
	return err
}

func (d *Dispatcher) RemoveQueue(queue string, qt queueType) error {
	rn := d.redisName(queue, qt)

	conn := d.redisPool.Get()
	defer conn.Close()

	_, err := conn.Do("DEL", rn, rn+":working")
	return err
}

// NewScheduledJob creates a job that runs after the delay in when ("90s", "2h").
func NewScheduledJob(queue string, when string, args Args) (*Job, error) {
	delay, err := time.ParseDuration(when)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	runAt := now.Add(delay)
	return &Job{
		Queue:     queue,
		Args:      args,
		CreatedAt: &now,
		RunAt:     &runAt,
		Type:      TypeScheduled,
	}, nil
}

// NextRun returns the first activation of spec after from. spec is a
// standard five field cron expression or a descriptor such as "@every 1h".
func NextRun(spec string, from time.Time) (time.Time, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	s, err := parser.Parse(spec)
	if err != nil {
		return time.Time{}, err
	}
	return s.Next(from), nil
}

func (d *Dispatcher) redisName(queue string, qt queueType) string {
	switch qt {
	case TypePeriodic:
		return getRedisNameForPeriodic(d.namespace, queue)
	case TypeScheduled:
		return getRedisNameForSchedule(d.namespace, queue)
	}
	return getRedisNameForQueue(d.namespace, queue)
}

func getRedisNameForQueue(namespace, name string) string {
	return fmt.Sprintf(redisNameing, namespace, name, "queue")
}

func getRedisNameForSchedule(namespace, name string) string {
	return fmt.Sprintf(redisNameing, namespace, name, "schedule")
}

func getRedisNameForPeriodic(namespace, name string) string {
	return fmt.Sprintf(redisNameing, namespace, name, "periodic")
}

func getRedisNameForCancelled(namespace, name string) string {
	return fmt.Sprintf(redisNameing, namespace, name, "cancelled")
}

func getRedisNameForError(namespace, name string) string {
	return fmt.Sprintf(redisNameing, namespace, name, "error")
}

func (d *Dispatcher) queues() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	keys := make([]string, 0, len(d.queueTasks))
	for key := range d.queueTasks {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// getNextJob polls the queues round robin, starting after the last one
// that yielded a job.
func (d *Dispatcher) getNextJob() *Job {
	queues := d.queues()
	for i := 1; i <= len(queues); i++ {
		id := (d.lastQueue + i) % len(queues)
		if job := d.getNextJobForQueue(queues[id]); job != nil {
			d.lastQueue = id
			return job
		}
	}
	return nil
}

func (d *Dispatcher) getNextJobForQueue(queue string) *Job {
	if job := d.getJobFromSorted(queue, TypePeriodic); job != nil {
		next := *job
		if err := d.EnqueueJob(&next); err != nil {
			d.logger.Error("periodic job reschedule failed", "queue", queue, "err", err)
		}
		return job
	}
	if job := d.getJobFromSorted(queue, TypeScheduled); job != nil {
		return job
	}
	return d.getJobFromQueue(queue)
}

var popQueue = redis.NewScript(1, `
	local queue = KEYS[1]
	local working = queue .. ":working"

	local data = redis.call("LPOP", queue)
	if not data then
		return ''
	end

	redis.pcall("RPUSH", working, data)

	return data
`)

var popSorted = redis.NewScript(1, `
	local queue = KEYS[1]
	local working = queue .. ":working"

	local data = redis.call("ZRANGEBYSCORE", queue, 0, ARGV[1], "LIMIT", 0, 1)
	if data[1] == nil then
		return ''
	end

	local job = data[1]

	redis.pcall("ZREM", queue, job)
	redis.pcall("RPUSH", working, job)

	return job
`)

func (d *Dispatcher) getJobFromQueue(queue string) *Job {
	conn := d.redisPool.Get()
	defer conn.Close()

	result, err := redis.Bytes(popQueue.Do(conn, getRedisNameForQueue(d.namespace, queue)))
	return d.decodeJob(queue, result, err)
}

func (d *Dispatcher) getJobFromSorted(queue string, qt queueType) *Job {
	conn := d.redisPool.Get()
	defer conn.Close()

	result, err := redis.Bytes(popSorted.Do(conn, d.redisName(queue, qt), time.Now().Unix()))
	return d.decodeJob(queue, result, err)
}

func (d *Dispatcher) decodeJob(queue string, result []byte, err error) *Job {
	if err != nil {
		d.logger.Debug("job poll failed", "queue", queue, "err", err)
		return nil
	}
	if len(result) == 0 {
		return nil
	}

	job := &Job{}
	if err := json.Unmarshal(result, job); err != nil {
		d.logger.Error("job decode failed", "queue", queue, "err", err)
		return nil
	}
	return job
}

// ListJobs returns the jobs waiting in queue of the given type.
func (d *Dispatcher) ListJobs(queue string, qt queueType) ([]*Job, error) {
	conn := d.redisPool.Get()
	defer conn.Close()

	cmd := "ZRANGE"
	if qt == TypeQueued {
		cmd = "LRANGE"
	}

	values, err := redis.ByteSlices(conn.Do(cmd, d.redisName(queue, qt), 0, -1))
	if err != nil {
		return nil, err
	}

	result := make([]*Job, 0, len(values))
	for _, raw := range values {
		job := &Job{}
		if err := json.Unmarshal(raw, job); err != nil {
			d.logger.Error("job decode failed", "queue", queue, "err", err)
			continue
		}
		result = append(result, job)
	}
	return result, nil
}

var cancelBatch = redis.NewScript(2, `
	local queue = KEYS[1]
	local cancelled = KEYS[2]
	local count = 0

	local tasks = redis.call("ZRANGE", queue, 0, -1)

	for i, job in ipairs(tasks) do
		local obj = cjson.decode(job)
		if obj["batch_id"] == ARGV[1] then
			redis.pcall("ZREM", queue, job)
			obj["cancelled_at"] = ARGV[2]
			obj["cancelled_by"] = ARGV[3]
			redis.pcall("RPUSH", cancelled, cjson.encode(obj))
			count = count + 1
		end
	end

	return count
`)

// CancelBatch moves every scheduled job of batchID to the cancelled list and
// returns how many were moved.
func (d *Dispatcher) CancelBatch(queue string, batchID string, cancelledBy string) (int64, error) {
	conn := d.redisPool.Get()
	defer conn.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	return redis.Int64(cancelBatch.Do(conn,
		getRedisNameForSchedule(d.namespace, queue),
		getRedisNameForCancelled(d.namespace, queue),
		batchID, now, cancelledBy))
}
