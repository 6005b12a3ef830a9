package adapters

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/moonwalker/verdict/pkg/rules/action"
	"github.com/moonwalker/verdict/pkg/worker"
)

const WORKFLOW_QUEUE = "workflows"

// Enqueuer is the part of worker.Dispatcher the workflow queue needs.
type Enqueuer interface {
	EnqueueJob(job *worker.Job) error
}

// WorkflowQueue starts workflows as jobs on the worker queue. Delayed
// workflows become scheduled jobs. The workflow id doubles as the job
// batch id, so pending runs can be cancelled with CancelBatch.
type WorkflowQueue struct {
	jobs  Enqueuer
	queue string
}

func NewWorkflowQueue(jobs Enqueuer, queue string) *WorkflowQueue {
	if queue == "" {
		queue = WORKFLOW_QUEUE
	}
	return &WorkflowQueue{jobs: jobs, queue: queue}
}

func (q *WorkflowQueue) Queue() string {
	return q.queue
}

func (q *WorkflowQueue) StartWorkflow(ctx context.Context, wf *action.Workflow) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := "wf_" + uuid.NewString()
	args, err := workflowArgs(id, wf)
	if err != nil {
		return "", err
	}

	job := &worker.Job{
		Queue:   q.queue,
		Args:    args,
		BatchID: id,
		Retry:   int64(wf.RetryAttempts),
		Type:    worker.TypeQueued,
	}
	if wf.RunAt != nil {
		job.Type = worker.TypeScheduled
		job.RunAt = wf.RunAt
	}

	if err := q.jobs.EnqueueJob(job); err != nil {
		return "", fmt.Errorf("enqueue workflow %s: %w", wf.Type, err)
	}
	return id, nil
}

// Handler adapts fn into a worker handler for the workflow queue.
func (q *WorkflowQueue) Handler(fn func(ctx context.Context, id string, wf *action.Workflow) error) worker.Handler {
	return func(ctx context.Context, args worker.Args) error {
		id, wf, err := WorkflowFromArgs(args)
		if err != nil {
			return err
		}
		return fn(ctx, id, wf)
	}
}

func workflowArgs(id string, wf *action.Workflow) (worker.Args, error) {
	b, err := json.Marshal(wf)
	if err != nil {
		return nil, err
	}
	var args worker.Args
	if err := json.Unmarshal(b, &args); err != nil {
		return nil, err
	}
	args["workflowId"] = id
	return args, nil
}

func WorkflowFromArgs(args worker.Args) (string, *action.Workflow, error) {
	id, _ := args["workflowId"].(string)
	b, err := json.Marshal(args)
	if err != nil {
		return "", nil, err
	}
	wf := &action.Workflow{}
	if err := json.Unmarshal(b, wf); err != nil {
		return "", nil, fmt.Errorf("decode workflow %s: %w", id, err)
	}
	return id, wf, nil
}
