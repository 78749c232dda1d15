package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/docrag/internal/ragerr"
	"github.com/google/uuid"
)

// Orchestrator manages asynchronous ingestion jobs.
type Orchestrator struct {
	jobs     *JobStore
	queue    chan *Job
	ingester *Ingester
	log      *slog.Logger

	workers   int
	queueSize int

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewOrchestrator creates the pipeline. Call Start to launch workers.
func NewOrchestrator(ingester *Ingester, log *slog.Logger, workers, queueSize int, jobTTL time.Duration) (*Orchestrator, error) {
	if ingester == nil {
		return nil, ragerr.InvalidConfiguration("new orchestrator", "ingester is required")
	}
	if workers <= 0 || queueSize <= 0 {
		return nil, ragerr.InvalidConfiguration("new orchestrator", "workers and queue size must be positive, got %d and %d", workers, queueSize)
	}
	return &Orchestrator{
		jobs:      NewJobStore(jobTTL),
		queue:     make(chan *Job, queueSize),
		ingester:  ingester,
		log:       log,
		workers:   workers,
		queueSize: queueSize,
	}, nil
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range o.workers {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			w := NewWorker(o.ingester, o.log)
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					w.Process(workerCtx, job)
				}
			}
		}()
	}

	// Start job store cleanup.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
			}
		}
	}()
}

// Stop shuts down the pipeline and fails any jobs left in the queue.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	close(o.queue)
	o.mu.Unlock()

	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()

	// Jobs still buffered were never picked up.
	for job := range o.queue {
		job.AddError("orchestrator stopped before the job ran")
		job.SetStatus(StatusFailed, "shutdown")
	}
}

// SubmitFile queues an uploaded document.
func (o *Orchestrator) SubmitFile(filename string, data []byte, docID, title string) (*Job, error) {
	if docID == "" {
		docID = DocumentID(filename)
	}
	job := NewJob(uuid.NewString(), docID, filename, title)
	job.SetFileData(data)
	return job, o.Submit(job)
}

// SubmitSource queues a path or URL to be fetched by a worker.
func (o *Orchestrator) SubmitSource(source, docID string) (*Job, error) {
	if docID == "" {
		docID = DocumentID(source)
	}
	job := NewJob(uuid.NewString(), docID, "", "")
	job.Source = source
	return job, o.Submit(job)
}

// Submit queues a new job for processing.
func (o *Orchestrator) Submit(job *Job) error {
	o.jobs.Put(job)
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		job.SetStatus(StatusFailed, "shutdown")
		return fmt.Errorf("orchestrator is stopped")
	}
	select {
	case o.queue <- job:
		return nil
	default:
		job.SetStatus(StatusFailed, "queue_full")
		return fmt.Errorf("job queue is full (%d)", o.queueSize)
	}
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}
