package queue

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// JobHandler processes a job's payload
type JobHandler func(ctx context.Context, job *Job) error

// JobSource is the queue side the processor needs. *RedisQueue satisfies it.
type JobSource interface {
	Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Job, error)
	Complete(ctx context.Context, job *Job) error
	Fail(ctx context.Context, job *Job, err error) error
}

// JobProcessor processes jobs from queues with a fixed pool of workers
type JobProcessor struct {
	source         JobSource
	handlers       map[string]JobHandler
	workerCount    int
	pollTimeout    time.Duration
	stopChan       chan struct{}
	wg             sync.WaitGroup
	processingJobs sync.Map
	ctx            context.Context
	cancel         context.CancelFunc
}

// NewJobProcessor creates a new JobProcessor
func NewJobProcessor(source JobSource, workerCount int) *JobProcessor {
	ctx, cancel := context.WithCancel(context.Background())
	return &JobProcessor{
		source:      source,
		handlers:    make(map[string]JobHandler),
		workerCount: workerCount,
		pollTimeout: time.Second,
		stopChan:    make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// RegisterHandler registers a handler for a specific queue. Handlers must be
// registered before Start.
func (p *JobProcessor) RegisterHandler(queueName string, handler JobHandler) {
	p.handlers[queueName] = handler
}

// Start starts the job processor
func (p *JobProcessor) Start() {
	log.Printf("Starting job processor with %d workers", p.workerCount)

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop stops the job processor and waits for in-flight jobs
func (p *JobProcessor) Stop() {
	log.Println("Stopping job processor")
	close(p.stopChan)
	p.cancel()
	p.wg.Wait()
	log.Println("Job processor stopped")
}

// worker is a goroutine that processes jobs
func (p *JobProcessor) worker(id int) {
	defer p.wg.Done()

	queues := make([]string, 0, len(p.handlers))
	for queue := range p.handlers {
		queues = append(queues, queue)
	}

	if len(queues) == 0 {
		log.Printf("Worker %d exiting: no queues registered", id)
		return
	}

	for {
		select {
		case <-p.stopChan:
			return
		default:
		}

		for _, queueName := range queues {
			job, err := p.source.Dequeue(p.ctx, queueName, p.pollTimeout)
			if err != nil {
				if p.ctx.Err() != nil {
					return
				}
				log.Printf("Worker %d error getting job from queue %s: %v", id, queueName, err)
				time.Sleep(time.Second)
				continue
			}
			if job == nil {
				continue
			}

			if err := p.ProcessJob(job); err != nil {
				log.Printf("Worker %d error processing job %s: %v", id, job.ID, err)
			}
		}
	}
}

// ProcessJob runs the registered handler for a job and records the outcome
func (p *JobProcessor) ProcessJob(job *Job) error {
	if job == nil {
		return fmt.Errorf("nil job")
	}

	p.processingJobs.Store(job.ID, true)
	defer p.processingJobs.Delete(job.ID)

	handler, ok := p.handlers[job.Queue]
	if !ok {
		err := Permanent(fmt.Errorf("no handler registered for queue: %s", job.Queue))
		if failErr := p.source.Fail(p.ctx, job, err); failErr != nil {
			log.Printf("Error marking job %s as failed: %v", job.ID, failErr)
		}
		return err
	}

	if err := handler(p.ctx, job); err != nil {
		if failErr := p.source.Fail(p.ctx, job, err); failErr != nil {
			log.Printf("Error marking job %s as failed: %v", job.ID, failErr)
		}
		return fmt.Errorf("job processing failed: %w", err)
	}

	if err := p.source.Complete(p.ctx, job); err != nil {
		log.Printf("Error marking job %s as completed: %v", job.ID, err)
	}
	return nil
}

// IsProcessing checks if a job is currently being processed
func (p *JobProcessor) IsProcessing(jobID string) bool {
	_, ok := p.processingJobs.Load(jobID)
	return ok
}
