package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/frontdeskhq/callback-platform/pkg/logging"
)

type queueClient interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

type jobKind string

const (
	jobKindMissedCall jobKind = "missed_call"
	jobKindInbound    jobKind = "inbound_message"
)

type jobPayload struct {
	ID         string                `json:"id"`
	Kind       jobKind               `json:"kind"`
	MissedCall MissedCallRequest     `json:"missed_call,omitempty"`
	Inbound    InboundMessageRequest `json:"inbound,omitempty"`
}

type dispatchResult struct {
	response *Response
	err      error
}

const (
	defaultWorkers          = 2
	defaultReceiveWait      = 2  // seconds
	defaultReceiveMax       = 5  // messages
	maxReceiveWaitSeconds   = 20 // SQS limit
	maxReceiveBatchMessages = 10
)

type dispatcherConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
}

// DispatcherOption configures the dispatcher.
type DispatcherOption func(*dispatcherConfig)

// WithWorkerCount overrides the number of queue polling goroutines.
func WithWorkerCount(workers int) DispatcherOption {
	return func(cfg *dispatcherConfig) {
		if workers > 0 {
			cfg.workers = workers
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait for Receive calls.
func WithReceiveWaitSeconds(seconds int) DispatcherOption {
	return func(cfg *dispatcherConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxReceiveWaitSeconds {
			seconds = maxReceiveWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize overrides how many messages each poll may return.
func WithReceiveBatchSize(size int) DispatcherOption {
	return func(cfg *dispatcherConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchMessages {
			size = maxReceiveBatchMessages
		}
		cfg.receiveBatchSize = size
	}
}

// Dispatcher routes engine work through a queue before processing. Webhook
// handlers stay thin, and the same code points at the in-memory queue during
// development and SQS in production.
type Dispatcher struct {
	processor Processor
	queue     queueClient
	logger    *logging.Logger

	cfg dispatcherConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	pending sync.Map // jobID -> chan dispatchResult
}

var _ Processor = (*Dispatcher)(nil)

// NewDispatcher wires the queue-backed dispatcher around the engine and
// starts its workers.
func NewDispatcher(processor Processor, queue queueClient, logger *logging.Logger, opts ...DispatcherOption) *Dispatcher {
	if processor == nil {
		panic("conversation: processor cannot be nil")
	}
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := dispatcherConfig{
		workers:          defaultWorkers,
		receiveWaitSecs:  defaultReceiveWait,
		receiveBatchSize: defaultReceiveMax,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		processor: processor,
		queue:     queue,
		logger:    logger,
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
	}

	for i := 0; i < cfg.workers; i++ {
		d.wg.Add(1)
		go d.runWorker(i + 1)
	}
	return d
}

// HandleMissedCall enqueues the event and blocks until a worker processed it.
func (d *Dispatcher) HandleMissedCall(ctx context.Context, req MissedCallRequest) (*Response, error) {
	return d.enqueue(ctx, jobPayload{Kind: jobKindMissedCall, MissedCall: req})
}

// HandleInbound enqueues the message and blocks until a worker processed it.
func (d *Dispatcher) HandleInbound(ctx context.Context, req InboundMessageRequest) (*Response, error) {
	return d.enqueue(ctx, jobPayload{Kind: jobKindInbound, Inbound: req})
}

// Shutdown stops the workers and unblocks pending callers.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
	}

	d.pending.Range(func(key, value any) bool {
		if ch, ok := value.(chan dispatchResult); ok {
			select {
			case ch <- dispatchResult{err: ErrDispatcherClosed}:
			default:
			}
		}
		d.pending.Delete(key)
		return true
	})
	return nil
}

func (d *Dispatcher) enqueue(ctx context.Context, payload jobPayload) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	payload.ID = uuid.NewString()

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("conversation: encode job: %w", err)
	}

	resultCh := make(chan dispatchResult, 1)
	d.pending.Store(payload.ID, resultCh)
	defer d.pending.Delete(payload.ID)

	if err := d.queue.Send(ctx, string(body)); err != nil {
		return nil, fmt.Errorf("conversation: enqueue job: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultCh:
		return res.response, res.err
	}
}

func (d *Dispatcher) runWorker(workerID int) {
	defer d.wg.Done()
	d.logger.Debug("dispatcher worker started", "worker_id", workerID)

	backoff := time.Second

	for {
		select {
		case <-d.ctx.Done():
			d.logger.Debug("dispatcher worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := d.queue.Receive(d.ctx, d.cfg.receiveBatchSize, d.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			d.logger.Error("failed to receive jobs", "error", err, "worker_id", workerID)
			time.Sleep(backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			d.handleQueueMessage(msg)
		}
	}
}

func (d *Dispatcher) handleQueueMessage(msg queueMessage) {
	var payload jobPayload
	if err := json.Unmarshal([]byte(msg.Body), &payload); err != nil {
		d.logger.Error("failed to decode job", "error", err)
		d.deleteMessage(msg.ReceiptHandle)
		return
	}

	var (
		resp *Response
		err  error
	)
	switch payload.Kind {
	case jobKindMissedCall:
		resp, err = d.processor.HandleMissedCall(d.ctx, payload.MissedCall)
	case jobKindInbound:
		resp, err = d.processor.HandleInbound(d.ctx, payload.Inbound)
	default:
		err = fmt.Errorf("conversation: unknown job kind %q", payload.Kind)
	}

	d.deleteMessage(msg.ReceiptHandle)
	d.deliverResult(payload.ID, resp, err)
}

func (d *Dispatcher) deleteMessage(receiptHandle string) {
	deleteCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.queue.Delete(deleteCtx, receiptHandle); err != nil {
		d.logger.Error("failed to delete job", "error", err)
	}
}

func (d *Dispatcher) deliverResult(jobID string, resp *Response, err error) {
	value, ok := d.pending.Load(jobID)
	if !ok {
		d.logger.Debug("no waiting caller for job", "job_id", jobID)
		return
	}
	ch, ok := value.(chan dispatchResult)
	if !ok {
		d.logger.Error("dispatcher pending map corrupted", "job_id", jobID)
		d.pending.Delete(jobID)
		return
	}
	select {
	case ch <- dispatchResult{response: resp, err: err}:
	default:
	}
}
