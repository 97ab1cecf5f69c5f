package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/calebmur/docfind/pkg/kafka"
	"github.com/calebmur/docfind/pkg/resilience"
)

// Collector buffers analytics events in memory and flushes them to Kafka
// in batches, either when the buffer reaches batchSize or on a timer.
// Tracking never blocks the request path; events are dropped with a log
// line once the buffer is overfull.
type Collector struct {
	producer      *kafka.Producer
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger

	mu     sync.Mutex
	buffer []kafka.Event

	done chan struct{}
}

// NewCollector creates a Collector. Zero batchSize and flushInterval fall
// back to 100 events and 5 seconds.
func NewCollector(producer *kafka.Producer, batchSize int, flushInterval time.Duration) *Collector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &Collector{
		producer:      producer,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		buffer:        make([]kafka.Event, 0, batchSize),
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the background flush loop. The loop stops when ctx is
// cancelled, after a final best-effort flush.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.flush(ctx)
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				c.flush(flushCtx)
				cancel()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started",
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
	)
}

// TrackSearchRun queues a search run event.
func (c *Collector) TrackSearchRun(event SearchRunEvent) {
	event.Type = EventSearchRun
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	c.track(kafka.Event{Key: "search_run", Value: event})
}

// TrackDocument queues a document change event.
func (c *Collector) TrackDocument(event DocumentEvent) {
	event.Type = EventDocument
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	c.track(kafka.Event{Key: "document", Value: event})
}

// Close waits for the flush loop to finish.
func (c *Collector) Close() {
	<-c.done
}

// BufferLen reports the number of events waiting to be flushed.
func (c *Collector) BufferLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer)
}

func (c *Collector) track(event kafka.Event) {
	c.mu.Lock()
	if len(c.buffer) >= c.batchSize*3 {
		c.mu.Unlock()
		c.logger.Warn("analytics event dropped (buffer full)")
		return
	}
	c.buffer = append(c.buffer, event)
	full := len(c.buffer) >= c.batchSize
	c.mu.Unlock()

	if full {
		go c.flush(context.Background())
	}
}

func (c *Collector) flush(ctx context.Context) {
	c.mu.Lock()
	if len(c.buffer) == 0 {
		c.mu.Unlock()
		return
	}
	batch := c.buffer
	c.buffer = make([]kafka.Event, 0, c.batchSize)
	c.mu.Unlock()

	err := resilience.Retry(ctx, "analytics-flush", resilience.RetryConfig{MaxAttempts: 3}, func(ctx context.Context) error {
		return c.producer.PublishBatch(ctx, batch)
	})
	if err != nil {
		c.logger.Error("analytics batch lost", "batch_size", len(batch), "error", err)
		return
	}
	c.logger.Debug("analytics batch flushed", "events", len(batch))
}
