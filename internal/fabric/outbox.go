package fabric

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/jonboulle/clockwork"

	errspkg "github.com/VISHALGAURAV95/backend-microservices/internal/fabric/errors"
	loggingpkg "github.com/VISHALGAURAV95/backend-microservices/internal/fabric/logging"
	"github.com/VISHALGAURAV95/backend-microservices/internal/fabric/metadata"
)

// OutboxRecord is one parked envelope awaiting redelivery. Payload holds the
// exact bytes of the original encode, so a replay is indistinguishable from
// the first publish apart from timing.
type OutboxRecord struct {
	ID           string            `json:"id"`
	Topic        string            `json:"topic"`
	EventType    string            `json:"event_type"`
	Payload      []byte            `json:"payload"`
	Metadata     metadata.Metadata `json:"metadata"`
	PartitionKey string            `json:"partition_key,omitempty"`
	Attempts     int               `json:"attempts"`
	LastError    string            `json:"last_error,omitempty"`
	StoredAt     time.Time         `json:"stored_at"`
	NextAttempt  time.Time         `json:"next_attempt"`
}

// OutboxStore persists envelopes whose inline publish failed so they can be
// forwarded once the broker recovers.
type OutboxStore interface {
	Store(ctx context.Context, record OutboxRecord) error
	// Pending returns records due for another attempt, oldest first.
	Pending(ctx context.Context, limit int) ([]OutboxRecord, error)
	MarkDelivered(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, lastError string, nextAttempt time.Time) error
	MarkDeadLettered(ctx context.Context, id string, lastError string) error
}

// MemoryOutbox is an in-process OutboxStore. It survives broker outages but
// not process restarts; services that need crash safety should back the
// outbox with their own database.
type MemoryOutbox struct {
	mu           sync.Mutex
	records      map[string]*OutboxRecord
	deadLettered map[string]*OutboxRecord
	clock        clockwork.Clock
}

// NewMemoryOutbox creates an empty in-memory outbox. A nil clock uses the
// real one.
func NewMemoryOutbox(clock clockwork.Clock) *MemoryOutbox {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryOutbox{
		records:      make(map[string]*OutboxRecord),
		deadLettered: make(map[string]*OutboxRecord),
		clock:        clock,
	}
}

func (o *MemoryOutbox) Store(_ context.Context, record OutboxRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.records[record.ID]; exists {
		// Same envelope parked twice; the first copy already carries the
		// identical bytes.
		return nil
	}
	if record.StoredAt.IsZero() {
		record.StoredAt = o.clock.Now()
	}
	if record.NextAttempt.IsZero() {
		record.NextAttempt = record.StoredAt
	}
	o.records[record.ID] = &record
	return nil
}

func (o *MemoryOutbox) Pending(_ context.Context, limit int) ([]OutboxRecord, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.clock.Now()
	due := make([]OutboxRecord, 0, len(o.records))
	for _, rec := range o.records {
		if !rec.NextAttempt.After(now) {
			due = append(due, *rec)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].StoredAt.Before(due[j].StoredAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (o *MemoryOutbox) MarkDelivered(_ context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.records, id)
	return nil
}

func (o *MemoryOutbox) MarkFailed(_ context.Context, id string, lastError string, nextAttempt time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	rec, ok := o.records[id]
	if !ok {
		return nil
	}
	rec.Attempts++
	rec.LastError = lastError
	rec.NextAttempt = nextAttempt
	return nil
}

func (o *MemoryOutbox) MarkDeadLettered(_ context.Context, id string, lastError string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	rec, ok := o.records[id]
	if !ok {
		return nil
	}
	rec.Attempts++
	rec.LastError = lastError
	delete(o.records, id)
	o.deadLettered[id] = rec
	return nil
}

// DeadLettered returns the records that exhausted their outbox attempts.
func (o *MemoryOutbox) DeadLettered() []OutboxRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]OutboxRecord, 0, len(o.deadLettered))
	for _, rec := range o.deadLettered {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StoredAt.Before(out[j].StoredAt) })
	return out
}

// Len reports the number of records still awaiting delivery.
func (o *MemoryOutbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.records)
}

// RetrierOptions tunes the outbox retrier.
type RetrierOptions struct {
	// PollInterval is how often pending records are scanned. Default 5s.
	PollInterval time.Duration
	// MaxAttempts dead-letters a record after this many failed republish
	// attempts. Default 10.
	MaxAttempts int
	// BatchSize caps how many records one scan republishes. Default 100.
	BatchSize int
	// MaxBackoff caps the exponential delay between attempts. Default 5m.
	MaxBackoff time.Duration
	Clock      clockwork.Clock
	Logger     loggingpkg.ServiceLogger
	// OnDeadLetter is invoked when a record exhausts its attempts.
	OnDeadLetter func(OutboxRecord)
}

// Retrier drains the outbox in the background, republishing parked
// envelopes with their original bytes.
type Retrier struct {
	store        OutboxStore
	publisher    message.Publisher
	pollInterval time.Duration
	maxAttempts  int
	batchSize    int
	maxBackoff   time.Duration
	clock        clockwork.Clock
	logger       loggingpkg.ServiceLogger
	onDeadLetter func(OutboxRecord)
}

// NewRetrier wires a retrier onto the store and publisher.
func NewRetrier(store OutboxStore, publisher message.Publisher, opts RetrierOptions) (*Retrier, error) {
	if store == nil {
		return nil, errspkg.ErrOutboxStoreRequired
	}
	if publisher == nil {
		return nil, errspkg.ErrPublisherRequired
	}

	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	maxBackoff := opts.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 5 * time.Minute
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := opts.Logger
	if logger == nil {
		logger = loggingpkg.NewNopServiceLogger()
	}

	return &Retrier{
		store:        store,
		publisher:    publisher,
		pollInterval: pollInterval,
		maxAttempts:  maxAttempts,
		batchSize:    batchSize,
		maxBackoff:   maxBackoff,
		clock:        clock,
		logger:       logger,
		onDeadLetter: opts.OnDeadLetter,
	}, nil
}

// Run drains the outbox until the context is cancelled.
func (r *Retrier) Run(ctx context.Context) error {
	ticker := r.clock.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			if err := r.Flush(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("Outbox flush failed", err, nil)
			}
		}
	}
}

// Flush republishes every record currently due. Records that fail again are
// rescheduled with exponential backoff; records at the attempt cap are
// handed to OnDeadLetter.
func (r *Retrier) Flush(ctx context.Context) error {
	pending, err := r.store.Pending(ctx, r.batchSize)
	if err != nil {
		return err
	}

	for _, rec := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg := message.NewMessage(rec.ID, rec.Payload)
		msg.Metadata = metadata.ToWatermill(rec.Metadata)
		msg.SetContext(ctx)

		publishErr := r.publisher.Publish(rec.Topic, msg)
		if publishErr == nil {
			if err := r.store.MarkDelivered(ctx, rec.ID); err != nil {
				return err
			}
			r.logger.Info("Outbox record delivered", loggingpkg.LogFields{
				"envelope_id": rec.ID,
				"topic":       rec.Topic,
				"attempts":    rec.Attempts + 1,
			})
			continue
		}

		if rec.Attempts+1 >= r.maxAttempts {
			if err := r.store.MarkDeadLettered(ctx, rec.ID, publishErr.Error()); err != nil {
				return err
			}
			r.logger.Error("Outbox record dead-lettered", publishErr, loggingpkg.LogFields{
				"envelope_id": rec.ID,
				"topic":       rec.Topic,
				"attempts":    rec.Attempts + 1,
			})
			if r.onDeadLetter != nil {
				rec.Attempts++
				rec.LastError = publishErr.Error()
				r.onDeadLetter(rec)
			}
			continue
		}

		nextAttempt := r.clock.Now().Add(r.backoff(rec.Attempts))
		if err := r.store.MarkFailed(ctx, rec.ID, publishErr.Error(), nextAttempt); err != nil {
			return err
		}
	}

	return nil
}

// backoff grows exponentially per failed attempt, capped so large
// attempt counts cannot overflow the shift or produce absurd delays.
func (r *Retrier) backoff(attempts int) time.Duration {
	d := r.pollInterval
	for i := 0; i < attempts; i++ {
		d <<= 1
		if d >= r.maxBackoff || d <= 0 {
			return r.maxBackoff
		}
	}
	return d
}
