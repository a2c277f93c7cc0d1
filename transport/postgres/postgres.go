// Package postgres provides a PostgreSQL-backed transport. Events are
// appended to a log table and each consumer group tracks its own acked
// offset, so every group receives every event exactly like a broker
// consumer group would. Delivery within a group is strictly ordered.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/VISHALGAURAV95/backend-microservices/internal/fabric/jsoncodec"
	"github.com/VISHALGAURAV95/backend-microservices/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "postgres"

const (
	// DefaultPollInterval is the default interval for polling new events.
	DefaultPollInterval = 100 * time.Millisecond
	// DefaultMaxRetries is the default number of redeliveries before an
	// event is dead-lettered for a group.
	DefaultMaxRetries = 3
	// DefaultLeaseTimeout is the visibility timeout: how long a group's
	// in-flight delivery may stay unacknowledged before another member
	// may claim it.
	DefaultLeaseTimeout = 30 * time.Second
)

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.PostgresCapabilities)
	transport.RegisterWithCapabilities("postgresql", Build, transport.PostgresCapabilities) // Alias
}

// Register registers the postgres transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.PostgresCapabilities)
}

// Build creates a new PostgreSQL transport.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	t, err := New(Config{
		ConnectionString: cfg.GetPostgresURL(),
		ConsumerGroup:    cfg.GetConsumerGroup(),
	}, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:  t,
		Subscriber: t,
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.PostgresCapabilities
}

// Config holds PostgreSQL-specific configuration.
type Config struct {
	// ConnectionString is the PostgreSQL connection string.
	ConnectionString string
	// ConsumerGroup names the offset cursor this subscriber advances.
	// Competing members of the same group share one cursor.
	ConsumerGroup string
	// PollInterval is the interval for polling new events.
	PollInterval time.Duration
	// MaxRetries is the number of redeliveries before dead-lettering.
	MaxRetries int
	// LeaseTimeout is how long an in-flight delivery stays claimed.
	LeaseTimeout time.Duration
	// SchemaName is the schema to use for tables. Defaults to "fabric".
	SchemaName string
	// MaxOpenConns sets the maximum number of open connections.
	MaxOpenConns int
	// MaxIdleConns sets the maximum number of idle connections.
	MaxIdleConns int
}

func (c Config) withDefaults() Config {
	if c.ConsumerGroup == "" {
		c.ConsumerGroup = "default"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.LeaseTimeout <= 0 {
		c.LeaseTimeout = DefaultLeaseTimeout
	}
	if c.SchemaName == "" {
		c.SchemaName = "fabric"
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 10
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 5
	}
	return c
}

// Transport implements both Publisher and Subscriber over an event log table.
type Transport struct {
	db     *sql.DB
	config Config
	logger watermill.LoggerAdapter

	subscriptions map[string]chan *message.Message
	subMu         sync.RWMutex

	closed     bool
	closedMu   sync.RWMutex
	closedChan chan struct{}
	wg         sync.WaitGroup
}

// New creates a new PostgreSQL-based transport.
func New(cfg Config, logger watermill.LoggerAdapter) (*Transport, error) {
	if cfg.ConnectionString == "" {
		return nil, fmt.Errorf("PostgreSQL connection string is required")
	}

	cfg = cfg.withDefaults()

	db, err := sql.Open("postgres", cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	t := &Transport{
		db:            db,
		config:        cfg,
		logger:        logger,
		subscriptions: make(map[string]chan *message.Message),
		closedChan:    make(chan struct{}),
	}

	if err := t.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return t, nil
}

func (t *Transport) initSchema() error {
	// #nosec G201 - schema name comes from trusted configuration
	_, err := t.db.Exec(fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, t.config.SchemaName))
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	// #nosec G201 - schema name comes from trusted configuration
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s.events (
		id BIGSERIAL PRIMARY KEY,
		uuid TEXT NOT NULL UNIQUE,
		topic TEXT NOT NULL,
		payload BYTEA NOT NULL,
		metadata JSONB DEFAULT '{}',
		created_at TIMESTAMPTZ DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_events_topic_id ON %[1]s.events(topic, id);

	CREATE TABLE IF NOT EXISTS %[1]s.offsets (
		consumer_group TEXT NOT NULL,
		topic TEXT NOT NULL,
		acked_id BIGINT NOT NULL DEFAULT 0,
		attempts INTEGER NOT NULL DEFAULT 0,
		next_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		leased_until TIMESTAMPTZ,
		PRIMARY KEY (consumer_group, topic)
	);

	CREATE TABLE IF NOT EXISTS %[1]s.dead_letter_queue (
		id BIGSERIAL PRIMARY KEY,
		uuid TEXT NOT NULL,
		consumer_group TEXT NOT NULL,
		original_topic TEXT NOT NULL,
		payload BYTEA NOT NULL,
		metadata JSONB DEFAULT '{}',
		error_message TEXT,
		failed_at TIMESTAMPTZ DEFAULT NOW(),
		retry_count INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_dlq_topic ON %[1]s.dead_letter_queue(original_topic);
	CREATE INDEX IF NOT EXISTS idx_dlq_failed_at ON %[1]s.dead_letter_queue(failed_at);
	`, t.config.SchemaName)

	_, err = t.db.Exec(schema)
	return err
}

// Publish appends messages to the event log.
func (t *Transport) Publish(topic string, messages ...*message.Message) error {
	t.closedMu.RLock()
	if t.closed {
		t.closedMu.RUnlock()
		return fmt.Errorf("transport is closed")
	}
	t.closedMu.RUnlock()

	tx, err := t.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			if t.logger != nil {
				t.logger.Error("failed to rollback transaction", err, nil)
			}
		}
	}()

	// #nosec G201 - schema name comes from trusted configuration
	stmt, err := tx.Prepare(fmt.Sprintf(`
		INSERT INTO %s.events (uuid, topic, payload, metadata)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (uuid) DO NOTHING
	`, t.config.SchemaName))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, msg := range messages {
		metadata, err := jsoncodec.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}

		if _, err := stmt.Exec(msg.UUID, topic, msg.Payload, metadata); err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Subscribe starts delivering events past the group's acked offset.
func (t *Transport) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	t.closedMu.RLock()
	if t.closed {
		t.closedMu.RUnlock()
		return nil, fmt.Errorf("transport is closed")
	}
	t.closedMu.RUnlock()

	if err := t.ensureOffset(ctx, topic); err != nil {
		return nil, err
	}

	msgChan := make(chan *message.Message)

	t.subMu.Lock()
	t.subscriptions[topic] = msgChan
	t.subMu.Unlock()

	t.wg.Add(1)
	go t.pollEvents(ctx, topic, msgChan)

	return msgChan, nil
}

func (t *Transport) ensureOffset(ctx context.Context, topic string) error {
	// #nosec G201 - schema name comes from trusted configuration
	query := fmt.Sprintf(`
		INSERT INTO %s.offsets (consumer_group, topic)
		VALUES ($1, $2)
		ON CONFLICT (consumer_group, topic) DO NOTHING
	`, t.config.SchemaName)
	_, err := t.db.ExecContext(ctx, query, t.config.ConsumerGroup, topic)
	if err != nil {
		return fmt.Errorf("failed to create offset cursor: %w", err)
	}
	return nil
}

func (t *Transport) pollEvents(ctx context.Context, topic string, msgChan chan *message.Message) {
	defer t.wg.Done()
	defer close(msgChan)

	ticker := time.NewTicker(t.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.closedChan:
			return
		case <-ticker.C:
			t.processNextEvent(ctx, topic, msgChan)
		}
	}
}

// claimCursor takes the group's lease so only one member delivers at a time.
// Returns the acked offset and current attempt count.
func (t *Transport) claimCursor(ctx context.Context, topic string) (int64, int, bool) {
	now := time.Now().UTC()
	leaseUntil := now.Add(t.config.LeaseTimeout)

	// #nosec G201 - schema name comes from trusted configuration
	query := fmt.Sprintf(`
		UPDATE %s.offsets
		SET leased_until = $1
		WHERE consumer_group = $2
		AND topic = $3
		AND next_at <= $4
		AND (leased_until IS NULL OR leased_until < $4)
		RETURNING acked_id, attempts
	`, t.config.SchemaName)

	var ackedID int64
	var attempts int
	err := t.db.QueryRowContext(ctx, query, leaseUntil, t.config.ConsumerGroup, topic, now).Scan(&ackedID, &attempts)
	if err != nil {
		if err != sql.ErrNoRows && t.logger != nil {
			t.logger.Error("failed to claim offset cursor", err, nil)
		}
		return 0, 0, false
	}
	return ackedID, attempts, true
}

func (t *Transport) nextEvent(ctx context.Context, topic string, afterID int64) (int64, *message.Message, bool) {
	// #nosec G201 - schema name comes from trusted configuration
	query := fmt.Sprintf(`
		SELECT id, uuid, payload, metadata
		FROM %s.events
		WHERE topic = $1 AND id > $2
		ORDER BY id ASC
		LIMIT 1
	`, t.config.SchemaName)

	var id int64
	var uuid string
	var payload []byte
	var metadataJSON []byte

	err := t.db.QueryRowContext(ctx, query, topic, afterID).Scan(&id, &uuid, &payload, &metadataJSON)
	if err != nil {
		if err != sql.ErrNoRows && t.logger != nil {
			t.logger.Error("failed to fetch next event", err, nil)
		}
		return 0, nil, false
	}

	metadata := make(message.Metadata)
	if len(metadataJSON) > 0 {
		if err := jsoncodec.Unmarshal(metadataJSON, &metadata); err != nil && t.logger != nil {
			t.logger.Error("failed to unmarshal metadata", err, nil)
		}
	}

	msg := message.NewMessage(uuid, payload)
	msg.Metadata = metadata
	return id, msg, true
}

func (t *Transport) processNextEvent(ctx context.Context, topic string, msgChan chan *message.Message) {
	ackedID, attempts, claimed := t.claimCursor(ctx, topic)
	if !claimed {
		return
	}

	id, msg, found := t.nextEvent(ctx, topic, ackedID)
	if !found {
		t.releaseCursor(ctx, topic)
		return
	}

	select {
	case msgChan <- msg:
		t.handleMessageResult(ctx, topic, id, attempts, msg)
	case <-ctx.Done():
		t.releaseCursor(ctx, topic)
	case <-t.closedChan:
		t.releaseCursor(ctx, topic)
	}
}

func (t *Transport) handleMessageResult(ctx context.Context, topic string, id int64, attempts int, msg *message.Message) {
	select {
	case <-msg.Acked():
		t.ackEvent(ctx, topic, id)
	case <-msg.Nacked():
		t.nackEvent(ctx, topic, id, attempts)
	case <-ctx.Done():
		t.releaseCursor(ctx, topic)
	case <-t.closedChan:
		t.releaseCursor(ctx, topic)
	}
}

func (t *Transport) ackEvent(ctx context.Context, topic string, id int64) {
	// #nosec G201 - schema name comes from trusted configuration
	query := fmt.Sprintf(`
		UPDATE %s.offsets
		SET acked_id = $1, attempts = 0, leased_until = NULL, next_at = NOW()
		WHERE consumer_group = $2 AND topic = $3
	`, t.config.SchemaName)
	_, err := t.db.ExecContext(ctx, query, id, t.config.ConsumerGroup, topic)
	if err != nil && t.logger != nil {
		t.logger.Error("failed to ack event", err, nil)
	}
}

func (t *Transport) nackEvent(ctx context.Context, topic string, id int64, attempts int) {
	if attempts >= t.config.MaxRetries {
		t.deadLetterEvent(ctx, topic, id)
		return
	}

	backoffSeconds := 1 << attempts
	nextAt := time.Now().UTC().Add(time.Duration(backoffSeconds) * time.Second)
	// #nosec G201 - schema name comes from trusted configuration
	query := fmt.Sprintf(`
		UPDATE %s.offsets
		SET attempts = attempts + 1, leased_until = NULL, next_at = $1
		WHERE consumer_group = $2 AND topic = $3
	`, t.config.SchemaName)
	_, err := t.db.ExecContext(ctx, query, nextAt, t.config.ConsumerGroup, topic)
	if err != nil && t.logger != nil {
		t.logger.Error("failed to nack event", err, nil)
	}
}

// deadLetterEvent copies the event into the group's DLQ and advances the
// cursor past it. The event itself stays in the log for other groups.
func (t *Transport) deadLetterEvent(ctx context.Context, topic string, id int64) {
	tx, err := t.db.Begin()
	if err != nil {
		if t.logger != nil {
			t.logger.Error("failed to begin dead-letter transaction", err, nil)
		}
		return
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			if t.logger != nil {
				t.logger.Error("failed to rollback transaction", err, nil)
			}
		}
	}()

	// #nosec G201 - schema name comes from trusted configuration
	insert := fmt.Sprintf(`
		INSERT INTO %[1]s.dead_letter_queue (uuid, consumer_group, original_topic, payload, metadata, error_message, retry_count)
		SELECT uuid, $1, topic, payload, metadata, 'max retries exceeded', $2
		FROM %[1]s.events WHERE id = $3
	`, t.config.SchemaName)
	if _, err := tx.ExecContext(ctx, insert, t.config.ConsumerGroup, t.config.MaxRetries, id); err != nil {
		if t.logger != nil {
			t.logger.Error("failed to dead-letter event", err, nil)
		}
		return
	}

	// #nosec G201 - schema name comes from trusted configuration
	advance := fmt.Sprintf(`
		UPDATE %s.offsets
		SET acked_id = $1, attempts = 0, leased_until = NULL, next_at = NOW()
		WHERE consumer_group = $2 AND topic = $3
	`, t.config.SchemaName)
	if _, err := tx.ExecContext(ctx, advance, id, t.config.ConsumerGroup, topic); err != nil {
		if t.logger != nil {
			t.logger.Error("failed to advance cursor past dead letter", err, nil)
		}
		return
	}

	if err := tx.Commit(); err != nil && t.logger != nil {
		t.logger.Error("failed to commit dead-letter transaction", err, nil)
	}
}

func (t *Transport) releaseCursor(ctx context.Context, topic string) {
	// #nosec G201 - schema name comes from trusted configuration
	query := fmt.Sprintf(`
		UPDATE %s.offsets
		SET leased_until = NULL
		WHERE consumer_group = $1 AND topic = $2
	`, t.config.SchemaName)
	_, err := t.db.ExecContext(ctx, query, t.config.ConsumerGroup, topic)
	if err != nil && t.logger != nil {
		t.logger.Error("failed to release offset cursor", err, nil)
	}
}

// Close closes the transport and releases resources.
func (t *Transport) Close() error {
	t.closedMu.Lock()
	if t.closed {
		t.closedMu.Unlock()
		return nil
	}
	t.closed = true
	close(t.closedChan)
	t.closedMu.Unlock()

	t.wg.Wait()

	t.subMu.Lock()
	t.subscriptions = nil
	t.subMu.Unlock()

	return t.db.Close()
}

// GetCapabilities returns the capabilities of this transport instance.
func (t *Transport) GetCapabilities() transport.Capabilities {
	return transport.PostgresCapabilities
}

// GetDB returns the underlying database connection for advanced use cases.
func (t *Transport) GetDB() *sql.DB {
	return t.db
}

// GetPendingCount returns how many events this group has not yet acked.
func (t *Transport) GetPendingCount(topic string) (int64, error) {
	var count int64
	// #nosec G201 - schema name comes from trusted configuration
	query := fmt.Sprintf(`
		SELECT COUNT(*) FROM %[1]s.events e
		WHERE e.topic = $1
		AND e.id > COALESCE(
			(SELECT acked_id FROM %[1]s.offsets WHERE consumer_group = $2 AND topic = $1), 0)
	`, t.config.SchemaName)
	err := t.db.QueryRow(query, topic, t.config.ConsumerGroup).Scan(&count)
	return count, err
}

// GetDLQCount returns the number of dead-lettered events for a topic.
func (t *Transport) GetDLQCount(topic string) (int64, error) {
	var count int64
	// #nosec G201 - schema name comes from trusted configuration
	query := fmt.Sprintf(`
		SELECT COUNT(*) FROM %s.dead_letter_queue
		WHERE original_topic = $1
	`, t.config.SchemaName)
	err := t.db.QueryRow(query, topic).Scan(&count)
	return count, err
}

// ReplayDLQMessage re-appends a dead-lettered event to the log so the
// owning group (and only groups past it) will see it again.
func (t *Transport) ReplayDLQMessage(dlqID int64) error {
	tx, err := t.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			if t.logger != nil {
				t.logger.Error("failed to rollback transaction", err, nil)
			}
		}
	}()

	// #nosec G201 - schema name comes from trusted configuration
	query := fmt.Sprintf(`
		WITH replayed AS (
			DELETE FROM %[1]s.dead_letter_queue WHERE id = $1
			RETURNING uuid, original_topic, payload, metadata
		)
		INSERT INTO %[1]s.events (uuid, topic, payload, metadata)
		SELECT uuid || '-replay-' || extract(epoch from now())::bigint, original_topic, payload, metadata
		FROM replayed
	`, t.config.SchemaName)

	result, err := tx.Exec(query, dlqID)
	if err != nil {
		return err
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("DLQ message with id %d not found", dlqID)
	}

	return tx.Commit()
}

// ReplayAllDLQ re-appends all dead-lettered events for a topic.
func (t *Transport) ReplayAllDLQ(topic string) (int64, error) {
	tx, err := t.db.Begin()
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			if t.logger != nil {
				t.logger.Error("failed to rollback transaction", err, nil)
			}
		}
	}()

	// #nosec G201 - schema name comes from trusted configuration
	query := fmt.Sprintf(`
		WITH replayed AS (
			DELETE FROM %[1]s.dead_letter_queue WHERE original_topic = $1
			RETURNING uuid, original_topic, payload, metadata
		)
		INSERT INTO %[1]s.events (uuid, topic, payload, metadata)
		SELECT uuid || '-replay-' || extract(epoch from now())::bigint || '-' || row_number() OVER (), original_topic, payload, metadata
		FROM replayed
	`, t.config.SchemaName)

	result, err := tx.Exec(query, topic)
	if err != nil {
		return 0, err
	}

	affected, _ := result.RowsAffected()
	return affected, tx.Commit()
}

// PurgeDLQ removes all dead-lettered events for a topic.
func (t *Transport) PurgeDLQ(topic string) (int64, error) {
	// #nosec G201 - schema name comes from trusted configuration
	query := fmt.Sprintf(`DELETE FROM %s.dead_letter_queue WHERE original_topic = $1`, t.config.SchemaName)
	result, err := t.db.Exec(query, topic)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ListDLQMessages returns dead-lettered events with pagination.
func (t *Transport) ListDLQMessages(topic string, limit, offset int) ([]transport.DLQMessage, error) {
	// #nosec G201 - schema name comes from trusted configuration
	query := fmt.Sprintf(`
		SELECT id, uuid, original_topic, payload, metadata, error_message, failed_at, retry_count
		FROM %s.dead_letter_queue
		WHERE original_topic = $1
		ORDER BY failed_at DESC
		LIMIT $2 OFFSET $3
	`, t.config.SchemaName)

	rows, err := t.db.Query(query, topic, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []transport.DLQMessage
	for rows.Next() {
		var msg transport.DLQMessage
		var metadataJSON []byte
		if err := rows.Scan(&msg.ID, &msg.UUID, &msg.OriginalTopic, &msg.Payload, &metadataJSON, &msg.ErrorMessage, &msg.FailedAt, &msg.RetryCount); err != nil {
			return nil, err
		}
		if len(metadataJSON) > 0 {
			if err := jsoncodec.Unmarshal(metadataJSON, &msg.Metadata); err != nil {
				if t.logger != nil {
					t.logger.Error("failed to unmarshal metadata", err, nil)
				}
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// ReleaseExpiredLeases clears leases that outlived the lease timeout.
// Normally redundant since claims check the lease expiry, but useful as
// a maintenance call after abrupt member failures.
func (t *Transport) ReleaseExpiredLeases() (int64, error) {
	// #nosec G201 - schema name comes from trusted configuration
	query := fmt.Sprintf(`
		UPDATE %s.offsets
		SET leased_until = NULL
		WHERE leased_until IS NOT NULL AND leased_until < NOW()
	`, t.config.SchemaName)
	result, err := t.db.Exec(query)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// PurgeAckedEvents deletes log entries older than the cutoff that every
// known consumer group has already acked.
func (t *Transport) PurgeAckedEvents(before time.Time) (int64, error) {
	// #nosec G201 - schema name comes from trusted configuration
	query := fmt.Sprintf(`
		DELETE FROM %[1]s.events e
		WHERE e.created_at < $1
		AND e.id <= COALESCE(
			(SELECT MIN(acked_id) FROM %[1]s.offsets o WHERE o.topic = e.topic), 0)
	`, t.config.SchemaName)
	result, err := t.db.Exec(query, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
