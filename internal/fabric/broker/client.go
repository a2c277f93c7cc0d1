// Package broker owns the connection to the message broker. The Client
// wraps a transport with a connection state machine, fail-fast publishing
// while disconnected, and capped jittered reconnect backoff.
package broker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cenkalti/backoff/v5"
	"github.com/jonboulle/clockwork"

	"github.com/VISHALGAURAV95/backend-microservices/internal/fabric/logging"
	"github.com/VISHALGAURAV95/backend-microservices/transport"
)

// State describes the broker connection lifecycle.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

const (
	DefaultPublishTimeout           = 5 * time.Second
	DefaultReconnectInitialInterval = 500 * time.Millisecond
	DefaultReconnectMaxInterval     = 30 * time.Second
	DefaultReconnectMaxAttempts     = 10
)

// ErrNotConnected is returned by Subscribe while the client has no live
// connection. Publish returns a PublishError with ReasonUnavailable instead.
var ErrNotConnected = errors.New("broker: not connected")

// Reason classifies a publish failure.
type Reason string

const (
	// ReasonUnavailable means the client was not connected and failed fast
	// instead of queueing the message in memory.
	ReasonUnavailable Reason = "unavailable"
	// ReasonTimeout means the broker did not acknowledge persistence within
	// the publish timeout.
	ReasonTimeout Reason = "timeout"
	// ReasonRejected means the broker refused the message.
	ReasonRejected Reason = "rejected"
)

// PublishError reports a failed publish attempt. The caller decides whether
// to retry; the client never silently drops or buffers.
type PublishError struct {
	Reason Reason
	Topic  string
	Err    error
}

func (e *PublishError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("broker: publish to %q failed (%s): %v", e.Topic, e.Reason, e.Err)
	}
	return fmt.Sprintf("broker: publish to %q failed (%s)", e.Topic, e.Reason)
}

func (e *PublishError) Unwrap() error { return e.Err }

// IsUnavailable reports whether err is a PublishError with ReasonUnavailable.
func IsUnavailable(err error) bool { return hasReason(err, ReasonUnavailable) }

// IsTimeout reports whether err is a PublishError with ReasonTimeout.
func IsTimeout(err error) bool { return hasReason(err, ReasonTimeout) }

// IsRejected reports whether err is a PublishError with ReasonRejected.
func IsRejected(err error) bool { return hasReason(err, ReasonRejected) }

func hasReason(err error, reason Reason) bool {
	var pe *PublishError
	return errors.As(err, &pe) && pe.Reason == reason
}

// isConnectionError distinguishes a dead link from a broker-side
// rejection of one message. Only the former justifies tearing the
// connection down and entering the reconnect loop.
func isConnectionError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE)
}

// ConnectFunc establishes a transport connection.
type ConnectFunc func(ctx context.Context) (transport.Transport, error)

// Options configures a Client.
type Options struct {
	// Connect establishes the underlying transport. Required.
	Connect ConnectFunc

	Logger logging.ServiceLogger

	// Clock drives publish timeouts and reconnect backoff. Tests inject a
	// fake clock.
	Clock clockwork.Clock

	// PublishTimeout bounds how long Publish waits for the broker's
	// persistence acknowledgment.
	PublishTimeout time.Duration

	// ReconnectInitialInterval and ReconnectMaxInterval shape the
	// exponential reconnect backoff. Jitter is always applied.
	ReconnectInitialInterval time.Duration
	ReconnectMaxInterval     time.Duration

	// ReconnectMaxAttempts is the operator-configured ceiling on
	// consecutive failed reconnects before the client reports unhealthy.
	// Zero means the default; negative means no ceiling.
	ReconnectMaxAttempts int
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = logging.NewNopServiceLogger()
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = DefaultPublishTimeout
	}
	if o.ReconnectInitialInterval <= 0 {
		o.ReconnectInitialInterval = DefaultReconnectInitialInterval
	}
	if o.ReconnectMaxInterval <= 0 {
		o.ReconnectMaxInterval = DefaultReconnectMaxInterval
	}
	if o.ReconnectMaxAttempts == 0 {
		o.ReconnectMaxAttempts = DefaultReconnectMaxAttempts
	}
	return o
}

// Client is a connection-owning wrapper around a transport. It implements
// watermill's message.Publisher and message.Subscriber so routers and
// producers can use it directly. Safe for concurrent use.
type Client struct {
	opts Options

	mu      sync.RWMutex
	state   State
	tr      transport.Transport
	healthy bool

	// lost receives one signal per detected connection loss.
	lost chan struct{}
}

// New creates a Client. The connection is established by Connect or Run.
func New(opts Options) (*Client, error) {
	if opts.Connect == nil {
		return nil, errors.New("broker: connect function is required")
	}
	return &Client{
		opts:    opts.withDefaults(),
		state:   StateDisconnected,
		healthy: true,
		lost:    make(chan struct{}, 1),
	}, nil
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Healthy reports whether the client is within its reconnect ceiling. It
// stays true during transient reconnects and flips to false only after
// ReconnectMaxAttempts consecutive failures.
func (c *Client) Healthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.healthy
}

// Connect establishes the transport connection, transitioning
// Disconnected -> Connecting -> Connected.
func (c *Client) Connect(ctx context.Context) error {
	c.setState(StateConnecting)

	tr, err := c.opts.Connect(ctx)
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("broker: connect failed: %w", err)
	}

	c.mu.Lock()
	c.tr = tr
	c.state = StateConnected
	c.healthy = true
	c.mu.Unlock()

	c.opts.Logger.Info("Broker connected", nil)
	return nil
}

// Run keeps the connection alive until ctx is cancelled. A connection loss
// moves the client to Reconnecting and retries with exponential jittered
// backoff. Run returns an error once consecutive failures exceed the
// reconnect ceiling; at that point Healthy reports false.
func (c *Client) Run(ctx context.Context) error {
	if c.State() != StateConnected {
		if err := c.reconnectLoop(ctx); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			c.setState(StateDisconnected)
			return ctx.Err()
		case <-c.lost:
			c.opts.Logger.Info("Broker connection lost, reconnecting", nil)
			if err := c.reconnectLoop(ctx); err != nil {
				return err
			}
		}
	}
}

func (c *Client) reconnectLoop(ctx context.Context) error {
	c.setState(StateReconnecting)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.opts.ReconnectInitialInterval
	bo.MaxInterval = c.opts.ReconnectMaxInterval
	bo.Reset()

	attempts := 0
	for {
		if err := c.Connect(ctx); err == nil {
			// Connect drained any loss signal's cause; clear a stale one.
			select {
			case <-c.lost:
			default:
			}
			return nil
		} else {
			c.opts.Logger.Error("Broker reconnect attempt failed", err, logging.LogFields{
				"attempt": attempts + 1,
			})
		}
		c.setState(StateReconnecting)

		attempts++
		if c.opts.ReconnectMaxAttempts > 0 && attempts >= c.opts.ReconnectMaxAttempts {
			c.mu.Lock()
			c.healthy = false
			c.state = StateDisconnected
			c.mu.Unlock()
			return fmt.Errorf("broker: reconnect ceiling reached after %d attempts", attempts)
		}

		select {
		case <-ctx.Done():
			c.setState(StateDisconnected)
			return ctx.Err()
		case <-c.opts.Clock.After(bo.NextBackOff()):
		}
	}
}

// ReportConnectionLoss signals that the underlying connection failed. Run
// picks up the signal and starts reconnecting; publishes fail fast until
// the connection is restored.
func (c *Client) ReportConnectionLoss() {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected
	c.mu.Unlock()

	select {
	case c.lost <- struct{}{}:
	default:
	}
}

// Publish implements message.Publisher. It blocks until the broker
// acknowledges persistence, the publish timeout elapses, or the message is
// rejected. While not connected it fails fast with ReasonUnavailable.
func (c *Client) Publish(topic string, messages ...*message.Message) error {
	return c.PublishContext(context.Background(), topic, messages...)
}

// PublishContext is Publish with caller-controlled cancellation.
func (c *Client) PublishContext(ctx context.Context, topic string, messages ...*message.Message) error {
	c.mu.RLock()
	state := c.state
	pub := c.tr.Publisher
	c.mu.RUnlock()

	if state != StateConnected || pub == nil {
		return &PublishError{Reason: ReasonUnavailable, Topic: topic}
	}

	done := make(chan error, 1)
	go func() {
		done <- pub.Publish(topic, messages...)
	}()

	select {
	case err := <-done:
		if err != nil {
			if isConnectionError(err) {
				c.ReportConnectionLoss()
				return &PublishError{Reason: ReasonUnavailable, Topic: topic, Err: err}
			}
			// Broker-side rejection of this message; the link itself is fine.
			return &PublishError{Reason: ReasonRejected, Topic: topic, Err: err}
		}
		return nil
	case <-ctx.Done():
		return &PublishError{Reason: ReasonTimeout, Topic: topic, Err: ctx.Err()}
	case <-c.opts.Clock.After(c.opts.PublishTimeout):
		return &PublishError{Reason: ReasonTimeout, Topic: topic}
	}
}

// Subscribe implements message.Subscriber. Redelivery semantics (visibility
// timeout, nack) come from the underlying transport.
func (c *Client) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	c.mu.RLock()
	state := c.state
	sub := c.tr.Subscriber
	c.mu.RUnlock()

	if state != StateConnected || sub == nil {
		return nil, ErrNotConnected
	}
	return sub.Subscribe(ctx, topic)
}

// Close releases the underlying transport.
func (c *Client) Close() error {
	c.mu.Lock()
	tr := c.tr
	c.tr = transport.Transport{}
	c.state = StateDisconnected
	c.mu.Unlock()

	var errs []error
	if tr.Publisher != nil {
		if err := tr.Publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if tr.Subscriber != nil {
		if err := tr.Subscriber.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
