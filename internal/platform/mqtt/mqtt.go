// Package mqtt reads raw sensor lines from a broker topic. It serves setups
// where a gateway bridges the BLE peripheral onto MQTT.
package mqtt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrClosed         = errors.New("mqtt: stream closed")
	ErrConnectionLost = errors.New("mqtt: connection lost")
)

const (
	lineBuffer     = 64
	connectTimeout = 10 * time.Second
)

type Config struct {
	Broker   string
	Topic    string
	ClientID string
	QoS      byte
}

// Source opens a dedicated client per stream so each live session owns its
// subscription.
type Source struct {
	cfg    Config
	logger zerolog.Logger
	// newClient is replaced in tests.
	newClient func(*pahomqtt.ClientOptions) pahomqtt.Client
}

func NewSource(cfg Config, logger zerolog.Logger) *Source {
	return &Source{
		cfg:       cfg,
		logger:    logger.With().Str("component", "mqtt").Str("topic", cfg.Topic).Logger(),
		newClient: pahomqtt.NewClient,
	}
}

// Open connects to the broker and subscribes to the configured topic.
func (s *Source) Open(ctx context.Context) (*Stream, error) {
	stream := newStream()

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(s.cfg.Broker)
	opts.SetClientID(fmt.Sprintf("%s-%s", s.cfg.ClientID, uuid.New().String()[:8]))
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectTimeout(connectTimeout)
	opts.OnConnectionLost = func(_ pahomqtt.Client, err error) {
		s.logger.Warn().Err(err).Msg("connection lost")
		stream.fail(fmt.Errorf("%w: %v", ErrConnectionLost, err))
	}

	client := s.newClient(opts)
	if err := wait(ctx, client.Connect()); err != nil {
		if ctx.Err() != nil {
			// the connect attempt is still running in the background
			client.Disconnect(0)
		}
		return nil, fmt.Errorf("connect %s: %w", s.cfg.Broker, err)
	}
	stream.client = client

	handler := func(_ pahomqtt.Client, msg pahomqtt.Message) {
		stream.deliver(msg.Payload())
	}
	if err := wait(ctx, client.Subscribe(s.cfg.Topic, s.cfg.QoS, handler)); err != nil {
		client.Disconnect(250)
		return nil, fmt.Errorf("subscribe %s: %w", s.cfg.Topic, err)
	}

	s.logger.Info().Str("broker", s.cfg.Broker).Msg("subscribed")
	return stream, nil
}

func wait(ctx context.Context, tok pahomqtt.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stream buffers messages from one subscription.
type Stream struct {
	lines     chan []byte
	done      chan struct{}
	closeOnce sync.Once
	client    pahomqtt.Client

	mu  sync.Mutex
	err error
}

func newStream() *Stream {
	return &Stream{
		lines: make(chan []byte, lineBuffer),
		done:  make(chan struct{}),
	}
}

func (s *Stream) deliver(payload []byte) {
	select {
	case <-s.done:
	case s.lines <- bytes.Clone(payload):
	}
}

func (s *Stream) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.closeOnce.Do(func() { close(s.done) })
}

// Read returns the next message payload.
func (s *Stream) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case line := <-s.lines:
		return line, nil
	case <-s.done:
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.err != nil {
			return nil, s.err
		}
		return nil, ErrClosed
	}
}

// Close unsubscribes by disconnecting the client. It is safe to call more
// than once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
	}
	return nil
}
