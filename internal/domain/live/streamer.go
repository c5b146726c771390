package live

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mango/reabilita/internal/domain/session"
	"github.com/mango/reabilita/internal/platform/websocket"
)

// Streamer runs one ingest loop per client connection. Each connection gets
// its own session id and its own peripheral stream; nothing is shared
// between connections.
type Streamer struct {
	source   Source
	recorder Recorder
	hub      Broadcaster
	logger   zerolog.Logger

	mu     sync.Mutex
	active map[string]context.CancelFunc
	closed bool
}

func NewStreamer(source Source, recorder Recorder, hub Broadcaster, logger zerolog.Logger) *Streamer {
	return &Streamer{
		source:   source,
		recorder: recorder,
		hub:      hub,
		logger:   logger.With().Str("component", "live").Logger(),
		active:   make(map[string]context.CancelFunc),
	}
}

// dropCounter is implemented by streams that discard input while the reader
// lags behind.
type dropCounter interface {
	Dropped() int64
}

var errShuttingDown = errors.New("live: streamer is shutting down")

func (s *Streamer) track(sessionID string, cancel context.CancelFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errShuttingDown
	}
	s.active[sessionID] = cancel
	return nil
}

func (s *Streamer) untrack(sessionID string) {
	s.mu.Lock()
	delete(s.active, sessionID)
	s.mu.Unlock()
}

// Active reports the number of running sessions.
func (s *Streamer) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Close cancels every running session and refuses new ones.
func (s *Streamer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for _, cancel := range s.active {
		cancel()
	}
}

// Run opens the peripheral stream and forwards every well-formed line to
// conn until the stream fails, a write or store call fails, or the client
// goes away. Malformed lines are logged and skipped. A nil return means the
// client or the server ended the session.
func (s *Streamer) Run(ctx context.Context, conn websocket.Conn, patientID string) error {
	sessionID := NewSessionID()
	log := s.logger.With().Str("patient_id", patientID).Str("session_id", sessionID).Logger()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := s.track(sessionID, cancel); err != nil {
		return err
	}
	defer s.untrack(sessionID)

	// Inbound frames are ignored; a read error means the client is gone.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	log.Info().Msg("connecting to peripheral")
	stream, err := s.source.Open(ctx)
	if err != nil {
		log.Error().Err(err).Msg("could not open sensor stream")
		return err
	}
	defer stream.Close()
	log.Info().Msg("streaming")

	topic := Topic(patientID)
	var stored, skipped int
	defer func() {
		ev := log.Info().Int("stored", stored).Int("skipped", skipped)
		if dc, ok := stream.(dropCounter); ok {
			ev = ev.Int64("dropped", dc.Dropped())
		}
		ev.Msg("session closed")
	}()

	for {
		raw, err := stream.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Msg("sensor stream failed")
			return err
		}

		flex, emg, err := ParseLine(string(raw))
		if err != nil {
			skipped++
			log.Warn().Err(err).Msg("dropping sensor line")
			continue
		}

		if err := s.recorder.Append(ctx, patientID, sessionID, session.Reading{Flex: flex, EMG: emg}); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Msg("could not store reading")
			return err
		}
		stored++

		frame, err := json.Marshal(Frame{Flex: flex, EMG: emg})
		if err != nil {
			return err
		}
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn().Err(err).Msg("client write failed")
			return err
		}
		s.hub.Broadcast(topic, frame)
	}
}
