// Package live streams readings from the sensor peripheral to a WebSocket
// client, persisting each one as part of a new session.
package live

import (
	"context"

	"github.com/google/uuid"

	"github.com/mango/reabilita/internal/domain/patient"
	"github.com/mango/reabilita/internal/domain/session"
	"github.com/mango/reabilita/internal/platform/store"
)

// Stream yields raw lines from one connection to the peripheral.
type Stream interface {
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

// Source opens a fresh Stream for every live session.
type Source interface {
	Open(ctx context.Context) (Stream, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (Stream, error)

func (f SourceFunc) Open(ctx context.Context) (Stream, error) { return f(ctx) }

// Recorder persists a parsed reading.
type Recorder interface {
	Append(ctx context.Context, patientID, sessionID string, r session.Reading) error
}

// Broadcaster fans frames out to watchers of a topic without blocking.
type Broadcaster interface {
	Broadcast(topic string, data []byte)
}

// Frame is the message sent to clients for every reading.
type Frame struct {
	Flex float64 `json:"flex"`
	EMG  float64 `json:"emg"`
}

// NewSessionID returns a fresh id that is safe to use as a path segment.
func NewSessionID() string {
	return store.SanitizeKey(uuid.New().String())
}

// Topic is the hub topic carrying a patient's live frames.
func Topic(patientID string) string {
	return patient.Path(patientID)
}
