package session

import (
	"context"
	"encoding/json"
)

type Repository interface {
	// Append pushes r under the session and returns the generated key.
	Append(ctx context.Context, patientID, sessionID string, r Reading) (string, error)
	// List returns every well-formed session of the patient in key order.
	// found is false when the patient has no sensor data at all.
	List(ctx context.Context, patientID string) (sessions []Session, found bool, err error)
	// Get returns nil, nil when the session does not exist.
	Get(ctx context.Context, patientID, sessionID string) (*Session, error)
	// Graph returns the raw legacy ECG and time series; either is nil when
	// missing.
	Graph(ctx context.Context, patientID string) (ecg, times []json.RawMessage, err error)
}
