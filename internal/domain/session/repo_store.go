package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/mango/reabilita/internal/domain/patient"
	"github.com/mango/reabilita/internal/platform/store"
)

type storeRepo struct {
	s      store.Store
	logger zerolog.Logger
}

func NewStoreRepository(s store.Store, logger zerolog.Logger) Repository {
	return &storeRepo{s: s, logger: logger.With().Str("repo", "session").Logger()}
}

func (r *storeRepo) Append(ctx context.Context, patientID, sessionID string, rd Reading) (string, error) {
	return r.s.Push(ctx, Path(patientID, sessionID), rd)
}

func (r *storeRepo) List(ctx context.Context, patientID string) ([]Session, bool, error) {
	children, found, err := store.Children(ctx, r.s, DataPath(patientID))
	if err != nil {
		return nil, found, err
	}
	if !found {
		return nil, false, nil
	}
	sessions := make([]Session, 0, len(children))
	for _, ch := range children {
		readings, err := r.decodeReadings(ch.Value)
		if err != nil {
			r.logger.Warn().
				Str("patient_id", patientID).
				Str("session_id", ch.Key).
				Err(err).
				Msg("skipping session that is not a set of readings")
			continue
		}
		sessions = append(sessions, Session{ID: ch.Key, Readings: readings})
	}
	return sessions, true, nil
}

func (r *storeRepo) Get(ctx context.Context, patientID, sessionID string) (*Session, error) {
	raw, err := r.s.Get(ctx, Path(patientID, sessionID))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	readings, err := r.decodeReadings(raw)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}
	return &Session{ID: sessionID, Readings: readings}, nil
}

// decodeReadings parses a session node: an object of push key to reading.
// Individual readings that do not decode are logged and left out.
func (r *storeRepo) decodeReadings(raw json.RawMessage) ([]Reading, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, store.ErrNotObject
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	readings := make([]Reading, 0, len(keys))
	for _, k := range keys {
		var rd Reading
		if err := json.Unmarshal(m[k], &rd); err != nil {
			r.logger.Warn().Str("reading", k).Err(err).Msg("skipping malformed reading")
			continue
		}
		readings = append(readings, rd)
	}
	return readings, nil
}

func (r *storeRepo) Graph(ctx context.Context, patientID string) ([]json.RawMessage, []json.RawMessage, error) {
	ecg, err := r.series(ctx, store.Join(patient.Path(patientID), "ecg_data"))
	if err != nil {
		return nil, nil, err
	}
	times, err := r.series(ctx, store.Join(patient.Path(patientID), "time"))
	if err != nil {
		return nil, nil, err
	}
	return ecg, times, nil
}

// series reads a list node. Sparse lists come back from the realtime
// database as objects keyed by index, so both shapes are accepted.
func (r *storeRepo) series(ctx context.Context, path string) ([]json.RawMessage, error) {
	raw, err := r.s.Get(ctx, path)
	if err != nil || raw == nil {
		return nil, err
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%s is neither a list nor an object", path)
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		if errA != nil || errB != nil {
			return keys[i] < keys[j]
		}
		return a < b
	})
	out := make([]json.RawMessage, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out, nil
}
