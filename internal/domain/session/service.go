package session

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/mango/reabilita/internal/platform/apperr"
)

type Service struct {
	repo           Repository
	sampleInterval time.Duration
	logger         zerolog.Logger
	now            func() time.Time
}

func NewService(repo Repository, sampleInterval time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		repo:           repo,
		sampleInterval: sampleInterval,
		logger:         logger.With().Str("service", "session").Logger(),
		now:            time.Now,
	}
}

// Append stores one reading. The reading time is normalized; an empty time
// is replaced by the server clock. Duplicate deliveries are stored twice.
func (s *Service) Append(ctx context.Context, patientID, sessionID string, r Reading) error {
	r.TimeOfReading = NormalizeTimestamp(r.TimeOfReading, s.now())
	if _, err := s.repo.Append(ctx, patientID, sessionID, r); err != nil {
		return apperr.Internal(err, "Error saving sensor data")
	}
	return nil
}

// History summarizes every session of a patient.
func (s *Service) History(ctx context.Context, patientID string) ([]Summary, error) {
	sessions, found, err := s.repo.List(ctx, patientID)
	if err != nil {
		return nil, apperr.Internal(err, "Error reading session history")
	}
	if !found {
		return nil, apperr.NotFound("No sensor data found for this patient")
	}
	out := make([]Summary, 0, len(sessions))
	for _, sess := range sessions {
		if len(sess.Readings) == 0 {
			s.logger.Warn().Str("patient_id", patientID).Str("session_id", sess.ID).Msg("skipping session without readings")
			continue
		}
		maxFlex, maxEMG := maxima(sess.Readings)
		out = append(out, Summary{SessionID: sess.ID, MaxFlex: maxFlex, MaxEMG: maxEMG})
	}
	if len(out) == 0 {
		return nil, apperr.NotFound("No sensor data found for this patient")
	}
	return out, nil
}

func (s *Service) get(ctx context.Context, patientID, sessionID string) (*Session, error) {
	sess, err := s.repo.Get(ctx, patientID, sessionID)
	if err != nil {
		return nil, apperr.Internal(err, "Error reading session data")
	}
	if sess == nil || len(sess.Readings) == 0 {
		return nil, apperr.NotFound("Session not found")
	}
	return sess, nil
}

// Details aggregates one session. Duration assumes one reading per sample
// interval; it is not measured.
func (s *Service) Details(ctx context.Context, patientID, sessionID string) (*Details, error) {
	sess, err := s.get(ctx, patientID, sessionID)
	if err != nil {
		return nil, err
	}
	maxFlex, maxEMG := maxima(sess.Readings)
	return &Details{
		MaxFlex:       maxFlex,
		MaxEMG:        maxEMG,
		Duration:      float64(len(sess.Readings)) * s.sampleInterval.Seconds(),
		TopFlexValues: topFlexValues(sess.Readings, topFlexLimit),
		Date:          DateOf(sess.Readings[0].TimeOfReading),
	}, nil
}

// FlexSeries returns the flex values of a session in push order.
func (s *Service) FlexSeries(ctx context.Context, patientID, sessionID string) ([]float64, error) {
	sess, err := s.get(ctx, patientID, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(sess.Readings))
	for i, r := range sess.Readings {
		out[i] = r.Flex
	}
	return out, nil
}

// EMGSeries returns the EMG values of a session in push order.
func (s *Service) EMGSeries(ctx context.Context, patientID, sessionID string) ([]float64, error) {
	sess, err := s.get(ctx, patientID, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(sess.Readings))
	for i, r := range sess.Readings {
		out[i] = r.EMG
	}
	return out, nil
}

// Graph zips the legacy ECG voltage and time lists; the shorter list bounds
// the result.
func (s *Service) Graph(ctx context.Context, patientID string) ([]GraphPoint, error) {
	ecg, times, err := s.repo.Graph(ctx, patientID)
	if err != nil {
		return nil, apperr.Internal(err, "Error reading ECG data")
	}
	if len(ecg) == 0 {
		return nil, apperr.NotFound("ECG data not found")
	}
	if len(times) == 0 {
		return nil, apperr.NotFound("Time data not found")
	}
	n := min(len(ecg), len(times))
	out := make([]GraphPoint, n)
	for i := 0; i < n; i++ {
		out[i] = GraphPoint{Time: times[i], Voltage: ecg[i]}
	}
	return out, nil
}

// RecordEMGBatch logs a batch posted by the EMG test client. Nothing is
// stored.
func (s *Service) RecordEMGBatch(values []int) {
	s.logger.Info().Int("count", len(values)).Ints("data", values).Msg("EMG batch received")
}

func maxima(readings []Reading) (flex, emg float64) {
	flex, emg = readings[0].Flex, readings[0].EMG
	for _, r := range readings[1:] {
		flex = max(flex, r.Flex)
		emg = max(emg, r.EMG)
	}
	return flex, emg
}

// topFlexValues returns up to limit distinct flex values by descending
// frequency. Ties keep first-seen order.
func topFlexValues(readings []Reading, limit int) []float64 {
	counts := make(map[float64]int)
	var order []float64
	for _, r := range readings {
		if counts[r.Flex] == 0 {
			order = append(order, r.Flex)
		}
		counts[r.Flex]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > limit {
		order = order[:limit]
	}
	return order
}
