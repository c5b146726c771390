package session

import (
	"github.com/mango/reabilita/internal/domain/patient"
	"github.com/mango/reabilita/internal/platform/store"
)

// Reading is one flex/EMG sample appended under a session.
type Reading struct {
	Flex          float64 `json:"flex_measurement"`
	EMG           float64 `json:"emg_measurement"`
	TimeOfReading string  `json:"time_of_reading"`
}

// Session is the set of readings sharing one session id, in push order.
type Session struct {
	ID       string
	Readings []Reading
}

// Summary is one row of a patient's session history.
type Summary struct {
	SessionID string  `json:"session_id"`
	MaxFlex   float64 `json:"max_flex"`
	MaxEMG    float64 `json:"max_emg"`
}

// Details aggregates a single session. Duration is in seconds.
type Details struct {
	MaxFlex       float64   `json:"max_flex"`
	MaxEMG        float64   `json:"max_emg"`
	Duration      float64   `json:"duration"`
	TopFlexValues []float64 `json:"top_flex_values"`
	Date          string    `json:"date"`
}

// GraphPoint is one sample of the legacy ECG graph.
type GraphPoint struct {
	Time    any `json:"Time"`
	Voltage any `json:"Voltage"`
}

const topFlexLimit = 5

// DataPath is where all sessions of a patient are stored.
func DataPath(patientID string) string {
	return store.Join(patient.Path(patientID), "sensor_data")
}

// Path is where the readings of one session are stored.
func Path(patientID, sessionID string) string {
	return store.Join(DataPath(patientID), sessionID)
}
