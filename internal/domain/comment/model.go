package comment

import (
	"github.com/mango/reabilita/internal/domain/patient"
	"github.com/mango/reabilita/internal/platform/store"
)

// TimestampLayout is the second-resolution format comments are stamped with.
const TimestampLayout = "2006-01-02 15:04:05"

// Comment is a free-text note on a session. ID is the store key.
type Comment struct {
	ID        string `json:"id"`
	Comment   string `json:"comment"`
	Timestamp string `json:"timestamp"`
}

type record struct {
	Comment   string `json:"comment"`
	Timestamp string `json:"timestamp"`
}

// Path is where the comments of one session are stored.
func Path(patientID, sessionID string) string {
	return store.Join(patient.Path(patientID), "sessions", sessionID, "comments")
}
