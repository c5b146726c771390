package comment

import "context"

type Repository interface {
	Add(ctx context.Context, patientID, sessionID string, c *Comment) error
	// List returns the comments in key order, which is insertion order.
	List(ctx context.Context, patientID, sessionID string) ([]*Comment, error)
	Delete(ctx context.Context, patientID, sessionID, id string) error
}
