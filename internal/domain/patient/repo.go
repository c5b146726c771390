package patient

import "context"

type Repository interface {
	List(ctx context.Context) ([]*Patient, error)
	// Get returns nil, nil when the patient does not exist.
	Get(ctx context.Context, id string) (*Patient, error)
	// Create stores p and sets p.ID to the generated key.
	Create(ctx context.Context, p *Patient) error
	// Delete removes the patient with all nested sessions and comments.
	Delete(ctx context.Context, id string) error
}
