package comment

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/mango/reabilita/internal/platform/store"
)

type storeRepo struct {
	s      store.Store
	logger zerolog.Logger
}

func NewStoreRepository(s store.Store, logger zerolog.Logger) Repository {
	return &storeRepo{s: s, logger: logger.With().Str("repo", "comment").Logger()}
}

func (r *storeRepo) Add(ctx context.Context, patientID, sessionID string, c *Comment) error {
	key, err := r.s.Push(ctx, Path(patientID, sessionID), record{Comment: c.Comment, Timestamp: c.Timestamp})
	if err != nil {
		return err
	}
	c.ID = key
	return nil
}

func (r *storeRepo) List(ctx context.Context, patientID, sessionID string) ([]*Comment, error) {
	children, found, err := store.Children(ctx, r.s, Path(patientID, sessionID))
	if err != nil || !found {
		return nil, err
	}
	out := make([]*Comment, 0, len(children))
	for _, ch := range children {
		var rec record
		if err := json.Unmarshal(ch.Value, &rec); err != nil {
			r.logger.Warn().Str("comment_id", ch.Key).Err(err).Msg("skipping malformed comment")
			continue
		}
		out = append(out, &Comment{ID: ch.Key, Comment: rec.Comment, Timestamp: rec.Timestamp})
	}
	return out, nil
}

func (r *storeRepo) Delete(ctx context.Context, patientID, sessionID, id string) error {
	return r.s.Delete(ctx, store.Join(Path(patientID, sessionID), id))
}
