package patient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mango/reabilita/internal/platform/store"
)

type storeRepo struct {
	s      store.Store
	logger zerolog.Logger
}

func NewStoreRepository(s store.Store, logger zerolog.Logger) Repository {
	return &storeRepo{s: s, logger: logger.With().Str("repo", "patient").Logger()}
}

func (r *storeRepo) List(ctx context.Context) ([]*Patient, error) {
	children, found, err := store.Children(ctx, r.s, Collection)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	out := make([]*Patient, 0, len(children))
	for _, ch := range children {
		var rec record
		if err := json.Unmarshal(ch.Value, &rec); err != nil {
			r.logger.Warn().Str("patient_id", ch.Key).Err(err).Msg("skipping malformed patient record")
			continue
		}
		out = append(out, &Patient{ID: ch.Key, Nome: rec.Nome, Idade: rec.Idade, Sexo: rec.Sexo})
	}
	return out, nil
}

func (r *storeRepo) Get(ctx context.Context, id string) (*Patient, error) {
	raw, err := r.s.Get(ctx, Path(id))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode patient %s: %w", id, err)
	}
	return &Patient{ID: id, Nome: rec.Nome, Idade: rec.Idade, Sexo: rec.Sexo}, nil
}

func (r *storeRepo) Create(ctx context.Context, p *Patient) error {
	key, err := r.s.Push(ctx, Collection, record{Nome: p.Nome, Idade: p.Idade, Sexo: p.Sexo})
	if err != nil {
		return err
	}
	p.ID = key
	return nil
}

func (r *storeRepo) Delete(ctx context.Context, id string) error {
	return r.s.Delete(ctx, Path(id))
}
