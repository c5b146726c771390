package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// Postgres is a Store that keeps the tree in the store_nodes table, one row
// per leaf value. The schema is installed by db.Migrator.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Get(ctx context.Context, path string) (json.RawMessage, error) {
	clean := strings.Trim(path, "/")

	var (
		rows pgx.Rows
		err  error
	)
	if clean == "" {
		rows, err = p.pool.Query(ctx, `SELECT path, value FROM store_nodes ORDER BY path`)
	} else {
		rows, err = p.pool.Query(ctx,
			`SELECT path, value FROM store_nodes WHERE path = $1 OR starts_with(path, $2) ORDER BY path`,
			clean, clean+"/")
	}
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", clean, err)
	}
	defer rows.Close()

	var root any
	for rows.Next() {
		var (
			nodePath string
			data     []byte
		)
		if err := rows.Scan(&nodePath, &data); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode node %s: %w", nodePath, err)
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(nodePath, clean), "/")
		root = setAt(root, splitPath(rel), v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nodes: %w", err)
	}
	if root == nil {
		return nil, nil
	}
	return json.Marshal(root)
}

func (p *Postgres) Set(ctx context.Context, path string, value any) error {
	v, err := normalize(value)
	if err != nil {
		return err
	}
	clean := strings.Trim(path, "/")

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := deleteSubtree(ctx, tx, clean); err != nil {
		return err
	}
	// A scalar stored at an ancestor would shadow the new subtree.
	if anc := ancestors(clean); len(anc) > 0 {
		if _, err := tx.Exec(ctx, `DELETE FROM store_nodes WHERE path = ANY($1)`, anc); err != nil {
			return fmt.Errorf("delete ancestors of %s: %w", clean, err)
		}
	}

	if v != nil {
		leaves := make(map[string]any)
		flatten(clean, v, leaves)

		batch := &pgx.Batch{}
		for leafPath, leaf := range leaves {
			data, err := json.Marshal(leaf)
			if err != nil {
				return fmt.Errorf("encode leaf %s: %w", leafPath, err)
			}
			batch.Queue(`INSERT INTO store_nodes (path, value) VALUES ($1, $2)`, leafPath, data)
		}
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("insert leaves under %s: %w", clean, err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("insert leaves under %s: %w", clean, err)
		}
	}

	return tx.Commit(ctx)
}

func (p *Postgres) Push(ctx context.Context, path string, value any) (string, error) {
	key := ulid.Make().String()
	if err := p.Set(ctx, Join(strings.Trim(path, "/"), key), value); err != nil {
		return "", err
	}
	return key, nil
}

func (p *Postgres) Delete(ctx context.Context, path string) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := deleteSubtree(ctx, tx, strings.Trim(path, "/")); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func deleteSubtree(ctx context.Context, tx pgx.Tx, clean string) error {
	var err error
	if clean == "" {
		_, err = tx.Exec(ctx, `DELETE FROM store_nodes`)
	} else {
		_, err = tx.Exec(ctx, `DELETE FROM store_nodes WHERE path = $1 OR starts_with(path, $2)`, clean, clean+"/")
	}
	if err != nil {
		return fmt.Errorf("delete subtree %s: %w", clean, err)
	}
	return nil
}
