package store

import (
	"context"
	"encoding/json"
	"os"
	"reflect"
	"sort"
	"testing"

	"github.com/oklog/ulid/v2"

	"github.com/mango/reabilita/internal/platform/db"
)

// newTestPostgres connects to DATABASE_URL and scopes every test under its
// own root node, removed on cleanup.
func newTestPostgres(t *testing.T) (*Postgres, string) {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set; skipping postgres store tests")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, db.PoolConfig{URL: url})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	t.Cleanup(pool.Close)
	if _, err := db.NewMigrator(pool, db.Migrations()).Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	p := NewPostgres(pool)
	root := "test_" + ulid.Make().String()
	t.Cleanup(func() { p.Delete(context.Background(), root) })
	return p, root
}

func decodeJSON(t *testing.T, raw json.RawMessage) any {
	t.Helper()
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return v
}

func TestPostgres_PushOrdering(t *testing.T) {
	p, root := newTestPostgres(t)
	ctx := context.Background()
	path := Join(root, "patients", "p1", "sensor_data", "s1")

	var keys []string
	for i := 0; i < 10; i++ {
		k, err := p.Push(ctx, path, map[string]any{"flex_measurement": i})
		if err != nil {
			t.Fatalf("Push: %v", err)
		}
		keys = append(keys, k)
	}
	if !sort.StringsAreSorted(keys) {
		t.Fatal("expected push keys to sort in insertion order")
	}

	children, found, err := Children(ctx, p, path)
	if err != nil || !found {
		t.Fatalf("Children: found=%v err=%v", found, err)
	}
	for i, c := range children {
		var r struct {
			Flex int `json:"flex_measurement"`
		}
		if err := json.Unmarshal(c.Value, &r); err != nil {
			t.Fatalf("decode child: %v", err)
		}
		if c.Key != keys[i] || r.Flex != i {
			t.Errorf("child %d: got key %s flex %d", i, c.Key, r.Flex)
		}
	}
}

func TestPostgres_SetReplacesSubtreeAndScalars(t *testing.T) {
	p, root := newTestPostgres(t)
	ctx := context.Background()
	patient := Join(root, "patients", "p1")

	if err := p.Set(ctx, patient, map[string]any{"nome": "Ana", "idade": 30}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := p.Set(ctx, patient, map[string]any{"nome": "Bia"}); err != nil {
		t.Fatalf("Set replace: %v", err)
	}
	raw, err := p.Get(ctx, patient)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got := decodeJSON(t, raw); !reflect.DeepEqual(got, map[string]any{"nome": "Bia"}) {
		t.Errorf("expected old fields to be replaced, got %v", got)
	}

	// a scalar at an ancestor gives way to the new child
	if err := p.Set(ctx, patient, "scalar"); err != nil {
		t.Fatalf("Set scalar: %v", err)
	}
	if err := p.Set(ctx, Join(patient, "nome"), "Cris"); err != nil {
		t.Fatalf("Set under scalar: %v", err)
	}
	raw, err = p.Get(ctx, patient)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got := decodeJSON(t, raw); !reflect.DeepEqual(got, map[string]any{"nome": "Cris"}) {
		t.Errorf("expected scalar to be replaced by object, got %v", got)
	}
}

func TestPostgres_GetSubtree(t *testing.T) {
	p, root := newTestPostgres(t)
	ctx := context.Background()
	patient := Join(root, "patients", "p1")

	value := map[string]any{
		"nome": "Ana",
		"sensor_data": map[string]any{
			"s1": map[string]any{
				"k1": map[string]any{"flex_measurement": 1.5, "emg_measurement": 200.0},
			},
		},
	}
	if err := p.Set(ctx, patient, value); err != nil {
		t.Fatalf("Set: %v", err)
	}
	// sibling whose path shares a prefix must not leak into the subtree
	if err := p.Set(ctx, Join(root, "patients", "p10"), map[string]any{"nome": "Other"}); err != nil {
		t.Fatalf("Set sibling: %v", err)
	}

	raw, err := p.Get(ctx, Join(patient, "sensor_data"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got := decodeJSON(t, raw); !reflect.DeepEqual(got, value["sensor_data"]) {
		t.Errorf("unexpected subtree %v", got)
	}

	raw, err = p.Get(ctx, patient)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got := decodeJSON(t, raw); !reflect.DeepEqual(got, value) {
		t.Errorf("unexpected patient %v", got)
	}

	raw, err = p.Get(ctx, Join(patient, "missing"))
	if err != nil || raw != nil {
		t.Errorf("expected nil for missing path, got %s (err %v)", raw, err)
	}
}

func TestPostgres_DeleteCascades(t *testing.T) {
	p, root := newTestPostgres(t)
	ctx := context.Background()
	patient := Join(root, "patients", "p1")
	other := Join(root, "patients", "p2")

	if err := p.Set(ctx, patient, map[string]any{"nome": "Ana"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := p.Push(ctx, Join(patient, "sensor_data", "s1"), map[string]any{"flex_measurement": 1}); err != nil {
		t.Fatalf("Push reading: %v", err)
	}
	if _, err := p.Push(ctx, Join(patient, "sessions", "s1", "comments"), map[string]any{"comment": "ok"}); err != nil {
		t.Fatalf("Push comment: %v", err)
	}
	if err := p.Set(ctx, other, map[string]any{"nome": "Bia"}); err != nil {
		t.Fatalf("Set other: %v", err)
	}

	if err := p.Delete(ctx, patient); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	for _, path := range []string{
		patient,
		Join(patient, "sensor_data", "s1"),
		Join(patient, "sessions", "s1", "comments"),
	} {
		raw, err := p.Get(ctx, path)
		if err != nil || raw != nil {
			t.Errorf("expected %s to be gone, got %s (err %v)", path, raw, err)
		}
	}

	raw, err := p.Get(ctx, other)
	if err != nil || raw == nil {
		t.Fatalf("expected sibling patient to survive, got %s (err %v)", raw, err)
	}
}

func TestPostgres_Ping(t *testing.T) {
	p, _ := newTestPostgres(t)
	if err := p.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
