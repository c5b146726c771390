package comment

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mango/reabilita/internal/platform/apperr"
	"github.com/mango/reabilita/internal/platform/store"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestService() (*Service, *fakeClock) {
	svc := NewService(NewStoreRepository(store.NewMemory(), zerolog.Nop()))
	clock := &fakeClock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.Local)}
	svc.now = clock.now
	return svc, clock
}

func TestService_AddAndList(t *testing.T) {
	svc, clock := newTestService()
	ctx := context.Background()

	first, err := svc.Add(ctx, "p1", "s1", "Boa amplitude")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if first.Timestamp != "2024-05-01 10:00:00" {
		t.Errorf("unexpected timestamp %q", first.Timestamp)
	}
	clock.t = clock.t.Add(time.Minute)
	svc.Add(ctx, "p1", "s1", "Fadiga no fim")

	comments, err := svc.List(ctx, "p1", "s1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(comments) != 2 {
		t.Fatalf("expected 2 comments, got %d", len(comments))
	}
	if comments[0].ID != first.ID || comments[1].Comment != "Fadiga no fim" {
		t.Errorf("expected insertion order, got %+v %+v", comments[0], comments[1])
	}
}

func TestService_AddEmpty(t *testing.T) {
	svc, _ := newTestService()
	if _, err := svc.Add(context.Background(), "p1", "s1", "   "); !apperr.IsBadRequest(err) {
		t.Errorf("expected BadRequest, got %v", err)
	}
}

func TestService_ListEmpty(t *testing.T) {
	svc, _ := newTestService()
	if _, err := svc.List(context.Background(), "p1", "s1"); !apperr.IsNotFound(err) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestService_DeleteByTimestampRemovesExactlyOne(t *testing.T) {
	svc, clock := newTestService()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		svc.Add(ctx, "p1", "s1", "nota")
		clock.t = clock.t.Add(time.Second)
	}

	if err := svc.Delete(ctx, "p1", "s1", "2024-05-01 10:00:01"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	comments, _ := svc.List(ctx, "p1", "s1")
	if len(comments) != 2 {
		t.Fatalf("expected 2 comments left, got %d", len(comments))
	}
	for _, c := range comments {
		if c.Timestamp == "2024-05-01 10:00:01" {
			t.Error("deleted comment still present")
		}
	}
}

func TestService_DeleteByID(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	a, _ := svc.Add(ctx, "p1", "s1", "mesmo segundo A")
	b, _ := svc.Add(ctx, "p1", "s1", "mesmo segundo B")

	if err := svc.Delete(ctx, "p1", "s1", b.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	comments, _ := svc.List(ctx, "p1", "s1")
	if len(comments) != 1 || comments[0].ID != a.ID {
		t.Errorf("expected only %s left, got %+v", a.ID, comments)
	}
}

func TestService_DeleteNotFound(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	svc.Add(ctx, "p1", "s1", "nota")

	if err := svc.Delete(ctx, "p1", "s1", "1999-01-01 00:00:00"); !apperr.IsNotFound(err) {
		t.Errorf("expected NotFound, got %v", err)
	}
}
