package session

import (
	"context"
	"errors"
	"testing"

	"imagebot/internal/domain"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Get(ctx, 42); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want domain.ErrNotFound", err)
	}

	s := domain.NewSession(42, "alice")
	s.Company = "Acme"
	s.Stage = domain.StageSelectTheme
	s.ImageInfo.ProposedThemes = []string{"a", "b", "c", "d", "e"}
	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Get(ctx, 42)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Company != "Acme" || got.Stage != domain.StageSelectTheme {
		t.Fatalf("got %+v", got)
	}
	if len(got.ImageInfo.ProposedThemes) != 5 {
		t.Fatalf("themes = %v", got.ImageInfo.ProposedThemes)
	}

	// Mutating the returned copy must not affect the stored session.
	got.Stage = domain.StageIdle
	again, err := store.Get(ctx, 42)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if again.Stage != domain.StageSelectTheme {
		t.Fatal("stored session mutated through returned pointer")
	}

	if err := store.Delete(ctx, 42); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, 42); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err after delete = %v, want domain.ErrNotFound", err)
	}
}
