package docstore

import (
	"context"
	"testing"
	"time"
)

func TestConnect_InvalidURI(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := Connect(ctx, "postgres://not-mongo", 0); err == nil {
		t.Fatal("expected error for non-mongo scheme")
	}
}

func TestEnsureIndexes_SkipsEmpty(t *testing.T) {
	created, err := EnsureIndexes(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 0 {
		t.Errorf("expected 0 indexes, got %d", created)
	}
}
