package types

import (
	"testing"

	"github.com/google/uuid"
)

func TestVariantKeyIsOrderInsensitive(t *testing.T) {
	a := uuid.New()
	b := uuid.New()

	first := VariantKey([]uuid.UUID{a, b})
	second := VariantKey([]uuid.UUID{b, a})

	if first != second {
		t.Fatalf("expected identical keys, got %q and %q", first, second)
	}
}

func TestVariantKeyDeduplicates(t *testing.T) {
	a := uuid.New()

	key := VariantKey([]uuid.UUID{a, a, a})
	if key != a.String() {
		t.Fatalf("expected single id key, got %q", key)
	}
}

func TestVariantKeyEmptySelection(t *testing.T) {
	if key := VariantKey(nil); key != "" {
		t.Fatalf("expected empty key, got %q", key)
	}
	if key := VariantKey([]uuid.UUID{uuid.Nil}); key != "" {
		t.Fatalf("expected nil ids to be dropped, got %q", key)
	}
}

func TestNormalizeVariantIDsSorts(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-000000000002")
	b := uuid.MustParse("00000000-0000-0000-0000-000000000001")

	out := NormalizeVariantIDs([]uuid.UUID{a, b})
	if len(out) != 2 {
		t.Fatalf("expected 2 ids, got %d", len(out))
	}
	if out[0] != b || out[1] != a {
		t.Fatalf("expected sorted order, got %v", out)
	}
}

func TestIdentityValidate(t *testing.T) {
	if err := SessionIdentity("tok_123").Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := SessionIdentity("").Validate(); err == nil {
		t.Fatal("expected error for empty token")
	}
	if err := UserIdentity(uuid.New()).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := UserIdentity(uuid.Nil).Validate(); err == nil {
		t.Fatal("expected error for nil user id")
	}
}
