package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolver_Resolve(t *testing.T) {
	t.Parallel()
	r := NewResolver("super-secret-key", "Aidan")

	tests := []struct {
		name      string
		apiKey    string
		wantKind  Kind
		wantLabel string
	}{
		{"owner exact match", "super-secret-key", KindOwner, "Aidan"},
		{"owner with surrounding whitespace", "  super-secret-key \n", KindOwner, "Aidan"},
		{"guest gets truncated label", "abc123xyz", KindGuest, "Guest(abc123)"},
		{"short guest key kept whole", "ab", KindGuest, "Guest(ab)"},
		{"no key is anonymous", "", KindGuest, "Anonymous"},
		{"whitespace only is anonymous", "   ", KindGuest, "Anonymous"},
		{"near miss is a guest", "super-secret-ke", KindGuest, "Guest(super-)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Resolve(tt.apiKey)
			assert.Equal(t, tt.wantKind, got.Kind)
			assert.Equal(t, tt.wantLabel, got.Label)
			assert.Equal(t, tt.wantKind == KindOwner, got.IsOwner())
		})
	}
}

func TestResolver_Deterministic(t *testing.T) {
	t.Parallel()
	r := NewResolver("key", "Owner")
	first := r.Resolve("abc123xyz")
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, r.Resolve("abc123xyz"))
	}
}

func TestResolver_UnsetOwnerKeyNeverMatches(t *testing.T) {
	t.Parallel()
	r := NewResolver("", "Owner")
	assert.Equal(t, KindGuest, r.Resolve("").Kind)
	assert.Equal(t, KindGuest, r.Resolve("anything").Kind)
}
