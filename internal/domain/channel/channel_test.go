package channel

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		id   string
		want Kind
	}{
		{"global", KindGlobal},
		{"zone:starter_town", KindZone},
		{"guild:iron", KindGuild},
		{"party:7", KindParty},
		{"private:whisper", KindPrivate},
		{"combat:f0f0", KindCombat},
		{"announcements", KindGlobal},
	}
	for _, tc := range tests {
		if got := KindOf(tc.id); got != tc.want {
			t.Errorf("KindOf(%q) = %q, want %q", tc.id, got, tc.want)
		}
	}
}

func TestDefaultVisibility(t *testing.T) {
	if New("global", KindGlobal).Visibility != VisibilityPublic {
		t.Error("global channels should be public")
	}
	if New("zone:x", KindZone).Visibility != VisibilityPublic {
		t.Error("zone channels should be public")
	}
	if New("guild:x", KindGuild).Visibility != VisibilityMembership {
		t.Error("guild channels should require membership")
	}
}

func TestAuthorizePublic(t *testing.T) {
	ch := New("global", KindGlobal)
	if err := ch.Authorize(nil); err != nil {
		t.Fatalf("anonymous access to public channel: %v", err)
	}
}

func TestAuthorizeRequiresAuth(t *testing.T) {
	ch := New("lobby", KindGlobal)
	ch.Visibility = VisibilityAuth
	if err := ch.Authorize(nil); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	actor := uuid.New()
	if err := ch.Authorize(&actor); err != nil {
		t.Fatalf("authenticated access denied: %v", err)
	}
}

func TestAuthorizeMembership(t *testing.T) {
	member := uuid.New()
	stranger := uuid.New()
	ch := New("guild:iron", KindGuild)
	ch.Grant(member)

	if err := ch.Authorize(nil); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for anonymous, got %v", err)
	}
	if err := ch.Authorize(&stranger); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-member, got %v", err)
	}
	if err := ch.Authorize(&member); err != nil {
		t.Fatalf("member denied: %v", err)
	}
	// Denied attempts must not grant membership as a side effect.
	if _, ok := ch.Members[stranger]; ok {
		t.Fatal("failed authorization mutated membership")
	}
}

func TestNewCombat(t *testing.T) {
	instanceID := uuid.New()
	ch := NewCombat(instanceID)
	if ch.ID != CombatID(instanceID) {
		t.Fatalf("unexpected channel ID %q", ch.ID)
	}
	if ch.Kind != KindCombat || ch.Visibility != VisibilityMembership {
		t.Fatal("combat channels must be membership-gated")
	}
	if ch.OwnerInstanceID == nil || *ch.OwnerInstanceID != instanceID {
		t.Fatal("combat channel must record its owning instance")
	}
}
