package domain

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestSignStatusTransitions(t *testing.T) {
	all := []SignStatus{StatusUnscanned, StatusScanned, StatusSigned, StatusExpired}
	legal := map[SignStatus]map[SignStatus]bool{
		StatusUnscanned: {StatusScanned: true, StatusSigned: true, StatusExpired: true},
		StatusScanned:   {StatusSigned: true, StatusExpired: true},
		StatusSigned:    {},
		StatusExpired:   {},
	}
	for _, from := range all {
		for _, to := range all {
			want := legal[from][to]
			if got := from.CanTransitionTo(to); got != want {
				t.Fatalf("CanTransitionTo(%s -> %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestSignStatusTerminal(t *testing.T) {
	if StatusUnscanned.Terminal() || StatusScanned.Terminal() {
		t.Fatal("live states must not be terminal")
	}
	if !StatusSigned.Terminal() || !StatusExpired.Terminal() {
		t.Fatal("signed and expired must be terminal")
	}
}

func TestSignSessionExpiredAt(t *testing.T) {
	now := time.Now().UTC()

	live := &SignSession{Status: StatusUnscanned, ExpiresAt: now.Add(time.Minute)}
	if live.ExpiredAt(now) {
		t.Fatal("session within its window must not be expired")
	}
	if !live.ExpiredAt(now.Add(2 * time.Minute)) {
		t.Fatal("session past its window must be expired")
	}

	signed := &SignSession{Status: StatusSigned, ExpiresAt: now.Add(-time.Hour)}
	if signed.ExpiredAt(now) {
		t.Fatal("signed session never expires")
	}

	expired := &SignSession{Status: StatusExpired, ExpiresAt: now.Add(time.Hour)}
	if !expired.ExpiredAt(now) {
		t.Fatal("expired status is terminal regardless of the deadline")
	}
}

func TestSignSessionModelContracts(t *testing.T) {
	typ := reflect.TypeOf(SignSession{})

	id, ok := typ.FieldByName("ID")
	if !ok {
		t.Fatal("missing SignSession.ID field")
	}
	if !strings.Contains(id.Tag.Get("gorm"), "primaryKey") {
		t.Fatalf("SignSession.ID should be the primary key: %q", id.Tag.Get("gorm"))
	}
	if got := id.Tag.Get("json"); got != "session_ref" {
		t.Fatalf("SignSession.ID json tag mismatch: %q", got)
	}

	expires, ok := typ.FieldByName("ExpiresAt")
	if !ok {
		t.Fatal("missing SignSession.ExpiresAt field")
	}
	if !strings.Contains(expires.Tag.Get("gorm"), "index") {
		t.Fatalf("SignSession.ExpiresAt should be indexed: %q", expires.Tag.Get("gorm"))
	}

	archive, ok := typ.FieldByName("ArchiveObjectKey")
	if !ok {
		t.Fatal("missing SignSession.ArchiveObjectKey field")
	}
	if got := archive.Tag.Get("json"); got != "-" {
		t.Fatalf("SignSession.ArchiveObjectKey must stay out of API payloads: %q", got)
	}
}

func TestUserSignatureModelContracts(t *testing.T) {
	typ := reflect.TypeOf(UserSignature{})

	userID, ok := typ.FieldByName("UserID")
	if !ok {
		t.Fatal("missing UserSignature.UserID field")
	}
	if !strings.Contains(userID.Tag.Get("gorm"), "uniqueIndex") {
		t.Fatalf("UserSignature.UserID must be unique indexed: %q", userID.Tag.Get("gorm"))
	}

	image, ok := typ.FieldByName("SignatureBase64")
	if !ok {
		t.Fatal("missing UserSignature.SignatureBase64 field")
	}
	if !strings.Contains(image.Tag.Get("gorm"), "not null") {
		t.Fatalf("UserSignature.SignatureBase64 must be not null: %q", image.Tag.Get("gorm"))
	}
}
