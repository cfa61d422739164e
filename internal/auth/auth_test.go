package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/dentops/chairside/internal/clinic"
	"github.com/dentops/chairside/internal/remote"
	"github.com/dentops/chairside/internal/store"
)

const testSecret = "test-signing-secret"

func TestSessionTokenRoundtrip(t *testing.T) {
	token, err := NewSessionToken(testSecret, "op-1", "clinic-1", time.Hour)
	if err != nil {
		t.Fatalf("NewSessionToken() failed: %v", err)
	}

	claims, err := ParseSessionToken(testSecret, token)
	if err != nil {
		t.Fatalf("ParseSessionToken() failed: %v", err)
	}
	if claims.OperatorID != "op-1" || claims.ClinicID != "clinic-1" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, err := NewSessionToken(testSecret, "op-1", "clinic-1", time.Hour)
	if err != nil {
		t.Fatalf("NewSessionToken() failed: %v", err)
	}
	if _, err := ParseSessionToken("other-secret", token); err == nil {
		t.Error("token verified with the wrong secret")
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	token, err := NewSessionToken(testSecret, "op-1", "clinic-1", -time.Minute)
	if err != nil {
		t.Fatalf("NewSessionToken() failed: %v", err)
	}
	if _, err := ParseSessionToken(testSecret, token); err == nil {
		t.Error("expired token verified")
	}
}

func newTestResolver(t *testing.T, online *bool) (*Resolver, *store.Store, *remote.Memory) {
	t.Helper()
	local, err := store.Open(filepath.Join(t.TempDir(), "cache.db"), nil)
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = local.Close() })

	mem := remote.NewMemory()
	r := NewResolver(local, mem, func() bool { return *online }, testSecret, nil)
	return r, local, mem
}

func TestLoginCachesOperator(t *testing.T) {
	online := true
	r, local, mem := newTestResolver(t, &online)
	ctx := context.Background()

	mem.AddOperator(&clinic.Operator{
		SyncMeta: clinic.SyncMeta{ID: "op-1", ClinicID: "clinic-1", SyncStatus: clinic.StatusSynced},
		Name:     "Dr Kone",
		Email:    "kone@example.test",
		Role:     "dentist",
	}, "s3cret")

	token, op, err := r.Login(ctx, "kone@example.test", "s3cret")
	if err != nil {
		t.Fatalf("Login() failed: %v", err)
	}
	if token == "" || op.ID != "op-1" {
		t.Fatalf("unexpected login result: token=%q op=%+v", token, op)
	}

	cached, err := local.GetOperator(ctx, "op-1")
	if err != nil {
		t.Fatalf("operator not cached after login: %v", err)
	}
	if cached.Email != "kone@example.test" {
		t.Errorf("cached operator = %+v", cached)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	online := true
	r, _, mem := newTestResolver(t, &online)

	mem.AddOperator(&clinic.Operator{
		SyncMeta: clinic.SyncMeta{ID: "op-1", ClinicID: "clinic-1", SyncStatus: clinic.StatusSynced},
		Name:     "Dr Kone",
		Email:    "kone@example.test",
	}, "s3cret")

	if _, _, err := r.Login(context.Background(), "kone@example.test", "wrong"); !errors.Is(err, remote.ErrInvalidCredentials) {
		t.Errorf("Login(bad password) = %v, want ErrInvalidCredentials", err)
	}
}

func TestCurrentOperatorFallsBackToCachedSession(t *testing.T) {
	online := false
	r, local, _ := newTestResolver(t, &online)
	ctx := context.Background()

	// The operator was cached during an earlier online login.
	if err := local.PutOperator(ctx, &clinic.Operator{
		SyncMeta: clinic.SyncMeta{ID: "op-1", ClinicID: "clinic-1", SyncStatus: clinic.StatusSynced},
		Name:     "Dr Kone",
		Email:    "kone@example.test",
		Role:     "dentist",
	}); err != nil {
		t.Fatalf("seed operator: %v", err)
	}

	token, err := NewSessionToken(testSecret, "op-1", "clinic-1", time.Hour)
	if err != nil {
		t.Fatalf("NewSessionToken() failed: %v", err)
	}

	op, err := r.CurrentOperator(ctx, token)
	if err != nil {
		t.Fatalf("CurrentOperator() offline failed: %v", err)
	}
	if op.ID != "op-1" || op.Role != "dentist" {
		t.Errorf("resolved operator = %+v", op)
	}
}

func TestCurrentOperatorOfflineWithoutCacheFails(t *testing.T) {
	online := false
	r, _, _ := newTestResolver(t, &online)

	token, err := NewSessionToken(testSecret, "op-ghost", "clinic-1", time.Hour)
	if err != nil {
		t.Fatalf("NewSessionToken() failed: %v", err)
	}

	if _, err := r.CurrentOperator(context.Background(), token); !errors.Is(err, ErrNoCachedOperator) {
		t.Errorf("CurrentOperator() = %v, want ErrNoCachedOperator", err)
	}
}

func TestCurrentOperatorOfflineRejectsForgedToken(t *testing.T) {
	online := false
	r, _, _ := newTestResolver(t, &online)

	forged, err := NewSessionToken("attacker-secret", "op-1", "clinic-1", time.Hour)
	if err != nil {
		t.Fatalf("NewSessionToken() failed: %v", err)
	}
	if _, err := r.CurrentOperator(context.Background(), forged); err == nil {
		t.Error("forged token resolved an operator")
	}
}
