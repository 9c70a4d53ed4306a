package storage

import (
	"context"
	"errors"
	"testing"
)

func TestNameFromEmail(t *testing.T) {
	tests := []struct {
		email string
		want  string
	}{
		{"u1@x.com", "u1"},
		{"jane.doe@example.org", "jane.doe"},
		{"@example.org", "user"},
		{"no-at-sign", "no-at-sign"},
	}
	for _, tt := range tests {
		if got := nameFromEmail(tt.email); got != tt.want {
			t.Errorf("nameFromEmail(%q) = %q, want %q", tt.email, got, tt.want)
		}
	}
}

func TestResolveOrCreateAccount(t *testing.T) {
	var provisioned []Account
	s := newTestStorage(t, WithProvisionHook(func(a Account) {
		provisioned = append(provisioned, a)
	}))
	ctx := context.Background()

	a, err := s.ResolveOrCreateAccount(ctx, "u1", "u1@x.com")
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	want := Account{ID: "u1", Email: "u1@x.com", Name: "u1"}
	if *a != want {
		t.Errorf("got %+v, want %+v", *a, want)
	}
	if len(provisioned) != 1 || provisioned[0] != want {
		t.Errorf("provision hook saw %+v, want one call with %+v", provisioned, want)
	}

	// Existing accounts are returned unchanged, whatever email is supplied.
	a, err = s.ResolveOrCreateAccount(ctx, "u1", "other@x.com")
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if *a != want {
		t.Errorf("existing account changed: got %+v", *a)
	}
	a, err = s.ResolveOrCreateAccount(ctx, "u1", "")
	if err != nil || *a != want {
		t.Errorf("resolve without email = %+v, %v", a, err)
	}
	if len(provisioned) != 1 {
		t.Errorf("provision hook called %d times, want 1", len(provisioned))
	}
}

func TestResolveOrCreateAccountMissingEmail(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	_, err := s.ResolveOrCreateAccount(ctx, "ghost", "  ")
	if !errors.Is(err, ErrMissingIdentityInfo) {
		t.Fatalf("got %v, want ErrMissingIdentityInfo", err)
	}

	a, err := s.GetAccount(ctx, "ghost")
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if a != nil {
		t.Errorf("account was created: %+v", a)
	}
}
