package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

const defaultAccountName = "user"

type Account struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// ResolveOrCreateAccount returns the account with the given id, provisioning
// it from email when it does not exist yet. Existing accounts are never
// modified.
func (s *Storage) ResolveOrCreateAccount(ctx context.Context, id, email string) (*Account, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		a       *Account
		created bool
	)
	err := s.inTx(ctx, "resolve account", func(tx *sql.Tx) error {
		var err error
		a, created, err = resolveOrCreate(ctx, tx, id, email)
		return err
	})
	if err != nil {
		return nil, err
	}
	if created {
		s.provisioned(*a)
	}
	return a, nil
}

// GetAccount returns nil, nil when no account has the given id.
func (s *Storage) GetAccount(ctx context.Context, id string) (*Account, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	a, err := getAccountByID(ctx, s.db, id)
	if err != nil {
		return nil, storageError("get account", err)
	}
	return a, nil
}

func (s *Storage) provisioned(a Account) {
	if s.onProvision != nil {
		s.onProvision(a)
	}
}

func resolveOrCreate(ctx context.Context, q querier, id, email string) (*Account, bool, error) {
	a, err := getAccountByID(ctx, q, id)
	if err != nil {
		return nil, false, storageError("get account", err)
	}
	if a != nil {
		return a, false, nil
	}

	email = strings.TrimSpace(email)
	if email == "" {
		return nil, false, ErrMissingIdentityInfo
	}

	query := `INSERT INTO accounts (id, email, name)
			  VALUES ($1, $2, $3)
			  ON CONFLICT (id) DO NOTHING`
	res, err := q.ExecContext(ctx, query, id, email, nameFromEmail(email))
	if err != nil {
		return nil, false, storageError("create account", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, storageError("create account", err)
	}

	// A concurrent request may have provisioned the same identity first.
	a, err = getAccountByID(ctx, q, id)
	if err != nil {
		return nil, false, storageError("get account", err)
	}
	if a == nil {
		return nil, false, storageError("create account", errors.New("account vanished after insert"))
	}
	return a, n > 0, nil
}

func getAccountByID(ctx context.Context, q querier, id string) (*Account, error) {
	query := `SELECT id, email, name
			  FROM accounts
			  WHERE id = $1`
	row := q.QueryRowContext(ctx, query, id)
	var a Account
	err := row.Scan(&a.ID, &a.Email, &a.Name)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, nil
		default:
			return nil, err
		}
	}
	return &a, nil
}

func nameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	if local = strings.TrimSpace(local); local == "" {
		return defaultAccountName
	}
	return local
}
