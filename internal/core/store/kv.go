package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shoplens/shoplens/internal/core"
)

// GetValue returns the stored blob for a key, or nil when absent.
func (s *Store) GetValue(ctx context.Context, key string) ([]byte, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("store key is required")
	}

	var value []byte
	row := s.DB.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = ?`, key)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch stored value: %w", err)
	}
	return value, nil
}

// PutValue stores a blob under a key, replacing any previous value.
func (s *Store) PutValue(ctx context.Context, key string, value []byte) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("store key is required")
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO kv_store (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, value, time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("store value: %w", err)
	}
	return nil
}

// DeleteValue removes a key. Deleting an absent key is not an error.
func (s *Store) DeleteValue(ctx context.Context, key string) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("store key is required")
	}

	if _, err := s.DB.ExecContext(ctx, `DELETE FROM kv_store WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete stored value: %w", err)
	}
	return nil
}

// GetSetting returns a settings value, or empty string when absent.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	if s == nil || s.DB == nil {
		return "", errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	var value string
	row := s.DB.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, strings.TrimSpace(key))
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("fetch setting: %w", err)
	}
	return value, nil
}

// SetSetting stores a settings value, replacing any previous one.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("setting key is required")
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, value, time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("store setting: %w", err)
	}
	return nil
}

// persistence adapts the store to the core.Persistence port used by the
// cache snapshot and the notification log.
type persistence struct {
	store *Store
}

// Persistence returns the store's core.Persistence view.
func (s *Store) Persistence() core.Persistence {
	return &persistence{store: s}
}

func (p *persistence) Load(key string) ([]byte, error) {
	return p.store.GetValue(context.Background(), key)
}

func (p *persistence) Save(key string, value []byte) error {
	return p.store.PutValue(context.Background(), key, value)
}

func (p *persistence) Delete(key string) error {
	return p.store.DeleteValue(context.Background(), key)
}
