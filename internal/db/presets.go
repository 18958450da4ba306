package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// PresetStore keeps named printer configurations. At most one is active;
// the surrounding application reads it to fill printerConfig on enqueue.
type PresetStore struct {
	db *sql.DB
}

func NewPresetStore(conn *sql.DB) *PresetStore {
	return &PresetStore{db: conn}
}

func (s *PresetStore) CreatePreset(ctx context.Context, p *PrinterPreset) error {
	if p.ConfigJSON == "" {
		p.ConfigJSON = "{}"
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if p.Active {
		if _, err := tx.ExecContext(ctx, ClearActivePresets); err != nil {
			return fmt.Errorf("failed to clear active preset: %w", err)
		}
	}

	result, err := tx.ExecContext(ctx, InsertPreset,
		p.Name, p.Type, p.Interface, p.ConfigJSON, p.Active, nowUTC())
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrPresetExists
		}
		return fmt.Errorf("failed to create printer preset: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get printer preset id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit printer preset: %w", err)
	}
	p.ID = id
	return nil
}

func (s *PresetStore) ListPresets(ctx context.Context) ([]*PrinterPreset, error) {
	rows, err := s.db.QueryContext(ctx, ListPresets)
	if err != nil {
		return nil, fmt.Errorf("failed to list printer presets: %w", err)
	}
	defer rows.Close()

	var presets []*PrinterPreset
	for rows.Next() {
		p, err := scanPreset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan printer preset: %w", err)
		}
		presets = append(presets, p)
	}
	return presets, rows.Err()
}

func (s *PresetStore) GetPreset(ctx context.Context, id int64) (*PrinterPreset, error) {
	p, err := scanPreset(s.db.QueryRowContext(ctx, GetPresetByID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPresetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get printer preset: %w", err)
	}
	return p, nil
}

func (s *PresetStore) ActivePreset(ctx context.Context) (*PrinterPreset, error) {
	p, err := scanPreset(s.db.QueryRowContext(ctx, GetActivePreset))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPresetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active printer preset: %w", err)
	}
	return p, nil
}

func (s *PresetStore) ActivatePreset(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, ClearActivePresets); err != nil {
		return fmt.Errorf("failed to clear active preset: %w", err)
	}
	result, err := tx.ExecContext(ctx, ActivatePreset, id)
	if err != nil {
		return fmt.Errorf("failed to activate printer preset: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrPresetNotFound
	}
	return tx.Commit()
}

func scanPreset(row rowScanner) (*PrinterPreset, error) {
	p := &PrinterPreset{}
	if err := row.Scan(&p.ID, &p.Name, &p.Type, &p.Interface, &p.ConfigJSON, &p.Active, &p.CreatedAt); err != nil {
		return nil, err
	}
	return p, nil
}
