package warehouse

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapetl/internal/entity"
)

// Schema is the persisted shape of one entity: its ordered non-metadata
// column list and its declared identity key. It is written once, on the
// first successful intake for the entity, and held fixed thereafter except
// for additive columns.
type Schema struct {
	Entity    string
	Columns   []string
	Keys      []string
	CreatedAt string
}

// GetSchema returns the registered schema for an entity, or nil if the
// entity has never been successfully ingested.
func (w *Warehouse) GetSchema(ctx context.Context, ent entity.Name) (*Schema, error) {
	rows, err := w.db.Query(ctx,
		fmt.Sprintf(`SELECT entity, columns, key_columns, created_at FROM %s WHERE entity = ?`, SchemaTable),
		ent.Base)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema registry: %w", err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		return nil, rows.Err()
	}

	var s Schema
	var colsJSON string
	var keysJSON, created sql.NullString
	if err := rows.Scan(&s.Entity, &colsJSON, &keysJSON, &created); err != nil {
		return nil, err
	}
	s.CreatedAt = created.String

	if err := json.Unmarshal([]byte(colsJSON), &s.Columns); err != nil {
		return nil, fmt.Errorf("corrupt column list for entity %s: %w", s.Entity, err)
	}
	if keysJSON.Valid && keysJSON.String != "" {
		if err := json.Unmarshal([]byte(keysJSON.String), &s.Keys); err != nil {
			return nil, fmt.Errorf("corrupt key list for entity %s: %w", s.Entity, err)
		}
	}
	return &s, nil
}

// PutSchema registers or replaces an entity's schema.
func (w *Warehouse) PutSchema(ctx context.Context, s *Schema) error {
	colsJSON, err := json.Marshal(s.Columns)
	if err != nil {
		return fmt.Errorf("failed to encode column list: %w", err)
	}
	keysJSON, err := json.Marshal(s.Keys)
	if err != nil {
		return fmt.Errorf("failed to encode key list: %w", err)
	}
	if s.CreatedAt == "" {
		s.CreatedAt = Now()
	}

	stmt := fmt.Sprintf(`INSERT INTO %s (entity, columns, key_columns, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (entity) DO UPDATE SET columns = excluded.columns, key_columns = excluded.key_columns`,
		SchemaTable)
	if err := w.db.Exec(ctx, stmt, s.Entity, string(colsJSON), string(keysJSON), s.CreatedAt); err != nil {
		return fmt.Errorf("failed to register schema for %s: %w", s.Entity, err)
	}
	return nil
}

// HasColumn reports whether the registered schema for an entity declares a
// column (case-insensitive). Returns false when the entity is unregistered.
func (w *Warehouse) HasColumn(ctx context.Context, ent entity.Name, col string) (bool, error) {
	s, err := w.GetSchema(ctx, ent)
	if err != nil || s == nil {
		return false, err
	}
	for _, c := range s.Columns {
		if strings.EqualFold(c, col) {
			return true, nil
		}
	}
	return false, nil
}
