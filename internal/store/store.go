package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/ovms-bridge/internal/entity"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// History sources.
const (
	SourceMQTT    = "mqtt"
	SourceCommand = "command"
)

// Store is the SQLite-backed snapshot and history store for one vehicle.
// It is safe for concurrent use.
type Store struct {
	db        *sql.DB
	vehicleID string
	now       func() time.Time

	mu   sync.Mutex
	last map[string]string
}

// New creates a store on an open, migrated database.
//
// Parameters:
//   - db: Open SQLite connection with the bridge schema applied
//   - vehicleID: Vehicle whose rows this store owns
func New(db *sql.DB, vehicleID string) *Store {
	return &Store{
		db:        db,
		vehicleID: vehicleID,
		now:       time.Now,
		last:      make(map[string]string),
	}
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", value, err)
	}
	return t, nil
}

// =============================================================================
// Snapshot
// =============================================================================

// SaveSnapshot replaces the stored objects of this vehicle with objs and
// upserts the device record, in one transaction.
//
// Returns:
//   - int: Number of objects written
//   - error: Encoding or database failure; nothing is written on error
func (s *Store) SaveSnapshot(ctx context.Context, objs []*entity.Object, device entity.DeviceInfo) (int, error) {
	savedAt := s.timestamp()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting snapshot: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM objects WHERE vehicle_id = ?", s.vehicleID); err != nil {
		return 0, fmt.Errorf("clearing snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO objects
			(id, vehicle_id, topic, type, category, name, unit, value, attributes, available, updated_at, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("preparing snapshot insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range objs {
		value, err := json.Marshal(o.Value)
		if err != nil {
			return 0, fmt.Errorf("encoding value of %s: %w", o.ID, err)
		}
		attrs := o.Attributes
		if attrs == nil {
			attrs = map[string]any{}
		}
		attrJSON, err := json.Marshal(attrs)
		if err != nil {
			return 0, fmt.Errorf("encoding attributes of %s: %w", o.ID, err)
		}
		_, err = stmt.ExecContext(ctx,
			o.ID, s.vehicleID, o.Topic, string(o.Type), o.Category, o.Name, o.Unit,
			string(value), string(attrJSON), o.Available,
			o.UpdatedAt.UTC().Format(timeLayout), savedAt)
		if err != nil {
			return 0, fmt.Errorf("inserting %s: %w", o.ID, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO device (identifier, name, manufacturer, model, sw_version, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(identifier) DO UPDATE SET
			name = excluded.name,
			manufacturer = excluded.manufacturer,
			model = excluded.model,
			sw_version = excluded.sw_version,
			updated_at = excluded.updated_at`,
		device.Identifier, device.Name, device.Manufacturer, device.Model,
		device.SoftwareVersion, device.UpdatedAt.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("saving device: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing snapshot: %w", err)
	}
	return len(objs), nil
}

// DeleteObject removes an object from the snapshot and, when withHistory is
// set, its state history as well.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - id: Object identifier
//   - withHistory: Also delete the object's state_history rows
//
// Returns:
//   - error: ErrObjectIDRequired or the database error
func (s *Store) DeleteObject(ctx context.Context, id string, withHistory bool) error {
	if id == "" {
		return ErrObjectIDRequired
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting delete: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM objects WHERE vehicle_id = ? AND id = ?", s.vehicleID, id); err != nil {
		return fmt.Errorf("deleting object %s: %w", id, err)
	}
	if withHistory {
		if _, err := tx.ExecContext(ctx, "DELETE FROM state_history WHERE object_id = ?", id); err != nil {
			return fmt.Errorf("deleting history of %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delete: %w", err)
	}

	// A re-created object records its first value again.
	s.mu.Lock()
	delete(s.last, id)
	s.mu.Unlock()
	return nil
}

// LoadObjects returns the last snapshot of this vehicle ordered by id.
// Values come back in their JSON shape (numbers as float64, fixes as maps).
func (s *Store) LoadObjects(ctx context.Context) ([]*entity.Object, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, topic, type, category, name, unit, value, attributes, available, updated_at
		FROM objects WHERE vehicle_id = ? ORDER BY id`, s.vehicleID)
	if err != nil {
		return nil, fmt.Errorf("querying snapshot: %w", err)
	}
	defer rows.Close()

	var objs []*entity.Object
	for rows.Next() {
		var (
			o                 entity.Object
			typ               string
			value, attrs, upd string
		)
		if err := rows.Scan(&o.ID, &o.Topic, &typ, &o.Category, &o.Name, &o.Unit,
			&value, &attrs, &o.Available, &upd); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		o.Type = entity.Type(typ)
		if err := json.Unmarshal([]byte(value), &o.Value); err != nil {
			return nil, fmt.Errorf("decoding value of %s: %w", o.ID, err)
		}
		if err := json.Unmarshal([]byte(attrs), &o.Attributes); err != nil {
			return nil, fmt.Errorf("decoding attributes of %s: %w", o.ID, err)
		}
		if o.UpdatedAt, err = parseTime(upd); err != nil {
			return nil, err
		}
		objs = append(objs, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshot: %w", err)
	}
	return objs, nil
}

// LoadDevice returns the stored device record, or false if none was saved.
func (s *Store) LoadDevice(ctx context.Context, identifier string) (entity.DeviceInfo, bool, error) {
	var (
		d   entity.DeviceInfo
		upd string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT identifier, name, manufacturer, model, sw_version, updated_at
		FROM device WHERE identifier = ?`, identifier).
		Scan(&d.Identifier, &d.Name, &d.Manufacturer, &d.Model, &d.SoftwareVersion, &upd)
	if err == sql.ErrNoRows {
		return entity.DeviceInfo{}, false, nil
	}
	if err != nil {
		return entity.DeviceInfo{}, false, fmt.Errorf("querying device: %w", err)
	}
	if d.UpdatedAt, err = parseTime(upd); err != nil {
		return entity.DeviceInfo{}, false, err
	}
	return d, true, nil
}
