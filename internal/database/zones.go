package database

import (
	"database/sql"
	"fmt"

	"github.com/jroosing/minidns/internal/zone"
)

var _ zone.Store = (*DB)(nil)

// Load reads every zone and its records.
func (db *DB) Load() ([]zone.Snapshot, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`
		SELECT name, primary_ns, admin, serial, refresh, retry, expire, minimum
		FROM zones
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query zones: %w", err)
	}
	defer rows.Close()

	var snaps []zone.Snapshot
	index := make(map[string]int)
	for rows.Next() {
		var s zone.Snapshot
		if err := rows.Scan(&s.Name, &s.SOA.Primary, &s.SOA.Admin, &s.SOA.Serial,
			&s.SOA.Refresh, &s.SOA.Retry, &s.SOA.Expire, &s.SOA.Minimum); err != nil {
			return nil, fmt.Errorf("failed to scan zone: %w", err)
		}
		index[s.Name] = len(snaps)
		snaps = append(snaps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating zones: %w", err)
	}

	recRows, err := db.conn.Query("SELECT zone, name, type, value FROM records ORDER BY zone, name")
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer recRows.Close()

	for recRows.Next() {
		var zoneName string
		var rec zone.Record
		if err := recRows.Scan(&zoneName, &rec.Name, &rec.Type, &rec.Value); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		i, ok := index[zoneName]
		if !ok {
			continue // orphan left behind by a non-cascading delete
		}
		snaps[i].Records = append(snaps[i].Records, rec)
	}
	if err := recRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return snaps, nil
}

// AddZone inserts a new zone row.
func (db *DB) AddZone(name string, soa zone.SOA) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	query := `
		INSERT INTO zones (name, primary_ns, admin, serial, refresh, retry, expire, minimum)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.conn.Exec(query, name, soa.Primary, soa.Admin, soa.Serial,
		soa.Refresh, soa.Retry, soa.Expire, soa.Minimum)
	if err != nil {
		return fmt.Errorf("failed to add zone %s: %w", name, err)
	}
	return nil
}

// RemoveZone deletes a zone and all of its records in one transaction.
func (db *DB) RemoveZone(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM records WHERE zone = ?", name); err != nil {
		return fmt.Errorf("failed to delete records of %s: %w", name, err)
	}
	result, err := tx.Exec("DELETE FROM zones WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("failed to delete zone %s: %w", name, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("zone %s: %w", name, zone.ErrZoneNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit zone removal: %w", err)
	}
	return nil
}

// PutRecord inserts or replaces a record and stores the new zone serial.
func (db *DB) PutRecord(zoneName string, rec zone.Record, serial uint32) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO records (zone, name, type, value, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(zone, name) DO UPDATE SET
			type = excluded.type,
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := tx.Exec(query, zoneName, rec.Name, rec.Type, rec.Value); err != nil {
		return fmt.Errorf("failed to put record %s in %s: %w", rec.Name, zoneName, err)
	}
	if err := bumpSerial(tx, zoneName, serial); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit record: %w", err)
	}
	return nil
}

// DeleteRecord removes a record and stores the new zone serial.
func (db *DB) DeleteRecord(zoneName, name string, serial uint32) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec("DELETE FROM records WHERE zone = ? AND name = ?", zoneName, name)
	if err != nil {
		return fmt.Errorf("failed to delete record %s in %s: %w", name, zoneName, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s in %s: %w", name, zoneName, zone.ErrRecordNotFound)
	}
	if err := bumpSerial(tx, zoneName, serial); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit record deletion: %w", err)
	}
	return nil
}

type txExec interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func bumpSerial(tx txExec, zoneName string, serial uint32) error {
	_, err := tx.Exec("UPDATE zones SET serial = ?, updated_at = CURRENT_TIMESTAMP WHERE name = ?", serial, zoneName)
	if err != nil {
		return fmt.Errorf("failed to update serial of %s: %w", zoneName, err)
	}
	return nil
}
