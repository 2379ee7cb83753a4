package database

import (
	"context"
	"fmt"
)

// ZoneTriggers returns the stored trigger owner names of a zone in the
// order they were added.
func (db *DB) ZoneTriggers(ctx context.Context, zone string) ([]string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.QueryContext(ctx, "SELECT owner FROM policy_triggers WHERE zone = ? ORDER BY id", zone)
	if err != nil {
		return nil, fmt.Errorf("failed to query triggers of %s: %w", zone, err)
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, fmt.Errorf("failed to scan trigger: %w", err)
		}
		owners = append(owners, owner)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating triggers: %w", err)
	}
	return owners, nil
}

// AddTrigger stores a trigger. Storing it twice is not an error.
func (db *DB) AddTrigger(ctx context.Context, zone, owner string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.ExecContext(ctx, "INSERT OR IGNORE INTO policy_triggers (zone, owner) VALUES (?, ?)", zone, owner)
	if err != nil {
		return fmt.Errorf("failed to add trigger %s to %s: %w", owner, zone, err)
	}
	return nil
}

// DeleteTrigger removes a stored trigger. Triggers that only come from a
// zone file are not stored, so a missing row is not an error.
func (db *DB) DeleteTrigger(ctx context.Context, zone, owner string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, err := db.conn.ExecContext(ctx, "DELETE FROM policy_triggers WHERE zone = ? AND owner = ?", zone, owner); err != nil {
		return fmt.Errorf("failed to delete trigger: %w", err)
	}
	return nil
}

// ReplaceZoneTriggers atomically replaces every stored trigger of a zone.
func (db *DB) ReplaceZoneTriggers(ctx context.Context, zone string, owners []string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM policy_triggers WHERE zone = ?", zone); err != nil {
		return fmt.Errorf("failed to clear triggers of %s: %w", zone, err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO policy_triggers (zone, owner) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare trigger insert: %w", err)
	}
	defer stmt.Close()

	for _, owner := range owners {
		if _, err := stmt.ExecContext(ctx, zone, owner); err != nil {
			return fmt.Errorf("failed to insert trigger %s: %w", owner, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit triggers: %w", err)
	}
	return nil
}

// ZoneCounts returns the number of stored triggers per zone.
func (db *DB) ZoneCounts(ctx context.Context) (map[string]int, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.QueryContext(ctx, "SELECT zone, COUNT(*) FROM policy_triggers GROUP BY zone")
	if err != nil {
		return nil, fmt.Errorf("failed to count triggers: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var zone string
		var n int
		if err := rows.Scan(&zone, &n); err != nil {
			return nil, fmt.Errorf("failed to scan trigger count: %w", err)
		}
		counts[zone] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trigger counts: %w", err)
	}
	return counts, nil
}
