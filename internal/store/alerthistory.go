package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fieldwatch/fieldwatch/internal/alerts"
)

// AlertHistory persists resolved alerts as JSON snapshots. It implements
// alerts.HistoryStore.
type AlertHistory struct {
	db *DB
}

// NewAlertHistory creates a history adapter over an open store.
func NewAlertHistory(db *DB) *AlertHistory {
	return &AlertHistory{db: db}
}

// SaveResolved inserts a resolved alert snapshot. Saving the same alert id
// twice replaces the earlier row.
func (h *AlertHistory) SaveResolved(a *alerts.Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode alert %s: %w", a.ID, err)
	}

	resolvedAt := time.Time{}
	if a.ResolvedAt != nil {
		resolvedAt = *a.ResolvedAt
	}

	_, err = h.db.ExecContext(context.Background(), `
		INSERT OR REPLACE INTO alert_history (id, priority, category, created_at, resolved_at, snapshot)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, string(a.Priority), string(a.Category),
		a.CreatedAt.UnixMilli(), resolvedAt.UnixMilli(), string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to save alert %s: %w", a.ID, err)
	}
	return nil
}

// LoadHistory returns up to limit resolved alerts, newest first.
func (h *AlertHistory) LoadHistory(limit int) ([]*alerts.Alert, error) {
	if limit <= 0 {
		limit = 1000
	}

	rows, err := h.db.QueryContext(context.Background(), `
		SELECT snapshot FROM alert_history
		ORDER BY resolved_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load alert history: %w", err)
	}
	defer rows.Close()

	var out []*alerts.Alert
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var a alerts.Alert
		if err := json.Unmarshal([]byte(payload), &a); err != nil {
			h.db.logger.Warn("Skipping undecodable history row", "error", err)
			continue
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// Prune deletes history rows older than the cutoff and returns how many
// were removed.
func (h *AlertHistory) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var affected int64
	err := h.db.Transaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM alert_history WHERE resolved_at < ?`, cutoff.UnixMilli())
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune alert history: %w", err)
	}
	return affected, nil
}
