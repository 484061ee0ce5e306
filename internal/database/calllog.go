package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ashwinrayaprolu/web-communication-platform/internal/database/models"
)

// callLogRepo implements CallLogRepository.
type callLogRepo struct {
	db *DB
}

// NewCallLogRepository creates a new CallLogRepository.
func NewCallLogRepository(db *DB) CallLogRepository {
	return &callLogRepo{db: db}
}

// Log inserts a new call log row.
func (r *callLogRepo) Log(ctx context.Context, log *models.CallLog) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO call_logs (call_id, from_number, to_number, status, room_name, start_time)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		log.CallID, log.FromNumber, log.ToNumber, log.Status, log.RoomName, log.StartTime,
	)
	if err != nil {
		return fmt.Errorf("inserting call log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	log.ID = id
	return nil
}

// Finalize stamps end time, duration and the final status on a call row.
// The duration is computed in SQL from the stored start time.
func (r *callLogRepo) Finalize(ctx context.Context, callID, status string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE call_logs
		 SET status = ?,
		     end_time = datetime('now'),
		     duration = CAST((julianday('now') - julianday(start_time)) * 86400 AS INTEGER)
		 WHERE call_id = ?`,
		status, callID,
	)
	if err != nil {
		return fmt.Errorf("finalizing call log: %w", err)
	}
	return nil
}

// GetByCallID returns a call log row, or nil if none exists.
func (r *callLogRepo) GetByCallID(ctx context.Context, callID string) (*models.CallLog, error) {
	var c models.CallLog
	err := r.db.QueryRowContext(ctx,
		`SELECT id, call_id, from_number, to_number, status, room_name,
		 start_time, end_time, duration
		 FROM call_logs WHERE call_id = ?`, callID,
	).Scan(&c.ID, &c.CallID, &c.FromNumber, &c.ToNumber, &c.Status, &c.RoomName,
		&c.StartTime, &c.EndTime, &c.Duration)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning call log: %w", err)
	}
	return &c, nil
}

// ListRecent returns the most recent call logs up to the given limit.
func (r *callLogRepo) ListRecent(ctx context.Context, limit int) ([]models.CallLog, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, call_id, from_number, to_number, status, room_name,
		 start_time, end_time, duration
		 FROM call_logs ORDER BY start_time DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing call logs: %w", err)
	}
	defer rows.Close()

	var logs []models.CallLog
	for rows.Next() {
		var c models.CallLog
		if err := rows.Scan(&c.ID, &c.CallID, &c.FromNumber, &c.ToNumber, &c.Status,
			&c.RoomName, &c.StartTime, &c.EndTime, &c.Duration); err != nil {
			return nil, fmt.Errorf("scanning call log row: %w", err)
		}
		logs = append(logs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating call log rows: %w", err)
	}

	return logs, nil
}

// CountByStatus returns call counts grouped by status.
func (r *callLogRepo) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM call_logs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting call logs: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning status count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating status counts: %w", err)
	}

	return counts, nil
}

// CountSince returns the number of calls started at or after the given
// SQLite datetime expression (e.g. "date('now')" resolved by the caller
// to a concrete timestamp string).
func (r *callLogRepo) CountSince(ctx context.Context, since string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM call_logs WHERE start_time >= ?`, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting calls since %s: %w", since, err)
	}
	return count, nil
}
