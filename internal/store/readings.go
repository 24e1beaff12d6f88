package store

import (
	"context"
	"fmt"
	"time"

	"github.com/mukhtiarDev/personal-health-monitor/internal/model"
)

// AppendReading inserts a new reading with status 'new' and returns its id.
// A zero Timestamp is replaced with the current time.
func (s *Store) AppendReading(ctx context.Context, r *model.MetricReading) (int64, error) {
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	var id int64
	err := s.q(ctx).QueryRowContext(ctx, `
		INSERT INTO metrics (timestamp, heart_rate, steps, status)
		VALUES ($1, $2, $3, 'new')
		RETURNING id`,
		ts, r.HeartRate, r.Steps,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("AppendReading: %w", err)
	}
	return id, nil
}

// ListReadings returns all readings with the given status, oldest first.
func (s *Store) ListReadings(ctx context.Context, status model.ReadingStatus) ([]model.MetricReading, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, timestamp, heart_rate, steps, status
		FROM metrics WHERE status = $1
		ORDER BY timestamp ASC, id ASC`, string(status))
	if err != nil {
		return nil, fmt.Errorf("ListReadings: %w", err)
	}
	defer rows.Close()

	var readings []model.MetricReading
	for rows.Next() {
		var r model.MetricReading
		var st string
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.HeartRate, &r.Steps, &st); err != nil {
			return nil, fmt.Errorf("ListReadings: %w", err)
		}
		r.Status = model.ReadingStatus(st)
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListReadings: %w", err)
	}
	return readings, nil
}

// MarkReadingProcessed moves a reading from 'new' to 'processed'.
// Returns false if the reading was not 'new' (already processed or missing).
func (s *Store) MarkReadingProcessed(ctx context.Context, id int64) (bool, error) {
	result, err := s.q(ctx).ExecContext(ctx,
		`UPDATE metrics SET status = 'processed' WHERE id = $1 AND status = 'new'`, id)
	if err != nil {
		return false, fmt.Errorf("MarkReadingProcessed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("MarkReadingProcessed: %w", err)
	}
	return n == 1, nil
}

// RecentReadings returns the latest `limit` readings in chronological order.
func (s *Store) RecentReadings(ctx context.Context, limit int) ([]model.MetricReading, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, timestamp, heart_rate, steps, status
		FROM metrics ORDER BY timestamp DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("RecentReadings: %w", err)
	}
	defer rows.Close()

	var readings []model.MetricReading
	for rows.Next() {
		var r model.MetricReading
		var st string
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.HeartRate, &r.Steps, &st); err != nil {
			return nil, fmt.Errorf("RecentReadings: %w", err)
		}
		r.Status = model.ReadingStatus(st)
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("RecentReadings: %w", err)
	}

	for i, j := 0, len(readings)-1; i < j; i, j = i+1, j-1 {
		readings[i], readings[j] = readings[j], readings[i]
	}
	return readings, nil
}
