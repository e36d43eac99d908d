package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/isdelr/signaldesk-be/internal/apperr"
	"github.com/isdelr/signaldesk-be/internal/models"
)

// SignalRepository implements SignalStore.
type SignalRepository struct {
	s *Store
}

const signalSelect = `
	SELECT s.id, s.coin_name, s.entry_price, s.target_price, s.stop_loss, s.note, s.chart_image,
		s.status, s.created_by, s.created_at, s.updated_at, u.username, u.display_name
	FROM signals s
	LEFT JOIN users u ON u.id = s.created_by`

// Create inserts a signal and returns it with its creator joined.
func (r *SignalRepository) Create(ctx context.Context, signal models.Signal) (models.Signal, error) {
	if !signal.Status.Valid() {
		return models.Signal{}, fmt.Errorf("create signal: %w: unknown status %q", apperr.ErrInvalidInput, signal.Status)
	}
	if signal.ID == "" {
		signal.ID = uuid.New().String()
	}
	if signal.CreatedAt.IsZero() {
		signal.CreatedAt = time.Now()
	}
	signal.CreatedAt = timestamp(signal.CreatedAt)
	signal.UpdatedAt = signal.CreatedAt

	_, err := r.s.exec(ctx, `
		INSERT INTO signals (id, coin_name, entry_price, target_price, stop_loss, note, chart_image, status, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		signal.ID, signal.Instrument, signal.EntryPrice, signal.TargetPrice, signal.StopLoss,
		nullString(signal.Note), nullString(signal.ChartImage), string(signal.Status), signal.OwnerID,
		signal.CreatedAt, signal.UpdatedAt,
	)
	if err != nil {
		return models.Signal{}, classify("create signal", err)
	}
	return r.Get(ctx, signal.ID)
}

// Get retrieves a single signal by ID.
func (r *SignalRepository) Get(ctx context.Context, id string) (models.Signal, error) {
	row := r.s.queryRow(ctx, signalSelect+` WHERE s.id = ?`, id)
	signal, err := scanSignal(row)
	if err != nil {
		return models.Signal{}, classify("get signal", err)
	}
	return signal, nil
}

// List returns signals matching filter, newest first.
func (r *SignalRepository) List(ctx context.Context, filter models.SignalFilter) ([]models.Signal, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "s.status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.OwnerID != "" {
		where = append(where, "s.created_by = ?")
		args = append(args, filter.OwnerID)
	}

	query := signalSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY s.created_at DESC, s.id DESC"

	rows, err := r.s.query(ctx, query, args...)
	if err != nil {
		return nil, classify("list signals", err)
	}
	defer rows.Close()

	signals := []models.Signal{}
	for rows.Next() {
		signal, err := scanSignal(rows)
		if err != nil {
			return nil, classify("scan signal", err)
		}
		signals = append(signals, signal)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate signals", err)
	}
	return signals, nil
}

// Update persists the market fields of a signal. Status and owner are left
// untouched.
func (r *SignalRepository) Update(ctx context.Context, signal models.Signal) error {
	if signal.UpdatedAt.IsZero() {
		signal.UpdatedAt = time.Now()
	}
	res, err := r.s.exec(ctx, `
		UPDATE signals
		SET coin_name = ?, entry_price = ?, target_price = ?, stop_loss = ?, note = ?, chart_image = ?, updated_at = ?
		WHERE id = ?`,
		signal.Instrument, signal.EntryPrice, signal.TargetPrice, signal.StopLoss,
		nullString(signal.Note), nullString(signal.ChartImage), timestamp(signal.UpdatedAt), signal.ID,
	)
	if err != nil {
		return classify("update signal", err)
	}
	return expectAffected("update signal", res)
}

// UpdateStatus sets the approval status of a signal.
func (r *SignalRepository) UpdateStatus(ctx context.Context, id string, status models.SignalStatus, at time.Time) error {
	if !status.Valid() {
		return fmt.Errorf("update signal status: %w: unknown status %q", apperr.ErrInvalidInput, status)
	}
	res, err := r.s.exec(ctx, `UPDATE signals SET status = ?, updated_at = ? WHERE id = ?`, string(status), timestamp(at), id)
	if err != nil {
		return classify("update signal status", err)
	}
	return expectAffected("update signal status", res)
}

// Delete removes a signal. Deleting a missing ID reports ErrNotFound.
func (r *SignalRepository) Delete(ctx context.Context, id string) error {
	res, err := r.s.exec(ctx, `DELETE FROM signals WHERE id = ?`, id)
	if err != nil {
		return classify("delete signal", err)
	}
	return expectAffected("delete signal", res)
}

// CountByStatus counts signals in the given status.
func (r *SignalRepository) CountByStatus(ctx context.Context, status models.SignalStatus) (int, error) {
	var count int
	if err := r.s.queryRow(ctx, `SELECT COUNT(*) FROM signals WHERE status = ?`, string(status)).Scan(&count); err != nil {
		return 0, classify("count signals", err)
	}
	return count, nil
}

func scanSignal(scanner interface{ Scan(...any) error }) (models.Signal, error) {
	var (
		signal                         models.Signal
		note, chart, username, display sql.NullString
		status                         string
	)
	err := scanner.Scan(
		&signal.ID, &signal.Instrument, &signal.EntryPrice, &signal.TargetPrice, &signal.StopLoss,
		&note, &chart, &status, &signal.OwnerID, &signal.CreatedAt, &signal.UpdatedAt,
		&username, &display,
	)
	if err != nil {
		return models.Signal{}, err
	}
	signal.Note = note.String
	signal.ChartImage = chart.String
	signal.Status = models.SignalStatus(status)
	signal.CreatedAt = signal.CreatedAt.UTC()
	signal.UpdatedAt = signal.UpdatedAt.UTC()
	if username.Valid {
		signal.Creator = &models.Creator{ID: signal.OwnerID, Username: username.String, DisplayName: display.String}
	}
	return signal, nil
}
