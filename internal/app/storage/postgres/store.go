// Package postgres implements the storage interfaces backed by
// PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/agency"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.AgencyStore = (*Store)(nil)
var _ storage.UserStore = (*Store)(nil)
var _ storage.PositionStore = (*Store)(nil)
var _ storage.CarrierStore = (*Store)(nil)
var _ storage.ClientStore = (*Store)(nil)
var _ storage.DealStore = (*Store)(nil)
var _ storage.MessagingStore = (*Store)(nil)
var _ storage.NIPRStore = (*Store)(nil)
var _ storage.BillingStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// --- AgencyStore ------------------------------------------------------------

func (s *Store) CreateAgency(ctx context.Context, a agency.Agency) (agency.Agency, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = "active"
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agencies (id, name, phone_number, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, a.ID, a.Name, nullString(a.PhoneNumber), a.Status, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return agency.Agency{}, err
	}
	return a, nil
}

func (s *Store) UpdateAgency(ctx context.Context, a agency.Agency) (agency.Agency, error) {
	a.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE agencies
		SET name = $2, phone_number = $3, status = $4, updated_at = $5
		WHERE id = $1
	`, a.ID, a.Name, nullString(a.PhoneNumber), a.Status, a.UpdatedAt)
	if err != nil {
		return agency.Agency{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return agency.Agency{}, sql.ErrNoRows
	}
	return a, nil
}

func (s *Store) GetAgency(ctx context.Context, id string) (agency.Agency, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone_number, status, created_at, updated_at
		FROM agencies
		WHERE id = $1
	`, id)
	return scanAgency(row)
}

func (s *Store) GetAgencyByPhone(ctx context.Context, phone string) (agency.Agency, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone_number, status, created_at, updated_at
		FROM agencies
		WHERE phone_number = $1
	`, phone)
	return scanAgency(row)
}

func (s *Store) DeleteAgency(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM agencies WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAgency(row rowScanner) (agency.Agency, error) {
	var (
		a     agency.Agency
		phone sql.NullString
	)
	if err := row.Scan(&a.ID, &a.Name, &phone, &a.Status, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return agency.Agency{}, err
	}
	a.PhoneNumber = phone.String
	return a, nil
}

// --- shared scan/convert helpers --------------------------------------------

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullString(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// toNullDate parses a YYYY-MM-DD string for a DATE column.
func toNullDate(s string) sql.NullTime {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullTime{}
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func dateString(t sql.NullTime) string {
	if !t.Valid {
		return ""
	}
	return t.Time.Format("2006-01-02")
}

func timeOrZero(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}
