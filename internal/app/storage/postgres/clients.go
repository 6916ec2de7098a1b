package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/client"
)

const clientColumns = `id, agency_id, agent_id, first_name, last_name, email, phone, address, date_of_birth, created_at, updated_at`

func (s *Store) CreateClient(ctx context.Context, c client.Client) (client.Client, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (`+clientColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, c.ID, c.AgencyID, nullString(c.AgentID), c.FirstName, c.LastName,
		nullString(c.Email), nullString(c.Phone), nullString(c.Address),
		toNullDate(c.DateOfBirth), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return client.Client{}, err
	}
	return c, nil
}

func (s *Store) UpdateClient(ctx context.Context, c client.Client) (client.Client, error) {
	c.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE clients
		SET agent_id = $2, first_name = $3, last_name = $4, email = $5,
		    phone = $6, address = $7, date_of_birth = $8, updated_at = $9
		WHERE id = $1
	`, c.ID, nullString(c.AgentID), c.FirstName, c.LastName, nullString(c.Email),
		nullString(c.Phone), nullString(c.Address), toNullDate(c.DateOfBirth), c.UpdatedAt)
	if err != nil {
		return client.Client{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return client.Client{}, sql.ErrNoRows
	}
	return c, nil
}

func (s *Store) GetClient(ctx context.Context, id, agencyID string) (client.Client, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+clientColumns+` FROM clients WHERE id = $1 AND agency_id = $2
	`, id, agencyID)
	return scanClient(row)
}

func (s *Store) ListClients(ctx context.Context, agencyID string, agentIDs []string) ([]client.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE agency_id = $1`
	args := []any{agencyID}
	if len(agentIDs) > 0 {
		query += ` AND agent_id = ANY($2)`
		args = append(args, pq.Array(agentIDs))
	}
	query += ` ORDER BY last_name, first_name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []client.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *Store) DeleteClient(ctx context.Context, id, agencyID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM clients WHERE id = $1 AND agency_id = $2`, id, agencyID)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// FindClientByPhone matches on the stored phone within an agency. Callers are
// expected to normalize the number before lookup.
func (s *Store) FindClientByPhone(ctx context.Context, agencyID, phone string) (client.Client, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+clientColumns+` FROM clients
		WHERE agency_id = $1 AND phone = $2
		LIMIT 1
	`, agencyID, phone)
	return scanClient(row)
}

func scanClient(row rowScanner) (client.Client, error) {
	var (
		c       client.Client
		agentID sql.NullString
		email   sql.NullString
		phone   sql.NullString
		address sql.NullString
		dob     sql.NullTime
	)
	err := row.Scan(&c.ID, &c.AgencyID, &agentID, &c.FirstName, &c.LastName,
		&email, &phone, &address, &dob, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return client.Client{}, err
	}
	c.AgentID = agentID.String
	c.Email = email.String
	c.Phone = phone.String
	c.Address = address.String
	c.DateOfBirth = dateString(dob)
	return c, nil
}
