package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/messaging"
)

const conversationColumns = `id, agency_id, agent_id, deal_id, client_phone, sms_opt_in_status, is_active, created_at, updated_at`

func (s *Store) CreateConversation(ctx context.Context, c messaging.Conversation) (messaging.Conversation, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.SMSOptInStatus == "" {
		c.SMSOptInStatus = messaging.OptInPending
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (`+conversationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, c.ID, c.AgencyID, c.AgentID, nullString(c.DealID), c.ClientPhone,
		c.SMSOptInStatus, c.IsActive, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return messaging.Conversation{}, err
	}
	return c, nil
}

func (s *Store) GetConversation(ctx context.Context, id, agencyID string) (messaging.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+` FROM conversations WHERE id = $1 AND agency_id = $2
	`, id, agencyID)
	return scanConversation(row)
}

func (s *Store) FindConversationByPhone(ctx context.Context, agencyID, phone string) (messaging.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE agency_id = $1 AND client_phone = $2 AND is_active
		ORDER BY updated_at DESC
		LIMIT 1
	`, agencyID, phone)
	return scanConversation(row)
}

func (s *Store) ListConversations(ctx context.Context, agencyID string, agentIDs []string) ([]messaging.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE agency_id = $1`
	args := []any{agencyID}
	if len(agentIDs) > 0 {
		query += ` AND agent_id = ANY($2)`
		args = append(args, pq.Array(agentIDs))
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []messaging.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *Store) SetOptInStatus(ctx context.Context, id, status string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET sms_opt_in_status = $2, updated_at = NOW() WHERE id = $1
	`, id, status)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) UpdateConversationPhone(ctx context.Context, dealID, phone string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET client_phone = $2, updated_at = NOW()
		WHERE deal_id = $1 AND is_active
	`, dealID, phone)
	return err
}

func (s *Store) CreateMessage(ctx context.Context, m messaging.Message) (messaging.Message, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = messaging.StatusPending
	}
	m.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, agency_id, direction, status, body, external_id, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, m.ID, m.ConversationID, m.AgencyID, m.Direction, m.Status, m.Body,
		nullString(m.ExternalID), nullString(m.ErrorMessage), m.CreatedAt)
	if err != nil {
		return messaging.Message{}, err
	}

	// Keep the thread ordering fresh for inbox listings.
	_, _ = s.db.ExecContext(ctx, `UPDATE conversations SET updated_at = NOW() WHERE id = $1`, m.ConversationID)
	return m, nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]messaging.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, agency_id, direction, status, body, external_id, error_message, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []messaging.Message
	for rows.Next() {
		var (
			m          messaging.Message
			externalID sql.NullString
			errMsg     sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.AgencyID, &m.Direction, &m.Status, &m.Body, &externalID, &errMsg, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.ExternalID = externalID.String
		m.ErrorMessage = errMsg.String
		result = append(result, m)
	}
	return result, rows.Err()
}

func (s *Store) UpdateMessageStatus(ctx context.Context, id, status, externalID, errMsg string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET status = $2,
		    external_id = COALESCE($3, external_id),
		    error_message = $4
		WHERE id = $1
	`, id, status, nullString(externalID), nullString(errMsg))
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func scanConversation(row rowScanner) (messaging.Conversation, error) {
	var (
		c      messaging.Conversation
		dealID sql.NullString
	)
	err := row.Scan(&c.ID, &c.AgencyID, &c.AgentID, &dealID, &c.ClientPhone,
		&c.SMSOptInStatus, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return messaging.Conversation{}, err
	}
	c.DealID = dealID.String
	return c, nil
}
