package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/agent"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/billing"
)

const userColumns = `
	id, agency_id, upline_id, position_id, first_name, last_name, email, phone,
	is_admin, status, subscription_tier, subscription_status,
	stripe_customer_id, stripe_subscription_id,
	billing_cycle_start, billing_cycle_end,
	scheduled_tier_change, scheduled_tier_change_date,
	messages_sent_count, messages_topup_credits, messages_reset_date,
	deals_created_count, unique_carriers, created_at, updated_at`

// --- UserStore --------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u agent.User) (agent.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Status == "" {
		u.Status = "active"
	}
	if u.SubscriptionTier == "" {
		u.SubscriptionTier = billing.TierFree
	}
	if u.SubscriptionStatus == "" {
		u.SubscriptionStatus = billing.StatusFree
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (
			id, agency_id, upline_id, position_id, first_name, last_name, email, phone,
			is_admin, status, subscription_tier, subscription_status,
			stripe_customer_id, stripe_subscription_id,
			billing_cycle_start, billing_cycle_end,
			scheduled_tier_change, scheduled_tier_change_date,
			messages_sent_count, messages_topup_credits, messages_reset_date,
			deals_created_count, unique_carriers, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25)
	`,
		u.ID, u.AgencyID, nullString(u.UplineID), nullString(u.PositionID),
		u.FirstName, u.LastName, u.Email, nullString(u.Phone),
		u.IsAdmin, u.Status, string(u.SubscriptionTier), u.SubscriptionStatus,
		nullString(u.StripeCustomerID), nullString(u.StripeSubscriptionID),
		toNullTime(u.BillingCycleStart), toNullTime(u.BillingCycleEnd),
		nullString(string(u.ScheduledTierChange)), toNullTime(u.ScheduledTierDate),
		u.MessagesSentCount, u.MessagesTopupCredits, toNullTime(u.MessagesResetDate),
		u.DealsCreatedCount, pq.Array(u.UniqueCarriers), u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return agent.User{}, err
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u agent.User) (agent.User, error) {
	u.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET upline_id = $2, position_id = $3, first_name = $4, last_name = $5,
			email = $6, phone = $7, is_admin = $8, status = $9, updated_at = $10
		WHERE id = $1
	`, u.ID, nullString(u.UplineID), nullString(u.PositionID), u.FirstName,
		u.LastName, u.Email, nullString(u.Phone), u.IsAdmin, u.Status, u.UpdatedAt)
	if err != nil {
		return agent.User{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return agent.User{}, sql.ErrNoRows
	}
	return s.GetUser(ctx, u.ID)
}

func (s *Store) GetUser(ctx context.Context, id string) (agent.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (agent.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	return scanUser(row)
}

func (s *Store) ListUsers(ctx context.Context, agencyID string) ([]agent.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE agency_id = $1
		ORDER BY created_at
	`, agencyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []agent.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) CountUsers(ctx context.Context, agencyID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE agency_id = $1`, agencyID).Scan(&n)
	return n, err
}

// DownlineIDs traverses the hierarchy below userID with a recursive CTE.
func (s *Store) DownlineIDs(ctx context.Context, userID, agencyID string, maxDepth int, includeSelf bool) ([]string, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if maxDepth > 0 {
		rows, err = s.db.QueryContext(ctx, `
			WITH RECURSIVE downline AS (
				SELECT id, 1 AS depth
				FROM users
				WHERE upline_id = $1 AND agency_id = $2

				UNION ALL

				SELECT u.id, d.depth + 1
				FROM users u
				JOIN downline d ON u.upline_id = d.id
				WHERE u.agency_id = $2 AND d.depth < $3
			)
			SELECT id FROM downline
		`, userID, agencyID, maxDepth)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			WITH RECURSIVE downline AS (
				SELECT id, 1 AS depth
				FROM users
				WHERE upline_id = $1 AND agency_id = $2

				UNION ALL

				SELECT u.id, d.depth + 1
				FROM users u
				JOIN downline d ON u.upline_id = d.id
				WHERE u.agency_id = $2
			)
			SELECT id FROM downline
		`, userID, agencyID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	if includeSelf {
		ids = append(ids, userID)
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UplineChain walks from userID to the hierarchy root, level 0 first.
func (s *Store) UplineChain(ctx context.Context, userID string) ([]agent.UplineMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH RECURSIVE upline_chain AS (
			SELECT id, upline_id, position_id, first_name, last_name, 0 AS hierarchy_level
			FROM users
			WHERE id = $1

			UNION ALL

			SELECT u.id, u.upline_id, u.position_id, u.first_name, u.last_name, uc.hierarchy_level + 1
			FROM users u
			JOIN upline_chain uc ON u.id = uc.upline_id
			WHERE uc.hierarchy_level < $2
		)
		SELECT id, position_id, first_name, last_name, hierarchy_level
		FROM upline_chain
		ORDER BY hierarchy_level
	`, userID, agent.MaxUplineDepth)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chain []agent.UplineMember
	for rows.Next() {
		var (
			m        agent.UplineMember
			position sql.NullString
		)
		if err := rows.Scan(&m.ID, &position, &m.FirstName, &m.LastName, &m.Level); err != nil {
			return nil, err
		}
		m.PositionID = position.String
		chain = append(chain, m)
	}
	return chain, rows.Err()
}

func (s *Store) IncrementDealsCreated(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET deals_created_count = COALESCE(deals_created_count, 0) + 1, updated_at = NOW()
		WHERE id = $1
	`, userID)
	return err
}

func (s *Store) IncrementMessagesSent(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET messages_sent_count = COALESCE(messages_sent_count, 0) + 1, updated_at = NOW()
		WHERE id = $1
	`, userID)
	return err
}

func (s *Store) SetUniqueCarriers(ctx context.Context, userID string, carriers []string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET unique_carriers = $2, updated_at = NOW()
		WHERE id = $1
	`, userID, pq.Array(carriers))
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func scanUser(row rowScanner) (agent.User, error) {
	var (
		u                                    agent.User
		uplineID, positionID, phone          sql.NullString
		custID, subID, schedTier             sql.NullString
		cycleStart, cycleEnd, schedDate      sql.NullTime
		messagesReset                        sql.NullTime
		tier, subStatus                      string
		carriers                             pq.StringArray
	)
	if err := row.Scan(
		&u.ID, &u.AgencyID, &uplineID, &positionID, &u.FirstName, &u.LastName,
		&u.Email, &phone, &u.IsAdmin, &u.Status, &tier, &subStatus,
		&custID, &subID, &cycleStart, &cycleEnd, &schedTier, &schedDate,
		&u.MessagesSentCount, &u.MessagesTopupCredits, &messagesReset,
		&u.DealsCreatedCount, &carriers, &u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		return agent.User{}, err
	}
	u.UplineID = uplineID.String
	u.PositionID = positionID.String
	u.Phone = phone.String
	u.SubscriptionTier = billing.Tier(tier)
	u.SubscriptionStatus = subStatus
	u.StripeCustomerID = custID.String
	u.StripeSubscriptionID = subID.String
	u.BillingCycleStart = timeOrZero(cycleStart)
	u.BillingCycleEnd = timeOrZero(cycleEnd)
	u.ScheduledTierChange = billing.Tier(schedTier.String)
	u.ScheduledTierDate = timeOrZero(schedDate)
	u.MessagesResetDate = timeOrZero(messagesReset)
	u.UniqueCarriers = []string(carriers)
	return u, nil
}

// --- PositionStore ----------------------------------------------------------

func (s *Store) CreatePosition(ctx context.Context, p agent.Position) (agent.Position, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (id, agency_id, name, level, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.AgencyID, p.Name, p.Level, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return agent.Position{}, err
	}
	return p, nil
}

func (s *Store) UpdatePosition(ctx context.Context, p agent.Position) (agent.Position, error) {
	p.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE positions
		SET name = $2, level = $3, updated_at = $4
		WHERE id = $1
	`, p.ID, p.Name, p.Level, p.UpdatedAt)
	if err != nil {
		return agent.Position{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return agent.Position{}, sql.ErrNoRows
	}
	return p, nil
}

func (s *Store) GetPosition(ctx context.Context, id string) (agent.Position, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, agency_id, name, level, created_at, updated_at
		FROM positions
		WHERE id = $1
	`, id)

	var p agent.Position
	if err := row.Scan(&p.ID, &p.AgencyID, &p.Name, &p.Level, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return agent.Position{}, err
	}
	return p, nil
}

func (s *Store) ListPositions(ctx context.Context, agencyID string) ([]agent.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agency_id, name, level, created_at, updated_at
		FROM positions
		WHERE agency_id = $1
		ORDER BY level, name
	`, agencyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []agent.Position
	for rows.Next() {
		var p agent.Position
		if err := rows.Scan(&p.ID, &p.AgencyID, &p.Name, &p.Level, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *Store) DeletePosition(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM positions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
