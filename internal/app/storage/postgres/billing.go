package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/agent"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/billing"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/storage"
)

func (s *Store) ActivateSubscription(ctx context.Context, userID string, tier billing.Tier, subscriptionID string, cycleStart, cycleEnd time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET subscription_tier = $2,
		    subscription_status = $3,
		    stripe_subscription_id = $4,
		    billing_cycle_start = $5,
		    billing_cycle_end = $6,
		    messages_sent_count = 0,
		    messages_reset_date = $5,
		    updated_at = NOW()
		WHERE id = $1
	`, userID, tier, billing.StatusActive, subscriptionID, cycleStart, cycleEnd)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) UpdateSubscription(ctx context.Context, userID string, upd storage.SubscriptionUpdate) error {
	set := []string{"updated_at = NOW()"}
	args := []any{userID}

	add := func(column string, value any) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if upd.Status != "" {
		add("subscription_status", upd.Status)
	}
	if upd.Tier != nil {
		add("subscription_tier", *upd.Tier)
	}
	if upd.CycleStart != nil {
		add("billing_cycle_start", *upd.CycleStart)
	}
	if upd.CycleEnd != nil {
		add("billing_cycle_end", *upd.CycleEnd)
	}
	if upd.ResetUsage {
		set = append(set, "messages_sent_count = 0")
		if upd.CycleStart != nil {
			args = append(args, *upd.CycleStart)
			set = append(set, fmt.Sprintf("messages_reset_date = $%d", len(args)))
		}
	}
	if upd.ClearScheduled {
		set = append(set, "scheduled_tier_change = NULL", "scheduled_tier_change_date = NULL")
	}

	query := "UPDATE users SET " + strings.Join(set, ", ") + " WHERE id = $1"
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) CancelSubscription(ctx context.Context, userID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET subscription_tier = $2,
		    subscription_status = $3,
		    stripe_subscription_id = NULL,
		    scheduled_tier_change = NULL,
		    scheduled_tier_change_date = NULL,
		    updated_at = NOW()
		WHERE id = $1
	`, userID, billing.TierFree, billing.StatusFree)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) ScheduleTierChange(ctx context.Context, userID string, tier billing.Tier, effective time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET scheduled_tier_change = $2,
		    scheduled_tier_change_date = $3,
		    updated_at = NOW()
		WHERE id = $1
	`, userID, tier, effective)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) SetTierNow(ctx context.Context, userID string, tier billing.Tier) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET subscription_tier = $2,
		    scheduled_tier_change = NULL,
		    scheduled_tier_change_date = NULL,
		    updated_at = NOW()
		WHERE id = $1
	`, userID, tier)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) GetUserByStripeSubscriptionID(ctx context.Context, subscriptionID string) (agent.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE stripe_subscription_id = $1
	`, subscriptionID)
	return scanUser(row)
}

func (s *Store) SetStripeCustomerID(ctx context.Context, userID, customerID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET stripe_customer_id = $2, updated_at = NOW() WHERE id = $1
	`, userID, customerID)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) AddTopupCredits(ctx context.Context, userID, purchaseType string, quantity int) error {
	column := "messages_topup_credits"
	if purchaseType == billing.PurchaseAITopup {
		column = "ai_topup_credits"
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET `+column+` = COALESCE(`+column+`, 0) + $2, updated_at = NOW() WHERE id = $1
	`, userID, quantity)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) CreatePurchase(ctx context.Context, p billing.Purchase) (billing.Purchase, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if p.PurchasedAt.IsZero() {
		p.PurchasedAt = now
	}
	p.CreatedAt = now
	p.UpdatedAt = now

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO purchases (id, user_id, purchase_type, stripe_payment_intent_id,
			amount_cents, currency, quantity, description, status, purchased_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (stripe_payment_intent_id) DO NOTHING
	`, p.ID, p.UserID, p.PurchaseType, p.PaymentIntentID, p.AmountCents,
		p.Currency, p.Quantity, nullString(p.Description), p.Status,
		p.PurchasedAt, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return billing.Purchase{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return p, storage.ErrAlreadyExists
	}
	return p, nil
}

func (s *Store) ListPurchases(ctx context.Context, userID string) ([]billing.Purchase, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, purchase_type, stripe_payment_intent_id,
		       amount_cents, currency, quantity, description, status,
		       purchased_at, created_at, updated_at
		FROM purchases
		WHERE user_id = $1
		ORDER BY purchased_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []billing.Purchase
	for rows.Next() {
		var (
			p           billing.Purchase
			description sql.NullString
		)
		err := rows.Scan(&p.ID, &p.UserID, &p.PurchaseType, &p.PaymentIntentID,
			&p.AmountCents, &p.Currency, &p.Quantity, &description, &p.Status,
			&p.PurchasedAt, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return nil, err
		}
		p.Description = description.String
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *Store) ListDueScheduledChanges(ctx context.Context, now time.Time) ([]agent.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE scheduled_tier_change IS NOT NULL AND scheduled_tier_change_date <= $1
	`, now)
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
