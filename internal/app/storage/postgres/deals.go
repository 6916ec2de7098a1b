package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/deal"
)

const dealColumns = `id, agency_id, agent_id, client_id, carrier_id, product_id,
	policy_number, application_number, status, status_standardized,
	annual_premium, monthly_premium, policy_effective_date, submission_date,
	billing_cycle, billing_day_of_month, billing_weekday, lead_source,
	client_name, client_email, client_phone, client_address, date_of_birth,
	ssn_last_4, ssn_benefit, notes, created_at, updated_at`

func (s *Store) CreateDeal(ctx context.Context, d deal.Deal) (deal.Deal, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deals (`+dealColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)
	`, d.ID, d.AgencyID, d.AgentID, nullString(d.ClientID), nullString(d.CarrierID), nullString(d.ProductID),
		nullString(d.PolicyNumber), nullString(d.ApplicationNumber), nullString(d.Status), nullString(d.StatusStandardized),
		d.AnnualPremium, d.MonthlyPremium, toNullDate(d.PolicyEffectiveDate), toNullDate(d.SubmissionDate),
		nullString(d.BillingCycle), nullString(d.BillingDayOfMonth), nullString(d.BillingWeekday), nullString(d.LeadSource),
		nullString(d.ClientName), nullString(d.ClientEmail), nullString(d.ClientPhone), nullString(d.ClientAddress), toNullDate(d.DateOfBirth),
		nullString(d.SSNLast4), d.SSNBenefit, nullString(d.Notes), d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return deal.Deal{}, err
	}
	return d, nil
}

func (s *Store) UpdateDeal(ctx context.Context, d deal.Deal) (deal.Deal, error) {
	d.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE deals
		SET client_id = $3, carrier_id = $4, product_id = $5,
		    policy_number = $6, application_number = $7, status = $8, status_standardized = $9,
		    annual_premium = $10, monthly_premium = $11,
		    policy_effective_date = $12, submission_date = $13,
		    billing_cycle = $14, billing_day_of_month = $15, billing_weekday = $16, lead_source = $17,
		    client_name = $18, client_email = $19, client_phone = $20, client_address = $21,
		    date_of_birth = $22, ssn_last_4 = $23, ssn_benefit = $24, notes = $25,
		    updated_at = $26
		WHERE id = $1 AND agency_id = $2
	`, d.ID, d.AgencyID, nullString(d.ClientID), nullString(d.CarrierID), nullString(d.ProductID),
		nullString(d.PolicyNumber), nullString(d.ApplicationNumber), nullString(d.Status), nullString(d.StatusStandardized),
		d.AnnualPremium, d.MonthlyPremium, toNullDate(d.PolicyEffectiveDate), toNullDate(d.SubmissionDate),
		nullString(d.BillingCycle), nullString(d.BillingDayOfMonth), nullString(d.BillingWeekday), nullString(d.LeadSource),
		nullString(d.ClientName), nullString(d.ClientEmail), nullString(d.ClientPhone), nullString(d.ClientAddress),
		toNullDate(d.DateOfBirth), nullString(d.SSNLast4), d.SSNBenefit, nullString(d.Notes), d.UpdatedAt)
	if err != nil {
		return deal.Deal{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return deal.Deal{}, sql.ErrNoRows
	}
	return d, nil
}

func (s *Store) GetDeal(ctx context.Context, id, agencyID string) (deal.Deal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+dealColumns+` FROM deals WHERE id = $1 AND agency_id = $2
	`, id, agencyID)
	return scanDeal(row)
}

func (s *Store) ListDeals(ctx context.Context, f deal.Filter) ([]deal.Deal, error) {
	query := `SELECT ` + dealColumns + ` FROM deals WHERE agency_id = $1`
	args := []any{f.AgencyID}
	if len(f.AgentIDs) > 0 {
		args = append(args, pq.Array(f.AgentIDs))
		query += fmt.Sprintf(` AND agent_id = ANY($%d)`, len(args))
	}
	if f.StatusStandardized != "" {
		args = append(args, f.StatusStandardized)
		query += fmt.Sprintf(` AND status_standardized = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []deal.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func (s *Store) DeleteDeal(ctx context.Context, id, agencyID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM deals WHERE id = $1 AND agency_id = $2`, id, agencyID)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) FindDealByPhone(ctx context.Context, agencyID, phone, excludeID string) (deal.Deal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+dealColumns+` FROM deals
		WHERE agency_id = $1 AND client_phone = $2 AND ($3 = '' OR id <> $3)
		LIMIT 1
	`, agencyID, phone, excludeID)
	return scanDeal(row)
}

// --- beneficiaries ----------------------------------------------------------

func (s *Store) ReplaceBeneficiaries(ctx context.Context, dealID, agencyID string, bens []deal.Beneficiary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM beneficiaries WHERE deal_id = $1`, dealID); err != nil {
		return err
	}
	for _, b := range bens {
		if b.ID == "" {
			b.ID = uuid.NewString()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO beneficiaries (id, deal_id, agency_id, first_name, last_name, relationship)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, b.ID, dealID, agencyID, b.FirstName, nullString(b.LastName), nullString(b.Relationship))
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) ListBeneficiaries(ctx context.Context, dealID string) ([]deal.Beneficiary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, deal_id, agency_id, first_name, last_name, relationship
		FROM beneficiaries
		WHERE deal_id = $1
		ORDER BY first_name
	`, dealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []deal.Beneficiary
	for rows.Next() {
		var (
			b            deal.Beneficiary
			lastName     sql.NullString
			relationship sql.NullString
		)
		if err := rows.Scan(&b.ID, &b.DealID, &b.AgencyID, &b.FirstName, &lastName, &relationship); err != nil {
			return nil, err
		}
		b.LastName = lastName.String
		b.Relationship = relationship.String
		result = append(result, b)
	}
	return result, rows.Err()
}

// --- hierarchy snapshots ----------------------------------------------------

func (s *Store) InsertHierarchySnapshots(ctx context.Context, snaps []deal.HierarchySnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, snap := range snaps {
		if snap.ID == "" {
			snap.ID = uuid.NewString()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO deal_hierarchy_snapshots (id, deal_id, agent_id, position_id, hierarchy_level, commission_percentage)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, snap.ID, snap.DealID, snap.AgentID, nullString(snap.PositionID), snap.HierarchyLevel, snap.CommissionPercentage)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) ListHierarchySnapshots(ctx context.Context, dealID string) ([]deal.HierarchySnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, deal_id, agent_id, position_id, hierarchy_level, commission_percentage
		FROM deal_hierarchy_snapshots
		WHERE deal_id = $1
		ORDER BY hierarchy_level
	`, dealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []deal.HierarchySnapshot
	for rows.Next() {
		var (
			snap       deal.HierarchySnapshot
			positionID sql.NullString
			pct        sql.NullFloat64
		)
		if err := rows.Scan(&snap.ID, &snap.DealID, &snap.AgentID, &positionID, &snap.HierarchyLevel, &pct); err != nil {
			return nil, err
		}
		snap.PositionID = positionID.String
		if pct.Valid {
			v := pct.Float64
			snap.CommissionPercentage = &v
		}
		result = append(result, snap)
	}
	return result, rows.Err()
}

// --- stats ------------------------------------------------------------------

func (s *Store) DealStats(ctx context.Context, agencyID string, agentIDs []string) (deal.Stats, error) {
	query := `
		SELECT COALESCE(status_standardized, ''), COUNT(*),
		       COALESCE(SUM(annual_premium), 0), COALESCE(SUM(monthly_premium), 0)
		FROM deals
		WHERE agency_id = $1`
	args := []any{agencyID}
	if len(agentIDs) > 0 {
		args = append(args, pq.Array(agentIDs))
		query += fmt.Sprintf(` AND agent_id = ANY($%d)`, len(args))
	}
	query += ` GROUP BY status_standardized`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return deal.Stats{}, err
	}
	defer rows.Close()

	stats := deal.Stats{ByStatus: map[string]int{}}
	for rows.Next() {
		var (
			status           string
			count            int
			annual, monthly  float64
		)
		if err := rows.Scan(&status, &count, &annual, &monthly); err != nil {
			return deal.Stats{}, err
		}
		if status != "" {
			stats.ByStatus[status] = count
		}
		stats.TotalDeals += count
		stats.TotalAnnualPremium += annual
		stats.TotalMonthlyPremium += monthly
	}
	if err := rows.Err(); err != nil {
		return deal.Stats{}, err
	}

	if agentIDs != nil {
		stats.AgentCount = len(agentIDs)
	} else {
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM users WHERE agency_id = $1`, agencyID,
		).Scan(&stats.AgentCount)
		if err != nil {
			return deal.Stats{}, err
		}
	}
	return stats, nil
}

func scanDeal(row rowScanner) (deal.Deal, error) {
	var (
		d deal.Deal

		clientID, carrierID, productID       sql.NullString
		policyNumber, applicationNumber      sql.NullString
		status, statusStandardized           sql.NullString
		effectiveDate, submissionDate, dob   sql.NullTime
		billingCycle, billingDay, billingWkd sql.NullString
		leadSource                           sql.NullString
		clientName, clientEmail              sql.NullString
		clientPhone, clientAddress           sql.NullString
		ssnLast4, notes                      sql.NullString
	)
	err := row.Scan(&d.ID, &d.AgencyID, &d.AgentID, &clientID, &carrierID, &productID,
		&policyNumber, &applicationNumber, &status, &statusStandardized,
		&d.AnnualPremium, &d.MonthlyPremium, &effectiveDate, &submissionDate,
		&billingCycle, &billingDay, &billingWkd, &leadSource,
		&clientName, &clientEmail, &clientPhone, &clientAddress, &dob,
		&ssnLast4, &d.SSNBenefit, &notes, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return deal.Deal{}, err
	}
	d.ClientID = clientID.String
	d.CarrierID = carrierID.String
	d.ProductID = productID.String
	d.PolicyNumber = policyNumber.String
	d.ApplicationNumber = applicationNumber.String
	d.Status = status.String
	d.StatusStandardized = statusStandardized.String
	d.PolicyEffectiveDate = dateString(effectiveDate)
	d.SubmissionDate = dateString(submissionDate)
	d.BillingCycle = billingCycle.String
	d.BillingDayOfMonth = billingDay.String
	d.BillingWeekday = billingWkd.String
	d.LeadSource = leadSource.String
	d.ClientName = clientName.String
	d.ClientEmail = clientEmail.String
	d.ClientPhone = clientPhone.String
	d.ClientAddress = clientAddress.String
	d.DateOfBirth = dateString(dob)
	d.SSNLast4 = ssnLast4.String
	d.Notes = notes.String
	return d, nil
}
