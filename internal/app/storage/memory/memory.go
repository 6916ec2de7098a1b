// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended
// for tests and local development.
package memory

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/agency"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/agent"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/billing"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/carrier"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/client"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/deal"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/messaging"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/nipr"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/storage"
)

// Store keeps everything in maps guarded by one RWMutex. Not-found
// lookups return sql.ErrNoRows so callers handle both backends the
// same way.
type Store struct {
	mu            sync.RWMutex
	agencies      map[string]agency.Agency
	users         map[string]agent.User
	positions     map[string]agent.Position
	commissions   map[string]carrier.Commission // keyed position|product
	carriers      map[string]carrier.Carrier
	products      map[string]carrier.Product
	clients       map[string]client.Client
	deals         map[string]deal.Deal
	beneficiaries map[string][]deal.Beneficiary
	snapshots     map[string][]deal.HierarchySnapshot
	conversations map[string]messaging.Conversation
	messages      map[string][]messaging.Message
	niprJobs      map[string]nipr.Job
	purchases     map[string][]billing.Purchase
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

// New creates an empty store.
func New() *Store {
	return &Store{
		agencies:      make(map[string]agency.Agency),
		users:         make(map[string]agent.User),
		positions:     make(map[string]agent.Position),
		commissions:   make(map[string]carrier.Commission),
		carriers:      make(map[string]carrier.Carrier),
		products:      make(map[string]carrier.Product),
		clients:       make(map[string]client.Client),
		deals:         make(map[string]deal.Deal),
		beneficiaries: make(map[string][]deal.Beneficiary),
		snapshots:     make(map[string][]deal.HierarchySnapshot),
		conversations: make(map[string]messaging.Conversation),
		messages:      make(map[string][]messaging.Message),
		niprJobs:      make(map[string]nipr.Job),
		purchases:     make(map[string][]billing.Purchase),
	}
}

// AgencyStore implementation -------------------------------------------------

func (s *Store) CreateAgency(_ context.Context, a agency.Agency) (agency.Agency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = "active"
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	s.agencies[a.ID] = a
	return a, nil
}

func (s *Store) UpdateAgency(_ context.Context, a agency.Agency) (agency.Agency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.agencies[a.ID]
	if !ok {
		return agency.Agency{}, sql.ErrNoRows
	}
	a.CreatedAt = original.CreatedAt
	a.UpdatedAt = time.Now().UTC()
	s.agencies[a.ID] = a
	return a, nil
}

func (s *Store) GetAgency(_ context.Context, id string) (agency.Agency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.agencies[id]
	if !ok {
		return agency.Agency{}, sql.ErrNoRows
	}
	return a, nil
}

func (s *Store) GetAgencyByPhone(_ context.Context, phone string) (agency.Agency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.agencies {
		if a.PhoneNumber == phone {
			return a, nil
		}
	}
	return agency.Agency{}, sql.ErrNoRows
}

func (s *Store) DeleteAgency(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.agencies[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.agencies, id)
	return nil
}

// UserStore implementation ---------------------------------------------------

func (s *Store) CreateUser(_ context.Context, u agent.User) (agent.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

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
	u.UniqueCarriers = cloneStrings(u.UniqueCarriers)
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) UpdateUser(_ context.Context, u agent.User) (agent.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.users[u.ID]
	if !ok {
		return agent.User{}, sql.ErrNoRows
	}
	u.CreatedAt = original.CreatedAt
	u.UpdatedAt = time.Now().UTC()
	u.UniqueCarriers = cloneStrings(u.UniqueCarriers)
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (agent.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return agent.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (agent.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return agent.User{}, sql.ErrNoRows
}

func (s *Store) ListUsers(_ context.Context, agencyID string) ([]agent.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []agent.User
	for _, u := range s.users {
		if u.AgencyID == agencyID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastName != out[j].LastName {
			return out[i].LastName < out[j].LastName
		}
		return out[i].FirstName < out[j].FirstName
	})
	return out, nil
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.users, id)
	return nil
}

func (s *Store) CountUsers(_ context.Context, agencyID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, u := range s.users {
		if u.AgencyID == agencyID {
			n++
		}
	}
	return n, nil
}

func (s *Store) DownlineIDs(_ context.Context, userID, agencyID string, maxDepth int, includeSelf bool) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.users[userID]; !ok {
		return nil, sql.ErrNoRows
	}

	var out []string
	if includeSelf {
		out = append(out, userID)
	}

	frontier := []string{userID}
	depth := 0
	for len(frontier) > 0 {
		if maxDepth > 0 && depth >= maxDepth {
			break
		}
		var next []string
		for _, u := range s.users {
			if u.AgencyID != agencyID {
				continue
			}
			for _, parent := range frontier {
				if u.UplineID == parent {
					out = append(out, u.ID)
					next = append(next, u.ID)
				}
			}
		}
		frontier = next
		depth++
	}
	return out, nil
}

func (s *Store) UplineChain(_ context.Context, userID string) ([]agent.UplineMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}

	var chain []agent.UplineMember
	for level := 0; level < agent.MaxUplineDepth; level++ {
		chain = append(chain, agent.UplineMember{
			ID:         u.ID,
			PositionID: u.PositionID,
			FirstName:  u.FirstName,
			LastName:   u.LastName,
			Level:      level,
		})
		if u.UplineID == "" {
			break
		}
		next, ok := s.users[u.UplineID]
		if !ok {
			break
		}
		u = next
	}
	return chain, nil
}

func (s *Store) IncrementDealsCreated(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	u.DealsCreatedCount++
	u.UpdatedAt = time.Now().UTC()
	s.users[userID] = u
	return nil
}

func (s *Store) IncrementMessagesSent(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	u.MessagesSentCount++
	u.UpdatedAt = time.Now().UTC()
	s.users[userID] = u
	return nil
}

func (s *Store) SetUniqueCarriers(_ context.Context, userID string, carriers []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	u.UniqueCarriers = cloneStrings(carriers)
	u.UpdatedAt = time.Now().UTC()
	s.users[userID] = u
	return nil
}

// PositionStore implementation -----------------------------------------------

func (s *Store) CreatePosition(_ context.Context, p agent.Position) (agent.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.positions[p.ID] = p
	return p, nil
}

func (s *Store) UpdatePosition(_ context.Context, p agent.Position) (agent.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.positions[p.ID]
	if !ok {
		return agent.Position{}, sql.ErrNoRows
	}
	p.CreatedAt = original.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	s.positions[p.ID] = p
	return p, nil
}

func (s *Store) GetPosition(_ context.Context, id string) (agent.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[id]
	if !ok {
		return agent.Position{}, sql.ErrNoRows
	}
	return p, nil
}

func (s *Store) ListPositions(_ context.Context, agencyID string) ([]agent.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []agent.Position
	for _, p := range s.positions {
		if p.AgencyID == agencyID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level < out[j].Level
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Store) DeletePosition(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.positions[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.positions, id)
	return nil
}

func (s *Store) SetCommission(_ context.Context, c carrier.Commission) (carrier.Commission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := c.PositionID + "|" + c.ProductID
	now := time.Now().UTC()
	if existing, ok := s.commissions[key]; ok {
		c.ID = existing.ID
		c.CreatedAt = existing.CreatedAt
	} else {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	s.commissions[key] = c
	return c, nil
}

func (s *Store) ListCommissionsForProduct(_ context.Context, productID string) ([]carrier.Commission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []carrier.Commission
	for _, c := range s.commissions {
		if c.ProductID == productID {
			out = append(out, c)
		}
	}
	return out, nil
}

// CarrierStore implementation ------------------------------------------------

func (s *Store) CreateCarrier(_ context.Context, c carrier.Carrier) (carrier.Carrier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = "active"
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	s.carriers[c.ID] = c
	return c, nil
}

func (s *Store) UpdateCarrier(_ context.Context, c carrier.Carrier) (carrier.Carrier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.carriers[c.ID]
	if !ok {
		return carrier.Carrier{}, sql.ErrNoRows
	}
	c.CreatedAt = original.CreatedAt
	c.UpdatedAt = time.Now().UTC()
	s.carriers[c.ID] = c
	return c, nil
}

func (s *Store) GetCarrier(_ context.Context, id string) (carrier.Carrier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.carriers[id]
	if !ok {
		return carrier.Carrier{}, sql.ErrNoRows
	}
	return c, nil
}

func (s *Store) ListCarriers(_ context.Context, agencyID string) ([]carrier.Carrier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []carrier.Carrier
	for _, c := range s.carriers {
		if c.AgencyID == agencyID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) DeleteCarrier(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.carriers[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.carriers, id)
	return nil
}

func (s *Store) CreateProduct(_ context.Context, p carrier.Product) (carrier.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.products[p.ID] = p
	return p, nil
}

func (s *Store) UpdateProduct(_ context.Context, p carrier.Product) (carrier.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.products[p.ID]
	if !ok {
		return carrier.Product{}, sql.ErrNoRows
	}
	p.CreatedAt = original.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	s.products[p.ID] = p
	return p, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (carrier.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return carrier.Product{}, sql.ErrNoRows
	}
	return p, nil
}

func (s *Store) ListProducts(_ context.Context, agencyID, carrierID string) ([]carrier.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []carrier.Product
	for _, p := range s.products {
		if p.AgencyID != agencyID {
			continue
		}
		if carrierID != "" && p.CarrierID != carrierID {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.products, id)
	return nil
}

// ClientStore implementation -------------------------------------------------

func (s *Store) CreateClient(_ context.Context, c client.Client) (client.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	s.clients[c.ID] = c
	return c, nil
}

func (s *Store) UpdateClient(_ context.Context, c client.Client) (client.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.clients[c.ID]
	if !ok {
		return client.Client{}, sql.ErrNoRows
	}
	c.CreatedAt = original.CreatedAt
	c.UpdatedAt = time.Now().UTC()
	s.clients[c.ID] = c
	return c, nil
}

func (s *Store) GetClient(_ context.Context, id, agencyID string) (client.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clients[id]
	if !ok || c.AgencyID != agencyID {
		return client.Client{}, sql.ErrNoRows
	}
	return c, nil
}

func (s *Store) ListClients(_ context.Context, agencyID string, agentIDs []string) ([]client.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	allowed := toSet(agentIDs)
	var out []client.Client
	for _, c := range s.clients {
		if c.AgencyID != agencyID {
			continue
		}
		if allowed != nil && !allowed[c.AgentID] {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastName != out[j].LastName {
			return out[i].LastName < out[j].LastName
		}
		return out[i].FirstName < out[j].FirstName
	})
	return out, nil
}

func (s *Store) DeleteClient(_ context.Context, id, agencyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clients[id]
	if !ok || c.AgencyID != agencyID {
		return sql.ErrNoRows
	}
	delete(s.clients, id)
	return nil
}

func (s *Store) FindClientByPhone(_ context.Context, agencyID, phone string) (client.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.clients {
		if c.AgencyID == agencyID && c.Phone == phone {
			return c, nil
		}
	}
	return client.Client{}, sql.ErrNoRows
}

// DealStore implementation ---------------------------------------------------

func (s *Store) CreateDeal(_ context.Context, d deal.Deal) (deal.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	s.deals[d.ID] = d
	return d, nil
}

func (s *Store) UpdateDeal(_ context.Context, d deal.Deal) (deal.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.deals[d.ID]
	if !ok || original.AgencyID != d.AgencyID {
		return deal.Deal{}, sql.ErrNoRows
	}
	d.CreatedAt = original.CreatedAt
	d.UpdatedAt = time.Now().UTC()
	s.deals[d.ID] = d
	return d, nil
}

func (s *Store) GetDeal(_ context.Context, id, agencyID string) (deal.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.deals[id]
	if !ok || d.AgencyID != agencyID {
		return deal.Deal{}, sql.ErrNoRows
	}
	return d, nil
}

func (s *Store) ListDeals(_ context.Context, f deal.Filter) ([]deal.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	allowed := toSet(f.AgentIDs)
	var out []deal.Deal
	for _, d := range s.deals {
		if d.AgencyID != f.AgencyID {
			continue
		}
		if allowed != nil && !allowed[d.AgentID] {
			continue
		}
		if f.StatusStandardized != "" && d.StatusStandardized != f.StatusStandardized {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) DeleteDeal(_ context.Context, id, agencyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.deals[id]
	if !ok || d.AgencyID != agencyID {
		return sql.ErrNoRows
	}
	delete(s.deals, id)
	delete(s.beneficiaries, id)
	delete(s.snapshots, id)
	return nil
}

func (s *Store) FindDealByPhone(_ context.Context, agencyID, phone, excludeID string) (deal.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, d := range s.deals {
		if d.AgencyID == agencyID && d.ClientPhone == phone && d.ID != excludeID {
			return d, nil
		}
	}
	return deal.Deal{}, sql.ErrNoRows
}

func (s *Store) ReplaceBeneficiaries(_ context.Context, dealID, agencyID string, bens []deal.Beneficiary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]deal.Beneficiary, 0, len(bens))
	for _, b := range bens {
		if b.ID == "" {
			b.ID = uuid.NewString()
		}
		b.DealID = dealID
		b.AgencyID = agencyID
		out = append(out, b)
	}
	s.beneficiaries[dealID] = out
	return nil
}

func (s *Store) ListBeneficiaries(_ context.Context, dealID string) ([]deal.Beneficiary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]deal.Beneficiary(nil), s.beneficiaries[dealID]...), nil
}

func (s *Store) InsertHierarchySnapshots(_ context.Context, snaps []deal.HierarchySnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, snap := range snaps {
		if snap.ID == "" {
			snap.ID = uuid.NewString()
		}
		s.snapshots[snap.DealID] = append(s.snapshots[snap.DealID], snap)
	}
	return nil
}

func (s *Store) ListHierarchySnapshots(_ context.Context, dealID string) ([]deal.HierarchySnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := append([]deal.HierarchySnapshot(nil), s.snapshots[dealID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].HierarchyLevel < out[j].HierarchyLevel })
	return out, nil
}

func (s *Store) DealStats(_ context.Context, agencyID string, agentIDs []string) (deal.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	allowed := toSet(agentIDs)
	stats := deal.Stats{ByStatus: map[string]int{}}
	for _, d := range s.deals {
		if d.AgencyID != agencyID {
			continue
		}
		if allowed != nil && !allowed[d.AgentID] {
			continue
		}
		stats.TotalDeals++
		if d.StatusStandardized != "" {
			stats.ByStatus[d.StatusStandardized]++
		}
		stats.TotalAnnualPremium += d.AnnualPremium
		stats.TotalMonthlyPremium += d.MonthlyPremium
	}
	if allowed != nil {
		stats.AgentCount = len(agentIDs)
	} else {
		for _, u := range s.users {
			if u.AgencyID == agencyID {
				stats.AgentCount++
			}
		}
	}
	return stats, nil
}

// MessagingStore implementation ----------------------------------------------

func (s *Store) CreateConversation(_ context.Context, c messaging.Conversation) (messaging.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.SMSOptInStatus == "" {
		c.SMSOptInStatus = messaging.OptInPending
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	s.conversations[c.ID] = c
	return c, nil
}

func (s *Store) GetConversation(_ context.Context, id, agencyID string) (messaging.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[id]
	if !ok || c.AgencyID != agencyID {
		return messaging.Conversation{}, sql.ErrNoRows
	}
	return c, nil
}

func (s *Store) FindConversationByPhone(_ context.Context, agencyID, phone string) (messaging.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		found messaging.Conversation
		ok    bool
	)
	for _, c := range s.conversations {
		if c.AgencyID != agencyID || c.ClientPhone != phone || !c.IsActive {
			continue
		}
		if !ok || c.UpdatedAt.After(found.UpdatedAt) {
			found = c
			ok = true
		}
	}
	if !ok {
		return messaging.Conversation{}, sql.ErrNoRows
	}
	return found, nil
}

func (s *Store) ListConversations(_ context.Context, agencyID string, agentIDs []string) ([]messaging.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	allowed := toSet(agentIDs)
	var out []messaging.Conversation
	for _, c := range s.conversations {
		if c.AgencyID != agencyID {
			continue
		}
		if allowed != nil && !allowed[c.AgentID] {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *Store) SetOptInStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[id]
	if !ok {
		return sql.ErrNoRows
	}
	c.SMSOptInStatus = status
	c.UpdatedAt = time.Now().UTC()
	s.conversations[id] = c
	return nil
}

func (s *Store) UpdateConversationPhone(_ context.Context, dealID, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, c := range s.conversations {
		if c.DealID == dealID && c.IsActive {
			c.ClientPhone = phone
			c.UpdatedAt = time.Now().UTC()
			s.conversations[id] = c
		}
	}
	return nil
}

func (s *Store) CreateMessage(_ context.Context, m messaging.Message) (messaging.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = messaging.StatusPending
	}
	m.CreatedAt = time.Now().UTC()
	s.messages[m.ConversationID] = append(s.messages[m.ConversationID], m)

	if c, ok := s.conversations[m.ConversationID]; ok {
		c.UpdatedAt = m.CreatedAt
		s.conversations[m.ConversationID] = c
	}
	return m, nil
}

func (s *Store) ListMessages(_ context.Context, conversationID string) ([]messaging.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]messaging.Message(nil), s.messages[conversationID]...), nil
}

func (s *Store) UpdateMessageStatus(_ context.Context, id, status, externalID, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for convID, msgs := range s.messages {
		for i, m := range msgs {
			if m.ID != id {
				continue
			}
			m.Status = status
			if externalID != "" {
				m.ExternalID = externalID
			}
			m.ErrorMessage = errMsg
			s.messages[convID][i] = m
			return nil
		}
	}
	return sql.ErrNoRows
}

// NIPRStore implementation ---------------------------------------------------

func (s *Store) CreateNIPRJob(_ context.Context, j nipr.Job) (nipr.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.Status == "" {
		j.Status = nipr.StatusPending
	}
	j.CreatedAt = time.Now().UTC()
	s.niprJobs[j.ID] = j
	return j, nil
}

func (s *Store) GetNIPRJob(_ context.Context, id string) (nipr.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.niprJobs[id]
	if !ok {
		return nipr.Job{}, sql.ErrNoRows
	}
	return j, nil
}

func (s *Store) GetActiveNIPRJobForUser(_ context.Context, userID string) (nipr.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		found nipr.Job
		ok    bool
	)
	for _, j := range s.niprJobs {
		if j.UserID != userID {
			continue
		}
		if j.Status != nipr.StatusPending && j.Status != nipr.StatusProcessing {
			continue
		}
		if !ok || j.CreatedAt.After(found.CreatedAt) {
			found = j
			ok = true
		}
	}
	if !ok {
		return nipr.Job{}, sql.ErrNoRows
	}
	return found, nil
}

// AcquireNIPRJob mirrors the SQL protocol: no claim while any
// processing job holds a live lease, otherwise the oldest pending job
// moves to processing with a fresh lease.
func (s *Store) AcquireNIPRJob(_ context.Context) (*nipr.AcquiredJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, j := range s.niprJobs {
		if j.Status == nipr.StatusProcessing && (j.LockedUntil == nil || j.LockedUntil.After(now)) {
			return nil, nil
		}
	}

	var (
		oldest nipr.Job
		ok     bool
	)
	for _, j := range s.niprJobs {
		if j.Status != nipr.StatusPending {
			continue
		}
		if !ok || j.CreatedAt.Before(oldest.CreatedAt) {
			oldest = j
			ok = true
		}
	}
	if !ok {
		return nil, nil
	}

	started := now
	until := now.Add(nipr.LockLease)
	oldest.Status = nipr.StatusProcessing
	oldest.StartedAt = &started
	oldest.LockedUntil = &until
	s.niprJobs[oldest.ID] = oldest

	return &nipr.AcquiredJob{
		JobID:    oldest.ID,
		UserID:   oldest.UserID,
		LastName: oldest.LastName,
		NPN:      oldest.NPN,
		SSNLast4: oldest.SSNLast4,
		DOB:      oldest.DOB,
	}, nil
}

func (s *Store) UpdateNIPRJobProgress(_ context.Context, id string, progress int, message *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.niprJobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	j.Progress = progress
	if message != nil {
		j.ProgressMessage = *message
	}
	s.niprJobs[id] = j
	return nil
}

func (s *Store) CompleteNIPRJob(_ context.Context, id string, success bool, files, carriers []string, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.niprJobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if success {
		j.Status = nipr.StatusCompleted
		j.ProgressMessage = "Complete!"
	} else {
		j.Status = nipr.StatusFailed
		j.ProgressMessage = "Failed"
	}
	j.Progress = 100
	j.ResultFiles = cloneStrings(files)
	j.ResultCarriers = cloneStrings(carriers)
	j.ErrorMessage = errMsg
	now := time.Now().UTC()
	j.CompletedAt = &now
	j.LockedUntil = nil
	s.niprJobs[id] = j
	return nil
}

func (s *Store) ReleaseStaleNIPRLocks(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	released := 0
	for id, j := range s.niprJobs {
		if j.Status != nipr.StatusProcessing {
			continue
		}
		if j.LockedUntil == nil || !j.LockedUntil.Before(now) {
			continue
		}
		j.Status = nipr.StatusPending
		j.StartedAt = nil
		j.LockedUntil = nil
		s.niprJobs[id] = j
		released++
	}
	return released, nil
}

func (s *Store) HasPendingNIPRJobs(_ context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, j := range s.niprJobs {
		if j.Status == nipr.StatusPending {
			return true, nil
		}
	}
	return false, nil
}

// BillingStore implementation ------------------------------------------------

func (s *Store) ActivateSubscription(_ context.Context, userID string, tier billing.Tier, subscriptionID string, cycleStart, cycleEnd time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	u.SubscriptionTier = tier
	u.SubscriptionStatus = billing.StatusActive
	u.StripeSubscriptionID = subscriptionID
	u.BillingCycleStart = cycleStart
	u.BillingCycleEnd = cycleEnd
	u.MessagesSentCount = 0
	u.MessagesResetDate = cycleStart
	u.UpdatedAt = time.Now().UTC()
	s.users[userID] = u
	return nil
}

func (s *Store) UpdateSubscription(_ context.Context, userID string, upd storage.SubscriptionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	if upd.Status != "" {
		u.SubscriptionStatus = upd.Status
	}
	if upd.Tier != nil {
		u.SubscriptionTier = *upd.Tier
	}
	if upd.CycleStart != nil {
		u.BillingCycleStart = *upd.CycleStart
	}
	if upd.CycleEnd != nil {
		u.BillingCycleEnd = *upd.CycleEnd
	}
	if upd.ResetUsage {
		u.MessagesSentCount = 0
		if upd.CycleStart != nil {
			u.MessagesResetDate = *upd.CycleStart
		}
	}
	if upd.ClearScheduled {
		u.ScheduledTierChange = ""
		u.ScheduledTierDate = time.Time{}
	}
	u.UpdatedAt = time.Now().UTC()
	s.users[userID] = u
	return nil
}

func (s *Store) CancelSubscription(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	u.SubscriptionTier = billing.TierFree
	u.SubscriptionStatus = billing.StatusFree
	u.StripeSubscriptionID = ""
	u.ScheduledTierChange = ""
	u.ScheduledTierDate = time.Time{}
	u.UpdatedAt = time.Now().UTC()
	s.users[userID] = u
	return nil
}

func (s *Store) ScheduleTierChange(_ context.Context, userID string, tier billing.Tier, effective time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	u.ScheduledTierChange = tier
	u.ScheduledTierDate = effective
	u.UpdatedAt = time.Now().UTC()
	s.users[userID] = u
	return nil
}

func (s *Store) SetTierNow(_ context.Context, userID string, tier billing.Tier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	u.SubscriptionTier = tier
	u.ScheduledTierChange = ""
	u.ScheduledTierDate = time.Time{}
	u.UpdatedAt = time.Now().UTC()
	s.users[userID] = u
	return nil
}

func (s *Store) GetUserByStripeSubscriptionID(_ context.Context, subscriptionID string) (agent.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.StripeSubscriptionID == subscriptionID {
			return u, nil
		}
	}
	return agent.User{}, sql.ErrNoRows
}

func (s *Store) SetStripeCustomerID(_ context.Context, userID, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	u.StripeCustomerID = customerID
	u.UpdatedAt = time.Now().UTC()
	s.users[userID] = u
	return nil
}

func (s *Store) AddTopupCredits(_ context.Context, userID, purchaseType string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	if purchaseType == billing.PurchaseMessageTopup {
		u.MessagesTopupCredits += quantity
	}
	u.UpdatedAt = time.Now().UTC()
	s.users[userID] = u
	return nil
}

func (s *Store) CreatePurchase(_ context.Context, p billing.Purchase) (billing.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.purchases[p.UserID] {
		if existing.PaymentIntentID == p.PaymentIntentID {
			return existing, storage.ErrAlreadyExists
		}
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if p.PurchasedAt.IsZero() {
		p.PurchasedAt = now
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	s.purchases[p.UserID] = append(s.purchases[p.UserID], p)
	return p, nil
}

func (s *Store) ListPurchases(_ context.Context, userID string) ([]billing.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := append([]billing.Purchase(nil), s.purchases[userID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].PurchasedAt.After(out[j].PurchasedAt) })
	return out, nil
}

func (s *Store) ListDueScheduledChanges(_ context.Context, now time.Time) ([]agent.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []agent.User
	for _, u := range s.users {
		if u.ScheduledTierChange != "" && !u.ScheduledTierDate.IsZero() && !u.ScheduledTierDate.After(now) {
			out = append(out, u)
		}
	}
	return out, nil
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func toSet(ids []string) map[string]bool {
	if ids == nil {
		return nil
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
