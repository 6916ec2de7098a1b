// Package app wires stores, domain services, and background workers
// into a single application with a managed lifecycle.
package app

import (
	"context"
	"fmt"
	"time"

	agenciessvc "github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/services/agencies"
	agentssvc "github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/services/agents"
	billingsvc "github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/services/billing"
	carrierssvc "github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/services/carriers"
	clientssvc "github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/services/clients"
	dealssvc "github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/services/deals"
	messagingsvc "github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/services/messaging"
	niprsvc "github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/services/nipr"
	positionssvc "github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/services/positions"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/storage"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/storage/memory"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/system"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/logging"
)

// Stores encapsulates persistence dependencies. Nil stores default to
// the in-memory implementation.
type Stores struct {
	Agencies  storage.AgencyStore
	Users     storage.UserStore
	Positions storage.PositionStore
	Carriers  storage.CarrierStore
	Clients   storage.ClientStore
	Deals     storage.DealStore
	Messaging storage.MessagingStore
	NIPR      storage.NIPRStore
	Billing   storage.BillingStore
}

// Options carries the external integrations the application wires in.
// Nil fields disable the corresponding integration.
type Options struct {
	SMSSender  messagingsvc.Sender
	Payments   billingsvc.Payments
	Dedup      billingsvc.Deduper
	AuthAdmin  agentssvc.AuthAdmin
	Prices     billingsvc.Prices
	SiteURL    string
	ReaperTick time.Duration
}

// Application ties domain services together and manages their
// lifecycle.
type Application struct {
	manager *system.Manager
	log     *logging.Logger

	Agencies  *agenciessvc.Service
	Agents    *agentssvc.Service
	Positions *positionssvc.Service
	Carriers  *carrierssvc.Service
	Clients   *clientssvc.Service
	Deals     *dealssvc.Service
	Messaging *messagingsvc.Service
	NIPR      *niprsvc.Service
	Billing   *billingsvc.Service
}

// New builds a fully initialised application with the provided stores
// and integrations.
func New(stores Stores, opts Options, log *logging.Logger) (*Application, error) {
	if log == nil {
		log = logging.NewDefault("app")
	}

	mem := memory.New()
	if stores.Agencies == nil {
		stores.Agencies = mem
	}
	if stores.Users == nil {
		stores.Users = mem
	}
	if stores.Positions == nil {
		stores.Positions = mem
	}
	if stores.Carriers == nil {
		stores.Carriers = mem
	}
	if stores.Clients == nil {
		stores.Clients = mem
	}
	if stores.Deals == nil {
		stores.Deals = mem
	}
	if stores.Messaging == nil {
		stores.Messaging = mem
	}
	if stores.NIPR == nil {
		stores.NIPR = mem
	}
	if stores.Billing == nil {
		stores.Billing = mem
	}

	manager := system.NewManager()

	agencyService := agenciessvc.New(stores.Agencies, log)
	agentService := agentssvc.New(stores.Agencies, stores.Users, stores.Positions, log)
	if opts.AuthAdmin != nil {
		agentService.AttachAuthAdmin(opts.AuthAdmin)
	}
	positionService := positionssvc.New(stores.Positions, stores.Carriers, log)
	carrierService := carrierssvc.New(stores.Carriers, log)
	clientService := clientssvc.New(stores.Clients, agentService, log)
	dealService := dealssvc.New(stores.Deals, stores.Users, stores.Positions, stores.Messaging, agentService, log)
	messagingService := messagingsvc.New(stores.Messaging, stores.Users, stores.Agencies, opts.SMSSender, agentService, log)
	niprService := niprsvc.New(stores.NIPR, stores.Users, log)
	billingService := billingsvc.New(stores.Billing, stores.Users, opts.Payments, opts.Dedup, opts.Prices, opts.SiteURL, log)

	reaper := niprsvc.NewReaper(niprService, opts.ReaperTick, log)
	if err := manager.Register(reaper); err != nil {
		return nil, fmt.Errorf("register %s: %w", reaper.Name(), err)
	}

	return &Application{
		manager:   manager,
		log:       log,
		Agencies:  agencyService,
		Agents:    agentService,
		Positions: positionService,
		Carriers:  carrierService,
		Clients:   clientService,
		Deals:     dealService,
		Messaging: messagingService,
		NIPR:      niprService,
		Billing:   billingService,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call
// before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered background services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all background services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
