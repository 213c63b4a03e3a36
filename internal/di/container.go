package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/storefront/api/internal/payments"
	"github.com/storefront/api/internal/platform/config"
	"github.com/storefront/api/internal/repositories"
	"github.com/storefront/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Orders        services.OrderService
	Payments      services.PaymentService
	Stock         services.StockService
	Cart          services.CartService
	Reviews       services.ReviewService
	System        services.SystemService
	Notifications services.NotificationDispatcher
}

// Collaborators carries the outbound integrations built by the composition root. Nil members
// fall back to disabled or no-op behaviour.
type Collaborators struct {
	Gateway  payments.Gateway
	Mailer   services.Mailer
	Invoices services.InvoiceRenderer
	Archive  services.InvoiceArchive
	Events   services.OrderEventPublisher
	Health   repositories.HealthRepository
	Meter    metric.Meter
	Logger   func(ctx context.Context, event string, fields map[string]any)
	Build    services.BuildInfo
	Clock    func() time.Time
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring passes the Firestore
// registry, while tests and debug mode supply the in-memory store.
func NewContainer(_ context.Context, cfg config.Config, reg repositories.Registry, collab Collaborators) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(reg, cfg, collab)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close drains queued notifications, then releases repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Services.Notifications != nil {
		if err := c.Services.Notifications.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close notifications: %w", err))
		}
	}
	if c.Repositories != nil {
		if err := c.Repositories.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close repositories: %w", err))
		}
	}
	return errors.Join(errs...)
}

func buildServices(reg repositories.Registry, cfg config.Config, collab Collaborators) (Services, error) {
	var svc Services

	clock := collab.Clock
	if clock == nil {
		clock = time.Now
	}
	gateway := collab.Gateway
	if gateway == nil {
		gateway = payments.Disabled{}
	}

	stockSvc, err := services.NewStockService(services.StockServiceDeps{
		Products: reg.Products(),
		Meter:    collab.Meter,
		Logger:   collab.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build stock service: %w", err)
	}
	svc.Stock = stockSvc

	if collab.Mailer != nil {
		dispatcher, err := services.NewNotificationDispatcher(services.NotificationDispatcherDeps{
			Accounts:  reg.Accounts(),
			Mailer:    collab.Mailer,
			Invoices:  collab.Invoices,
			Archive:   collab.Archive,
			Events:    collab.Events,
			QueueSize: cfg.Notifications.QueueSize,
			Workers:   cfg.Notifications.Workers,
			Meter:     collab.Meter,
			Clock:     clock,
			Logger:    collab.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build notification dispatcher: %w", err)
		}
		svc.Notifications = dispatcher
	}

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:          reg.Orders(),
		Accounts:        reg.Accounts(),
		Counters:        reg.Counters(),
		UnitOfWork:      reg,
		Stock:           stockSvc,
		Notifications:   svc.Notifications,
		Gateway:         gateway,
		Invoices:        collab.Invoices,
		DuplicateWindow: cfg.Orders.DuplicateWindow,
		Clock:           clock,
		Logger:          collab.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
		Orders:        reg.Orders(),
		Accounts:      reg.Accounts(),
		UnitOfWork:    reg,
		Gateway:       gateway,
		Stock:         stockSvc,
		Notifications: svc.Notifications,
		Clock:         clock,
		Logger:        collab.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build payment service: %w", err)
	}
	svc.Payments = paymentSvc

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Accounts: reg.Accounts(),
		Logger:   collab.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cartSvc

	reviewSvc, err := services.NewReviewService(services.ReviewServiceDeps{
		Orders:     reg.Orders(),
		Products:   reg.Products(),
		Accounts:   reg.Accounts(),
		UnitOfWork: reg,
		Clock:      clock,
		Logger:     collab.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build review service: %w", err)
	}
	svc.Reviews = reviewSvc

	if collab.Health != nil {
		build := collab.Build
		if build.Environment == "" {
			build.Environment = cfg.Server.Environment
		}
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: collab.Health,
			Clock:            clock,
			Build:            build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
