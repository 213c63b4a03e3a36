package services

import (
	"context"
	"sync"
	"time"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/payments"
	"github.com/storefront/api/internal/repositories/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingDispatcher struct {
	mu     sync.Mutex
	queued []Notification
	full   bool
}

func (d *recordingDispatcher) Enqueue(_ context.Context, n Notification) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.full {
		return false
	}
	d.queued = append(d.queued, n)
	return true
}

func (d *recordingDispatcher) Close(context.Context) error { return nil }

func (d *recordingDispatcher) Notifications() []Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Notification(nil), d.queued...)
}

type stubGateway struct {
	enabled     bool
	createFn    func(ctx context.Context, req payments.IntentRequest) (payments.GatewayOrder, error)
	fetchFn     func(ctx context.Context, id string) (payments.GatewayOrder, error)
	secret      string
	createCalls int
	fetchCalls  int
}

func (g *stubGateway) Enabled() bool { return g.enabled }

func (g *stubGateway) CreateIntent(ctx context.Context, req payments.IntentRequest) (payments.GatewayOrder, error) {
	g.createCalls++
	if g.createFn != nil {
		return g.createFn(ctx, req)
	}
	return payments.GatewayOrder{ID: "order_G1", Amount: req.AmountMinor, Currency: req.Currency, Receipt: req.Receipt, Status: "created"}, nil
}

func (g *stubGateway) FetchOrder(ctx context.Context, id string) (payments.GatewayOrder, error) {
	g.fetchCalls++
	if g.fetchFn != nil {
		return g.fetchFn(ctx, id)
	}
	return payments.GatewayOrder{ID: id}, nil
}

func (g *stubGateway) VerifySignature(orderID, paymentID, signature string) bool {
	return payments.VerifySignature(g.secret, orderID, paymentID, signature)
}

type stubMailer struct {
	mu     sync.Mutex
	sent   []MailMessage
	sendFn func(ctx context.Context, msg MailMessage) error
}

func (m *stubMailer) Send(ctx context.Context, msg MailMessage) error {
	if m.sendFn != nil {
		if err := m.sendFn(ctx, msg); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *stubMailer) Sent() []MailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MailMessage(nil), m.sent...)
}

type stubRenderer struct {
	renderFn func(order Order, email string) ([]byte, error)
}

func (r stubRenderer) Render(order Order, email string) ([]byte, error) {
	if r.renderFn != nil {
		return r.renderFn(order, email)
	}
	return []byte("%PDF-" + order.ID + "-" + email), nil
}

type stubArchive struct {
	mu     sync.Mutex
	stored map[string][]byte
	err    error
}

func (a *stubArchive) StoreInvoice(_ context.Context, order Order, pdf []byte) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stored == nil {
		a.stored = make(map[string][]byte)
	}
	path := "invoices/" + order.ID + ".pdf"
	a.stored[path] = pdf
	return path, nil
}

type stubPublisher struct {
	mu     sync.Mutex
	events []OrderEvent
}

func (p *stubPublisher) PublishOrderEvent(_ context.Context, event OrderEvent) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return "msg-1", nil
}

func (p *stubPublisher) Events() []OrderEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]OrderEvent(nil), p.events...)
}

func seedStorefront(store *memory.Store) {
	store.PutAccount(domain.Account{
		ID:    "u1",
		Name:  "Asha",
		Email: "asha@example.com",
		Role:  domain.RoleUser,
		Cart:  domain.Cart{"P1": {Quantity: 2, Color: "Red", Code: "RC"}},
	})
	store.PutProduct(domain.Product{
		ID:   "P1",
		Name: "Kurta",
		Variants: []domain.Variant{
			{Color: "Red", Fabric: "Cotton", Code: "RC", Stock: 5, Price: 500},
			{Color: "Blue", LegacyType: "Silk", Code: "BS", Stock: 1, Price: 700},
		},
	})
}

func sampleAddress() Address {
	return Address{
		FullName:    "Asha Rao",
		Phone:       "9876543210",
		Pincode:     "560001",
		State:       "Karnataka",
		City:        "Bengaluru",
		AddressLine: "12 MG Road",
	}
}

func sampleCommand() PlaceOrderCommand {
	return PlaceOrderCommand{
		UserID:  "u1",
		Email:   "asha@example.com",
		Items:   []OrderItem{{ProductID: "P1", Name: "Kurta", Code: "RC", Color: "Red", Price: 500, Quantity: 2}},
		Amount:  1000,
		Address: sampleAddress(),
	}
}

func newTestStockService(store *memory.Store) StockService {
	svc, err := NewStockService(StockServiceDeps{Products: store.Products()})
	if err != nil {
		panic(err)
	}
	return svc
}
