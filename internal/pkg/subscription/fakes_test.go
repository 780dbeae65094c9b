package subscription

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/Marketly/app/models"
	"github.com/ManuelReschke/Marketly/internal/pkg/payment"
)

type fakeRepo struct {
	mu       sync.Mutex
	users    map[uint]*models.User
	products map[uint]*models.Product
	ledger   []models.Transaction
	events   []*models.WebhookEvent
	// beforeTx runs once, outside the lock, ahead of the next WithinTx.
	beforeTx func()
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:    map[uint]*models.User{},
		products: map[uint]*models.Product{},
	}
}

func (r *fakeRepo) addUser(u models.User) *models.User {
	r.users[u.ID] = &u
	return &u
}

func (r *fakeRepo) addProducts(userID uint, statuses ...string) {
	for _, st := range statuses {
		id := uint(len(r.products) + 1)
		r.products[id] = &models.Product{ID: id, UserID: userID, Status: st}
	}
}

func (r *fakeRepo) productStatuses(userID uint) map[string]int {
	out := map[string]int{}
	for _, p := range r.products {
		if p.UserID == userID {
			out[p.Status]++
		}
	}
	return out
}

func (r *fakeRepo) ledgerRows(status string) []models.Transaction {
	var out []models.Transaction
	for _, t := range r.ledger {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out
}

func copyUser(u *models.User) *models.User {
	c := *u
	return &c
}

func (r *fakeRepo) GetUser(_ context.Context, id uint) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return copyUser(u), nil
}

func (r *fakeRepo) FindUserByRef(_ context.Context, ref string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.SubscriptionRef() == ref {
			return copyUser(u), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) SetPendingRef(_ context.Context, userID uint, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[userID].SubscriptionID = &ref
	return nil
}

func (r *fakeRepo) LatestSuccessfulPayment(_ context.Context, userID uint) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.ledger) - 1; i >= 0; i-- {
		if r.ledger[i].UserID == userID && r.ledger[i].Status == models.TransactionStatusSuccess {
			t := r.ledger[i]
			return &t, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) ListSweepCandidates(_ context.Context, now, cutoff time.Time) ([]models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.User
	for _, u := range r.users {
		switch u.SubscriptionStatus {
		case models.SubscriptionActive:
			if lapsed(u.SubscriptionEndDate, now) {
				out = append(out, *u)
			}
		case models.SubscriptionPastDue:
			if lapsed(u.SubscriptionEndDate, cutoff) {
				out = append(out, *u)
			}
		}
	}
	return out, nil
}

func (r *fakeRepo) ListEndingBetween(_ context.Context, from, to time.Time) ([]models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.User
	for _, u := range r.users {
		if u.SubscriptionStatus == models.SubscriptionActive && u.SubscriptionEndDate != nil &&
			u.SubscriptionEndDate.After(from) && !u.SubscriptionEndDate.After(to) {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (r *fakeRepo) CreateWebhookEventIfNotExists(_ context.Context, event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Provider == event.Provider && e.ProviderEventID == event.ProviderEventID {
			c := *e
			return false, &c, nil
		}
	}
	event.ID = uint(len(r.events) + 1)
	stored := *event
	r.events = append(r.events, &stored)
	c := stored
	return true, &c, nil
}

func (r *fakeRepo) MarkWebhookProcessed(_ context.Context, id uint, processingError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, e := range r.events {
		if e.ID == id {
			e.ProcessedAt = &now
			e.ProcessingError = processingError
		}
	}
	return nil
}

// WithinTx restores a snapshot when fn fails.
func (r *fakeRepo) WithinTx(_ context.Context, fn func(tx TxRepository) error) error {
	if hook := r.beforeTx; hook != nil {
		r.beforeTx = nil
		hook()
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	users := map[uint]*models.User{}
	for id, u := range r.users {
		users[id] = copyUser(u)
	}
	products := map[uint]*models.Product{}
	for id, p := range r.products {
		c := *p
		products[id] = &c
	}
	ledger := append([]models.Transaction(nil), r.ledger...)

	if err := fn(&fakeTx{r: r}); err != nil {
		r.users, r.products, r.ledger = users, products, ledger
		return err
	}
	return nil
}

type fakeTx struct {
	r *fakeRepo
}

func (t *fakeTx) LockUser(userID uint) (*models.User, error) {
	u, ok := t.r.users[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return copyUser(u), nil
}

func (t *fakeTx) SaveSubscription(user *models.User) error {
	u := t.r.users[user.ID]
	u.SubscriptionStatus = user.SubscriptionStatus
	u.SubscriptionID = user.SubscriptionID
	u.SubscriptionStartDate = user.SubscriptionStartDate
	u.SubscriptionEndDate = user.SubscriptionEndDate
	u.NextBillingDate = user.NextBillingDate
	return nil
}

func (t *fakeTx) SetProductsStatus(userID uint, from, to string) (int64, error) {
	var n int64
	for _, p := range t.r.products {
		if p.UserID == userID && p.Status == from {
			p.Status = to
			n++
		}
	}
	return n, nil
}

func (t *fakeTx) HasSuccessfulPayment(provider string, externalIDs []string) (bool, error) {
	for _, row := range t.r.ledger {
		if row.Provider != provider || row.Status != models.TransactionStatusSuccess {
			continue
		}
		for _, id := range externalIDs {
			if row.ExternalID == id {
				return true, nil
			}
		}
	}
	return false, nil
}

func (t *fakeTx) InsertTransaction(row *models.Transaction) (bool, error) {
	for _, existing := range t.r.ledger {
		if existing.Provider == row.Provider && existing.ExternalID == row.ExternalID && existing.Type == row.Type {
			return false, nil
		}
	}
	row.ID = uint(len(t.r.ledger) + 1)
	t.r.ledger = append(t.r.ledger, *row)
	return true, nil
}

type fakeGateway struct {
	orders       int
	verifyStatus *payment.PaymentStatus
	verifyErr    error
	parsed       *payment.WebhookEvent
	parseErr     error
	refunds      []payment.RefundRequest
	refundErr    error
	onRefund     func()
	cancelled    []string
	cancelErr    error
}

func (g *fakeGateway) Name() string { return payment.ProviderRazorpay }

func (g *fakeGateway) CreateOrder(_ context.Context, req payment.OrderRequest) (*payment.Order, error) {
	g.orders++
	return &payment.Order{ExternalOrderID: "sub_new", Amount: req.Amount, Currency: req.Currency}, nil
}

func (g *fakeGateway) VerifyPayment(context.Context, payment.VerifyRequest) (*payment.PaymentStatus, error) {
	return g.verifyStatus, g.verifyErr
}

func (g *fakeGateway) ParseWebhook(payment.Headers, []byte) (*payment.WebhookEvent, error) {
	return g.parsed, g.parseErr
}

func (g *fakeGateway) Refund(_ context.Context, req payment.RefundRequest) error {
	g.refunds = append(g.refunds, req)
	if g.onRefund != nil {
		g.onRefund()
	}
	return g.refundErr
}

func (g *fakeGateway) CancelSubscription(_ context.Context, ref string) error {
	g.cancelled = append(g.cancelled, ref)
	return g.cancelErr
}

type recordingNotifier struct {
	changes []Change
}

func (n *recordingNotifier) SubscriptionChanged(_ context.Context, c Change) {
	n.changes = append(n.changes, c)
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }
