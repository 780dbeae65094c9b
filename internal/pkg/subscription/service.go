// Package subscription owns the paid-listing lifecycle: it applies the
// transition table in machine.go to users, their products and the payment
// ledger, and reconciles provider webhooks into those transitions.
package subscription

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/Marketly/app/models"
	"github.com/ManuelReschke/Marketly/internal/pkg/apperror"
	"github.com/ManuelReschke/Marketly/internal/pkg/payment"
)

// Change is emitted after a transition has been committed.
type Change struct {
	UserID    uint       `json:"user_id"`
	Name      string     `json:"-"`
	Email     string     `json:"-"`
	Event     Event      `json:"event"`
	From      string     `json:"from"`
	To        string     `json:"to"`
	Amount    int64      `json:"amount,omitempty"`
	Currency  string     `json:"currency,omitempty"`
	PaymentID string     `json:"payment_id,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	At        time.Time  `json:"at"`
}

func newChange(u *models.User, ev Event, t Transition, now time.Time) *Change {
	return &Change{
		UserID:  u.ID,
		Name:    u.Name,
		Email:   u.Email,
		Event:   ev,
		From:    t.From,
		To:      t.To,
		EndDate: u.SubscriptionEndDate,
		At:      now,
	}
}

// Notifier receives committed changes and should return quickly.
type Notifier interface {
	SubscriptionChanged(ctx context.Context, change Change)
}

// Status is the read model served by the check endpoint.
type Status struct {
	HasActiveSubscription bool       `json:"has_active_subscription"`
	SubscriptionStatus    string     `json:"subscription_status"`
	SubscriptionEndDate   *time.Time `json:"subscription_end_date"`
	NextBillingDate       *time.Time `json:"next_billing_date,omitempty"`
	CanList               bool       `json:"can_list"`
	ListingMode           string     `json:"listing_mode"`
}

// SweepResult counts what one expiry sweep changed.
type SweepResult struct {
	PastDue   int
	Cancelled int
	Failed    int
}

// Service applies subscription transitions.
type Service struct {
	repo      Repository
	gateway   payment.Gateway
	cfg       Config
	now       func() time.Time
	notifiers []Notifier
}

type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifiers = append(s.notifiers, n)
		}
	}
}

// NewService creates a subscription service from injected dependencies.
func NewService(repo Repository, gateway payment.Gateway, cfg Config, opts ...Option) *Service {
	s := &Service{repo: repo, gateway: gateway, cfg: cfg, now: time.Now}
	if gateway != nil && s.cfg.Provider == "" {
		s.cfg.Provider = gateway.Name()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewServiceFromDB creates a subscription service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, gateway payment.Gateway, cfg Config, opts ...Option) *Service {
	return NewService(NewRepository(db), gateway, cfg, opts...)
}

func (s *Service) Config() Config {
	return s.cfg
}

// CanList is the listing gate. The stored status alone is never trusted.
func (s *Service) CanList(u *models.User, now time.Time) bool {
	if s.cfg.Mode == ModeFree {
		return true
	}
	return u != nil && u.HasActiveSubscription(now)
}

// Check returns the subscription read model for a user.
func (s *Service) Check(ctx context.Context, userID uint) (*Status, error) {
	u, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	status := u.SubscriptionStatus
	if status == "" {
		status = models.SubscriptionInactive
	}
	return &Status{
		HasActiveSubscription: u.HasActiveSubscription(now),
		SubscriptionStatus:    status,
		SubscriptionEndDate:   u.SubscriptionEndDate,
		NextBillingDate:       u.NextBillingDate,
		CanList:               s.CanList(u, now),
		ListingMode:           s.cfg.Mode,
	}, nil
}

func (s *Service) loadUser(ctx context.Context, userID uint) (*models.User, error) {
	u, err := s.repo.GetUser(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("user")
	}
	return u, err
}

// Create opens a checkout with the provider and remembers its reference as
// the pending subscription. The status does not change until payment.
func (s *Service) Create(ctx context.Context, userID uint) (*payment.Order, error) {
	if s.gateway == nil {
		return nil, payment.ErrNotConfigured
	}
	u, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, err := Next(Input{Status: u.SubscriptionStatus, EndDate: u.SubscriptionEndDate, Now: s.now()}, EventCreate); err != nil {
		return nil, err
	}
	if err := s.cancelLapsed(ctx, u); err != nil {
		return nil, err
	}

	order, err := s.gateway.CreateOrder(ctx, payment.OrderRequest{
		UserID:   u.ID,
		Name:     u.Name,
		Email:    u.Email,
		Phone:    u.Phone,
		Amount:   s.cfg.Price,
		Currency: s.cfg.Currency,
	})
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetPendingRef(ctx, u.ID, order.ExternalOrderID); err != nil {
		return nil, fmt.Errorf("store pending subscription ref: %w", err)
	}
	log.Infof("[Subscription] Created %s checkout %s for user %d", s.gateway.Name(), order.ExternalOrderID, u.ID)
	return order, nil
}

// cancelLapsed stops a lapsed ACTIVE or PAST_DUE subscription at the provider
// before its reference is replaced, so the old plan cannot charge again.
func (s *Service) cancelLapsed(ctx context.Context, u *models.User) error {
	ref := u.SubscriptionRef()
	if ref == "" {
		return nil
	}
	if u.SubscriptionStatus != models.SubscriptionActive && u.SubscriptionStatus != models.SubscriptionPastDue {
		return nil
	}
	err := s.gateway.CancelSubscription(ctx, ref)
	switch {
	case err == nil:
		log.Infof("[Subscription] Cancelled lapsed %s subscription %s for user %d", s.gateway.Name(), ref, u.ID)
	case errors.Is(err, payment.ErrGatewayUnavailable):
		return err
	default:
		log.Warnf("[Subscription] Cancelling lapsed subscription %s for user %d: %v", ref, u.ID, err)
	}
	return nil
}

// Verify handles the browser redirect after checkout.
func (s *Service) Verify(ctx context.Context, userID uint, req payment.VerifyRequest) (*Status, error) {
	if s.gateway == nil {
		return nil, payment.ErrNotConfigured
	}
	u, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if req.ExternalOrderID == "" || req.ExternalOrderID != u.SubscriptionRef() {
		return nil, apperror.Validation("unknown subscription reference")
	}

	st, err := s.gateway.VerifyPayment(ctx, req)
	if err != nil {
		return nil, err
	}
	switch st.Status {
	case payment.PaymentPaid:
	case payment.PaymentFailed:
		if ferr := s.paymentFailed(ctx, u.ID, req.ExternalOrderID, st.PaymentID, st.Amount, false); ferr != nil {
			log.Warnf("[Subscription] Recording failed payment for user %d: %v", u.ID, ferr)
		}
		return nil, apperror.Validation("payment failed")
	default:
		return nil, apperror.Validation("payment is not completed yet")
	}
	if st.Amount > 0 && st.Amount < s.cfg.Price {
		return nil, apperror.Validation("paid amount does not match the subscription price")
	}

	if err := s.paymentSucceeded(ctx, u.ID, req.ExternalOrderID, st.PaymentID, st.Amount, req.Signature, EventPaymentConfirmed); err != nil {
		return nil, err
	}
	return s.Check(ctx, u.ID)
}

func ledgerType(ev Event) string {
	if ev == EventRenewalCharged {
		return models.TransactionTypeRenewal
	}
	return models.TransactionTypePayment
}

// paymentSucceeded activates or renews. A second delivery for the same
// payment is a no-op and never moves the end date again.
func (s *Service) paymentSucceeded(ctx context.Context, userID uint, ref, paymentID string, amount int64, signature string, ev Event) error {
	now := s.now()
	externalID := paymentID
	if externalID == "" {
		externalID = ref
	}
	if amount <= 0 {
		amount = s.cfg.Price
	}

	var change *Change
	err := s.repo.WithinTx(ctx, func(tx TxRepository) error {
		u, err := tx.LockUser(userID)
		if err != nil {
			return err
		}
		if u.SubscriptionRef() != ref {
			return apperror.StateConflict("reference %s is not the user's subscription", ref)
		}
		keys := []string{externalID}
		if ev == EventPaymentConfirmed && ref != externalID {
			// One-off orders carry a single payment, so the order ref is a key too.
			keys = append(keys, ref)
		}
		dup, err := tx.HasSuccessfulPayment(s.cfg.Provider, keys)
		if err != nil {
			return err
		}
		if dup {
			log.Infof("[Subscription] Payment %s already applied for user %d", externalID, userID)
			return nil
		}

		t, err := Next(Input{Status: u.SubscriptionStatus, EndDate: u.SubscriptionEndDate, Now: now}, ev)
		if err != nil {
			return err
		}
		end := s.cfg.PeriodEnd(now)
		s.applyTransition(u, t, now)
		if err := s.applyProducts(tx, u.ID, t.Products); err != nil {
			return err
		}
		if err := tx.SaveSubscription(u); err != nil {
			return err
		}
		inserted, err := tx.InsertTransaction(&models.Transaction{
			UserID:             u.ID,
			Type:               ledgerType(ev),
			Amount:             amount,
			Currency:           s.cfg.Currency,
			Status:             models.TransactionStatusSuccess,
			Provider:           s.cfg.Provider,
			ExternalID:         externalID,
			ProviderOrderID:    ref,
			ProviderPaymentID:  paymentID,
			ProviderSignature:  signature,
			BillingPeriodStart: &now,
			BillingPeriodEnd:   &end,
		})
		if err != nil {
			return err
		}
		if !inserted {
			return apperror.Conflict("ledger entry %s already exists", externalID)
		}
		change = newChange(u, ev, t, now)
		change.Amount, change.Currency, change.PaymentID = amount, s.cfg.Currency, paymentID
		return nil
	})
	if err != nil {
		return err
	}
	s.notify(ctx, change)
	return nil
}

func (s *Service) paymentFailed(ctx context.Context, userID uint, ref, paymentID string, amount int64, renewal bool) error {
	now := s.now()
	key := paymentID
	if key == "" {
		key = ref
	}
	if amount <= 0 {
		amount = s.cfg.Price
	}
	typ := models.TransactionTypePayment
	if renewal {
		typ = models.TransactionTypeRenewal
	}

	var change *Change
	err := s.repo.WithinTx(ctx, func(tx TxRepository) error {
		u, err := tx.LockUser(userID)
		if err != nil {
			return err
		}
		t, err := Next(Input{Status: u.SubscriptionStatus, EndDate: u.SubscriptionEndDate, Now: now, Renewal: renewal}, EventPaymentFailed)
		if err != nil {
			return err
		}
		inserted, err := tx.InsertTransaction(&models.Transaction{
			UserID:            u.ID,
			Type:              typ,
			Amount:            amount,
			Currency:          s.cfg.Currency,
			Status:            models.TransactionStatusFailed,
			Provider:          s.cfg.Provider,
			ExternalID:        "failed:" + key,
			ProviderOrderID:   ref,
			ProviderPaymentID: paymentID,
		})
		if err != nil || !inserted {
			return err
		}
		if t.Changed() {
			s.applyTransition(u, t, now)
			if err := tx.SaveSubscription(u); err != nil {
				return err
			}
			change = newChange(u, EventPaymentFailed, t, now)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.notify(ctx, change)
	return nil
}

// Cancel ends the user's subscription on request. The CANCELLED state
// commits first; only the call that made that transition refunds the latest
// payment and cancels with the provider, and neither can undo it.
func (s *Service) Cancel(ctx context.Context, userID uint) (*Status, error) {
	u, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if _, err := Next(Input{Status: u.SubscriptionStatus, EndDate: u.SubscriptionEndDate, Now: now}, EventCancel); err != nil {
		return nil, err
	}

	var change *Change
	err = s.repo.WithinTx(ctx, func(tx TxRepository) error {
		locked, err := tx.LockUser(userID)
		if err != nil {
			return err
		}
		// A provider webhook cancelled it between the read and the lock.
		if locked.SubscriptionStatus == models.SubscriptionCancelled {
			return nil
		}
		t, err := Next(Input{Status: locked.SubscriptionStatus, EndDate: locked.SubscriptionEndDate, Now: now}, EventCancel)
		if err != nil {
			return err
		}
		s.applyTransition(locked, t, now)
		if err := s.applyProducts(tx, locked.ID, t.Products); err != nil {
			return err
		}
		if err := tx.SaveSubscription(locked); err != nil {
			return err
		}
		change = newChange(locked, EventCancel, t, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if change == nil {
		log.Infof("[Subscription] User %d was already cancelled by the provider", userID)
		return s.Check(ctx, userID)
	}
	s.notify(ctx, change)

	if refund := s.refundLatest(ctx, u, now); refund != nil {
		err := s.repo.WithinTx(ctx, func(tx TxRepository) error {
			_, err := tx.InsertTransaction(refund)
			return err
		})
		if err != nil {
			log.Errorf("[Subscription] Recording refund %s for user %d: %v", refund.ExternalID, u.ID, err)
		}
	}
	if s.gateway != nil {
		if err := s.gateway.CancelSubscription(ctx, u.SubscriptionRef()); err != nil {
			log.Warnf("[Subscription] Provider cancel for user %d failed: %v", u.ID, err)
		}
	}
	return s.Check(ctx, userID)
}

// refundLatest refunds the payment covering the current period and returns
// the ledger row to append, or nil.
func (s *Service) refundLatest(ctx context.Context, u *models.User, now time.Time) *models.Transaction {
	if s.gateway == nil {
		return nil
	}
	last, err := s.repo.LatestSuccessfulPayment(ctx, u.ID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Subscription] Loading last payment for user %d: %v", u.ID, err)
		}
		return nil
	}
	if last.BillingPeriodEnd != nil && !last.BillingPeriodEnd.After(now) {
		return nil
	}

	err = s.gateway.Refund(ctx, payment.RefundRequest{
		ExternalOrderID: last.ProviderOrderID,
		PaymentID:       last.ProviderPaymentID,
		Amount:          last.Amount,
		Note:            "Subscription cancelled by user",
	})
	if err != nil {
		log.Warnf("[Subscription] Refund for user %d failed: %v", u.ID, err)
		return nil
	}
	return &models.Transaction{
		UserID:            u.ID,
		Type:              last.Type,
		Amount:            last.Amount,
		Currency:          last.Currency,
		Status:            models.TransactionStatusRefunded,
		Provider:          last.Provider,
		ExternalID:        "refund:" + last.ExternalID,
		ProviderOrderID:   last.ProviderOrderID,
		ProviderPaymentID: last.ProviderPaymentID,
	}
}

// providerEvent applies a status-only provider notification.
func (s *Service) providerEvent(ctx context.Context, userID uint, ev Event) error {
	now := s.now()
	var change *Change
	err := s.repo.WithinTx(ctx, func(tx TxRepository) error {
		u, err := tx.LockUser(userID)
		if err != nil {
			return err
		}
		t, err := Next(Input{Status: u.SubscriptionStatus, EndDate: u.SubscriptionEndDate, Now: now}, ev)
		if err != nil {
			return err
		}
		if !t.Changed() {
			return nil
		}
		s.applyTransition(u, t, now)
		if err := s.applyProducts(tx, u.ID, t.Products); err != nil {
			return err
		}
		if err := tx.SaveSubscription(u); err != nil {
			return err
		}
		change = newChange(u, ev, t, now)
		return nil
	})
	if err != nil {
		return err
	}
	s.notify(ctx, change)
	return nil
}

func (s *Service) applyTransition(u *models.User, t Transition, now time.Time) {
	u.SubscriptionStatus = t.To
	if t.StartPeriod || (t.RefreshLapsedPeriod && lapsed(u.SubscriptionEndDate, now)) {
		start := now
		end := s.cfg.PeriodEnd(now)
		next := end
		if t.From != models.SubscriptionActive || u.SubscriptionStartDate == nil {
			u.SubscriptionStartDate = &start
		}
		u.SubscriptionEndDate = &end
		u.NextBillingDate = &next
	}
}

func (s *Service) applyProducts(tx TxRepository, userID uint, effect ProductEffect) error {
	var (
		n   int64
		err error
	)
	switch effect {
	case ProductsHide:
		n, err = tx.SetProductsStatus(userID, models.ProductStatusActive, models.ProductStatusHidden)
	case ProductsUnhide:
		n, err = tx.SetProductsStatus(userID, models.ProductStatusHidden, models.ProductStatusActive)
	default:
		return nil
	}
	if err != nil {
		return err
	}
	if n > 0 {
		log.Debugf("[Subscription] Changed visibility of %d products for user %d", n, userID)
	}
	return nil
}

// ApplyEvent dispatches a verified webhook event to the state machine.
// Unknown references yield ErrStateConflict.
func (s *Service) ApplyEvent(ctx context.Context, ev *payment.WebhookEvent) error {
	if ev == nil || ev.Kind == payment.EventIgnored {
		return nil
	}
	u, err := s.repo.FindUserByRef(ctx, ev.ExternalRef)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.StateConflict("no user holds subscription %s", ev.ExternalRef)
	}
	if err != nil {
		return err
	}

	switch ev.Kind {
	case payment.EventPaymentConfirmed:
		return s.paymentSucceeded(ctx, u.ID, ev.ExternalRef, ev.PaymentID, ev.Amount, "", EventPaymentConfirmed)
	case payment.EventRenewalCharged:
		return s.paymentSucceeded(ctx, u.ID, ev.ExternalRef, ev.PaymentID, ev.Amount, "", EventRenewalCharged)
	case payment.EventPaymentFailed:
		return s.paymentFailed(ctx, u.ID, ev.ExternalRef, ev.PaymentID, ev.Amount, ev.Renewal)
	case payment.EventProviderCancelled:
		return s.providerEvent(ctx, u.ID, EventProviderCancelled)
	case payment.EventProviderCompleted:
		return s.providerEvent(ctx, u.ID, EventProviderCompleted)
	case payment.EventProviderPaused:
		return s.providerEvent(ctx, u.ID, EventProviderPaused)
	case payment.EventProviderResumed:
		return s.providerEvent(ctx, u.ID, EventProviderResumed)
	}
	return nil
}

// HandleWebhook records the delivery, verifies it and applies it once.
// Redeliveries of an already processed event return nil.
func (s *Service) HandleWebhook(ctx context.Context, headers payment.Headers, body []byte) error {
	if s.gateway == nil {
		return payment.ErrNotConfigured
	}
	ev, parseErr := s.gateway.ParseWebhook(headers, body)

	eventID, eventType := "", ""
	if ev != nil {
		eventID, eventType = ev.EventID, ev.Type
	}
	if eventID == "" {
		sum := sha256.Sum256(body)
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}
	if eventType == "" {
		eventType = "unknown"
	}

	created, stored, err := s.repo.CreateWebhookEventIfNotExists(ctx, &models.WebhookEvent{
		Provider:        s.gateway.Name(),
		ProviderEventID: eventID,
		EventType:       eventType,
		PayloadJSON:     string(body),
		SignatureValid:  parseErr == nil,
	})
	if err != nil {
		return fmt.Errorf("record webhook event: %w", err)
	}
	if !created && stored.ProcessedAt != nil && stored.ProcessingError == "" {
		log.Infof("[Subscription] Webhook %s already processed", eventID)
		return nil
	}

	procErr := parseErr
	if procErr == nil {
		procErr = s.ApplyEvent(ctx, ev)
	}
	errMsg := ""
	if procErr != nil {
		errMsg = procErr.Error()
	}
	if err := s.repo.MarkWebhookProcessed(ctx, stored.ID, errMsg); err != nil {
		log.Errorf("[Subscription] Marking webhook %d processed: %v", stored.ID, err)
	}
	return procErr
}

// Sweep moves lapsed subscriptions forward: ACTIVE past its end date becomes
// PAST_DUE, PAST_DUE past the grace period becomes CANCELLED.
func (s *Service) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := s.now()
	users, err := s.repo.ListSweepCandidates(ctx, now, now.Add(-s.cfg.Grace))
	if err != nil {
		return res, err
	}

	for _, candidate := range users {
		var change *Change
		err := s.repo.WithinTx(ctx, func(tx TxRepository) error {
			u, err := tx.LockUser(candidate.ID)
			if err != nil {
				return err
			}
			t, err := Next(Input{Status: u.SubscriptionStatus, EndDate: u.SubscriptionEndDate, Now: now, Grace: s.cfg.Grace}, EventExpire)
			if err != nil || !t.Changed() {
				return err
			}
			s.applyTransition(u, t, now)
			if err := s.applyProducts(tx, u.ID, t.Products); err != nil {
				return err
			}
			if err := tx.SaveSubscription(u); err != nil {
				return err
			}
			change = newChange(u, EventExpire, t, now)
			return nil
		})
		if err != nil {
			res.Failed++
			log.Errorf("[Subscription] Sweep failed for user %d: %v", candidate.ID, err)
			continue
		}
		if change == nil {
			continue
		}
		switch change.To {
		case models.SubscriptionPastDue:
			res.PastDue++
		case models.SubscriptionCancelled:
			res.Cancelled++
		}
		s.notify(ctx, change)
	}
	if res.PastDue+res.Cancelled > 0 {
		log.Infof("[Subscription] Sweep: %d past due, %d cancelled", res.PastDue, res.Cancelled)
	}
	return res, nil
}

// DueForReminder lists active subscribers whose period ends within the
// configured reminder lead time.
func (s *Service) DueForReminder(ctx context.Context) ([]models.User, error) {
	now := s.now()
	return s.repo.ListEndingBetween(ctx, now, now.Add(s.cfg.ReminderLead))
}

func (s *Service) notify(ctx context.Context, change *Change) {
	if change == nil {
		return
	}
	for _, n := range s.notifiers {
		n.SubscriptionChanged(ctx, *change)
	}
}
