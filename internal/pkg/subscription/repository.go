package subscription

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/Marketly/app/models"
)

// Repository provides the DB operations used by the subscription service.
type Repository interface {
	GetUser(ctx context.Context, id uint) (*models.User, error)
	FindUserByRef(ctx context.Context, ref string) (*models.User, error)
	SetPendingRef(ctx context.Context, userID uint, ref string) error
	LatestSuccessfulPayment(ctx context.Context, userID uint) (*models.Transaction, error)
	ListSweepCandidates(ctx context.Context, now, graceCutoff time.Time) ([]models.User, error)
	ListEndingBetween(ctx context.Context, from, to time.Time) ([]models.User, error)
	CreateWebhookEventIfNotExists(ctx context.Context, event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error
	// WithinTx runs fn in one DB transaction.
	WithinTx(ctx context.Context, fn func(tx TxRepository) error) error
}

// TxRepository holds the writes that must commit together.
type TxRepository interface {
	// LockUser reads the user row with SELECT ... FOR UPDATE.
	LockUser(userID uint) (*models.User, error)
	SaveSubscription(user *models.User) error
	SetProductsStatus(userID uint, from, to string) (int64, error)
	// HasSuccessfulPayment looks for a SUCCESS payment or renewal row under any of the keys.
	HasSuccessfulPayment(provider string, externalIDs []string) (bool, error)
	// InsertTransaction returns false when the ledger key already exists.
	InsertTransaction(tx *models.Transaction) (bool, error)
}

var (
	// Columns of ux_webhook_events_provider_event.
	webhookEventKey = []string{"provider", "provider_event_id"}
	// Columns of ux_transactions_provider_external_type.
	ledgerKey = []string{"provider", "external_id", "type"}
)

// insertIgnoringDuplicate inserts row unless the unique key already holds it;
// RowsAffected is 0 in that case.
func insertIgnoringDuplicate(db *gorm.DB, row interface{}, key []string) *gorm.DB {
	cols := make([]clause.Column, 0, len(key))
	for _, name := range key {
		cols = append(cols, clause.Column{Name: name})
	}
	return db.Clauses(clause.OnConflict{Columns: cols, DoNothing: true}).Create(row)
}

func successfulPayments(db *gorm.DB, provider string, externalIDs []string) *gorm.DB {
	return db.Model(&models.Transaction{}).
		Where("provider = ? AND external_id IN ? AND status = ? AND type IN ?",
			provider, externalIDs, models.TransactionStatusSuccess,
			[]string{models.TransactionTypePayment, models.TransactionTypeRenewal})
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a subscription repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *gormRepository) FindUserByRef(ctx context.Context, ref string) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).Where("subscription_id = ?", ref).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *gormRepository) SetPendingRef(ctx context.Context, userID uint, ref string) error {
	return r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("subscription_id", ref).Error
}

func (r *gormRepository) LatestSuccessfulPayment(ctx context.Context, userID uint) (*models.Transaction, error) {
	var t models.Transaction
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.TransactionStatusSuccess).
		Order("created_at DESC").
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *gormRepository) ListSweepCandidates(ctx context.Context, now, graceCutoff time.Time) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).
		Where("(subscription_status = ? AND (subscription_end_date IS NULL OR subscription_end_date <= ?)) OR (subscription_status = ? AND (subscription_end_date IS NULL OR subscription_end_date <= ?))",
			models.SubscriptionActive, now, models.SubscriptionPastDue, graceCutoff).
		Find(&users).Error
	return users, err
}

func (r *gormRepository) ListEndingBetween(ctx context.Context, from, to time.Time) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).
		Where("subscription_status = ? AND subscription_end_date > ? AND subscription_end_date <= ?", models.SubscriptionActive, from, to).
		Find(&users).Error
	return users, err
}

func (r *gormRepository) CreateWebhookEventIfNotExists(ctx context.Context, event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	db := r.db.WithContext(ctx)
	tx := insertIgnoringDuplicate(db, event, webhookEventKey)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.WithContext(ctx).Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) WithinTx(ctx context.Context, fn func(tx TxRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) LockUser(userID uint) (*models.User, error) {
	var u models.User
	if err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&u, userID).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (t *gormTx) SaveSubscription(user *models.User) error {
	return t.db.Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
		"subscription_status":     user.SubscriptionStatus,
		"subscription_id":         user.SubscriptionID,
		"subscription_start_date": user.SubscriptionStartDate,
		"subscription_end_date":   user.SubscriptionEndDate,
		"next_billing_date":       user.NextBillingDate,
	}).Error
}

func (t *gormTx) SetProductsStatus(userID uint, from, to string) (int64, error) {
	res := t.db.Model(&models.Product{}).
		Where("user_id = ? AND status = ?", userID, from).
		Update("status", to)
	return res.RowsAffected, res.Error
}

func (t *gormTx) HasSuccessfulPayment(provider string, externalIDs []string) (bool, error) {
	if len(externalIDs) == 0 {
		return false, nil
	}
	var count int64
	err := successfulPayments(t.db, provider, externalIDs).Count(&count).Error
	return count > 0, err
}

func (t *gormTx) InsertTransaction(row *models.Transaction) (bool, error) {
	res := insertIgnoringDuplicate(t.db, row, ledgerKey)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
