package models

import "time"

const (
	TransactionTypePayment = "SUBSCRIPTION_PAYMENT"
	TransactionTypeRenewal = "SUBSCRIPTION_RENEWAL"
)

const (
	TransactionStatusPending  = "PENDING"
	TransactionStatusSuccess  = "SUCCESS"
	TransactionStatusFailed   = "FAILED"
	TransactionStatusRefunded = "REFUNDED"
)

const (
	PaymentProviderRazorpay = "razorpay"
	PaymentProviderCashfree = "cashfree"
)

// Transaction is one row of the append-only payment ledger. ExternalID is the
// idempotency key: together with Provider and Type it is unique.
type Transaction struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	UserID             uint       `gorm:"not null;index" json:"user_id"`
	Type               string     `gorm:"type:varchar(32);not null;index:ux_transactions_provider_external_type,unique,priority:3" json:"type"`
	Amount             int64      `gorm:"not null" json:"amount"`
	Currency           string     `gorm:"type:varchar(3);not null;default:'INR'" json:"currency"`
	Status             string     `gorm:"type:varchar(16);not null;index" json:"status"`
	Provider           string     `gorm:"type:varchar(20);not null;index:ux_transactions_provider_external_type,unique,priority:1" json:"provider"`
	ExternalID         string     `gorm:"type:varchar(191);not null;index:ux_transactions_provider_external_type,unique,priority:2" json:"external_id"`
	ProviderOrderID    string     `gorm:"type:varchar(191);index" json:"provider_order_id,omitempty"`
	ProviderPaymentID  string     `gorm:"type:varchar(191)" json:"provider_payment_id,omitempty"`
	ProviderSignature  string     `gorm:"type:varchar(255)" json:"-"`
	BillingPeriodStart *time.Time `gorm:"default:null" json:"billing_period_start,omitempty"`
	BillingPeriodEnd   *time.Time `gorm:"default:null" json:"billing_period_end,omitempty"`
	CreatedAt          time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}
