package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/Marketly/app/models"
)

type transactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates a new transaction repository instance
func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) ListByUser(userID uint, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	var txs []models.Transaction
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Limit(limit).Find(&txs).Error
	return txs, err
}

// SumByStatusSince sums amounts of the given status, optionally from a start time.
func (r *transactionRepository) SumByStatusSince(status string, since *time.Time) (int64, error) {
	q := r.db.Model(&models.Transaction{}).Where("status = ?", status)
	if since != nil {
		q = q.Where("created_at >= ?", *since)
	}
	var sum int64
	err := q.Select("COALESCE(SUM(amount), 0)").Row().Scan(&sum)
	return sum, err
}
