// Package statistics computes the admin dashboard aggregates and keeps them
// in Redis for a short while.
package statistics

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/Marketly/app/models"
	"github.com/ManuelReschke/Marketly/app/repository"
	"github.com/ManuelReschke/Marketly/internal/pkg/cache"
)

const (
	CacheKeyAdminStats = "statistics:admin"
	CacheExpiration    = 5 * time.Minute
)

// Compute reads all aggregates from the stores. Revenue is SUCCESS minus
// REFUNDED; monthly revenue starts at the first day of now's month.
func Compute(repos *repository.Repositories, now time.Time) (*models.AdminStats, error) {
	stats := &models.AdminStats{}
	var err error

	if stats.TotalUsers, err = repos.User.Count(); err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	if stats.ActiveSubscribers, err = repos.User.CountActiveSubscribers(now); err != nil {
		return nil, fmt.Errorf("count subscribers: %w", err)
	}
	if stats.TotalProducts, err = repos.Product.Count(); err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}
	if stats.ActiveProducts, err = repos.Product.CountByStatus(models.ProductStatusActive); err != nil {
		return nil, fmt.Errorf("count active products: %w", err)
	}
	if stats.TotalRevenue, err = netRevenue(repos.Transaction, nil); err != nil {
		return nil, err
	}
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	if stats.MonthlyRevenue, err = netRevenue(repos.Transaction, &monthStart); err != nil {
		return nil, err
	}
	return stats, nil
}

func netRevenue(txs repository.TransactionRepository, since *time.Time) (int64, error) {
	paid, err := txs.SumByStatusSince(models.TransactionStatusSuccess, since)
	if err != nil {
		return 0, fmt.Errorf("sum payments: %w", err)
	}
	refunded, err := txs.SumByStatusSince(models.TransactionStatusRefunded, since)
	if err != nil {
		return 0, fmt.Errorf("sum refunds: %w", err)
	}
	return paid - refunded, nil
}

// GetAdminStats returns the cached aggregate, recomputing it on a miss.
// Cache errors only cost a recomputation.
func GetAdminStats(repos *repository.Repositories) (*models.AdminStats, error) {
	if raw, err := cache.Get(CacheKeyAdminStats); err == nil {
		var stats models.AdminStats
		if err := json.Unmarshal([]byte(raw), &stats); err == nil {
			return &stats, nil
		}
	}

	stats, err := Compute(repos, time.Now())
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(stats); err == nil {
		if err := cache.Set(CacheKeyAdminStats, raw, CacheExpiration); err != nil {
			log.Warnf("[Statistics] Failed to cache admin stats: %v", err)
		}
	}
	return stats, nil
}

// Invalidate drops the cached aggregate, e.g. after moderation.
func Invalidate() {
	if err := cache.Delete(CacheKeyAdminStats); err != nil {
		log.Debugf("[Statistics] Failed to invalidate cache: %v", err)
	}
}
