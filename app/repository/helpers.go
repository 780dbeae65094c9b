package repository

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/Marketly/app/models"
)

// dayExpr renders created_at as YYYY-MM-DD for the active dialect.
func dayExpr(db *gorm.DB) string {
	if db.Dialector != nil && db.Dialector.Name() == "postgres" {
		return "TO_CHAR(created_at, 'YYYY-MM-DD')"
	}
	return "DATE_FORMAT(created_at, '%Y-%m-%d')"
}

// likePattern escapes LIKE wildcards and lowercases the term so callers can
// compare against LOWER(column) on both MySQL and Postgres.
func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + strings.ToLower(r.Replace(strings.TrimSpace(term))) + "%"
}

func dailyStats(db *gorm.DB, model interface{}, startDate, endDate time.Time) ([]models.DailyStats, error) {
	var results []struct {
		Date  string
		Count int64
	}

	expr := dayExpr(db)
	err := db.Model(model).
		Select(expr+" as date, COUNT(*) as count").
		Where("created_at BETWEEN ? AND ?", startDate, endDate).
		Group(expr).
		Order("date").
		Find(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get daily stats: %w", err)
	}

	stats := make([]models.DailyStats, len(results))
	for i, result := range results {
		stats[i] = models.DailyStats{Date: result.Date, Count: int(result.Count)}
	}
	return stats, nil
}
