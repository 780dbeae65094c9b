package models

// DailyStats is a count for a single calendar day (YYYY-MM-DD).
type DailyStats struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// AdminStats is the admin dashboard aggregate. Revenue values are in minor
// currency units.
type AdminStats struct {
	TotalUsers        int64 `json:"total_users"`
	ActiveSubscribers int64 `json:"active_subscribers"`
	TotalProducts     int64 `json:"total_products"`
	ActiveProducts    int64 `json:"active_products"`
	TotalRevenue      int64 `json:"total_revenue"`
	MonthlyRevenue    int64 `json:"monthly_revenue"`
}
