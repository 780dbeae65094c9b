package database

import "gorm.io/gorm"

// DB is the process-wide connection pool, set by SetupDatabase.
var DB *gorm.DB

// GetDB returns the shared gorm handle.
func GetDB() *gorm.DB {
	return DB
}
