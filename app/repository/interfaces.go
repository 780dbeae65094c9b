package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/Marketly/app/models"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByPhone(phone string) (*models.User, error)
	GetByEmailOrPhone(identifier string) (*models.User, error)
	GetByResetToken(token string) (*models.User, error)
	ExistsByEmailOrPhone(email, phone string) (emailTaken bool, phoneTaken bool, err error)
	Update(user *models.User) error
	UpdateRole(id uint, role string) error
	TouchLastLogin(id uint, at time.Time) error
	List(offset, limit int) ([]models.User, error)
	Search(query string, offset, limit int) ([]models.User, int64, error)
	Count() (int64, error)
	CountActiveSubscribers(now time.Time) (int64, error)
	ListSubscriptionsEndingBetween(from, to time.Time) ([]models.User, error)
	GetDailyStats(startDate, endDate time.Time) ([]models.DailyStats, error)
}

// ProductFilter describes a public listing query. Zero values mean "no filter".
type ProductFilter struct {
	Search     string
	CategoryID uint
	City       string
	State      string
	MinPrice   *float64
	MaxPrice   *float64
	SortBy     string
	Status     string
	UserID     uint
	Page       int
	Limit      int
}

// Sort orders accepted by ProductFilter.SortBy.
const (
	SortLatest    = "latest"
	SortPriceLow  = "price-low"
	SortPriceHigh = "price-high"
)

const (
	DefaultPageLimit = 12
	MaxPageLimit     = 50
)

// Normalize applies defaults and clamps paging values.
func (f *ProductFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit > MaxPageLimit {
		f.Limit = MaxPageLimit
	}
	switch f.SortBy {
	case SortLatest, SortPriceLow, SortPriceHigh:
	default:
		f.SortBy = SortLatest
	}
}

// Offset returns the row offset for the current page.
func (f *ProductFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// ProductRepository defines the interface for product-related database operations
type ProductRepository interface {
	Create(product *models.Product) error
	GetByID(id uint) (*models.Product, error)
	GetByIDWithRelations(id uint) (*models.Product, error)
	GetByIDAndOwner(id, userID uint) (*models.Product, error)
	Update(product *models.Product) error
	UpdateStatus(id uint, status string) error
	Delete(id uint) error
	Find(filter ProductFilter) ([]models.Product, int64, error)
	ListByUser(userID uint) ([]models.Product, error)
	ListActiveForSitemap(limit int) ([]models.Product, error)
	Count() (int64, error)
	CountByStatus(status string) (int64, error)
	GetDailyStats(startDate, endDate time.Time) ([]models.DailyStats, error)
}

// CategoryRepository defines the interface for category operations
type CategoryRepository interface {
	Create(category *models.Category) error
	GetByID(id uint) (*models.Category, error)
	GetBySlug(slug string) (*models.Category, error)
	SlugExists(slug string) (bool, error)
	GetAll() ([]models.Category, error)
	GetTree() ([]models.Category, error)
}

// TransactionRepository exposes read access to the payment ledger.
// Writes go through the subscription service.
type TransactionRepository interface {
	ListByUser(userID uint, limit int) ([]models.Transaction, error)
	SumByStatusSince(status string, since *time.Time) (int64, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	User        UserRepository
	Product     ProductRepository
	Category    CategoryRepository
	Transaction TransactionRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:        NewUserRepository(db),
		Product:     NewProductRepository(db),
		Category:    NewCategoryRepository(db),
		Transaction: NewTransactionRepository(db),
	}
}
