package repository

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/Marketly/app/models"
)

type productRepository struct {
	db *gorm.DB
}

// NewProductRepository creates a new product repository instance
func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) Create(product *models.Product) error {
	return r.db.Omit("Category", "User").Create(product).Error
}

func (r *productRepository) GetByID(id uint) (*models.Product, error) {
	var p models.Product
	if err := r.db.First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByIDWithRelations loads the product with its category and seller.
func (r *productRepository) GetByIDWithRelations(id uint) (*models.Product, error) {
	var p models.Product
	err := r.withRelations(r.db).First(&p, id).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByIDAndOwner returns gorm.ErrRecordNotFound for products owned by someone
// else so callers cannot probe for existence.
func (r *productRepository) GetByIDAndOwner(id, userID uint) (*models.Product, error) {
	var p models.Product
	err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *productRepository) Update(product *models.Product) error {
	return r.db.Omit("Category", "User").Save(product).Error
}

func (r *productRepository) UpdateStatus(id uint, status string) error {
	res := r.db.Model(&models.Product{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete soft deletes a product
func (r *productRepository) Delete(id uint) error {
	return r.db.Delete(&models.Product{}, id).Error
}

// Find runs a filtered, sorted and paginated listing query.
func (r *productRepository) Find(filter ProductFilter) ([]models.Product, int64, error) {
	filter.Normalize()

	q := r.db.Model(&models.Product{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.UserID != 0 {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		p := likePattern(s)
		q = q.Where("(LOWER(title) LIKE ? OR LOWER(description) LIKE ?)", p, p)
	}
	if filter.CategoryID != 0 {
		// Selecting a root category also matches its children.
		sub := r.db.Model(&models.Category{}).Select("id").Where("parent_id = ?", filter.CategoryID)
		q = q.Where("(category_id = ? OR category_id IN (?))", filter.CategoryID, sub)
	}
	if c := strings.TrimSpace(filter.City); c != "" {
		q = q.Where("LOWER(city) = ?", strings.ToLower(c))
	}
	if s := strings.TrimSpace(filter.State); s != "" {
		q = q.Where("LOWER(state) = ?", strings.ToLower(s))
	}
	if filter.MinPrice != nil {
		q = q.Where("price >= ?", *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		q = q.Where("price <= ?", *filter.MaxPrice)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	switch filter.SortBy {
	case SortPriceLow:
		q = q.Order("price ASC").Order("id DESC")
	case SortPriceHigh:
		q = q.Order("price DESC").Order("id DESC")
	default:
		q = q.Order("created_at DESC").Order("id DESC")
	}

	var products []models.Product
	err := r.withRelations(q).Offset(filter.Offset()).Limit(filter.Limit).Find(&products).Error
	return products, total, err
}

func (r *productRepository) ListByUser(userID uint) ([]models.Product, error) {
	var products []models.Product
	err := r.db.Preload("Category").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&products).Error
	return products, err
}

func (r *productRepository) ListActiveForSitemap(limit int) ([]models.Product, error) {
	var products []models.Product
	err := r.db.Select("id", "updated_at").
		Where("status = ?", models.ProductStatusActive).
		Order("updated_at DESC").
		Limit(limit).
		Find(&products).Error
	return products, err
}

func (r *productRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Product{}).Count(&count).Error
	return count, err
}

func (r *productRepository) CountByStatus(status string) (int64, error) {
	var count int64
	err := r.db.Model(&models.Product{}).Where("status = ?", status).Count(&count).Error
	return count, err
}

func (r *productRepository) GetDailyStats(startDate, endDate time.Time) ([]models.DailyStats, error) {
	return dailyStats(r.db, &models.Product{}, startDate, endDate)
}

func (r *productRepository) withRelations(q *gorm.DB) *gorm.DB {
	return q.Preload("Category").
		Preload("User", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "name", "city", "state", "created_at")
		})
}
