package repository

import (
	"gorm.io/gorm"

	"github.com/ManuelReschke/Marketly/app/models"
)

type categoryRepository struct {
	db *gorm.DB
}

// NewCategoryRepository creates a new category repository instance
func NewCategoryRepository(db *gorm.DB) CategoryRepository {
	return &categoryRepository{db: db}
}

func (r *categoryRepository) Create(category *models.Category) error {
	return r.db.Omit("Children").Create(category).Error
}

func (r *categoryRepository) GetByID(id uint) (*models.Category, error) {
	var c models.Category
	if err := r.db.First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *categoryRepository) GetBySlug(slug string) (*models.Category, error) {
	var c models.Category
	if err := r.db.Where("slug = ?", slug).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *categoryRepository) SlugExists(slug string) (bool, error) {
	var count int64
	err := r.db.Model(&models.Category{}).Where("slug = ?", slug).Count(&count).Error
	return count > 0, err
}

func (r *categoryRepository) GetAll() ([]models.Category, error) {
	var categories []models.Category
	err := r.db.Order("name ASC").Find(&categories).Error
	return categories, err
}

// GetTree returns root categories with their children attached.
func (r *categoryRepository) GetTree() ([]models.Category, error) {
	all, err := r.GetAll()
	if err != nil {
		return nil, err
	}
	return BuildCategoryTree(all), nil
}

// BuildCategoryTree groups a flat list into roots with children, keeping the
// input order. Children whose parent is missing are dropped.
func BuildCategoryTree(all []models.Category) []models.Category {
	children := make(map[uint][]models.Category)
	for _, c := range all {
		if c.ParentID != nil {
			children[*c.ParentID] = append(children[*c.ParentID], c)
		}
	}
	roots := make([]models.Category, 0)
	for _, c := range all {
		if c.ParentID == nil {
			c.Children = children[c.ID]
			roots = append(roots, c)
		}
	}
	return roots
}
