package controllers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/ManuelReschke/Marketly/app/models"
	"github.com/ManuelReschke/Marketly/app/repository"
	"github.com/ManuelReschke/Marketly/internal/pkg/apperror"
)

const maxSlugAttempts = 50

type CategoryController struct {
	categories repository.CategoryRepository
}

func NewCategoryController(categories repository.CategoryRepository) *CategoryController {
	return &CategoryController{categories: categories}
}

type categoryRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	ParentID *uint  `json:"parent_id"`
}

// HandleTree returns root categories with their children.
func (cc *CategoryController) HandleTree(c *fiber.Ctx) error {
	tree, err := cc.categories.GetTree()
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"categories": tree})
}

// HandleCreate adds a category. Children may only hang below a root.
func (cc *CategoryController) HandleCreate(c *fiber.Ctx) error {
	var req categoryRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, err)
	}
	name := strings.TrimSpace(req.Name)

	if req.ParentID != nil {
		parent, err := cc.categories.GetByID(*req.ParentID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondError(c, apperror.Validation("parent category does not exist"))
		}
		if err != nil {
			return respondError(c, err)
		}
		if !parent.IsRoot() {
			return respondError(c, apperror.Validation("categories can only be nested one level deep"))
		}
	}

	slug, err := cc.uniqueSlug(name)
	if err != nil {
		return respondError(c, err)
	}
	category := &models.Category{Name: name, Slug: slug, ParentID: req.ParentID}
	if err := cc.categories.Create(category); err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"category": category})
}

// uniqueSlug derives a slug from name, appending -2, -3, ... on collisions.
func (cc *CategoryController) uniqueSlug(name string) (string, error) {
	base := models.Slugify(name)
	if base == "" {
		return "", apperror.Validation("name must contain letters or digits")
	}
	slug := base
	for i := 2; i <= maxSlugAttempts; i++ {
		exists, err := cc.categories.SlugExists(slug)
		if err != nil {
			return "", err
		}
		if !exists {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
	return "", apperror.Conflict("category %q already exists", name)
}
