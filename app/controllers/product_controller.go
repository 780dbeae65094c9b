package controllers

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/Marketly/app/models"
	"github.com/ManuelReschke/Marketly/app/repository"
	"github.com/ManuelReschke/Marketly/internal/pkg/apperror"
	"github.com/ManuelReschke/Marketly/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/Marketly/internal/pkg/usercontext"
)

// ListingGate decides whether a user may publish listings right now.
type ListingGate interface {
	CanList(u *models.User, now time.Time) bool
}

// ProductController serves the public catalogue and the owner's listing CRUD.
type ProductController struct {
	repos       *repository.Repositories
	gate        ListingGate
	now         func() time.Time
	recordView  func(productID uint) error
	recordClick func(productID uint) error
}

func NewProductController(repos *repository.Repositories, gate ListingGate) *ProductController {
	return &ProductController{
		repos:       repos,
		gate:        gate,
		now:         time.Now,
		recordView:  counter.AddProductView,
		recordClick: counter.AddPhoneClick,
	}
}

type productRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Price       float64  `json:"price"`
	Images      []string `json:"images"`
	CategoryID  uint     `json:"category_id"`
	City        string   `json:"city"`
	State       string   `json:"state"`
	Pincode     string   `json:"pincode"`
	Latitude    float64  `json:"latitude"`
	Longitude   float64  `json:"longitude"`
}

func (r productRequest) apply(p *models.Product) {
	p.Title = strings.TrimSpace(r.Title)
	p.Description = strings.TrimSpace(r.Description)
	p.Price = r.Price
	p.Images = r.Images
	p.CategoryID = r.CategoryID
	p.City = strings.TrimSpace(r.City)
	p.State = strings.TrimSpace(r.State)
	p.Pincode = strings.TrimSpace(r.Pincode)
	p.Latitude = r.Latitude
	p.Longitude = r.Longitude
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

// Pagination is the paging block of list responses.
type Pagination struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"total_pages"`
	HasMore    bool  `json:"has_more"`
}

func newPagination(total int64, page, limit int) Pagination {
	pages := 0
	if limit > 0 {
		pages = int(math.Ceil(float64(total) / float64(limit)))
	}
	return Pagination{
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: pages,
		HasMore:    page < pages,
	}
}

// filterFromQuery reads listing filters from the query string. Malformed
// numbers are treated as absent.
func filterFromQuery(c *fiber.Ctx) repository.ProductFilter {
	f := repository.ProductFilter{
		Search: c.Query("search"),
		City:   c.Query("city"),
		State:  c.Query("state"),
		SortBy: c.Query("sort_by"),
		Page:   c.QueryInt("page", 1),
		Limit:  c.QueryInt("limit", repository.DefaultPageLimit),
	}
	if id, err := strconv.ParseUint(c.Query("category_id"), 10, 64); err == nil {
		f.CategoryID = uint(id)
	}
	if v, err := strconv.ParseFloat(c.Query("min_price"), 64); err == nil {
		f.MinPrice = &v
	}
	if v, err := strconv.ParseFloat(c.Query("max_price"), 64); err == nil {
		f.MaxPrice = &v
	}
	f.Normalize()
	return f
}

// HandleList returns active listings only.
func (pc *ProductController) HandleList(c *fiber.Ctx) error {
	filter := filterFromQuery(c)
	filter.Status = models.ProductStatusActive

	products, total, err := pc.repos.Product.Find(filter)
	if err != nil {
		return respondError(c, err)
	}
	if products == nil {
		products = []models.Product{}
	}
	return c.JSON(fiber.Map{
		"products":   products,
		"pagination": newPagination(total, filter.Page, filter.Limit),
	})
}

// HandleGet returns one listing and counts a view. Non-active listings are
// only visible to their owner and to admins.
func (pc *ProductController) HandleGet(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return respondError(c, err)
	}
	product, err := pc.repos.Product.GetByIDWithRelations(id)
	if err != nil {
		return respondError(c, err)
	}
	if product.Status != models.ProductStatusActive {
		uc := usercontext.GetUserContext(c)
		if !uc.IsAdmin && uc.UserID != product.UserID {
			return respondError(c, apperror.NotFound("product"))
		}
	}

	if err := pc.recordView(product.ID); err != nil {
		log.Warnf("[Product] Counting view for %d: %v", product.ID, err)
	}
	return c.JSON(fiber.Map{"product": product})
}

// HandleContact reveals the seller phone of an active listing.
func (pc *ProductController) HandleContact(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return respondError(c, err)
	}
	product, err := pc.repos.Product.GetByID(id)
	if err != nil {
		return respondError(c, err)
	}
	if product.Status != models.ProductStatusActive {
		return respondError(c, apperror.NotFound("product"))
	}
	seller, err := pc.repos.User.GetByID(product.UserID)
	if err != nil {
		return respondError(c, err)
	}

	if err := pc.recordClick(product.ID); err != nil {
		log.Warnf("[Product] Counting phone click for %d: %v", product.ID, err)
	}
	return c.JSON(fiber.Map{"name": seller.Name, "phone": seller.Phone})
}

func (pc *ProductController) HandleCreate(c *fiber.Ctx) error {
	user := usercontext.GetUser(c)
	if user == nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing or invalid authentication")
	}
	if !pc.gate.CanList(user, pc.now()) {
		return jsonError(c, fiber.StatusForbidden, "subscription_required", "An active subscription is required to post listings")
	}

	var req productRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, apperror.Validation("invalid request body"))
	}
	product := &models.Product{UserID: user.ID, Status: models.ProductStatusActive}
	req.apply(product)
	if err := pc.validateProduct(product); err != nil {
		return respondError(c, err)
	}

	if err := pc.repos.Product.Create(product); err != nil {
		return respondError(c, err)
	}
	log.Infof("[Product] User %d created product %d", user.ID, product.ID)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"product": product})
}

func (pc *ProductController) HandleUpdate(c *fiber.Ctx) error {
	product, err := pc.ownedProduct(c)
	if err != nil {
		return respondError(c, err)
	}

	var req productRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, apperror.Validation("invalid request body"))
	}
	req.apply(product)
	if err := pc.validateProduct(product); err != nil {
		return respondError(c, err)
	}

	if err := pc.repos.Product.Update(product); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"product": product})
}

// HandleUpdateStatus lets the owner mark a listing ACTIVE, SOLD or ARCHIVED.
// Hidden listings belong to subscription handling and moderation.
func (pc *ProductController) HandleUpdateStatus(c *fiber.Ctx) error {
	product, err := pc.ownedProduct(c)
	if err != nil {
		return respondError(c, err)
	}

	var req statusRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, err)
	}
	status := strings.ToUpper(strings.TrimSpace(req.Status))
	if !models.IsOwnerSettableStatus(status) {
		return respondError(c, apperror.Validation("status must be one of ACTIVE, SOLD, ARCHIVED"))
	}
	if product.Status == models.ProductStatusHidden {
		return respondError(c, apperror.StateConflict("hidden listings cannot be changed"))
	}
	if status == models.ProductStatusActive && !pc.gate.CanList(usercontext.GetUser(c), pc.now()) {
		return jsonError(c, fiber.StatusForbidden, "subscription_required", "An active subscription is required to post listings")
	}

	if err := pc.repos.Product.UpdateStatus(product.ID, status); err != nil {
		return respondError(c, err)
	}
	product.Status = status
	return c.JSON(fiber.Map{"product": product})
}

func (pc *ProductController) HandleDelete(c *fiber.Ctx) error {
	product, err := pc.ownedProduct(c)
	if err != nil {
		return respondError(c, err)
	}
	if err := pc.repos.Product.Delete(product.ID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

func (pc *ProductController) HandleMyProducts(c *fiber.Ctx) error {
	products, err := pc.repos.Product.ListByUser(usercontext.GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	if products == nil {
		products = []models.Product{}
	}
	return c.JSON(fiber.Map{"products": products})
}

// ownedProduct loads the product only if the caller owns it; anything else is
// reported as not found.
func (pc *ProductController) ownedProduct(c *fiber.Ctx) (*models.Product, error) {
	id, err := paramID(c)
	if err != nil {
		return nil, err
	}
	uid := usercontext.GetUserID(c)
	if uid == 0 {
		return nil, apperror.ErrUnauthorized
	}
	product, err := pc.repos.Product.GetByIDAndOwner(id, uid)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("product")
	}
	return product, err
}

func (pc *ProductController) validateProduct(p *models.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if _, err := pc.repos.Category.GetByID(p.CategoryID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.Validation("category does not exist")
		}
		return err
	}
	return nil
}
