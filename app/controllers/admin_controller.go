package controllers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/Marketly/app/models"
	"github.com/ManuelReschke/Marketly/app/repository"
	"github.com/ManuelReschke/Marketly/internal/pkg/apperror"
	"github.com/ManuelReschke/Marketly/internal/pkg/jobqueue"
	"github.com/ManuelReschke/Marketly/internal/pkg/statistics"
	"github.com/ManuelReschke/Marketly/internal/pkg/usercontext"
)

const (
	defaultStatsDays = 30
	maxStatsDays     = 365
)

// QueueInspector reports job queue health for the admin API.
type QueueInspector interface {
	GetJobStats(ctx context.Context) (map[jobqueue.JobStatus]int64, error)
	GetQueueSize(ctx context.Context) (int64, error)
	GetProcessingSize(ctx context.Context) (int64, error)
}

// AdminController handles admin-related HTTP requests using repository pattern
type AdminController struct {
	repos      *repository.Repositories
	queue      QueueInspector
	stats      func() (*models.AdminStats, error)
	invalidate func()
	now        func() time.Time
}

// NewAdminController creates a new admin controller with repository dependencies.
// queue may be nil when the job queue is not running.
func NewAdminController(repos *repository.Repositories, queue QueueInspector) *AdminController {
	return &AdminController{
		repos: repos,
		queue: queue,
		stats: func() (*models.AdminStats, error) {
			return statistics.GetAdminStats(repos)
		},
		invalidate: statistics.Invalidate,
		now:        time.Now,
	}
}

type roleRequest struct {
	Role string `json:"role" validate:"required,oneof=user admin"`
}

type moderationRequest struct {
	Status string `json:"status" validate:"required"`
}

// HandleStats returns the dashboard aggregate.
func (ac *AdminController) HandleStats(c *fiber.Ctx) error {
	stats, err := ac.stats()
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(stats)
}

// HandleDailyStats returns per-day signups and new listings for the last
// ?days days.
func (ac *AdminController) HandleDailyStats(c *fiber.Ctx) error {
	days := c.QueryInt("days", defaultStatsDays)
	if days < 1 || days > maxStatsDays {
		days = defaultStatsDays
	}
	end := ac.now()
	start := end.AddDate(0, 0, -days+1)

	users, err := ac.repos.User.GetDailyStats(start, end)
	if err != nil {
		return respondError(c, err)
	}
	products, err := ac.repos.Product.GetDailyStats(start, end)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"users": users, "products": products})
}

// HandleUsers lists users, optionally filtered by ?q on name, email or phone.
func (ac *AdminController) HandleUsers(c *fiber.Ctx) error {
	page, limit := pageParams(c)
	users, total, err := ac.repos.User.Search(strings.TrimSpace(c.Query("q")), (page-1)*limit, limit)
	if err != nil {
		return respondError(c, err)
	}
	if users == nil {
		users = []models.User{}
	}
	return c.JSON(fiber.Map{
		"users":      users,
		"pagination": newPagination(total, page, limit),
	})
}

// HandleUpdateRole changes a user's role. Admins cannot demote themselves.
func (ac *AdminController) HandleUpdateRole(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return respondError(c, err)
	}
	var req roleRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, err)
	}
	if id == usercontext.GetUserID(c) && req.Role != models.ROLE_ADMIN {
		return respondError(c, apperror.Validation("you cannot remove your own admin role"))
	}

	if _, err := ac.repos.User.GetByID(id); err != nil {
		return respondError(c, err)
	}
	if err := ac.repos.User.UpdateRole(id, req.Role); err != nil {
		return respondError(c, err)
	}
	log.Infof("[Admin] User %d set role of user %d to %s", usercontext.GetUserID(c), id, req.Role)
	return c.JSON(fiber.Map{"success": true, "id": id, "role": req.Role})
}

// HandleProducts lists listings in any status. ?status and ?user_id narrow
// the result.
func (ac *AdminController) HandleProducts(c *fiber.Ctx) error {
	filter := filterFromQuery(c)
	filter.Status = strings.ToUpper(strings.TrimSpace(c.Query("status")))
	if uid := c.QueryInt("user_id", 0); uid > 0 {
		filter.UserID = uint(uid)
	}

	products, total, err := ac.repos.Product.Find(filter)
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

// HandleModerateProduct hides or restores a listing.
func (ac *AdminController) HandleModerateProduct(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return respondError(c, err)
	}
	var req moderationRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, err)
	}
	status := strings.ToUpper(strings.TrimSpace(req.Status))
	if status != models.ProductStatusHidden && status != models.ProductStatusActive {
		return respondError(c, apperror.Validation("status must be HIDDEN or ACTIVE"))
	}

	if err := ac.repos.Product.UpdateStatus(id, status); err != nil {
		return respondError(c, err)
	}
	ac.invalidate()
	log.Infof("[Admin] User %d set product %d to %s", usercontext.GetUserID(c), id, status)
	return c.JSON(fiber.Map{"success": true, "id": id, "status": status})
}

// HandleQueueStats reports job counters and queue depth.
func (ac *AdminController) HandleQueueStats(c *fiber.Ctx) error {
	if ac.queue == nil {
		return jsonError(c, fiber.StatusServiceUnavailable, "queue_unavailable", "Job queue is not running")
	}
	ctx := c.UserContext()
	stats, err := ac.queue.GetJobStats(ctx)
	if err != nil {
		return respondError(c, err)
	}
	pending, err := ac.queue.GetQueueSize(ctx)
	if err != nil {
		return respondError(c, err)
	}
	processing, err := ac.queue.GetProcessingSize(ctx)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"stats": stats, "pending": pending, "processing": processing})
}

func pageParams(c *fiber.Ctx) (int, int) {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 20)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}
