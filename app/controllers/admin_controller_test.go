package controllers

import (
	"context"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/Marketly/app/models"
	"github.com/ManuelReschke/Marketly/app/repository"
	"github.com/ManuelReschke/Marketly/internal/pkg/jobqueue"
)

type stubQueue struct{}

func (stubQueue) GetJobStats(context.Context) (map[jobqueue.JobStatus]int64, error) {
	return map[jobqueue.JobStatus]int64{jobqueue.JobStatusCompleted: 4}, nil
}
func (stubQueue) GetQueueSize(context.Context) (int64, error)      { return 2, nil }
func (stubQueue) GetProcessingSize(context.Context) (int64, error) { return 1, nil }

type adminFixture struct {
	app         *fiber.App
	users       *memUsers
	products    *memProducts
	invalidated int
}

func newAdminFixture(queue QueueInspector) *adminFixture {
	admin := testUser(1, models.ROLE_ADMIN)
	other := testUser(2, models.ROLE_USER)
	other.Name = "Buyer"
	f := &adminFixture{
		users:    newMemUsers(admin, other),
		products: newMemProducts(listing(2, models.ProductStatusActive), listing(2, models.ProductStatusHidden)),
	}
	repos := &repository.Repositories{User: f.users, Product: f.products}
	ctrl := NewAdminController(repos, queue)
	ctrl.stats = func() (*models.AdminStats, error) {
		return &models.AdminStats{TotalUsers: 2, ActiveSubscribers: 1, TotalRevenue: 9900}, nil
	}
	ctrl.invalidate = func() { f.invalidated++ }

	f.app = fiber.New()
	f.app.Use(asUser(admin))
	f.app.Get("/stats", ctrl.HandleStats)
	f.app.Get("/stats/daily", ctrl.HandleDailyStats)
	f.app.Get("/users", ctrl.HandleUsers)
	f.app.Patch("/users/:id/role", ctrl.HandleUpdateRole)
	f.app.Get("/products", ctrl.HandleProducts)
	f.app.Patch("/products/:id/status", ctrl.HandleModerateProduct)
	f.app.Get("/queue", ctrl.HandleQueueStats)
	return f
}

func TestAdminStats(t *testing.T) {
	f := newAdminFixture(nil)
	resp := doJSON(t, f.app, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, float64(2), body["total_users"])
	assert.Equal(t, float64(9900), body["total_revenue"])

	resp = doJSON(t, f.app, http.MethodGet, "/stats/daily?days=7", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, decodeBody(t, resp), "users")
}

func TestAdminUsersSearch(t *testing.T) {
	f := newAdminFixture(nil)
	resp := doJSON(t, f.app, http.MethodGet, "/users?q=buy", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Len(t, body["users"], 1)
	assert.Equal(t, float64(1), body["pagination"].(map[string]interface{})["total"])
}

func TestAdminUpdateRole(t *testing.T) {
	tests := []struct {
		name string
		path string
		role string
		want int
	}{
		{"promote", "/users/2/role", "admin", http.StatusOK},
		{"invalid role", "/users/2/role", "owner", http.StatusBadRequest},
		{"self demotion", "/users/1/role", "user", http.StatusBadRequest},
		{"unknown user", "/users/9/role", "admin", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAdminFixture(nil)
			resp := doJSON(t, f.app, http.MethodPatch, tt.path, map[string]string{"role": tt.role})
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}

	f := newAdminFixture(nil)
	doJSON(t, f.app, http.MethodPatch, "/users/2/role", map[string]string{"role": "admin"})
	u, err := f.users.GetByID(2)
	require.NoError(t, err)
	assert.Equal(t, models.ROLE_ADMIN, u.Role)
}

func TestAdminProductsAndModeration(t *testing.T) {
	f := newAdminFixture(nil)

	resp := doJSON(t, f.app, http.MethodGet, "/products", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeBody(t, resp)["products"], 2)

	resp = doJSON(t, f.app, http.MethodGet, "/products?status=hidden", nil)
	assert.Len(t, decodeBody(t, resp)["products"], 1)

	resp = doJSON(t, f.app, http.MethodPatch, "/products/1/status", map[string]string{"status": "SOLD"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, f.invalidated)

	resp = doJSON(t, f.app, http.MethodPatch, "/products/1/status", map[string]string{"status": "hidden"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.ProductStatusHidden, f.products.byID[1].Status)
	assert.Equal(t, 1, f.invalidated)

	resp = doJSON(t, f.app, http.MethodPatch, "/products/42/status", map[string]string{"status": "ACTIVE"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdminQueueStats(t *testing.T) {
	resp := doJSON(t, newAdminFixture(nil).app, http.MethodGet, "/queue", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = doJSON(t, newAdminFixture(stubQueue{}).app, http.MethodGet, "/queue", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, float64(2), body["pending"])
	assert.Equal(t, float64(4), body["stats"].(map[string]interface{})[string(jobqueue.JobStatusCompleted)])
}
