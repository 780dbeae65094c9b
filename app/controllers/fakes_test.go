package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/Marketly/app/models"
	"github.com/ManuelReschke/Marketly/app/repository"
	"github.com/ManuelReschke/Marketly/internal/pkg/usercontext"
)

type memUsers struct {
	repository.UserRepository
	mu     sync.Mutex
	nextID uint
	byID   map[uint]*models.User
}

func newMemUsers(users ...*models.User) *memUsers {
	m := &memUsers{byID: map[uint]*models.User{}}
	for _, u := range users {
		_ = m.Create(u)
	}
	return m
}

func (m *memUsers) Create(u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == 0 {
		m.nextID++
		u.ID = m.nextID
	} else if u.ID > m.nextID {
		m.nextID = u.ID
	}
	cp := *u
	m.byID[u.ID] = &cp
	return nil
}

func (m *memUsers) find(match func(*models.User) bool) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memUsers) GetByID(id uint) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.ID == id })
}

func (m *memUsers) GetByEmail(email string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.Email == email })
}

func (m *memUsers) GetByEmailOrPhone(identifier string) (*models.User, error) {
	return m.find(func(u *models.User) bool {
		return strings.EqualFold(u.Email, identifier) || u.Phone == identifier
	})
}

func (m *memUsers) GetByResetToken(token string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.ResetToken != "" && u.ResetToken == token })
}

func (m *memUsers) ExistsByEmailOrPhone(email, phone string) (bool, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	emailTaken, phoneTaken := false, false
	for _, u := range m.byID {
		if email != "" && strings.EqualFold(u.Email, email) {
			emailTaken = true
		}
		if phone != "" && u.Phone == phone {
			phoneTaken = true
		}
	}
	return emailTaken, phoneTaken, nil
}

func (m *memUsers) Update(u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.byID[u.ID] = &cp
	return nil
}

func (m *memUsers) UpdateRole(id uint, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	u.Role = role
	return nil
}

func (m *memUsers) TouchLastLogin(id uint, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[id]; ok {
		u.LastLoginAt = &at
	}
	return nil
}

func (m *memUsers) Search(query string, offset, limit int) ([]models.User, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.User
	for _, u := range m.byID {
		if query == "" || strings.Contains(strings.ToLower(u.Name), strings.ToLower(query)) {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := int64(len(out))
	if offset >= len(out) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], total, nil
}

func (m *memUsers) GetDailyStats(_, _ time.Time) ([]models.DailyStats, error) {
	return []models.DailyStats{{Date: "2026-01-01", Count: len(m.byID)}}, nil
}

type memProducts struct {
	repository.ProductRepository
	mu     sync.Mutex
	nextID uint
	byID   map[uint]*models.Product
}

func newMemProducts(products ...*models.Product) *memProducts {
	m := &memProducts{byID: map[uint]*models.Product{}}
	for _, p := range products {
		_ = m.Create(p)
	}
	return m
}

func (m *memProducts) Create(p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		m.nextID++
		p.ID = m.nextID
	} else if p.ID > m.nextID {
		m.nextID = p.ID
	}
	cp := *p
	m.byID[p.ID] = &cp
	return nil
}

func (m *memProducts) GetByID(id uint) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memProducts) GetByIDWithRelations(id uint) (*models.Product, error) {
	return m.GetByID(id)
}

func (m *memProducts) GetByIDAndOwner(id, userID uint) (*models.Product, error) {
	p, err := m.GetByID(id)
	if err != nil || p.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	return p, nil
}

func (m *memProducts) Update(p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.byID[p.ID] = &cp
	return nil
}

func (m *memProducts) UpdateStatus(id uint, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	p.Status = status
	return nil
}

func (m *memProducts) Delete(id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
	return nil
}

func (m *memProducts) sorted(match func(*models.Product) bool) []models.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Product
	for _, p := range m.byID {
		if match(p) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memProducts) Find(f repository.ProductFilter) ([]models.Product, int64, error) {
	f.Normalize()
	all := m.sorted(func(p *models.Product) bool {
		return (f.Status == "" || p.Status == f.Status) && (f.UserID == 0 || p.UserID == f.UserID)
	})
	total := int64(len(all))
	if f.Offset() >= len(all) {
		return nil, total, nil
	}
	end := f.Offset() + f.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[f.Offset():end], total, nil
}

func (m *memProducts) ListByUser(userID uint) ([]models.Product, error) {
	return m.sorted(func(p *models.Product) bool { return p.UserID == userID }), nil
}

func (m *memProducts) ListActiveForSitemap(limit int) ([]models.Product, error) {
	out := m.sorted(func(p *models.Product) bool { return p.Status == models.ProductStatusActive })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memProducts) GetDailyStats(_, _ time.Time) ([]models.DailyStats, error) {
	return []models.DailyStats{}, nil
}

type memCategories struct {
	repository.CategoryRepository
	all []models.Category
}

func (m *memCategories) Create(c *models.Category) error {
	c.ID = uint(len(m.all) + 1)
	m.all = append(m.all, *c)
	return nil
}

func (m *memCategories) GetByID(id uint) (*models.Category, error) {
	for _, c := range m.all {
		if c.ID == id {
			cp := c
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memCategories) SlugExists(slug string) (bool, error) {
	for _, c := range m.all {
		if c.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (m *memCategories) GetAll() ([]models.Category, error) {
	return m.all, nil
}

func (m *memCategories) GetTree() ([]models.Category, error) {
	return repository.BuildCategoryTree(m.all), nil
}

type memTransactions struct {
	repository.TransactionRepository
	rows []models.Transaction
}

func (m *memTransactions) ListByUser(userID uint, limit int) ([]models.Transaction, error) {
	var out []models.Transaction
	for _, tx := range m.rows {
		if tx.UserID == userID && len(out) < limit {
			out = append(out, tx)
		}
	}
	return out, nil
}

type recordingMail struct {
	mu   sync.Mutex
	sent []sentMail
}

type sentMail struct {
	To, Subject, Body string
}

func (r *recordingMail) Send(to, subject, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentMail{to, subject, body})
	return nil
}

type recordingSMS struct {
	mu    sync.Mutex
	codes map[string]string
}

func (r *recordingSMS) SendOTP(_ context.Context, phone, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.codes == nil {
		r.codes = map[string]string{}
	}
	r.codes[phone] = code
	return nil
}

func (r *recordingSMS) code(phone string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.codes[phone]
}

type staticGate bool

func (g staticGate) CanList(*models.User, time.Time) bool { return bool(g) }

// asUser authenticates every request as u, or leaves it anonymous when u is nil.
func asUser(u *models.User) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if u != nil {
			usercontext.Set(c, u)
		}
		return c.Next()
	}
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func testUser(id uint, role string) *models.User {
	return &models.User{
		ID:                 id,
		Name:               "Seller",
		Email:              "seller@example.com",
		Phone:              "9876543210",
		Role:               role,
		SubscriptionStatus: models.SubscriptionInactive,
	}
}
