package repository

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/Marketly/app/models"
)

// userRepository implements the UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository instance
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create creates a new user in the database
func (r *userRepository) Create(user *models.User) error {
	return r.db.Create(user).Error
}

// GetByID retrieves a user by their ID
func (r *userRepository) GetByID(id uint) (*models.User, error) {
	var user models.User
	err := r.db.First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmail retrieves a user by their email address
func (r *userRepository) GetByEmail(email string) (*models.User, error) {
	var user models.User
	err := r.db.Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByPhone(phone string) (*models.User, error) {
	var user models.User
	err := r.db.Where("phone = ?", strings.TrimSpace(phone)).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmailOrPhone resolves a login identifier. Identifiers containing "@"
// are treated as email addresses.
func (r *userRepository) GetByEmailOrPhone(identifier string) (*models.User, error) {
	id := strings.TrimSpace(identifier)
	if strings.Contains(id, "@") {
		return r.GetByEmail(id)
	}
	return r.GetByPhone(id)
}

func (r *userRepository) GetByResetToken(token string) (*models.User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var user models.User
	err := r.db.Where("reset_token = ?", token).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ExistsByEmailOrPhone reports which of the two unique fields is already taken.
func (r *userRepository) ExistsByEmailOrPhone(email, phone string) (bool, bool, error) {
	var users []models.User
	err := r.db.Unscoped().Select("id", "email", "phone").
		Where("email = ? OR phone = ?", strings.ToLower(strings.TrimSpace(email)), strings.TrimSpace(phone)).
		Find(&users).Error
	if err != nil {
		return false, false, err
	}
	emailTaken, phoneTaken := false, false
	for _, u := range users {
		if strings.EqualFold(u.Email, strings.TrimSpace(email)) && email != "" {
			emailTaken = true
		}
		if u.Phone == strings.TrimSpace(phone) && phone != "" {
			phoneTaken = true
		}
	}
	return emailTaken, phoneTaken, nil
}

// Update updates an existing user in the database
func (r *userRepository) Update(user *models.User) error {
	return r.db.Save(user).Error
}

func (r *userRepository) UpdateRole(id uint, role string) error {
	res := r.db.Model(&models.User{}).Where("id = ?", id).Update("role", role)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *userRepository) TouchLastLogin(id uint, at time.Time) error {
	return r.db.Model(&models.User{}).Where("id = ?", id).Update("last_login_at", at).Error
}

// List retrieves a paginated list of users
func (r *userRepository) List(offset, limit int) ([]models.User, error) {
	var users []models.User
	err := r.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&users).Error
	return users, err
}

// Search searches users by name, email or phone and returns one page plus the total.
func (r *userRepository) Search(query string, offset, limit int) ([]models.User, int64, error) {
	q := r.db.Model(&models.User{})
	if strings.TrimSpace(query) != "" {
		p := likePattern(query)
		q = q.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ? OR phone LIKE ?", p, p, p)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var users []models.User
	err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&users).Error
	return users, total, err
}

// Count returns the total number of users
func (r *userRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.User{}).Count(&count).Error
	return count, err
}

// CountActiveSubscribers counts ACTIVE users whose end date is still ahead.
func (r *userRepository) CountActiveSubscribers(now time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&models.User{}).
		Where("subscription_status = ? AND subscription_end_date > ?", models.SubscriptionActive, now).
		Count(&count).Error
	return count, err
}

func (r *userRepository) ListSubscriptionsEndingBetween(from, to time.Time) ([]models.User, error) {
	if !to.After(from) {
		return nil, errors.New("invalid range")
	}
	var users []models.User
	err := r.db.
		Where("subscription_status = ? AND subscription_end_date > ? AND subscription_end_date <= ?",
			models.SubscriptionActive, from, to).
		Find(&users).Error
	return users, err
}

// GetDailyStats returns daily user registration statistics for a date range
func (r *userRepository) GetDailyStats(startDate, endDate time.Time) ([]models.DailyStats, error) {
	return dailyStats(r.db, &models.User{}, startDate, endDate)
}
