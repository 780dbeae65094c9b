package models

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	ROLE_USER  = "user"
	ROLE_ADMIN = "admin"
)

// Subscription states. CANCELLED ends one subscription instance; a new
// create() may move the user back to ACTIVE.
const (
	SubscriptionInactive  = "INACTIVE"
	SubscriptionActive    = "ACTIVE"
	SubscriptionPastDue   = "PAST_DUE"
	SubscriptionCancelled = "CANCELLED"
)

const resetTokenTTL = time.Hour

type User struct {
	ID        uint    `gorm:"primaryKey" json:"id"`
	Name      string  `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=2,max=150"`
	Email     string  `gorm:"uniqueIndex;type:varchar(200);not null" json:"email" validate:"required,email,max=200"`
	Phone     string  `gorm:"uniqueIndex;type:varchar(15);not null" json:"phone" validate:"required,numeric,len=10"`
	Password  string  `gorm:"type:text;not null" json:"-" validate:"required"`
	Role      string  `gorm:"type:varchar(20);default:'user';not null" json:"role" validate:"oneof=user admin"`
	City      string  `gorm:"type:varchar(100)" json:"city" validate:"max=100"`
	State     string  `gorm:"type:varchar(100)" json:"state" validate:"max=100"`
	Pincode   string  `gorm:"type:varchar(10)" json:"pincode" validate:"omitempty,numeric,len=6"`
	Latitude  float64 `gorm:"default:0" json:"latitude,omitempty"`
	Longitude float64 `gorm:"default:0" json:"longitude,omitempty"`

	IsVerified bool `gorm:"default:false" json:"is_verified"`

	SubscriptionStatus    string     `gorm:"type:varchar(20);default:'INACTIVE';not null;index" json:"subscription_status"`
	SubscriptionID        *string    `gorm:"type:varchar(191);index" json:"-"`
	SubscriptionStartDate *time.Time `gorm:"default:null" json:"subscription_start_date,omitempty"`
	SubscriptionEndDate   *time.Time `gorm:"default:null;index" json:"subscription_end_date,omitempty"`
	NextBillingDate       *time.Time `gorm:"default:null" json:"next_billing_date,omitempty"`

	ResetToken       string     `gorm:"type:varchar(100);index" json:"-"`
	ResetTokenExpiry *time.Time `gorm:"default:null" json:"-"`

	LastLoginAt *time.Time     `gorm:"default:null" json:"last_login_at,omitempty"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

// CreateUser builds a validated, phone-verified user with a hashed password.
func CreateUser(name, email, phone, password string) (*User, error) {
	pw, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	u := &User{
		Name:               name,
		Email:              email,
		Phone:              phone,
		Password:           pw,
		Role:               ROLE_USER,
		IsVerified:         true,
		SubscriptionStatus: SubscriptionInactive,
	}

	if err := u.Validate(); err != nil {
		return nil, err
	}

	return u, nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

	return string(bytes), err
}

// CheckPasswordHash compares the given password with the stored hash.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))

	return err == nil
}

// CheckPassword verifies if the provided password matches the user's stored password
func (u *User) CheckPassword(password string) bool {
	return CheckPasswordHash(password, u.Password)
}

// SetPassword hashes and sets a new password for the user
func (u *User) SetPassword(password string) error {
	hashedPassword, err := HashPassword(password)
	if err != nil {
		return err
	}
	u.Password = hashedPassword
	return nil
}

func (u *User) IsAdmin() bool {
	return u.Role == ROLE_ADMIN
}

// GenerateResetToken sets a 32-byte hex token valid for one hour.
func (u *User) GenerateResetToken(now time.Time) error {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return err
	}
	u.ResetToken = hex.EncodeToString(b)
	exp := now.Add(resetTokenTTL)
	u.ResetTokenExpiry = &exp
	return nil
}

// IsResetTokenValid reports whether token matches and has not expired.
func (u *User) IsResetTokenValid(token string, now time.Time) bool {
	if u.ResetToken == "" || u.ResetTokenExpiry == nil || token == "" {
		return false
	}
	if u.ResetToken != token {
		return false
	}
	return now.Before(*u.ResetTokenExpiry)
}

func (u *User) ClearResetToken() {
	u.ResetToken = ""
	u.ResetTokenExpiry = nil
}

// SubscriptionRef returns the stored provider reference or "".
func (u *User) SubscriptionRef() string {
	if u.SubscriptionID == nil {
		return ""
	}
	return *u.SubscriptionID
}

// HasActiveSubscription applies the date bound on top of the stored status.
func (u *User) HasActiveSubscription(now time.Time) bool {
	return u.SubscriptionStatus == SubscriptionActive &&
		u.SubscriptionEndDate != nil &&
		u.SubscriptionEndDate.After(now)
}
