// Package otp issues and checks short-lived phone verification codes.
package otp

import (
	"context"
	"crypto/subtle"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/Marketly/internal/pkg/security"
)

const (
	CodeLength = 6
	DefaultTTL = 5 * time.Minute
)

var phonePattern = regexp.MustCompile(`^[0-9]{10}$`)

// ErrInvalidPhone is returned for anything but a 10 digit number.
var ErrInvalidPhone = errors.New("phone must be a 10 digit number")

// Store keeps at most one code per phone. Get must report absent for
// entries past their TTL even if they were not purged yet.
type Store interface {
	Put(ctx context.Context, phone, code string, ttl time.Duration) error
	Get(ctx context.Context, phone string) (string, bool, error)
	Delete(ctx context.Context, phone string) error
}

// Registry wraps a Store with code generation and the verification rules.
type Registry struct {
	store    Store
	ttl      time.Duration
	generate func() (string, error)
}

// NewRegistry creates a registry. A non-positive ttl means DefaultTTL.
func NewRegistry(store Store, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{
		store: store,
		ttl:   ttl,
		generate: func() (string, error) {
			return security.GenerateDigits(CodeLength)
		},
	}
}

// TTL returns how long issued codes stay valid.
func (r *Registry) TTL() time.Duration {
	return r.ttl
}

// NormalizePhone trims the input and checks the 10 digit format.
func NormalizePhone(phone string) (string, error) {
	p := strings.TrimSpace(phone)
	if !phonePattern.MatchString(p) {
		return "", ErrInvalidPhone
	}
	return p, nil
}

// Generate returns a fresh 6 digit code.
func (r *Registry) Generate() (string, error) {
	return r.generate()
}

// Store saves code for phone, replacing any earlier code.
func (r *Registry) Store(ctx context.Context, phone, code string) error {
	return r.store.Put(ctx, phone, code, r.ttl)
}

// Issue generates and stores a code and returns it for delivery.
func (r *Registry) Issue(ctx context.Context, phone string) (string, error) {
	code, err := r.Generate()
	if err != nil {
		return "", err
	}
	if err := r.Store(ctx, phone, code); err != nil {
		return "", err
	}
	return code, nil
}

// Verify reports whether code is the live code for phone. Absent, expired and
// mismatched codes all return false.
func (r *Registry) Verify(ctx context.Context, phone, code string) bool {
	if phone == "" || code == "" {
		return false
	}
	stored, ok, err := r.store.Get(ctx, phone)
	if err != nil {
		log.Errorf("[OTP] lookup failed: %v", err)
		return false
	}
	if !ok || len(stored) != len(code) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(code)) == 1
}

// Clear removes the code for phone.
func (r *Registry) Clear(ctx context.Context, phone string) error {
	return r.store.Delete(ctx, phone)
}
