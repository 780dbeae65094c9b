package controllers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/Marketly/app/models"
	"github.com/ManuelReschke/Marketly/app/repository"
	"github.com/ManuelReschke/Marketly/internal/pkg/mail"
	"github.com/ManuelReschke/Marketly/internal/pkg/otp"
	"github.com/ManuelReschke/Marketly/internal/pkg/security"
	"github.com/ManuelReschke/Marketly/internal/pkg/sms"
	"github.com/ManuelReschke/Marketly/internal/pkg/usercontext"
)

const invalidOTPMessage = "Invalid or expired OTP"

// CaptchaVerifier checks a client captcha token. A nil verifier disables the check.
type CaptchaVerifier func(token string) (bool, error)

type AuthConfig struct {
	JWTSecret    string
	PublicURL    string
	SecureCookie bool
	TokenTTL     time.Duration
	Captcha      CaptchaVerifier
}

// AuthController handles signup, login and password recovery.
type AuthController struct {
	users repository.UserRepository
	otp   *otp.Registry
	sms   sms.Sender
	mail  mail.Sender
	cfg   AuthConfig
	now   func() time.Time
}

func NewAuthController(users repository.UserRepository, registry *otp.Registry, smsSender sms.Sender, mailSender mail.Sender, cfg AuthConfig) *AuthController {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = security.DefaultAuthTokenTTL
	}
	return &AuthController{
		users: users,
		otp:   registry,
		sms:   smsSender,
		mail:  mailSender,
		cfg:   cfg,
		now:   time.Now,
	}
}

type sendOTPRequest struct {
	Phone        string `json:"phone" validate:"required"`
	CaptchaToken string `json:"captcha_token"`
}

type signupRequest struct {
	Name      string  `json:"name" validate:"required,min=2,max=150"`
	Email     string  `json:"email" validate:"required,email,max=200"`
	Phone     string  `json:"phone" validate:"required"`
	Password  string  `json:"password" validate:"required,min=6,max=72"`
	OTP       string  `json:"otp" validate:"required"`
	City      string  `json:"city" validate:"max=100"`
	State     string  `json:"state" validate:"max=100"`
	Pincode   string  `json:"pincode" validate:"omitempty,numeric,len=6"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type loginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// HandleSendOTP issues a code for a phone that is not registered yet.
func (ac *AuthController) HandleSendOTP(c *fiber.Ctx) error {
	var req sendOTPRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, err)
	}
	phone, err := otp.NormalizePhone(req.Phone)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_phone", "Please enter a valid 10 digit phone number")
	}

	if ac.cfg.Captcha != nil {
		ok, err := ac.cfg.Captcha(req.CaptchaToken)
		if err != nil || !ok {
			log.Warnf("[Auth] Captcha rejected for send-otp: %v", err)
			return jsonError(c, fiber.StatusBadRequest, "captcha_failed", "Captcha verification failed")
		}
	}

	_, phoneTaken, err := ac.users.ExistsByEmailOrPhone("", phone)
	if err != nil {
		return respondError(c, err)
	}
	if phoneTaken {
		return jsonError(c, fiber.StatusBadRequest, "phone_taken", "Phone number is already registered")
	}

	code, err := ac.otp.Issue(c.Context(), phone)
	if err != nil {
		return respondError(c, err)
	}
	if err := ac.sms.SendOTP(c.Context(), phone, code); err != nil {
		log.Errorf("[Auth] Sending OTP to %s: %v", maskPhone(phone), err)
		return jsonError(c, fiber.StatusServiceUnavailable, "sms_unavailable", "Could not send OTP, please try again")
	}

	return c.JSON(fiber.Map{"success": true, "message": "OTP sent"})
}

// HandleSignup verifies the OTP and creates the account.
func (ac *AuthController) HandleSignup(c *fiber.Ctx) error {
	var req signupRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, err)
	}
	phone, err := otp.NormalizePhone(req.Phone)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_phone", "Please enter a valid 10 digit phone number")
	}
	if !ac.otp.Verify(c.Context(), phone, strings.TrimSpace(req.OTP)) {
		return jsonError(c, fiber.StatusBadRequest, "invalid_otp", invalidOTPMessage)
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	emailTaken, phoneTaken, err := ac.users.ExistsByEmailOrPhone(email, phone)
	if err != nil {
		return respondError(c, err)
	}
	if emailTaken || phoneTaken {
		return jsonError(c, fiber.StatusConflict, "user_exists", "An account with this email or phone already exists")
	}

	user, err := models.CreateUser(strings.TrimSpace(req.Name), email, phone, req.Password)
	if err != nil {
		return respondError(c, err)
	}
	user.City = strings.TrimSpace(req.City)
	user.State = strings.TrimSpace(req.State)
	user.Pincode = strings.TrimSpace(req.Pincode)
	user.Latitude = req.Latitude
	user.Longitude = req.Longitude
	if err := user.Validate(); err != nil {
		return respondError(c, err)
	}

	if err := ac.users.Create(user); err != nil {
		return respondError(c, err)
	}
	if err := ac.otp.Clear(c.Context(), phone); err != nil {
		log.Warnf("[Auth] Clearing OTP for %s: %v", maskPhone(phone), err)
	}

	token, err := ac.issueSession(c, user)
	if err != nil {
		return respondError(c, err)
	}
	ac.sendWelcome(user)

	log.Infof("[Auth] New user %d registered", user.ID)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"user": user, "token": token})
}

// HandleLogin accepts an email or a phone number as identifier.
func (ac *AuthController) HandleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, err)
	}

	user, err := ac.users.GetByEmailOrPhone(strings.TrimSpace(req.Identifier))
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return respondError(c, err)
	}
	if user == nil || !user.CheckPassword(req.Password) {
		return jsonError(c, fiber.StatusUnauthorized, "invalid_credentials", "Invalid credentials")
	}

	if err := ac.users.TouchLastLogin(user.ID, ac.now()); err != nil {
		log.Warnf("[Auth] Updating last login for user %d: %v", user.ID, err)
	}
	token, err := ac.issueSession(c, user)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"user": user, "token": token})
}

func (ac *AuthController) HandleLogout(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:     security.AuthCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		Secure:   ac.cfg.SecureCookie,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.JSON(fiber.Map{"success": true})
}

func (ac *AuthController) HandleMe(c *fiber.Ctx) error {
	user := usercontext.GetUser(c)
	if user == nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing or invalid authentication")
	}
	return c.JSON(fiber.Map{"user": user})
}

// HandleForgotPassword always answers 200 so it cannot be used to probe accounts.
func (ac *AuthController) HandleForgotPassword(c *fiber.Ctx) error {
	var req forgotPasswordRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, err)
	}
	ok := fiber.Map{"success": true, "message": "If the email is registered, a reset link has been sent"}

	user, err := ac.users.GetByEmail(strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Errorf("[Auth] Looking up user for password reset: %v", err)
		}
		return c.JSON(ok)
	}

	if err := user.GenerateResetToken(ac.now()); err != nil {
		log.Errorf("[Auth] Generating reset token: %v", err)
		return c.JSON(ok)
	}
	if err := ac.users.Update(user); err != nil {
		log.Errorf("[Auth] Saving reset token for user %d: %v", user.ID, err)
		return c.JSON(ok)
	}

	subject, body, err := mail.Render(mail.TemplatePasswordReset, mail.Data{
		Name: user.Name,
		URL:  strings.TrimRight(ac.cfg.PublicURL, "/") + "/reset-password?token=" + user.ResetToken,
	})
	if err == nil {
		err = ac.mail.Send(user.Email, subject, body)
	}
	if err != nil {
		log.Errorf("[Auth] Sending reset mail to user %d: %v", user.ID, err)
	}
	return c.JSON(ok)
}

func (ac *AuthController) HandleResetPassword(c *fiber.Ctx) error {
	var req resetPasswordRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, err)
	}

	user, err := ac.users.GetByResetToken(req.Token)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return respondError(c, err)
	}
	if user == nil || !user.IsResetTokenValid(req.Token, ac.now()) {
		return jsonError(c, fiber.StatusBadRequest, "invalid_token", "Invalid or expired reset token")
	}

	if err := user.SetPassword(req.Password); err != nil {
		return respondError(c, err)
	}
	user.ClearResetToken()
	if err := ac.users.Update(user); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "message": "Password updated"})
}

func (ac *AuthController) issueSession(c *fiber.Ctx, user *models.User) (string, error) {
	token, err := security.GenerateAuthToken(user.ID, user.Role, ac.cfg.TokenTTL, ac.cfg.JWTSecret)
	if err != nil {
		return "", err
	}
	c.Cookie(&fiber.Cookie{
		Name:     security.AuthCookieName,
		Value:    token,
		Path:     "/",
		Expires:  ac.now().Add(ac.cfg.TokenTTL),
		HTTPOnly: true,
		Secure:   ac.cfg.SecureCookie,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return token, nil
}

func (ac *AuthController) sendWelcome(user *models.User) {
	subject, body, err := mail.Render(mail.TemplateWelcome, mail.Data{Name: user.Name, URL: ac.cfg.PublicURL})
	if err == nil {
		err = ac.mail.Send(user.Email, subject, body)
	}
	if err != nil {
		log.Warnf("[Auth] Welcome mail for user %d: %v", user.ID, err)
	}
}

func maskPhone(phone string) string {
	if len(phone) < 4 {
		return "****"
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
