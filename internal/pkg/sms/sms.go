// Package sms delivers OTP codes to phones.
package sms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/Marketly/internal/pkg/env"
)

// Sender delivers a verification code to a 10 digit Indian mobile number.
type Sender interface {
	SendOTP(ctx context.Context, phone, code string) error
}

// LogSender writes codes to the log. Development only.
type LogSender struct{}

func (LogSender) SendOTP(_ context.Context, phone, code string) error {
	log.Infof("[SMS] OTP for %s: %s", phone, code)
	return nil
}

const defaultMSG91URL = "https://control.msg91.com/api/v5/otp"

// MSG91Sender uses the MSG91 OTP API with a DLT approved template.
type MSG91Sender struct {
	AuthKey    string
	TemplateID string
	BaseURL    string
	HTTPClient *http.Client
}

func NewMSG91Sender(authKey, templateID string) *MSG91Sender {
	return &MSG91Sender{
		AuthKey:    authKey,
		TemplateID: templateID,
		BaseURL:    defaultMSG91URL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *MSG91Sender) SendOTP(ctx context.Context, phone, code string) error {
	if s.AuthKey == "" || s.TemplateID == "" {
		return errors.New("MSG91_AUTH_KEY/MSG91_TEMPLATE_ID are not configured")
	}

	q := url.Values{}
	q.Set("template_id", s.TemplateID)
	q.Set("mobile", "91"+phone)
	q.Set("otp", code)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"?"+q.Encode(), strings.NewReader("{}"))
	if err != nil {
		return err
	}
	req.Header.Set("authkey", s.AuthKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("msg91 request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("msg91 send failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("msg91 response decode: %w", err)
	}
	if out.Type != "success" {
		return fmt.Errorf("msg91 send failed: %s", out.Message)
	}
	return nil
}

// NewSenderFromEnv picks the sender via SMS_PROVIDER (msg91|log).
func NewSenderFromEnv() Sender {
	switch strings.ToLower(strings.TrimSpace(env.GetEnv("SMS_PROVIDER", "log"))) {
	case "msg91":
		return NewMSG91Sender(
			strings.TrimSpace(env.GetEnv("MSG91_AUTH_KEY", "")),
			strings.TrimSpace(env.GetEnv("MSG91_TEMPLATE_ID", "")),
		)
	default:
		if !env.IsDev() {
			log.Warn("[SMS] SMS_PROVIDER is not msg91, OTP codes are only logged")
		}
		return LogSender{}
	}
}
