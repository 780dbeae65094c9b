package jobqueue

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/Marketly/app/models"
	"github.com/ManuelReschke/Marketly/internal/pkg/mail"
	"github.com/ManuelReschke/Marketly/internal/pkg/subscription"
)

// MailDispatcher is a mail.Sender that hands messages to the queue.
type MailDispatcher struct {
	Jobs Enqueuer
}

func (d MailDispatcher) Send(to, subject, body string) error {
	_, err := d.Jobs.EnqueueJob(JobTypeSendEmail, SendEmailJobPayload{To: to, Subject: subject, Body: body}.ToMap())
	return err
}

// SMSDispatcher is an sms.Sender that hands codes to the queue.
type SMSDispatcher struct {
	Jobs Enqueuer
}

func (d SMSDispatcher) SendOTP(_ context.Context, phone, code string) error {
	_, err := d.Jobs.EnqueueJob(JobTypeSendSMS, SendSMSJobPayload{Phone: phone, Code: code}.ToMap())
	return err
}

// MailNotifier emails receipts and cancellation notices on subscription
// changes.
type MailNotifier struct {
	Mail      mail.Sender
	PublicURL string
}

func (n MailNotifier) SubscriptionChanged(_ context.Context, c subscription.Change) {
	if c.Email == "" {
		return
	}

	var (
		name string
		data = mail.Data{Name: c.Name}
	)
	switch {
	case c.To == models.SubscriptionActive && c.Amount > 0:
		name = mail.TemplatePaymentReceipt
		data.Amount = formatAmount(c.Amount, c.Currency)
		data.Reference = c.PaymentID
		if c.EndDate != nil {
			data.Date = c.EndDate.Format("02 Jan 2006")
		}
	case c.To == models.SubscriptionCancelled && c.From != models.SubscriptionCancelled:
		name = mail.TemplateSubscriptionCancelled
		data.URL = n.PublicURL + "/subscription"
	default:
		return
	}

	subject, body, err := mail.Render(name, data)
	if err != nil {
		log.Errorf("[JobQueue] Render %s for user %d: %v", name, c.UserID, err)
		return
	}
	if err := n.Mail.Send(c.Email, subject, body); err != nil {
		log.Errorf("[JobQueue] Queue %s for user %d: %v", name, c.UserID, err)
	}
}

// formatAmount renders minor units, e.g. 9900 INR as "INR 99.00".
func formatAmount(minor int64, currency string) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	s := fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
	if currency == "" {
		return s
	}
	return strings.ToUpper(currency) + " " + s
}
