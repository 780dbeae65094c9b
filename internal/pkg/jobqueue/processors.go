package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/Marketly/app/models"
	"github.com/ManuelReschke/Marketly/internal/pkg/mail"
	"github.com/ManuelReschke/Marketly/internal/pkg/sms"
	"github.com/ManuelReschke/Marketly/internal/pkg/subscription"
)

const reminderKeyPrefix = "subscription:reminded:"

// SubscriptionRunner is the part of the subscription service the workers use.
type SubscriptionRunner interface {
	Sweep(ctx context.Context) (subscription.SweepResult, error)
	DueForReminder(ctx context.Context) ([]models.User, error)
}

// Processors holds the dependencies of the job handlers. Mail and SMS must be
// the real senders, not the queue-backed dispatchers.
type Processors struct {
	Subscriptions SubscriptionRunner
	Mail          mail.Sender
	SMS           sms.Sender
	Jobs          Enqueuer
	PublicURL     string

	// markOnce reports whether key was newly set. Defaults to Redis SETNX.
	markOnce func(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Register binds every handler to q. Handlers whose dependency is nil are
// skipped so a partially wired process fails jobs loudly instead of panicking.
func (p *Processors) Register(q *Queue) {
	if p.markOnce == nil {
		p.markOnce = func(ctx context.Context, key string, ttl time.Duration) (bool, error) {
			return q.client.SetNX(ctx, key, "1", ttl).Result()
		}
	}
	if p.Jobs == nil {
		p.Jobs = q
	}
	if p.Subscriptions != nil {
		q.Register(JobTypeSubscriptionSweep, p.sweep)
		q.Register(JobTypeSubscriptionReminder, p.remind)
	}
	if p.Mail != nil {
		q.Register(JobTypeSendEmail, p.sendEmail)
	}
	if p.SMS != nil {
		q.Register(JobTypeSendSMS, p.sendSMS)
	}
}

func (p *Processors) sweep(ctx context.Context, job *Job) error {
	payload, err := SweepJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid sweep payload: %w", err)
	}
	res, err := p.Subscriptions.Sweep(ctx)
	if err != nil {
		return err
	}
	log.Infof("[JobQueue] Sweep (%s): %d past due, %d cancelled, %d failed",
		payload.Trigger, res.PastDue, res.Cancelled, res.Failed)
	if res.Failed > 0 {
		return fmt.Errorf("sweep failed for %d users", res.Failed)
	}
	return nil
}

// remind enqueues one reminder email per user and billing period.
func (p *Processors) remind(ctx context.Context, _ *Job) error {
	users, err := p.Subscriptions.DueForReminder(ctx)
	if err != nil {
		return err
	}

	var errs []error
	sent := 0
	for _, u := range users {
		if u.Email == "" || u.SubscriptionEndDate == nil {
			continue
		}
		end := *u.SubscriptionEndDate
		key := fmt.Sprintf("%s%d:%d", reminderKeyPrefix, u.ID, end.Unix())
		ttl := time.Until(end) + 24*time.Hour
		if ttl < time.Hour {
			ttl = time.Hour
		}
		fresh, err := p.markOnce(ctx, key, ttl)
		if err != nil {
			errs = append(errs, fmt.Errorf("user %d: %w", u.ID, err))
			continue
		}
		if !fresh {
			continue
		}

		subject, body, err := mail.Render(mail.TemplateSubscriptionReminder, mail.Data{
			Name: u.Name,
			URL:  p.PublicURL + "/subscription",
			Date: end.Format("02 Jan 2006"),
		})
		if err != nil {
			return err
		}
		if _, err := p.Jobs.EnqueueJob(JobTypeSendEmail, SendEmailJobPayload{To: u.Email, Subject: subject, Body: body}.ToMap()); err != nil {
			errs = append(errs, fmt.Errorf("user %d: %w", u.ID, err))
			continue
		}
		sent++
	}
	if sent > 0 {
		log.Infof("[JobQueue] Queued %d subscription reminders", sent)
	}
	return errors.Join(errs...)
}

func (p *Processors) sendEmail(_ context.Context, job *Job) error {
	payload, err := SendEmailJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid email payload: %w", err)
	}
	if payload.To == "" {
		return errors.New("email payload without recipient")
	}
	return p.Mail.Send(payload.To, payload.Subject, payload.Body)
}

func (p *Processors) sendSMS(ctx context.Context, job *Job) error {
	payload, err := SendSMSJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid sms payload: %w", err)
	}
	return p.SMS.SendOTP(ctx, payload.Phone, payload.Code)
}
