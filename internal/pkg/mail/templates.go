package mail

import (
	"bytes"
	"fmt"
	"html/template"
	texttemplate "text/template"
)

// Template names accepted by Render.
const (
	TemplateWelcome               = "welcome"
	TemplatePasswordReset         = "password_reset"
	TemplateSubscriptionReminder  = "subscription_reminder"
	TemplatePaymentReceipt        = "payment_receipt"
	TemplateSubscriptionCancelled = "subscription_cancelled"
)

const layout = `{{define "layout"}}<!DOCTYPE html>
<html><body style="font-family:sans-serif;color:#222">
{{template "content" .}}
<p style="color:#888;font-size:12px">{{.AppName}}</p>
</body></html>{{end}}`

var contents = map[string]struct {
	subject string
	body    string
}{
	TemplateWelcome: {
		subject: "Welcome to {{.AppName}}",
		body:    `<h2>Hi {{.Name}},</h2><p>Your account is ready. Start listing at <a href="{{.URL}}">{{.URL}}</a>.</p>`,
	},
	TemplatePasswordReset: {
		subject: "Reset your {{.AppName}} password",
		body:    `<h2>Hi {{.Name}},</h2><p>Use the link below to choose a new password. It expires in one hour.</p><p><a href="{{.URL}}">{{.URL}}</a></p><p>If you did not ask for this, ignore this email.</p>`,
	},
	TemplateSubscriptionReminder: {
		subject: "Your {{.AppName}} subscription ends on {{.Date}}",
		body:    `<h2>Hi {{.Name}},</h2><p>Your subscription ends on <b>{{.Date}}</b>. Renew before then to keep your listings visible.</p><p><a href="{{.URL}}">Manage subscription</a></p>`,
	},
	TemplatePaymentReceipt: {
		subject: "Payment received: {{.Amount}}",
		body:    `<h2>Hi {{.Name}},</h2><p>We received your payment of <b>{{.Amount}}</b>. Your subscription is active until <b>{{.Date}}</b>.</p><p>Reference: {{.Reference}}</p>`,
	},
	TemplateSubscriptionCancelled: {
		subject: "Your {{.AppName}} subscription was cancelled",
		body:    `<h2>Hi {{.Name}},</h2><p>Your subscription is cancelled and your listings are hidden. Subscribe again any time to bring them back.</p><p><a href="{{.URL}}">Subscribe</a></p>`,
	},
}

// Data fills the templates. Unused fields are ignored.
type Data struct {
	AppName   string
	Name      string
	URL       string
	Date      string
	Amount    string
	Reference string
}

// Render returns subject and HTML body for a named template.
func Render(name string, data Data) (string, string, error) {
	c, ok := contents[name]
	if !ok {
		return "", "", fmt.Errorf("unknown mail template %q", name)
	}
	if data.AppName == "" {
		data.AppName = "Marketly"
	}

	subjectTpl, err := texttemplate.New("subject").Parse(c.subject)
	if err != nil {
		return "", "", err
	}
	var subject bytes.Buffer
	if err := subjectTpl.Execute(&subject, data); err != nil {
		return "", "", err
	}

	bodyTpl, err := template.New(name).Parse(layout)
	if err != nil {
		return "", "", err
	}
	if _, err := bodyTpl.New("content").Parse(c.body); err != nil {
		return "", "", err
	}
	var body bytes.Buffer
	if err := bodyTpl.ExecuteTemplate(&body, "layout", data); err != nil {
		return "", "", err
	}
	return subject.String(), body.String(), nil
}
