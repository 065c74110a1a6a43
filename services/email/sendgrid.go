// Package email provides EmailService implementations: Sendgrid for real
// delivery and a console/mock service for development and tests.
package email

import (
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/sumitkpand3y/log-book-api/core"
)

type sendgridService struct {
	conf   *core.Config
	logger core.Logger
	client *sendgrid.Client
}

var _ core.EmailService = (*sendgridService)(nil)

func NewSendgridService(conf *core.Config, logger core.Logger) core.EmailService {
	return &sendgridService{
		conf:   conf,
		logger: logger,
		client: sendgrid.NewSendClient(conf.SendgridApiKey),
	}
}

// SendMessages dispatches each send on its own goroutine and returns
// immediately; delivery failures are logged, never surfaced to the caller.
func (svc *sendgridService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		if !msg.HasRecipients() {
			continue
		}
		go svc.send(msg)
	}
}

func (svc *sendgridService) send(msg *core.EmailMessage) {
	if err := msg.Render(svc.conf); err != nil {
		svc.logger.Error("rendering email", err)
		return
	}
	if !msg.HasContent() {
		return
	}

	resp, err := svc.client.Send(svc.buildMail(msg))
	if err != nil {
		svc.logger.Error("sending email", err)
		return
	}
	if resp.StatusCode != http.StatusAccepted {
		svc.logger.Error("sendgrid rejected email", "status", resp.StatusCode, "body", resp.Body)
	}
}

func (svc *sendgridService) buildMail(msg *core.EmailMessage) *sgmail.SGMailV3 {
	m := sgmail.NewV3Mail()
	m.SetFrom(sgmail.NewEmail(svc.conf.DefaultFromEmail.Name, svc.conf.DefaultFromEmail.Address))
	m.Subject = msg.Subject

	p := sgmail.NewPersonalization()
	for _, addr := range msg.To {
		p.AddTos(sgmail.NewEmail(addr.Name, addr.Address))
	}
	for _, addr := range msg.Cc {
		p.AddCCs(sgmail.NewEmail(addr.Name, addr.Address))
	}
	for _, addr := range msg.Bcc {
		p.AddBCCs(sgmail.NewEmail(addr.Name, addr.Address))
	}
	m.AddPersonalizations(p)

	if msg.TextContent != "" {
		m.AddContent(sgmail.NewContent("text/plain", msg.TextContent))
	}
	if msg.HTMLContent != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTMLContent))
	}

	for _, att := range msg.Attachments {
		attachment := sgmail.NewAttachment()
		attachment.SetContent(att.Content.String())
		attachment.SetType(att.ContentType)
		attachment.SetFilename(att.Filename)
		attachment.SetDisposition("attachment")
		m.AddAttachment(attachment)
	}
	return m
}
