package providers

import (
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sirupsen/logrus"
)

// Mailer sends fire-and-forget transactional mail
type Mailer interface {
	SendInvite(toEmail string) error
}

// SendgridMailer sends templated invitation mail through SendGrid
type SendgridMailer struct {
	client    *sendgrid.Client
	fromEmail string
}

// NewSendgridMailer creates a mailer from the API key and sender address
func NewSendgridMailer(apiKey, fromEmail string) *SendgridMailer {
	return &SendgridMailer{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
	}
}

// SendInvite sends one invitation email to the given address
func (m *SendgridMailer) SendInvite(toEmail string) error {
	from := mail.NewEmail("CryptoPerk", m.fromEmail)
	to := mail.NewEmail("", toEmail)
	message := mail.NewSingleEmail(
		from,
		"You have been invited to CryptoPerk",
		to,
		"You have been invited to join CryptoPerk. Open the app to complete your registration.",
		"<h1>You have been invited</h1><p>Open the CryptoPerk app to complete your registration.</p>",
	)

	response, err := m.client.Send(message)
	if err != nil {
		return fmt.Errorf("send invite to %s: %w", toEmail, err)
	}
	if response.StatusCode >= 300 {
		return fmt.Errorf("send invite to %s: sendgrid returned status %d", toEmail, response.StatusCode)
	}

	logrus.WithField("to", toEmail).Info("Invitation email sent")
	return nil
}
