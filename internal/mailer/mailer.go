// Package mailer sends simulation emails. The Mailer interface is the
// boundary the dispatch engine depends on; failures are reported per message
// and never abort a batch.
package mailer

import (
	"context"
	"fmt"

	"github.com/calderasec/lurelab/internal/database/models"
	"github.com/calderasec/lurelab/pkg/config"
	"github.com/calderasec/lurelab/pkg/crypto"
	mail "github.com/wneessen/go-mail"
)

// Message is one outbound simulation email.
type Message struct {
	Subject     string
	HTMLBody    string
	FromName    string
	FromAddress string
	ToAddress   string
}

// Mailer delivers a single message to a single recipient.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer delivers through an SMTP relay.
type SMTPMailer struct {
	host     string
	port     int
	username string
	password string
}

var _ Mailer = (*SMTPMailer)(nil)

func NewSMTPMailer(cfg *config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		host:     cfg.Host,
		port:     cfg.Port,
		username: cfg.Username,
		password: cfg.Password,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	opts := []mail.Option{
		mail.WithPort(m.port),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	}
	if m.username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.username),
			mail.WithPassword(m.password),
		)
	}

	client, err := mail.NewClient(m.host, opts...)
	if err != nil {
		return fmt.Errorf("creating smtp client: %w", err)
	}

	message := mail.NewMsg()
	if err := message.FromFormat(msg.FromName, msg.FromAddress); err != nil {
		return fmt.Errorf("setting sender: %w", err)
	}
	if err := message.To(msg.ToAddress); err != nil {
		return fmt.Errorf("setting recipient: %w", err)
	}
	message.Subject(msg.Subject)
	message.SetBodyString(mail.TypeTextHTML, msg.HTMLBody)

	if err := client.DialAndSendWithContext(ctx, message); err != nil {
		return fmt.Errorf("sending mail: %w", err)
	}
	return nil
}

// Factory resolves the mailer for an organization: the org's own relay when
// one is configured in settings, the platform relay otherwise.
type Factory struct {
	platform  *config.SMTPConfig
	encryptor *crypto.Encryptor
}

func NewFactory(platform *config.SMTPConfig, encryptor *crypto.Encryptor) *Factory {
	return &Factory{platform: platform, encryptor: encryptor}
}

func (f *Factory) ForOrganization(org *models.Organization) (Mailer, error) {
	if !org.HasCustomSMTP() {
		return NewSMTPMailer(f.platform), nil
	}

	password := ""
	if org.SMTPPasswordEncrypted != "" {
		decrypted, err := f.encryptor.DecryptString(org.SMTPPasswordEncrypted)
		if err != nil {
			return nil, fmt.Errorf("decrypting smtp password: %w", err)
		}
		password = decrypted
	}

	return &SMTPMailer{
		host:     org.SMTPHost,
		port:     org.SMTPPort,
		username: org.SMTPUsername,
		password: password,
	}, nil
}
