package adapters

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	mail "github.com/xhit/go-simple-mail/v2"

	"github.com/fsonner/restauth-bridge/internal"
	"github.com/fsonner/restauth-bridge/internal/config"
)

// MailRepo sends admin notification mails, e.g. when the remote
// authentication service is unreachable for an extended period.
type MailRepo struct {
	cfg *config.MailConfig
}

// NewSmtpMailRepo creates a new MailRepo instance.
func NewSmtpMailRepo(cfg config.MailConfig) MailRepo {
	return MailRepo{cfg: &cfg}
}

// Send sends a plain text mail using SMTP.
func (r MailRepo) Send(_ context.Context, subject, body string, to []string) error {
	if len(to) == 0 {
		return errors.New("missing email recipient")
	}

	email := mail.NewMSG()
	email.SetFrom(r.cfg.From).
		AddTo(internal.UniqueStringSlice(to)...).
		SetSubject(subject).
		SetBody(mail.TextPlain, body)

	srv := r.getMailServer()
	client, err := srv.Connect()
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}

	err = email.Send(client)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

func (r MailRepo) getMailServer() *mail.SMTPServer {
	srv := mail.NewSMTPClient()

	srv.ConnectTimeout = 30 * time.Second
	srv.SendTimeout = 30 * time.Second
	srv.Host = r.cfg.Host
	srv.Port = r.cfg.Port
	srv.Username = r.cfg.Username
	srv.Password = r.cfg.Password

	switch r.cfg.Encryption {
	case config.MailEncryptionTLS:
		srv.Encryption = mail.EncryptionSSLTLS
	case config.MailEncryptionStartTLS:
		srv.Encryption = mail.EncryptionSTARTTLS
	default: // MailEncryptionNone
		srv.Encryption = mail.EncryptionNone
	}
	srv.TLSConfig = &tls.Config{ServerName: srv.Host, InsecureSkipVerify: !r.cfg.CertValidation}
	switch r.cfg.AuthType {
	case config.MailAuthPlain:
		srv.Authentication = mail.AuthPlain
	case config.MailAuthLogin:
		srv.Authentication = mail.AuthLogin
	case config.MailAuthCramMD5:
		srv.Authentication = mail.AuthCRAMMD5
	}

	return srv
}
