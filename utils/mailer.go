package utils

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.uber.org/zap"

	"github.com/kcbuddy/kcbuddy/config"
)

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers a single message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// NewMailer picks the transport named by MAIL_PROVIDER. Without a provider or a
// sender address mail is logged and skipped.
func NewMailer(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (Mailer, error) {
	if cfg.MailFrom == "" || cfg.MailProvider == "" {
		log.Info("email disabled: MAIL_PROVIDER or MAIL_FROM not configured")
		return NoopMailer{log: log}, nil
	}
	switch cfg.MailProvider {
	case "ses":
		return NewSESMailer(ctx, cfg)
	case "smtp":
		if cfg.SMTPHost == "" {
			return nil, fmt.Errorf("smtp mailer requires SMTP_HOST")
		}
		return &SMTPMailer{
			host:     cfg.SMTPHost,
			port:     cfg.SMTPPort,
			username: cfg.SMTPUsername,
			password: cfg.SMTPPassword,
			from:     cfg.MailFrom,
			fromName: cfg.MailFromName,
			// PlainAuth refuses cleartext to remote hosts, so credentials imply STARTTLS
			startTLS: cfg.SMTPTLS || cfg.SMTPUsername != "",
		}, nil
	default:
		return nil, fmt.Errorf("unsupported mail provider %q", cfg.MailProvider)
	}
}

// NoopMailer drops every message.
type NoopMailer struct {
	log *zap.Logger
}

func (n NoopMailer) Send(_ context.Context, msg Message) error {
	if n.log != nil {
		n.log.Debug("skipping email send (mail disabled)", zap.String("subject", msg.Subject))
	}
	return nil
}

// SESMailer sends through Amazon SES v2.
type SESMailer struct {
	client   *sesv2.Client
	from     string
	fromName string
}

// NewSESMailer loads AWS credentials from the default chain.
func NewSESMailer(ctx context.Context, cfg *config.AppConfig) (*SESMailer, error) {
	region := cfg.SESRegion
	if region == "" {
		region = cfg.S3Region
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &SESMailer{client: sesv2.NewFromConfig(awsCfg), from: cfg.MailFrom, fromName: cfg.MailFromName}, nil
}

func (s *SESMailer) Send(ctx context.Context, msg Message) error {
	from := s.from
	if s.fromName != "" {
		from = fmt.Sprintf("%s <%s>", s.fromName, s.from)
	}
	body := &types.Body{
		Text: &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")},
	}
	if msg.HTML != "" {
		body.Html = &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")}
	}
	_, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body:    body,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send to %s: %w", msg.To, err)
	}
	return nil
}

// ErrSTARTTLSUnavailable is returned when STARTTLS is required but the server does
// not offer it.
var ErrSTARTTLSUnavailable = errors.New("smtp server does not support STARTTLS")

// SMTPMailer sends plain text mail, upgrading with STARTTLS when enabled.
type SMTPMailer struct {
	host     string
	port     int
	username string
	password string
	from     string
	fromName string
	startTLS bool
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	addr := net.JoinHostPort(m.host, strconv.Itoa(m.port))
	raw := m.render(msg)

	d := net.Dialer{Timeout: 5 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(15 * time.Second)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetDeadline(deadline)

	c, err := smtp.NewClient(conn, m.host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer c.Close()

	if m.startTLS {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			return ErrSTARTTLSUnavailable
		}
		if err := c.StartTLS(&tls.Config{ServerName: m.host}); err != nil {
			return err
		}
	}
	if m.username != "" {
		if err := c.Auth(smtp.PlainAuth("", m.username, m.password, m.host)); err != nil {
			return err
		}
	}
	if err := c.Mail(m.from); err != nil {
		return err
	}
	if err := c.Rcpt(msg.To); err != nil {
		return err
	}
	wc, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := wc.Write(raw); err != nil {
		_ = wc.Close()
		return err
	}
	if err := wc.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func (m *SMTPMailer) render(msg Message) []byte {
	fromHeader := m.from
	if m.fromName != "" {
		fromHeader = fmt.Sprintf("%s <%s>", mime.BEncoding.Encode("UTF-8", m.fromName), m.from)
	}
	var b strings.Builder
	b.WriteString("From: " + fromHeader + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + mime.BEncoding.Encode("UTF-8", msg.Subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Text)
	return []byte(b.String())
}

// WelcomeMessage carries the one-time family and parent codes to a new parent.
func WelcomeMessage(to, familyName, familyCode, parentName, parentCode string) Message {
	if parentName == "" {
		parentName = "there"
	}
	text := fmt.Sprintf(`Hi %s,

Welcome to KCBuddy! Here are your family details:

Family name: %s
Family code: %s
Parent login code: %s

Keep these codes handy for your household.`, parentName, familyName, familyCode, parentCode)

	esc := html.EscapeString
	body := fmt.Sprintf(`<p>Hi %s,</p>
<p>Welcome to <strong>KCBuddy</strong>! Here are your family details:</p>
<ul>
  <li><strong>Family name:</strong> %s</li>
  <li><strong>Family code:</strong> %s</li>
  <li><strong>Parent login code:</strong> %s</li>
</ul>
<p>Keep these codes handy for your household.</p>`, esc(parentName), esc(familyName), esc(familyCode), esc(parentCode))

	return Message{
		To:      to,
		Subject: "Your KCBuddy family account details",
		Text:    text,
		HTML:    body,
	}
}
