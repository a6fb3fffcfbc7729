package billing

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Sender delivers messages. *mail.Client satisfies it.
type Sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPConfig holds SMTP connection parameters.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	TLS      bool
}

// NewSMTPSender creates a dial-per-send SMTP client.
func NewSMTPSender(cfg SMTPConfig) (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	if cfg.TLS {
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSOpportunistic))
	}

	c, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return c, nil
}

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// renderBody converts a markdown email body to HTML.
func renderBody(body string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(body), &buf); err != nil {
		return "", fmt.Errorf("render email body: %w", err)
	}
	return buf.String(), nil
}

// stripHeaderBreaks removes CR and LF so a subject cannot inject headers.
func stripHeaderBreaks(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}

// buildMessage assembles the invoice email with the PDF attached.
func buildMessage(p EmailPayload, doc *InvoiceDocument) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.FromFormat(p.FromName, p.FromEmail); err != nil {
		return nil, fmt.Errorf("set from: %w", err)
	}
	if err := m.To(p.To); err != nil {
		return nil, fmt.Errorf("set to: %w", err)
	}
	if len(p.CC) > 0 {
		if err := m.Cc(p.CC...); err != nil {
			return nil, fmt.Errorf("set cc: %w", err)
		}
	}
	if len(p.BCC) > 0 {
		if err := m.Bcc(p.BCC...); err != nil {
			return nil, fmt.Errorf("set bcc: %w", err)
		}
	}
	m.Subject(stripHeaderBreaks(p.Subject))

	htmlBody, err := renderBody(p.Body)
	if err != nil {
		return nil, err
	}
	m.SetBodyString(mail.TypeTextPlain, p.Body)
	m.AddAlternativeString(mail.TypeTextHTML, htmlBody)

	name := doc.Filename
	if name == "" {
		name = doc.InvoiceID + ".pdf"
	}
	m.AttachReadSeeker(name, bytes.NewReader(doc.Content), mail.WithFileContentType(mail.ContentType(pdfContentType)))
	return m, nil
}
