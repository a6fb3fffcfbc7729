package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/billable/jobqueue/pkg/core"
	"github.com/billable/jobqueue/pkg/forward"
	"github.com/billable/jobqueue/pkg/jobctx"
	"github.com/billable/jobqueue/pkg/queue"
)

// Job types handled by this package.
const (
	JobUpsertInvoicePDF  = "upsert-invoice-pdf"
	JobSendInvoiceEmail  = "send-invoice-email"
	defaultSubjectFormat = "Invoice %s from %s"
)

// PDFPayload is the payload of an upsert-invoice-pdf job.
type PDFPayload struct {
	InvoiceID   string `json:"invoiceId" validate:"required"`
	Regenerated bool   `json:"regenerated,omitempty"`
}

// EmailPayload is the payload of a send-invoice-email job. Only InvoiceID is
// required; the other fields default from the invoice and the sender config.
type EmailPayload struct {
	InvoiceID string   `json:"invoiceId" validate:"required"`
	FromName  string   `json:"fromName,omitempty"`
	FromEmail string   `json:"fromEmail,omitempty" validate:"omitempty,email"`
	To        string   `json:"to,omitempty" validate:"omitempty,email"`
	CC        []string `json:"cc,omitempty" validate:"omitempty,dive,email"`
	BCC       []string `json:"bcc,omitempty" validate:"omitempty,dive,email"`
	Subject   string   `json:"subject,omitempty"`
	Body      string   `json:"body,omitempty"`
}

// Deps are the collaborators of the billing handlers.
type Deps struct {
	// Writer reaches the billing tables, normally a forward.Forwarder.
	Writer forward.Writer
	Sender Sender
	// From is the sender address used when a payload names none.
	From   string
	Logger *slog.Logger
	Now    func() time.Time
}

// Handlers implements the billing jobs.
type Handlers struct {
	records  *Records
	sender   Sender
	from     string
	logger   *slog.Logger
	now      func() time.Time
	validate *validator.Validate
}

// NewHandlers creates the billing handlers.
func NewHandlers(deps Deps) *Handlers {
	h := &Handlers{
		records:  NewRecords(deps.Writer),
		sender:   deps.Sender,
		from:     deps.From,
		logger:   deps.Logger,
		now:      deps.Now,
		validate: validator.New(),
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

// Register adds the billing handlers to reg.
func Register(reg *queue.Registry, deps Deps) *Handlers {
	h := NewHandlers(deps)
	reg.Register(JobUpsertInvoicePDF, queue.Typed(h.UpsertInvoicePDF))
	reg.Register(JobSendInvoiceEmail, queue.Typed(h.SendInvoiceEmail))
	return h
}

// UpsertInvoicePDF renders the invoice and stores the PDF, replacing any
// earlier rendering.
func (h *Handlers) UpsertInvoicePDF(ctx context.Context, p PDFPayload) error {
	if err := h.validate.Struct(p); err != nil {
		return core.NoRetry(fmt.Errorf("invalid payload: %w", err))
	}
	logger := h.jobLogger(ctx).With("invoice_id", p.InvoiceID)
	start := time.Now()

	inv, err := h.loadInvoice(ctx, p.InvoiceID)
	if err != nil {
		return err
	}

	content, err := RenderPDF(inv)
	if err != nil {
		return err
	}
	if err := h.records.UpsertDocument(ctx, documentFor(inv, content, p.Regenerated)); err != nil {
		return fmt.Errorf("store invoice pdf: %w", err)
	}

	logger.Info("invoice pdf stored", "bytes", len(content), "regenerated", p.Regenerated, "duration", time.Since(start))
	return nil
}

// SendInvoiceEmail emails the stored PDF of an invoice and marks it sent.
// A missing PDF is retried since its rendering job may not have run yet.
func (h *Handlers) SendInvoiceEmail(ctx context.Context, p EmailPayload) error {
	if err := h.validate.Struct(p); err != nil {
		return core.NoRetry(fmt.Errorf("invalid payload: %w", err))
	}
	if h.sender == nil {
		return core.NoRetry(fmt.Errorf("send invoice %s: no mail sender configured", p.InvoiceID))
	}
	logger := h.jobLogger(ctx).With("invoice_id", p.InvoiceID)

	inv, err := h.loadInvoice(ctx, p.InvoiceID)
	if err != nil {
		return err
	}
	p = h.withDefaults(p, inv)
	if p.To == "" {
		return core.NoRetry(fmt.Errorf("send invoice %s: client has no email address", p.InvoiceID))
	}
	if p.FromEmail == "" {
		return core.NoRetry(fmt.Errorf("send invoice %s: no sender address", p.InvoiceID))
	}

	doc, err := h.records.FindDocument(ctx, p.InvoiceID)
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("send invoice %s: %w", p.InvoiceID, ErrDocumentMissing)
	}

	msg, err := buildMessage(p, doc)
	if err != nil {
		return core.NoRetry(fmt.Errorf("send invoice %s: %w", p.InvoiceID, err))
	}
	if err := h.sender.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send invoice %s: %w", p.InvoiceID, err)
	}

	if err := h.records.MarkSent(ctx, p.InvoiceID, h.now()); err != nil {
		return fmt.Errorf("mark invoice %s sent: %w", p.InvoiceID, err)
	}
	logger.Info("invoice emailed", "to", p.To, "cc", len(p.CC), "bcc", len(p.BCC))
	return nil
}

func (h *Handlers) loadInvoice(ctx context.Context, id string) (*Invoice, error) {
	inv, err := h.records.FindInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, core.NoRetry(fmt.Errorf("%w: %s", ErrInvoiceNotFound, id))
	}
	return inv, nil
}

func (h *Handlers) withDefaults(p EmailPayload, inv *Invoice) EmailPayload {
	org := inv.Client.Organization
	if p.To == "" {
		p.To = inv.Client.Email
	}
	if p.FromName == "" {
		p.FromName = org.Name
	}
	if p.FromEmail == "" {
		p.FromEmail = h.from
	}
	if p.Subject == "" {
		p.Subject = fmt.Sprintf(defaultSubjectFormat, inv.Number, org.Name)
	}
	if p.Body == "" {
		totals := Amount(inv)
		p.Body = fmt.Sprintf("Hello %s,\n\nPlease find attached invoice **%s** for **%s**, due %s.\n\nThank you,\n%s",
			inv.Client.Name, inv.Number, formatAmount(totals.Total), inv.DueDate.Format(dateLayout), org.Name)
	}
	return p
}

func (h *Handlers) jobLogger(ctx context.Context) *slog.Logger {
	if jobctx.JobFromContext(ctx) != nil {
		return jobctx.Logger(ctx)
	}
	return h.logger
}
