package billing

import (
	"context"
	"time"

	"github.com/billable/jobqueue/pkg/forward"
)

// Forwarded model names.
const (
	InvoiceModel         = "invoice"
	InvoiceDocumentModel = "invoiceDocument"
)

// Forwarded operations.
const (
	OpFind     = "find"
	OpUpsert   = "upsert"
	OpMarkSent = "markSent"
)

type idArgs struct {
	ID string `json:"id"`
}

type markSentArgs struct {
	ID     string    `json:"id"`
	SentAt time.Time `json:"sentAt"`
}

type none struct{}

// RegisterCommands exposes the billing operations that jobs need on reg.
func RegisterCommands(reg *forward.Registry, s *Store) {
	forward.Handle(reg, InvoiceModel, OpFind, forward.Read, func(ctx context.Context, a idArgs) (*Invoice, error) {
		return s.FindInvoice(ctx, a.ID)
	})
	forward.Handle(reg, InvoiceModel, OpMarkSent, forward.Write, func(ctx context.Context, a markSentArgs) (none, error) {
		return none{}, s.MarkSent(ctx, a.ID, a.SentAt)
	})
	forward.Handle(reg, InvoiceDocumentModel, OpFind, forward.Read, func(ctx context.Context, a idArgs) (*InvoiceDocument, error) {
		return s.FindDocument(ctx, a.ID)
	})
	forward.Handle(reg, InvoiceDocumentModel, OpUpsert, forward.Write, func(ctx context.Context, doc InvoiceDocument) (none, error) {
		return none{}, s.UpsertDocument(ctx, &doc)
	})
}

// Records is the job side view of the billing tables. Reads run locally and
// writes reach the primary through the writer.
type Records struct {
	w forward.Writer
}

// NewRecords creates Records on w, normally a forward.Forwarder.
func NewRecords(w forward.Writer) *Records {
	return &Records{w: w}
}

// FindInvoice returns nil when the invoice does not exist.
func (r *Records) FindInvoice(ctx context.Context, id string) (*Invoice, error) {
	return forward.Do[*Invoice](ctx, r.w, InvoiceModel, OpFind, idArgs{ID: id})
}

// FindDocument returns nil when the invoice has no document.
func (r *Records) FindDocument(ctx context.Context, invoiceID string) (*InvoiceDocument, error) {
	return forward.Do[*InvoiceDocument](ctx, r.w, InvoiceDocumentModel, OpFind, idArgs{ID: invoiceID})
}

func (r *Records) UpsertDocument(ctx context.Context, doc *InvoiceDocument) error {
	_, err := forward.Do[none](ctx, r.w, InvoiceDocumentModel, OpUpsert, doc)
	return err
}

func (r *Records) MarkSent(ctx context.Context, id string, at time.Time) error {
	_, err := forward.Do[none](ctx, r.w, InvoiceModel, OpMarkSent, markSentArgs{ID: id, SentAt: at})
	return err
}
