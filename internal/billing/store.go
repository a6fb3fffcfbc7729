package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrInvoiceNotFound is returned when an invoice does not exist.
	ErrInvoiceNotFound = errors.New("billing: invoice not found")

	// ErrDocumentMissing is returned when an invoice has no rendered PDF yet.
	ErrDocumentMissing = errors.New("billing: invoice document missing")
)

// Store reads and writes billing rows on the local database.
type Store struct {
	db *gorm.DB
}

// NewStore creates a Store on db.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the billing tables.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(AllModels()...)
}

// FindInvoice loads an invoice with its client, organization and time entries.
// It returns nil when the invoice does not exist.
func (s *Store) FindInvoice(ctx context.Context, id string) (*Invoice, error) {
	var inv Invoice
	err := s.db.WithContext(ctx).
		Preload("Client.Organization").
		Preload("TimeEntries", func(db *gorm.DB) *gorm.DB {
			return db.Order("start_time ASC")
		}).
		First(&inv, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find invoice %s: %w", id, err)
	}
	return &inv, nil
}

// FindDocument returns the rendered PDF of an invoice, or nil when none exists.
func (s *Store) FindDocument(ctx context.Context, invoiceID string) (*InvoiceDocument, error) {
	var doc InvoiceDocument
	err := s.db.WithContext(ctx).First(&doc, "invoice_id = ?", invoiceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find document for invoice %s: %w", invoiceID, err)
	}
	return &doc, nil
}

// UpsertDocument stores doc, replacing an earlier rendering of the same invoice.
func (s *Store) UpsertDocument(ctx context.Context, doc *InvoiceDocument) error {
	if doc.InvoiceID == "" {
		return fmt.Errorf("upsert document: %w", ErrInvoiceNotFound)
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "invoice_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"filename", "content_type", "content", "regenerated", "updated_at"}),
	}).Create(doc).Error
}

// MarkSent records when an invoice was emailed.
func (s *Store) MarkSent(ctx context.Context, id string, at time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&Invoice{}).
		Where("id = ?", id).
		Updates(map[string]any{"sent_at": at.UTC(), "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return fmt.Errorf("mark invoice %s sent: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}
