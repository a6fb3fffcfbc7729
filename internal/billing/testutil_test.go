package billing

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/billable/jobqueue/pkg/storage"
)

func ptr[T any](v T) *T { return &v }

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "billing.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	s := NewStore(db)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

// seedInvoice stores an invoice with two billed entries and one outside its range.
func seedInvoice(t *testing.T, s *Store) *Invoice {
	t.Helper()
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	inv := &Invoice{
		Number: "INV-0042",
		Client: Client{
			Name:       "Acme Corp",
			Email:      "billing@acme.example",
			HourlyRate: ptr(100.0),
			Organization: Organization{
				Name:  "Northwind Consulting",
				Email: "hello@northwind.example",
			},
		},
		EntriesStartDate: ptr(start),
		EntriesEndDate:   ptr(start.AddDate(0, 0, 30)),
		DueDate:          start.AddDate(0, 1, 0),
		Tax:              ptr(0.1),
		TimeEntries: []TimeEntry{
			{Description: "Design review", StartTime: start, EndTime: ptr(start.Add(2 * time.Hour))},
			{Description: "Implementation", StartTime: start.AddDate(0, 0, 1), EndTime: ptr(start.AddDate(0, 0, 1).Add(90 * time.Minute)), HourlyRate: ptr(120.0)},
			{Description: "Last month", StartTime: start.AddDate(0, -1, 0), EndTime: ptr(start.AddDate(0, -1, 0).Add(time.Hour))},
		},
	}
	require.NoError(t, s.db.Create(inv).Error)
	return inv
}
