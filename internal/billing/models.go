package billing

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Organization is the business that issues invoices.
type Organization struct {
	ID        string `gorm:"primaryKey;size:36" json:"id"`
	Name      string `gorm:"not null" json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (o *Organization) BeforeCreate(*gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	return nil
}

// Client is a customer of an organization.
type Client struct {
	ID             string       `gorm:"primaryKey;size:36" json:"id"`
	OrganizationID string       `gorm:"index;size:36;not null" json:"organizationId"`
	Organization   Organization `json:"organization"`
	Name           string       `gorm:"not null" json:"name"`
	Email          string       `json:"email"`
	Address        string       `json:"address"`
	// HourlyRate applies to time entries that carry no rate of their own.
	HourlyRate *float64 `json:"hourlyRate"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (c *Client) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// Invoice bills a client for the time entries attached to it.
type Invoice struct {
	ID       string `gorm:"primaryKey;size:36" json:"id"`
	Number   string `gorm:"index" json:"number"`
	ClientID string `gorm:"index;size:36;not null" json:"clientId"`
	Client   Client `json:"client"`

	TimeEntries []TimeEntry `gorm:"foreignKey:InvoiceID" json:"timeEntries"`

	// Only entries starting inside [EntriesStartDate, EntriesEndDate] are billed
	// when both bounds are set.
	EntriesStartDate *time.Time `json:"entriesStartDate"`
	EntriesEndDate   *time.Time `json:"entriesEndDate"`

	DueDate  time.Time `json:"dueDate"`
	Tax      *float64  `json:"tax"` // fraction, 0.2 is 20%
	Discount *float64  `json:"discount"`
	Notes    string    `json:"notes"`

	SentAt    *time.Time `gorm:"index" json:"sentAt"`
	PaidAt    *time.Time `json:"paidAt"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func (i *Invoice) BeforeCreate(*gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	return nil
}

// TimeEntry is a block of billable work.
type TimeEntry struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	InvoiceID   *string    `gorm:"index;size:36" json:"invoiceId"`
	Description string     `json:"description"`
	StartTime   time.Time  `gorm:"index" json:"startTime"`
	EndTime     *time.Time `json:"endTime"`
	HourlyRate  *float64   `json:"hourlyRate"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (t *TimeEntry) BeforeCreate(*gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return nil
}

// InvoiceDocument is the rendered PDF of an invoice, one per invoice.
type InvoiceDocument struct {
	InvoiceID   string    `gorm:"primaryKey;size:36" json:"invoiceId"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	Content     []byte    `gorm:"type:blob" json:"content"`
	Regenerated bool      `json:"regenerated"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// AllModels lists every billing model for AutoMigrate.
func AllModels() []any {
	return []any{&Organization{}, &Client{}, &Invoice{}, &TimeEntry{}, &InvoiceDocument{}}
}
