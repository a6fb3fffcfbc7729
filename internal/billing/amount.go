package billing

// LineItem is a billed time entry with its computed figures.
type LineItem struct {
	Entry  TimeEntry
	Hours  float64
	Rate   float64
	Amount float64
}

// Totals is the breakdown of an invoice amount.
type Totals struct {
	Items     []LineItem
	Subtotal  float64
	TaxAmount float64
	Discount  float64
	Total     float64
}

// Amount computes what inv bills. inv.Client must be loaded for the rate
// fallback. An entry without an end time counts zero hours.
func Amount(inv *Invoice) Totals {
	var t Totals

	for _, e := range inv.TimeEntries {
		if inv.EntriesStartDate != nil && inv.EntriesEndDate != nil {
			if e.StartTime.Before(*inv.EntriesStartDate) || e.StartTime.After(*inv.EntriesEndDate) {
				continue
			}
		}

		var hours float64
		if e.EndTime != nil {
			hours = e.EndTime.Sub(e.StartTime).Hours()
		}

		var rate float64
		switch {
		case e.HourlyRate != nil:
			rate = *e.HourlyRate
		case inv.Client.HourlyRate != nil:
			rate = *inv.Client.HourlyRate
		}

		item := LineItem{Entry: e, Hours: hours, Rate: rate, Amount: hours * rate}
		t.Items = append(t.Items, item)
		t.Subtotal += item.Amount
	}

	if inv.Tax != nil {
		t.TaxAmount = t.Subtotal * *inv.Tax
	}
	if inv.Discount != nil {
		t.Discount = *inv.Discount
	}
	t.Total = t.Subtotal + t.TaxAmount - t.Discount
	return t
}
