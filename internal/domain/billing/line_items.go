package billing

import (
	"errors"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/agency-ops/internal/domain/entity"
)

// LineItemRequest prices approved work. A nil bound leaves that side open.
type LineItemRequest struct {
	HourlyRate  float64
	PeriodStart *time.Time
	PeriodEnd   *time.Time
}

// LineItemResult is the priced work for an invoice
type LineItemResult struct {
	LineItems []entity.InvoiceLineItem `json:"line_items"`
	Total     float64                  `json:"total"`
	Hours     float64                  `json:"hours"`
}

// ErrInvalidRate is returned for a negative or non-finite hourly rate
var ErrInvalidRate = errors.New("hourly rate must be a finite, non-negative number")

// IsBillable reports whether a deliverable's status allows invoicing its hours
func IsBillable(status entity.TaskStatus) bool {
	return status == entity.TaskStatusClientApproved || status == entity.TaskStatusDone
}

// BuildLineItems turns approved deliverables' time logs into one line per task.
// Tasks without hours inside the period are omitted.
func BuildLineItems(deliverables []entity.DeliverableWork, req LineItemRequest) (LineItemResult, error) {
	if math.IsNaN(req.HourlyRate) || math.IsInf(req.HourlyRate, 0) || req.HourlyRate < 0 {
		return LineItemResult{}, ErrInvalidRate
	}
	rate := decimal.NewFromFloat(req.HourlyRate)
	items := []entity.InvoiceLineItem{}
	total := decimal.Zero
	hours := decimal.Zero

	for _, work := range deliverables {
		if !work.Task.IsDeliverable || !IsBillable(work.Task.Status) {
			continue
		}

		taskHours := decimal.Zero
		for _, l := range work.TimeLogs {
			if inPeriod(l.Date, req.PeriodStart, req.PeriodEnd) {
				taskHours = taskHours.Add(decimal.NewFromFloat(l.Hours))
			}
		}
		if taskHours.IsZero() {
			continue
		}

		quantity := taskHours.Round(2)
		lineTotal := taskHours.Mul(rate).Round(2)

		items = append(items, entity.InvoiceLineItem{
			TaskID:      work.Task.ID,
			Description: work.Task.Title,
			Quantity:    toFloat(quantity),
			UnitAmount:  req.HourlyRate,
			Total:       toFloat(lineTotal),
		})

		total = total.Add(lineTotal)
		hours = hours.Add(quantity)
	}

	return LineItemResult{
		LineItems: items,
		Total:     toFloat(total.Round(2)),
		Hours:     toFloat(hours),
	}, nil
}

// inPeriod compares calendar days so a log dated on the end day is included.
// Log dates are UTC days; a bound counts as the day it names in its own offset.
func inPeriod(date time.Time, start, end *time.Time) bool {
	day := civilDay(date.UTC())
	if start != nil && day.Before(civilDay(*start)) {
		return false
	}
	if end != nil && day.After(civilDay(*end)) {
		return false
	}
	return true
}

func civilDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// RoundMoney rounds an amount to cents
func RoundMoney(amount float64) float64 {
	return toFloat(decimal.NewFromFloat(amount).Round(2))
}

// ProposalAmount prices hours at rate, rounded to cents
func ProposalAmount(hours, rate float64) float64 {
	return toFloat(decimal.NewFromFloat(hours).Mul(decimal.NewFromFloat(rate)).Round(2))
}
