package claimimport

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/claimsdesk/claims/internal/domain/claim"
)

// ExportContentType is served with every export.
const ExportContentType = "text/csv"

// ExportHeaders are the columns of an export, in order.
var ExportHeaders = []string{"claim_number", "patient_name", "service_date", "amount", "status"}

// ExportCSV renders claims in the given order.
func ExportCSV(claims []*claim.Claim) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(ExportHeaders); err != nil {
		return nil, err
	}
	for _, c := range claims {
		if err := w.Write([]string{
			c.ClaimNumber,
			c.PatientName,
			c.ServiceDate.Format(dateLayout),
			c.Amount.StringFixed(2),
			c.Status,
		}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write export: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportRow is one line of an export read back.
type ExportRow struct {
	ClaimNumber string
	PatientName string
	ServiceDate time.Time
	Amount      decimal.Decimal
	Status      string
}

// ParseExport reads a file produced by ExportCSV.
func ParseExport(content []byte) ([]ExportRow, error) {
	records, err := parseCSV(content)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("export is empty")
	}

	idx := make(map[string]int, len(records[0].fields))
	for i, h := range records[0].fields {
		idx[h] = i
	}
	for _, h := range ExportHeaders {
		if _, ok := idx[h]; !ok {
			return nil, fmt.Errorf("export is missing column %s", h)
		}
	}

	rows := make([]ExportRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		field := func(name string) string {
			if j := idx[name]; j < len(rec.fields) {
				return rec.fields[j]
			}
			return ""
		}
		line := rec.line
		date, err := time.Parse(dateLayout, field("service_date"))
		if err != nil {
			return nil, fmt.Errorf("line %d: service_date: %w", line, err)
		}
		amount, err := decimal.NewFromString(field("amount"))
		if err != nil {
			return nil, fmt.Errorf("line %d: amount: %w", line, err)
		}
		rows = append(rows, ExportRow{
			ClaimNumber: field("claim_number"),
			PatientName: field("patient_name"),
			ServiceDate: date,
			Amount:      amount,
			Status:      field("status"),
		})
	}
	return rows, nil
}
