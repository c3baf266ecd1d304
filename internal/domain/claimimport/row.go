package claimimport

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/claimsdesk/claims/internal/domain/claim"
	"github.com/claimsdesk/claims/internal/domain/patient"
)

const dateLayout = patient.DateLayout

// maxAmountLength caps the text of an amount before it is parsed.
const maxAmountLength = 40

var errAmountLength = errors.New("amount is too long")

func parseAmount(s string) (decimal.Decimal, error) {
	if len(s) > maxAmountLength {
		return decimal.Decimal{}, errAmountLength
	}
	return decimal.NewFromString(s)
}

// Column names of the import file.
const (
	ColFirstName   = "patient_first_name"
	ColLastName    = "patient_last_name"
	ColDOB         = "patient_dob"
	ColClaimNumber = "claim_number"
	ColServiceDate = "service_date"
	ColAmount      = "amount"
	ColStatus      = "status"
)

// RequiredHeaders in the order they are reported when missing.
var RequiredHeaders = []string{
	ColFirstName, ColLastName, ColDOB, ColClaimNumber, ColServiceDate, ColAmount, ColStatus,
}

// Row is one data line keyed by header name. Columns absent from the line
// read as empty.
type Row map[string]string

func (r Row) get(col string) string {
	return strings.TrimSpace(r[col])
}

// missingHeaders returns the required headers absent from header, in
// canonical order.
func missingHeaders(header []string) []string {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[strings.TrimSpace(h)] = true
	}
	var missing []string
	for _, h := range RequiredHeaders {
		if !present[h] {
			missing = append(missing, h)
		}
	}
	return missing
}

// ValidateRow reports every field-level problem in r. An empty result
// means the row can be parsed.
func ValidateRow(r Row) []string {
	var problems []string
	required := func(col string) bool {
		if r.get(col) == "" {
			problems = append(problems, col+" is required")
			return false
		}
		return true
	}
	date := func(col string) {
		if !required(col) {
			return
		}
		if _, err := time.Parse(dateLayout, r.get(col)); err != nil {
			problems = append(problems, col+" is not a valid date (use YYYY-MM-DD)")
		}
	}

	required(ColFirstName)
	required(ColLastName)
	date(ColDOB)
	required(ColClaimNumber)
	date(ColServiceDate)
	if required(ColAmount) {
		d, err := parseAmount(r.get(ColAmount))
		switch {
		case err != nil:
			problems = append(problems, ColAmount+" is not a valid number")
		case !d.IsNegative():
			// Negative amounts are left to the claim model.
			if p := claim.CheckAmount(d); p != "" {
				problems = append(problems, p)
			}
		}
	}
	if required(ColStatus) && !claim.ValidStatus(claim.NormalizeStatus(r.get(ColStatus))) {
		problems = append(problems, claim.StatusMessage())
	}
	return problems
}

// parsedRow is a row that passed ValidateRow.
type parsedRow struct {
	identity    patient.Identity
	claimNumber string
	serviceDate time.Time
	amount      decimal.Decimal
	status      string
}

// parse converts a validated row. It must only be called when ValidateRow
// returned no problems. The amount is kept as written; Claim.Normalize
// rounds it.
func (r Row) parse() parsedRow {
	dob, _ := time.Parse(dateLayout, r.get(ColDOB))
	serviceDate, _ := time.Parse(dateLayout, r.get(ColServiceDate))
	amount, _ := parseAmount(r.get(ColAmount))
	return parsedRow{
		identity:    patient.NewIdentity(r.get(ColFirstName), r.get(ColLastName), dob),
		claimNumber: r.get(ColClaimNumber),
		serviceDate: serviceDate,
		amount:      amount,
		status:      claim.NormalizeStatus(r.get(ColStatus)),
	}
}
