package claimimport

import "fmt"

type outcomeKind int

const (
	outcomeProcessed outcomeKind = iota
	// outcomeInvalid: the row failed field validation; nothing was written.
	outcomeInvalid
	// outcomeRejected: the store or the claim model refused the data and
	// the row's transaction rolled back.
	outcomeRejected
	// outcomeFault: anything else, recovered panics included.
	outcomeFault
)

func (k outcomeKind) String() string {
	switch k {
	case outcomeProcessed:
		return "processed"
	case outcomeInvalid:
		return "invalid"
	case outcomeRejected:
		return "rejected"
	case outcomeFault:
		return "fault"
	}
	return "unknown"
}

// rowOutcome is the typed result of one data row.
type rowOutcome struct {
	kind     outcomeKind
	row      int
	problems []string
	detail   string
}

// messages renders the outcome as user-facing error lines.
func (o rowOutcome) messages() []string {
	switch o.kind {
	case outcomeInvalid:
		out := make([]string, len(o.problems))
		for i, p := range o.problems {
			out[i] = fmt.Sprintf("Row %d: %s", o.row, p)
		}
		return out
	case outcomeRejected:
		return []string{fmt.Sprintf("Row %d: %s", o.row, o.detail)}
	case outcomeFault:
		return []string{fmt.Sprintf("Row %d: Unexpected error - %s", o.row, o.detail)}
	}
	return nil
}
