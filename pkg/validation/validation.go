package validation

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Errors collects human-readable validation messages. A non-empty Errors
// is returned as an error and rendered as {"errors": [...]}.
type Errors []string

func (e Errors) Error() string {
	return strings.Join(e, "; ")
}

// Add appends a message.
func (e *Errors) Add(msg string) {
	*e = append(*e, msg)
}

// Err returns nil when nothing was collected.
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// Messages extracts the collected messages from err, if it carries any.
func Messages(err error) ([]string, bool) {
	var v Errors
	if errors.As(err, &v) {
		return []string(v), true
	}
	return nil, false
}

// New wraps a single message.
func New(msg string) error {
	return Errors{msg}
}

// Respond writes 422 {"errors": [...]}.
func Respond(c echo.Context, messages []string) error {
	return c.JSON(http.StatusUnprocessableEntity, map[string][]string{"errors": messages})
}
