package claim

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/claimsdesk/claims/internal/domain/patient"
	"github.com/claimsdesk/claims/internal/platform/auth"
	"github.com/claimsdesk/claims/pkg/pagination"
	"github.com/claimsdesk/claims/pkg/validation"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleStaff))
	staff.GET("/claims", h.ListClaims)
	staff.GET("/claims/:id", h.GetClaim)
	staff.POST("/claims", h.CreateClaim)
	staff.PUT("/claims/:id", h.UpdateClaim)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.DELETE("/claims/:id", h.DeleteClaim)
}

type claimRequest struct {
	ClaimNumber   *string          `json:"claim_number"`
	ServiceDate   *string          `json:"service_date"`
	Amount        *decimal.Decimal `json:"amount"`
	Status        *string          `json:"status"`
	PatientID     *uuid.UUID       `json:"patient_id"`
	ClaimImportID *uuid.UUID       `json:"claim_import_id"`
}

func (r *claimRequest) changes() (Changes, error) {
	ch := Changes{
		ClaimNumber:   r.ClaimNumber,
		Amount:        r.Amount,
		Status:        r.Status,
		PatientID:     r.PatientID,
		ClaimImportID: r.ClaimImportID,
	}
	if r.ServiceDate != nil {
		d := time.Time{}
		if *r.ServiceDate != "" {
			var err error
			if d, err = time.Parse(patient.DateLayout, *r.ServiceDate); err != nil {
				return ch, validation.New("service_date is not a valid date (use YYYY-MM-DD)")
			}
		}
		ch.ServiceDate = &d
	}
	return ch, nil
}

// FilterFromContext reads the status, patient_id, start_date and end_date
// query parameters.
func FilterFromContext(c echo.Context) (Filter, error) {
	var f Filter
	f.Status = NormalizeStatus(c.QueryParam("status"))
	if v := c.QueryParam("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		f.PatientID = &id
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{
		{"start_date", &f.From},
		{"end_date", &f.To},
	} {
		v := c.QueryParam(p.name)
		if v == "" {
			continue
		}
		d, err := time.Parse(patient.DateLayout, v)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, "invalid "+p.name+" (use YYYY-MM-DD)")
		}
		*p.dst = &d
	}
	return f, nil
}

func (h *Handler) CreateClaim(c echo.Context) error {
	var req claimRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ch, err := req.changes()
	if err != nil {
		return h.fail(c, err)
	}
	cl, err := h.svc.CreateClaim(c.Request().Context(), ch)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, summary(cl))
}

func (h *Handler) GetClaim(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	cl, err := h.svc.GetClaim(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *Handler) ListClaims(c echo.Context) error {
	f, err := FilterFromContext(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	claims, total, err := h.svc.ListClaims(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	for i := range claims {
		claims[i] = summary(claims[i])
	}
	return c.JSON(http.StatusOK, pagination.Page(c, pg, claims, total))
}

func (h *Handler) UpdateClaim(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req claimRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ch, err := req.changes()
	if err != nil {
		return h.fail(c, err)
	}
	cl, err := h.svc.UpdateClaim(c.Request().Context(), id, ch)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, summary(cl))
}

func (h *Handler) DeleteClaim(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteClaim(c.Request().Context(), id); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) fail(c echo.Context, err error) error {
	if msgs, ok := validation.Messages(err); ok {
		return validation.Respond(c, msgs)
	}
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Claim not found")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

// summary drops the embedded patient; only the detail view shows it.
func summary(c *Claim) *Claim {
	if c == nil || c.Patient == nil {
		return c
	}
	cp := *c
	cp.Patient = nil
	return &cp
}
