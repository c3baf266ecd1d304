package patient

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

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
	staff.GET("/patients", h.ListPatients)
	staff.GET("/patients/:id", h.GetPatient)
	staff.POST("/patients", h.CreatePatient)
	staff.PUT("/patients/:id", h.UpdatePatient)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.DELETE("/patients/:id", h.DeletePatient)
}

type patientRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	DOB       *string `json:"dob"`
}

// changes converts the request, collecting a message for a malformed dob.
func (r *patientRequest) changes() (Changes, error) {
	ch := Changes{FirstName: r.FirstName, LastName: r.LastName}
	if r.DOB != nil && *r.DOB != "" {
		dob, err := time.Parse(DateLayout, *r.DOB)
		if err != nil {
			return ch, validation.New("Dob is not a valid date (use YYYY-MM-DD)")
		}
		ch.DOB = &dob
	} else if r.DOB != nil {
		ch.DOB = &time.Time{}
	}
	return ch, nil
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var req patientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ch, err := req.changes()
	if err != nil {
		return h.fail(c, err)
	}

	p := &Patient{}
	if ch.FirstName != nil {
		p.FirstName = *ch.FirstName
	}
	if ch.LastName != nil {
		p.LastName = *ch.LastName
	}
	if ch.DOB != nil {
		p.DOB = *ch.DOB
	}
	if err := h.svc.CreatePatient(c.Request().Context(), p); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	patients, total, err := h.svc.ListPatients(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.Page(c, pg, patients, total))
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req patientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ch, err := req.changes()
	if err != nil {
		return h.fail(c, err)
	}
	p, err := h.svc.UpdatePatient(c.Request().Context(), id, ch)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeletePatient(c.Request().Context(), id); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) fail(c echo.Context, err error) error {
	if msgs, ok := validation.Messages(err); ok {
		return validation.Respond(c, msgs)
	}
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Patient not found")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
