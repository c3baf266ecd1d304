package claimimport

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/claimsdesk/claims/internal/domain/claim"
	"github.com/claimsdesk/claims/internal/platform/auth"
	"github.com/claimsdesk/claims/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the import and export endpoints. upload wraps the
// multipart endpoint only, typically with a body limit.
func (h *Handler) RegisterRoutes(api *echo.Group, upload ...echo.MiddlewareFunc) {
	staff := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleStaff))
	staff.POST("/claim_imports", h.CreateImport, upload...)
	staff.GET("/claim_imports", h.ListImports)
	staff.GET("/claim_imports/:id", h.GetImport)
	staff.GET("/claims/export", h.ExportClaims)
}

func (h *Handler) CreateImport(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "No file provided")
	}
	if !strings.HasPrefix(fh.Header.Get(echo.HeaderContentType), ExportContentType) && !strings.HasSuffix(fh.Filename, ".csv") {
		return echo.NewHTTPError(http.StatusBadRequest, "File must be a CSV")
	}

	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "No file provided")
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("read upload: %v", err))
	}

	res, err := h.svc.Import(c.Request().Context(), content)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	status := http.StatusCreated
	if len(res.Errors) > 0 {
		status = http.StatusUnprocessableEntity
	}
	return c.JSON(status, res)
}

func (h *Handler) ListImports(c echo.Context) error {
	pg := pagination.FromContext(c)
	jobs, total, err := h.svc.ListJobs(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.Page(c, pg, jobs, total))
}

func (h *Handler) GetImport(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	detail, err := h.svc.GetJob(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Import not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, detail)
}

func (h *Handler) ExportClaims(c echo.Context) error {
	f, err := claim.FilterFromContext(c)
	if err != nil {
		return err
	}
	content, _, err := h.svc.Export(c.Request().Context(), f)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", ExportFileName(h.svc.now())))
	return c.Blob(http.StatusOK, ExportContentType, content)
}
