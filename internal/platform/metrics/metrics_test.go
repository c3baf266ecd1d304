package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	dto "github.com/prometheus/client_model/go"
	. "github.com/smartystreets/goconvey/convey"
)

// value returns the counter or gauge value of the series matching labels.
func value(m *Manager, name string, labels map[string]string) float64 {
	families, err := m.Registry().Gather()
	if err != nil {
		return -1
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if matches(metric, labels) {
				switch {
				case metric.GetCounter() != nil:
					return metric.GetCounter().GetValue()
				case metric.GetGauge() != nil:
					return metric.GetGauge().GetValue()
				case metric.GetHistogram() != nil:
					return float64(metric.GetHistogram().GetSampleCount())
				}
			}
		}
	}
	return 0
}

func matches(metric *dto.Metric, labels map[string]string) bool {
	for k, v := range labels {
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == k && lp.GetValue() == v {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func TestManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			m := NewManager()

			Convey("Then it should own a fresh registry", func() {
				So(m, ShouldNotBeNil)
				So(m.Registry(), ShouldNotBeNil)
				So(NewManager().Registry(), ShouldNotEqual, m.Registry())
			})
		})

		Convey("When creating with custom options", func() {
			m := NewManager(
				WithNamespace("test"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithRuntimeCollectors(),
			)
			m.ImportRow("processed")

			Convey("Then metric names use the namespace", func() {
				So(value(m, "test_import_rows_total", map[string]string{"outcome": "processed"}), ShouldEqual, 1)
			})
		})
	})
}

func TestImportMetrics(t *testing.T) {
	Convey("Given a metrics manager", t, func() {
		m := NewManager()

		Convey("When an import runs to completion", func() {
			done := m.ImportStarted()
			So(value(m, "claims_import_in_progress", nil), ShouldEqual, 1)

			m.ImportRow("processed")
			m.ImportRow("processed")
			m.ImportRow("invalid")
			done("completed")

			Convey("Then jobs, rows and duration are recorded", func() {
				So(value(m, "claims_import_in_progress", nil), ShouldEqual, 0)
				So(value(m, "claims_import_jobs_total", map[string]string{"status": "completed"}), ShouldEqual, 1)
				So(value(m, "claims_import_rows_total", map[string]string{"outcome": "processed"}), ShouldEqual, 2)
				So(value(m, "claims_import_rows_total", map[string]string{"outcome": "invalid"}), ShouldEqual, 1)
				So(value(m, "claims_import_duration_seconds", nil), ShouldEqual, 1)
			})
		})

		Convey("When an export is generated", func() {
			m.ExportGenerated(3)
			m.ExportGenerated(0)

			Convey("Then files and rows are counted", func() {
				So(value(m, "claims_export_files_total", nil), ShouldEqual, 2)
				So(value(m, "claims_export_rows_total", nil), ShouldEqual, 3)
			})
		})
	})
}

func TestHTTPMiddleware(t *testing.T) {
	Convey("Given an echo server instrumented by the manager", t, func() {
		m := NewManager()
		e := echo.New()
		e.Use(m.Middleware())
		e.GET("/api/v1/claims/:id", func(c echo.Context) error {
			if c.Param("id") == "missing" {
				return echo.NewHTTPError(http.StatusNotFound, "Claim not found")
			}
			if c.Param("id") == "broken" {
				return errors.New("boom")
			}
			return c.String(http.StatusOK, "ok")
		})

		for _, id := range []string{"a", "b", "missing", "broken"} {
			e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/claims/"+id, nil))
		}

		Convey("Then requests are labelled by route template and status", func() {
			route := "/api/v1/claims/:id"
			So(value(m, "claims_http_requests_total", map[string]string{"route": route, "status_code": "200"}), ShouldEqual, 2)
			So(value(m, "claims_http_requests_total", map[string]string{"route": route, "status_code": "404"}), ShouldEqual, 1)
			So(value(m, "claims_http_requests_total", map[string]string{"route": route, "status_code": "500"}), ShouldEqual, 1)
			So(value(m, "claims_http_request_duration_seconds", map[string]string{"route": route}), ShouldEqual, 4)
		})

		Convey("Then the handler serves the text exposition format", func() {
			rec := httptest.NewRecorder()
			m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
			body, _ := io.ReadAll(rec.Body)

			So(rec.Code, ShouldEqual, http.StatusOK)
			So(strings.Contains(string(body), "claims_http_requests_total"), ShouldBeTrue)
		})
	})
}
