// Package api serves the current cost summary over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/nais/gcp-cost/internal/bigquery"
	"github.com/nais/gcp-cost/internal/billing"
	"github.com/nais/gcp-cost/internal/display"
	"github.com/nais/gcp-cost/internal/monitor"
)

const shutdownTimeout = 10 * time.Second

// Service is implemented by *monitor.Monitor.
type Service interface {
	Summary() monitor.Update
	Refresh(ctx context.Context) (billing.CostSummary, error)
	SetProjectID(projectID string)
	Target() (bigquery.Target, bool)
}

type summaryResponse struct {
	billing.CostSummary
	Display   string `json:"display"`
	LastError string `json:"last_error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Class string `json:"class,omitempty"`
}

type projectRequest struct {
	ProjectID string `json:"project_id"`
}

type targetResponse struct {
	ProjectID string `json:"project_id"`
	Dataset   string `json:"dataset"`
	TableID   string `json:"table_id,omitempty"`
}

type handler struct {
	service Service
	log     logrus.FieldLogger
}

func New(service Service, log logrus.FieldLogger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogError:  true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			entry := log.WithFields(logrus.Fields{
				"method": v.Method,
				"uri":    v.URI,
				"status": v.Status,
			})
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Debug("handled request")
			return nil
		},
	}))

	h := &handler{service: service, log: log}
	e.GET("/healthz", h.healthz)
	e.GET("/api/summary", h.summary)
	e.POST("/api/refresh", h.refresh)
	e.PUT("/api/project", h.setProject)

	return e
}

// Run serves e on addr until ctx is done, then shuts it down gracefully.
func Run(ctx context.Context, e *echo.Echo, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

func (h *handler) healthz(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func (h *handler) summary(c echo.Context) error {
	u := h.service.Summary()
	if !u.HasSummary {
		msg := "no cost summary fetched yet"
		if u.Err != nil {
			msg += ": " + u.Err.Error()
		}
		return c.JSON(http.StatusNotFound, errorResponse{Error: msg, Class: bigquery.ErrorClass(u.Err)})
	}

	resp := summaryResponse{
		CostSummary: u.Summary,
		Display:     display.StatusText(u.Summary),
	}
	if u.Err != nil {
		resp.LastError = u.Err.Error()
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *handler) refresh(c echo.Context) error {
	summary, err := h.service.Refresh(c.Request().Context())
	if err != nil {
		return c.JSON(statusFor(err), errorResponse{Error: err.Error(), Class: bigquery.ErrorClass(err)})
	}

	return c.JSON(http.StatusOK, summaryResponse{
		CostSummary: summary,
		Display:     display.StatusText(summary),
	})
}

func (h *handler) setProject(c echo.Context) error {
	var req projectRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}

	projectID := strings.TrimSpace(req.ProjectID)
	if projectID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "project_id is required"})
	}

	h.service.SetProjectID(projectID)
	h.log.WithField("project_id", projectID).Info("changed billing project")

	target, _ := h.service.Target()
	return c.JSON(http.StatusOK, targetResponse{
		ProjectID: target.ProjectID,
		Dataset:   target.Dataset,
		TableID:   target.TableID,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, bigquery.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, bigquery.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, bigquery.ErrTransport):
		return http.StatusBadGateway
	case errors.Is(err, monitor.ErrNotStarted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
