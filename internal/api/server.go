// Package api exposes the ledger service over HTTP. Caller authentication
// is external: the already-authenticated identity arrives in the
// X-Caller-Identity header.
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agroledger/internal/blob"
	"agroledger/internal/ledger"
	"agroledger/pkg/domain"
)

// identityHeader carries the authenticated caller identity.
const identityHeader = "X-Caller-Identity"

// Server binds the ledger service to HTTP routes.
type Server struct {
	svc     *ledger.Service
	archive blob.Store
	echo    *echo.Echo
}

// ServerOption customizes server construction.
type ServerOption func(*Server)

// WithArchive enables the snapshot archive endpoints backed by store.
func WithArchive(store blob.Store) ServerOption {
	return func(s *Server) { s.archive = store }
}

// NewServer wires the routes for svc.
func NewServer(svc *ledger.Service, opts ...ServerOption) *Server {
	s := &Server{svc: svc}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	e.GET("/healthz", s.health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := e.Group("/v1")
	v1.POST("/readings", s.submitReading)
	v1.POST("/readings/batch", s.submitBatch)
	v1.POST("/crop-events", s.recordCropEvent)
	v1.POST("/stages", s.recordStage)
	v1.POST("/roles/grant", s.grantRole)
	v1.POST("/roles/revoke", s.revokeRole)
	v1.POST("/pause", s.pause)
	v1.POST("/unpause", s.unpause)

	v1.GET("/farms/:id/readings", s.readingsByFarm)
	v1.GET("/farms/:id/crop-events", s.cropEventsByFarm)
	v1.GET("/products/:id/stages", s.stagesByProduct)
	v1.GET("/readings/:id", s.reading)
	v1.GET("/totals", s.totals)

	if s.archive != nil {
		v1.POST("/snapshots", s.exportSnapshot)
		v1.GET("/snapshots", s.listSnapshots)
	}

	s.echo = e
	return s
}

// Handler returns the root http.Handler for the server.
func (s *Server) Handler() http.Handler { return s.echo }

// Start begins serving on addr.
func (s *Server) Start(addr string) error { return s.echo.Start(addr) }

func caller(c echo.Context) (domain.Identity, error) {
	id := c.Request().Header.Get(identityHeader)
	if id == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing "+identityHeader+" header")
	}
	return domain.Identity(id), nil
}

// statusFor maps domain error kinds onto HTTP statuses.
func statusFor(err error) int {
	var (
		authErr     domain.AuthorizationError
		pausedErr   domain.PausedError
		cooldownErr domain.CooldownError
		validErr    domain.ValidationError
		lengthErr   domain.LengthMismatchError
		batchErr    domain.BatchSizeError
		dupErr      domain.DuplicateError
		roleErr     domain.UnknownRoleError
	)
	switch {
	case errors.As(err, &authErr):
		return http.StatusForbidden
	case errors.As(err, &pausedErr):
		return http.StatusServiceUnavailable
	case errors.As(err, &cooldownErr):
		return http.StatusTooManyRequests
	case errors.As(err, &validErr), errors.As(err, &lengthErr), errors.As(err, &batchErr), errors.As(err, &roleErr):
		return http.StatusBadRequest
	case errors.As(err, &dupErr):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func fail(c echo.Context, err error) error {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return err
	}
	return c.JSON(statusFor(err), map[string]string{"error": err.Error()})
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type readingRequest struct {
	FarmID      uint64 `json:"farm_id"`
	Temperature int16  `json:"temperature"`
	Moisture    uint16 `json:"moisture"`
	Humidity    uint16 `json:"humidity"`
}

func (s *Server) submitReading(c echo.Context) error {
	id, err := caller(c)
	if err != nil {
		return err
	}
	var req readingRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	readingID, err := s.svc.SubmitSensorData(c.Request().Context(), id, req.FarmID, req.Temperature, req.Moisture, req.Humidity)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]uint64{"reading_id": readingID})
}

type batchRequest struct {
	FarmIDs      []uint64 `json:"farm_ids"`
	Temperatures []int16  `json:"temperatures"`
	Moistures    []uint16 `json:"moistures"`
	Humidities   []uint16 `json:"humidities"`
}

func (s *Server) submitBatch(c echo.Context) error {
	id, err := caller(c)
	if err != nil {
		return err
	}
	var req batchRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	count, err := s.svc.SubmitBatch(c.Request().Context(), id, req.FarmIDs, req.Temperatures, req.Moistures, req.Humidities)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]int{"appended": count})
}

type cropEventRequest struct {
	FarmID    uint64 `json:"farm_id"`
	EventType string `json:"event_type"`
	Notes     string `json:"notes"`
	RefHash   string `json:"ref_hash"`
}

func (s *Server) recordCropEvent(c echo.Context) error {
	id, err := caller(c)
	if err != nil {
		return err
	}
	var req cropEventRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	eventID, err := s.svc.RecordCropEvent(c.Request().Context(), id, req.FarmID, req.EventType, req.Notes, req.RefHash)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]uint64{"event_id": eventID})
}

type stageRequest struct {
	ProductID uint64 `json:"product_id"`
	Stage     string `json:"stage"`
	Location  string `json:"location"`
	RefHash   string `json:"ref_hash"`
}

func (s *Server) recordStage(c echo.Context) error {
	id, err := caller(c)
	if err != nil {
		return err
	}
	var req stageRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	stageID, err := s.svc.RecordSupplyChainStage(c.Request().Context(), id, req.ProductID, req.Stage, req.Location, req.RefHash)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]uint64{"stage_id": stageID})
}

type roleRequest struct {
	Role     domain.Role `json:"role"`
	Identity string      `json:"identity"`
}

func (s *Server) grantRole(c echo.Context) error {
	id, err := caller(c)
	if err != nil {
		return err
	}
	var req roleRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := s.svc.GrantRole(c.Request().Context(), id, req.Role, domain.Identity(req.Identity)); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) revokeRole(c echo.Context) error {
	id, err := caller(c)
	if err != nil {
		return err
	}
	var req roleRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := s.svc.RevokeRole(c.Request().Context(), id, req.Role, domain.Identity(req.Identity)); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) pause(c echo.Context) error {
	id, err := caller(c)
	if err != nil {
		return err
	}
	if err := s.svc.Pause(c.Request().Context(), id); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) unpause(c echo.Context) error {
	id, err := caller(c)
	if err != nil {
		return err
	}
	if err := s.svc.Unpause(c.Request().Context(), id); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func pathID(c echo.Context) (uint64, error) {
	var id uint64
	if err := echo.PathParamsBinder(c).Uint64("id", &id).BindError(); err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (s *Server) readingsByFarm(c echo.Context) error {
	farmID, err := pathID(c)
	if err != nil {
		return err
	}
	ids, err := s.svc.ReadingsByFarm(c.Request().Context(), farmID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string][]uint64{"reading_ids": ids})
}

func (s *Server) cropEventsByFarm(c echo.Context) error {
	farmID, err := pathID(c)
	if err != nil {
		return err
	}
	ids, err := s.svc.CropEventsByFarm(c.Request().Context(), farmID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string][]uint64{"event_ids": ids})
}

func (s *Server) stagesByProduct(c echo.Context) error {
	productID, err := pathID(c)
	if err != nil {
		return err
	}
	ids, err := s.svc.StagesByProduct(c.Request().Context(), productID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string][]uint64{"stage_ids": ids})
}

func (s *Server) reading(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	r, ok, err := s.svc.Reading(c.Request().Context(), id)
	if err != nil {
		return fail(c, err)
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "reading not found")
	}
	return c.JSON(http.StatusOK, r)
}

func (s *Server) totals(c echo.Context) error {
	t, err := s.svc.CurrentTotals(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

func (s *Server) exportSnapshot(c echo.Context) error {
	if _, err := caller(c); err != nil {
		return err
	}
	exp, ok := s.svc.Store().(ledger.StateExporter)
	if !ok {
		return echo.NewHTTPError(http.StatusNotImplemented, "store does not support snapshot export")
	}
	info, err := ledger.ExportSnapshot(c.Request().Context(), exp, s.archive)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, info)
}

func (s *Server) listSnapshots(c echo.Context) error {
	infos, err := s.archive.List(c.Request().Context(), "snapshots/")
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, infos)
}
