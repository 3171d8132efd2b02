package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"wican-bridge/internal/device"
	"wican-bridge/internal/ingest"
	"wican-bridge/internal/messaging"
	"wican-bridge/internal/models"
	"wican-bridge/internal/session"

	"github.com/labstack/echo/v4"
)

type APIHandler struct {
	registry   *device.Registry
	processor  *ingest.Processor
	engine     *session.Engine
	subscriber *messaging.Subscriber
}

func NewAPIHandler(registry *device.Registry, processor *ingest.Processor, engine *session.Engine, subscriber *messaging.Subscriber) *APIHandler {
	return &APIHandler{
		registry:   registry,
		processor:  processor,
		engine:     engine,
		subscriber: subscriber,
	}
}

// Register wires the routes. The push gateway endpoint does its own token
// check because per-device precedence needs the device id from the body; the
// operator endpoints sit behind the global-token middleware.
func (h *APIHandler) Register(e *echo.Echo) {
	e.POST("/api/v1/telemetry", h.PostTelemetry)

	api := e.Group("/api/v1", h.requireGlobalToken)
	api.GET("/devices", h.ListDevices)
	api.GET("/devices/:deviceId", h.GetDevice)
	api.PATCH("/devices/:deviceId", h.UpdateDevice)
	api.DELETE("/devices/:deviceId", h.DeleteDevice)
	api.POST("/devices/:deviceId/link", h.LinkDevice)
	api.POST("/devices/:deviceId/unlink", h.UnlinkDevice)
	api.POST("/devices/:deviceId/token", h.GenerateDeviceToken)
	api.DELETE("/devices/:deviceId/token", h.RevokeDeviceToken)
	api.POST("/auth/token", h.RotateGlobalToken)
	api.GET("/vehicles/:vehicleId/sessions", h.ListVehicleSessions)
	api.GET("/subscriber/status", h.SubscriberStatus)
}

func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}

func (h *APIHandler) requireGlobalToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !h.registry.ValidateToken(bearerToken(c), "") {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}
		return next(c)
	}
}

// ===================================================================
// PUSH GATEWAY
// ===================================================================

// TelemetryRequest is the push-gateway payload: one contact from a gateway
// carrying status, battery and a flat readings object, all optional.
type TelemetryRequest struct {
	DeviceID        string                 `json:"device_id"`
	Status          *string                `json:"status"`
	BatteryVoltage  *float64               `json:"battery_voltage"`
	RSSI            *int                   `json:"rssi"`
	StaIP           string                 `json:"sta_ip"`
	HardwareVersion string                 `json:"hw_version"`
	FirmwareVersion string                 `json:"fw_version"`
	BuildVersion    string                 `json:"build_version"`
	Timestamp       *int64                 `json:"timestamp"`
	Readings        map[string]interface{} `json:"readings"`
}

func (h *APIHandler) PostTelemetry(c echo.Context) error {
	var req TelemetryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if req.DeviceID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "device_id is required")
	}

	// per-device token takes precedence over the global one
	if !h.registry.ValidateToken(bearerToken(c), req.DeviceID) {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}

	at := time.Now().UTC()
	if req.Timestamp != nil && *req.Timestamp > 0 {
		at = time.Unix(*req.Timestamp, 0).UTC()
	}

	meta := &models.VersionMeta{
		HardwareVersion: req.HardwareVersion,
		FirmwareVersion: req.FirmwareVersion,
		BuildVersion:    req.BuildVersion,
		StaIP:           req.StaIP,
	}
	ctx := c.Request().Context()

	d, _, err := h.registry.AutoDiscover(req.DeviceID, meta)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to resolve device")
	}
	if d == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "device_id is invalid")
	}

	if req.RSSI != nil {
		if err := h.registry.UpdateStatus(d.DeviceID, &models.DevicePatch{RSSI: req.RSSI}); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to update device")
		}
	}

	if req.Status != nil {
		online := *req.Status == "online"
		if err := h.processor.ProcessStatus(d.DeviceID, nil, online, at); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to process status")
		}
	}

	if req.BatteryVoltage != nil {
		if err := h.processor.ProcessBattery(ctx, d.DeviceID, nil, *req.BatteryVoltage, at); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to process battery")
		}
	}

	if readings := ingest.NumericReadings(req.Readings); len(readings) > 0 {
		if err := h.processor.ProcessTelemetry(ctx, d.DeviceID, nil, readings, at); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to process telemetry")
		}
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "accepted"})
}

// ===================================================================
// DEVICE MANAGEMENT
// ===================================================================

func (h *APIHandler) ListDevices(c echo.Context) error {
	devices, counts, err := h.registry.List()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list devices")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"devices": devices,
		"counts":  counts,
	})
}

func (h *APIHandler) GetDevice(c echo.Context) error {
	d, err := h.registry.Get(c.Param("deviceId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get device")
	}
	if d == nil {
		return echo.NewHTTPError(http.StatusNotFound, "device not found")
	}
	return c.JSON(http.StatusOK, d)
}

// DeviceUpdateRequest carries the editable device fields.
type DeviceUpdateRequest struct {
	Enabled *bool `json:"enabled"`
}

func (h *APIHandler) UpdateDevice(c echo.Context) error {
	var req DeviceUpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	d, err := h.registry.Get(c.Param("deviceId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get device")
	}
	if d == nil {
		return echo.NewHTTPError(http.StatusNotFound, "device not found")
	}
	if err := h.registry.UpdateStatus(d.DeviceID, &models.DevicePatch{Enabled: req.Enabled}); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to update device")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *APIHandler) DeleteDevice(c echo.Context) error {
	ok, err := h.registry.Delete(c.Param("deviceId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete device")
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "device not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// LinkRequest names the vehicle a device gets attached to.
type LinkRequest struct {
	VehicleID uint `json:"vehicle_id"`
}

func (h *APIHandler) LinkDevice(c echo.Context) error {
	var req LinkRequest
	if err := c.Bind(&req); err != nil || req.VehicleID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "vehicle_id is required")
	}
	ok, err := h.registry.LinkToVehicle(c.Param("deviceId"), req.VehicleID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to link device")
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "device not found")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *APIHandler) UnlinkDevice(c echo.Context) error {
	ok, err := h.registry.Unlink(c.Param("deviceId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to unlink device")
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "device not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// ===================================================================
// CREDENTIALS
// ===================================================================

func (h *APIHandler) GenerateDeviceToken(c echo.Context) error {
	token, err := h.registry.GenerateDeviceToken(c.Param("deviceId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to generate token")
	}
	if token == "" {
		return echo.NewHTTPError(http.StatusNotFound, "device not found")
	}
	// shown exactly once, never stored in plaintext
	return c.JSON(http.StatusOK, map[string]string{"token": token})
}

func (h *APIHandler) RevokeDeviceToken(c echo.Context) error {
	ok, err := h.registry.RevokeDeviceToken(c.Param("deviceId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to revoke token")
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "device not found")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *APIHandler) RotateGlobalToken(c echo.Context) error {
	token, err := h.registry.RotateGlobalToken()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to rotate token")
	}
	return c.JSON(http.StatusOK, map[string]string{"token": token})
}

// ===================================================================
// SESSIONS
// ===================================================================

const defaultSessionLimit = 50

func (h *APIHandler) ListVehicleSessions(c echo.Context) error {
	vehicleID, err := strconv.ParseUint(c.Param("vehicleId"), 10, 32)
	if err != nil || vehicleID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "vehicleId is invalid")
	}

	limit := defaultSessionLimit
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	sessions, err := h.engine.RecentSessions(uint(vehicleID), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list sessions")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// ===================================================================
// OPERATIONAL VISIBILITY
// ===================================================================

func (h *APIHandler) SubscriberStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.subscriber.Snapshot())
}
