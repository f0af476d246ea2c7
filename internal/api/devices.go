package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/device"
	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/telemetry"
)

// handleListDevices returns all registered devices, most recently seen first.
//
// GET /api/devices
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.registry.List(r.Context())
	if err != nil {
		s.logger.Error("listing devices", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}
	if devices == nil {
		devices = []device.Device{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetDevice returns a single device record.
//
// GET /api/devices/{id}
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	d, err := s.registry.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("getting device", "device_id", id, "error", err)
		writeInternalError(w, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, d)
}

// handleDeviceTelemetry returns paginated telemetry for a device,
// newest first.
//
// GET /api/devices/{id}/telemetry?limit=N&offset=M
func (s *Server) handleDeviceTelemetry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)

	records, err := s.telemetry.Page(r.Context(), id, limit, offset)
	if err != nil {
		s.logger.Error("querying telemetry", "device_id", id, "error", err)
		writeInternalError(w, "failed to query telemetry")
		return
	}
	if records == nil {
		records = []telemetry.Record{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"telemetry": records,
		"count":     len(records),
		"offset":    offset,
	})
}

// queryInt parses an integer query parameter, returning def when absent
// or malformed.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
