package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/device"
	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/ota"
	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/protocol"
)

// Push endpoints are fire-and-forget: a 202 means the message was handed
// to the broker, not that the device received it.

// handlePushConfig re-publishes the hub configuration to a device.
//
// POST /api/devices/{id}/config
func (s *Server) handlePushConfig(w http.ResponseWriter, r *http.Request) {
	if s.pusher == nil {
		writeUnavailable(w, "mqtt unavailable")
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.requireDevice(w, r, id); err != nil {
		return
	}

	if err := s.pusher.PublishConfig(id); err != nil {
		s.logger.Error("config push failed", "device_id", id, "error", err)
		writeInternalError(w, "failed to publish config")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"published": true})
}

// handlePushUpdateNotice notifies a device of its newest applicable
// update over MQTT.
//
// POST /api/devices/{id}/ota?kind=firmware
func (s *Server) handlePushUpdateNotice(w http.ResponseWriter, r *http.Request) {
	if s.pusher == nil {
		writeUnavailable(w, "mqtt unavailable")
		return
	}

	id := chi.URLParam(r, "id")

	kind := ota.KindFirmware
	if k := r.URL.Query().Get("kind"); k != "" {
		parsed, err := ota.ParseKind(k)
		if err != nil {
			writeBadRequest(w, "kind must be firmware or app")
			return
		}
		kind = parsed
	}

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

	update, err := s.catalog.ResolveUpdate(r.Context(), kind, d.FirmwareVersion)
	if err != nil {
		if errors.Is(err, ota.ErrNoUpdate) {
			writeJSON(w, http.StatusOK, map[string]any{"published": false, "available": false})
			return
		}
		s.logger.Error("resolving update", "device_id", id, "error", err)
		writeInternalError(w, "failed to resolve update")
		return
	}

	notice := protocol.UpdateNotice{
		Available:   true,
		Version:     update.Version,
		Kind:        string(update.Kind),
		Filename:    update.Filename,
		Checksum:    update.Checksum,
		DownloadURL: "/ota/download/" + update.Filename,
	}
	if err := s.pusher.PublishUpdateNotice(id, notice); err != nil {
		s.logger.Error("update notice push failed", "device_id", id, "error", err)
		writeInternalError(w, "failed to publish update notice")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"published": true,
		"version":   update.Version,
	})
}

// handlePushAppCommand sends an app management command to a device.
//
// POST /api/devices/{id}/apps  body: {"action": "...", "app": "...", "params": {...}}
func (s *Server) handlePushAppCommand(w http.ResponseWriter, r *http.Request) {
	if s.pusher == nil {
		writeUnavailable(w, "mqtt unavailable")
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.requireDevice(w, r, id); err != nil {
		return
	}

	var cmd protocol.AppCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if cmd.Action == "" || cmd.App == "" {
		writeBadRequest(w, "action and app are required")
		return
	}

	if err := s.pusher.PublishAppCommand(id, cmd); err != nil {
		s.logger.Error("app command push failed", "device_id", id, "error", err)
		writeInternalError(w, "failed to publish app command")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"published": true})
}

// requireDevice writes an error response and returns non-nil if the
// device does not exist.
func (s *Server) requireDevice(w http.ResponseWriter, r *http.Request, id string) error {
	_, err := s.registry.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return err
		}
		s.logger.Error("getting device", "device_id", id, "error", err)
		writeInternalError(w, "failed to get device")
		return err
	}
	return nil
}
