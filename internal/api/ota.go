package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/device"
	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/ota"
)

// maxUploadSize caps OTA binary uploads (128 MB).
const maxUploadSize = 128 << 20

// handleListUpdates returns the full OTA catalog, newest first.
//
// GET /api/ota
func (s *Server) handleListUpdates(w http.ResponseWriter, r *http.Request) {
	updates, err := s.catalog.List(r.Context())
	if err != nil {
		s.logger.Error("listing updates", "error", err)
		writeInternalError(w, "failed to list updates")
		return
	}
	if updates == nil {
		updates = []ota.Update{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"updates": updates,
		"count":   len(updates),
	})
}

// handleCheckUpdate resolves the newest applicable update for a device.
//
// GET /api/ota/check/{deviceID}?current_version=X&kind=firmware
//
// When current_version is omitted, the device's registered firmware
// version is used. The response mirrors the update notice pushed over
// MQTT: {"available": false} when nothing applies.
func (s *Server) handleCheckUpdate(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	kind := ota.KindFirmware
	if k := r.URL.Query().Get("kind"); k != "" {
		parsed, err := ota.ParseKind(k)
		if err != nil {
			writeBadRequest(w, "kind must be firmware or app")
			return
		}
		kind = parsed
	}

	currentVersion := r.URL.Query().Get("current_version")
	if currentVersion == "" {
		d, err := s.registry.Get(r.Context(), deviceID)
		if err != nil {
			if errors.Is(err, device.ErrDeviceNotFound) {
				writeNotFound(w, "device not found and no current_version given")
				return
			}
			s.logger.Error("getting device for update check", "device_id", deviceID, "error", err)
			writeInternalError(w, "failed to check for updates")
			return
		}
		currentVersion = d.FirmwareVersion
	}

	update, err := s.catalog.ResolveUpdate(r.Context(), kind, currentVersion)
	if err != nil {
		if errors.Is(err, ota.ErrNoUpdate) {
			writeJSON(w, http.StatusOK, map[string]any{"available": false})
			return
		}
		s.logger.Error("resolving update", "device_id", deviceID, "error", err)
		writeInternalError(w, "failed to check for updates")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"available":    true,
		"version":      update.Version,
		"kind":         update.Kind,
		"filename":     update.Filename,
		"checksum":     update.Checksum,
		"download_url": "/ota/download/" + update.Filename,
	})
}

// handleUploadUpdate accepts a multipart upload of an update binary and
// publishes a catalog entry for it.
//
// POST /api/ota/upload  (multipart form: file, version, kind)
//
// The SHA-256 checksum is computed server-side while the file is written
// so the stored catalog entry always matches the bytes on disk.
func (s *Server) handleUploadUpdate(w http.ResponseWriter, r *http.Request) {
	if s.files == nil {
		writeUnavailable(w, "ota storage not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeBadRequest(w, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeBadRequest(w, "no file provided")
		return
	}
	defer file.Close()

	version := r.FormValue("version")
	if version == "" {
		writeBadRequest(w, "version is required")
		return
	}

	kind := ota.KindFirmware
	if k := r.FormValue("kind"); k != "" {
		kind, err = ota.ParseKind(k)
		if err != nil {
			writeBadRequest(w, "kind must be firmware or app")
			return
		}
	}

	checksum, size, err := s.files.Save(header.Filename, file)
	if err != nil {
		if errors.Is(err, ota.ErrInvalidFilename) {
			writeBadRequest(w, "invalid filename")
			return
		}
		s.logger.Error("saving upload", "filename", header.Filename, "error", err)
		writeInternalError(w, "failed to store upload")
		return
	}

	update, err := s.catalog.Publish(r.Context(), version, kind, header.Filename, checksum)
	if err != nil {
		s.logger.Error("publishing update", "filename", header.Filename, "error", err)
		writeInternalError(w, "failed to publish update")
		return
	}

	s.logger.Info("ota update uploaded",
		"version", version,
		"kind", string(kind),
		"filename", header.Filename,
		"size_bytes", size,
	)

	writeJSON(w, http.StatusCreated, map[string]any{
		"message":  "upload successful",
		"id":       update.ID,
		"version":  update.Version,
		"kind":     update.Kind,
		"filename": update.Filename,
		"checksum": update.Checksum,
	})
}

// handleDownloadUpdate serves a stored update binary.
//
// GET /ota/download/{filename}
func (s *Server) handleDownloadUpdate(w http.ResponseWriter, r *http.Request) {
	if s.files == nil {
		writeUnavailable(w, "ota storage not configured")
		return
	}

	filename := chi.URLParam(r, "filename")

	path, err := s.files.Path(filename)
	if err != nil {
		writeBadRequest(w, "invalid filename")
		return
	}

	f, err := s.files.Open(filename)
	if err != nil {
		if errors.Is(err, ota.ErrFileNotFound) {
			writeNotFound(w, "file not found")
			return
		}
		s.logger.Error("opening update file", "filename", filename, "error", err)
		writeInternalError(w, "failed to open file")
		return
	}
	f.Close()

	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	http.ServeFile(w, r, path)
}
