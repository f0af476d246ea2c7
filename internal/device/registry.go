package device

import (
	"context"
	"time"

	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/infrastructure/logging"
)

// Registry is the service layer over device persistence.
//
// It applies registration semantics (full overwrite, online status) and
// activity tracking on top of a Repository, with structured logging of
// lifecycle events.
type Registry struct {
	repo   Repository
	logger *logging.Logger
}

// NewRegistry creates a registry backed by the given repository.
func NewRegistry(repo Repository, logger *logging.Logger) *Registry {
	return &Registry{
		repo:   repo,
		logger: logger.With("component", "device-registry"),
	}
}

// Register upserts a device from a registration message. All stored
// fields are overwritten; repeated identical registrations are idempotent.
func (r *Registry) Register(ctx context.Context, device *Device) error {
	if err := r.repo.Register(ctx, device); err != nil {
		return err
	}

	r.logger.Info("device registered",
		"device_id", device.ID,
		"device_type", device.Type,
		"firmware_version", device.FirmwareVersion,
	)
	return nil
}

// Touch records activity for a device, advancing last_seen and marking
// it online. Unknown devices are ignored.
func (r *Registry) Touch(ctx context.Context, id string, seen time.Time) error {
	return r.repo.Touch(ctx, id, seen)
}

// SetStatus records a device status report.
func (r *Registry) SetStatus(ctx context.Context, id string, status Status, seen time.Time) error {
	if err := r.repo.SetStatus(ctx, id, status, seen); err != nil {
		return err
	}

	r.logger.Info("device status updated", "device_id", id, "status", string(status))
	return nil
}

// Get retrieves a device by ID.
func (r *Registry) Get(ctx context.Context, id string) (*Device, error) {
	return r.repo.GetByID(ctx, id)
}

// List returns all devices, most recently seen first.
func (r *Registry) List(ctx context.Context) ([]Device, error) {
	return r.repo.List(ctx)
}

// MarkOfflineBefore flips stale online devices to offline. Used by the
// presence sweeper.
func (r *Registry) MarkOfflineBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.repo.MarkOfflineBefore(ctx, cutoff)
}
