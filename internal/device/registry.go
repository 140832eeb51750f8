// Package device owns the push-registration state: a device id generated
// once per installation and the mutable set of subscribed channels, pushed
// to the server on every change.
package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"stayline/internal/api"
	"stayline/internal/common"
	"stayline/internal/logging"
	"stayline/internal/models"
	"stayline/internal/store"
)

// deviceRecordID is the fixed record id: there is exactly one device
// record per store.
const deviceRecordID = "device"

// Registry manages the local device record and mirrors it to the server.
type Registry struct {
	store        *store.Store
	api          api.Client
	log          logging.Logger
	platform     string
	capabilities []string
}

func NewRegistry(st *store.Store, client api.Client, log logging.Logger, platform string, capabilities []string) *Registry {
	return &Registry{
		store:        st,
		api:          client,
		log:          log.With("component", "device"),
		platform:     platform,
		capabilities: capabilities,
	}
}

// Ensure returns the device record, creating it on first use. The id is
// never rotated afterwards.
func (r *Registry) Ensure(ctx context.Context) (*models.Device, error) {
	dev, err := r.get(ctx)
	if err == nil {
		return dev, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	dev = &models.Device{
		DeviceID:     uuid.NewString(),
		Platform:     r.platform,
		Capabilities: r.capabilities,
		Channels:     []string{},
	}
	if err := r.put(ctx, dev); err != nil {
		return nil, err
	}
	r.log.Info(ctx, "device registered locally", "deviceId", dev.DeviceID)
	return dev, nil
}

// Subscribe adds the channel and pushes the new registration to the
// server. A declined permission disables push silently; the local
// subscription state is kept so a later grant picks it up.
func (r *Registry) Subscribe(ctx context.Context, token, channel string) error {
	if channel == "" {
		return fmt.Errorf("%w: channel is required", common.ErrInvalidArgument)
	}

	dev, err := r.Ensure(ctx)
	if err != nil {
		return err
	}
	if dev.Subscribed(channel) {
		return nil
	}

	dev.Channels = append(dev.Channels, channel)
	if err := r.put(ctx, dev); err != nil {
		return err
	}
	return r.push(ctx, token, dev)
}

// Unsubscribe removes the channel and pushes the change. Unknown channels
// are a no-op.
func (r *Registry) Unsubscribe(ctx context.Context, token, channel string) error {
	dev, err := r.Ensure(ctx)
	if err != nil {
		return err
	}
	if !dev.Subscribed(channel) {
		return nil
	}

	kept := dev.Channels[:0]
	for _, c := range dev.Channels {
		if c != channel {
			kept = append(kept, c)
		}
	}
	dev.Channels = kept
	if err := r.put(ctx, dev); err != nil {
		return err
	}
	return r.push(ctx, token, dev)
}

// Channels returns the current subscriptions.
func (r *Registry) Channels(ctx context.Context) ([]string, error) {
	dev, err := r.Ensure(ctx)
	if err != nil {
		return nil, err
	}
	return dev.Channels, nil
}

func (r *Registry) push(ctx context.Context, token string, dev *models.Device) error {
	err := r.api.RegisterDevice(ctx, token, dev)
	if errors.Is(err, common.ErrPermissionDenied) {
		r.log.Warn(ctx, "push permission denied, feature stays disabled", "deviceId", dev.DeviceID)
		return nil
	}
	return err
}

func (r *Registry) get(ctx context.Context) (*models.Device, error) {
	rec, err := r.store.Get(ctx, store.NamespaceDevice, deviceRecordID)
	if err != nil {
		return nil, err
	}
	var dev models.Device
	if err := json.Unmarshal(rec.Data, &dev); err != nil {
		return nil, fmt.Errorf("decode device record: %w", err)
	}
	return &dev, nil
}

func (r *Registry) put(ctx context.Context, dev *models.Device) error {
	dev.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(dev)
	if err != nil {
		return fmt.Errorf("encode device record: %w", err)
	}
	return r.store.Put(ctx, store.NamespaceDevice, &store.Record{ID: deviceRecordID, Data: data})
}
