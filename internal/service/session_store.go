package service

import (
	"context"
	"fmt"

	"go.mau.fi/whatsmeow/store"

	"gowa-gateway/internal/helper"
)

// deviceContainer is the part of *sqlstore.Container the store needs.
type deviceContainer interface {
	GetAllDevices(ctx context.Context) ([]*store.Device, error)
	DeleteDevice(ctx context.Context, device *store.Device) error
}

// DeviceStore reads the persisted whatsmeow credentials.
type DeviceStore struct {
	container deviceContainer
}

func NewDeviceStore(container deviceContainer) *DeviceStore {
	return &DeviceStore{container: container}
}

func (d *DeviceStore) linkedDevice(ctx context.Context) (*store.Device, error) {
	devices, err := d.container.GetAllDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	for _, device := range devices {
		if device.ID != nil {
			return device, nil
		}
	}
	return nil, nil
}

func (d *DeviceStore) Exists(ctx context.Context) (bool, error) {
	device, err := d.linkedDevice(ctx)
	return device != nil, err
}

func (d *DeviceStore) PersistedNumber(ctx context.Context) (string, error) {
	device, err := d.linkedDevice(ctx)
	if err != nil || device == nil {
		return "", err
	}
	return helper.ExtractNumber(device.ID.String()), nil
}

func (d *DeviceStore) Clear(ctx context.Context) error {
	devices, err := d.container.GetAllDevices(ctx)
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}
	for _, device := range devices {
		if device.ID == nil {
			continue
		}
		if err := d.container.DeleteDevice(ctx, device); err != nil {
			return fmt.Errorf("delete device %s: %w", device.ID, err)
		}
	}
	return nil
}
