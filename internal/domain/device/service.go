package device

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LinkController is the subset of the link manager the registry needs for
// activation toggles. Defined here so the device package does not depend on
// the transport layer.
type LinkController interface {
	Connect(ctx context.Context, deviceID uuid.UUID) error
	Disconnect(deviceID uuid.UUID) error
	IsConnected(deviceID uuid.UUID) bool
}

type Service struct {
	devices DeviceRepository
	links   LinkController
	logger  zerolog.Logger
}

func NewService(devices DeviceRepository, links LinkController, logger zerolog.Logger) *Service {
	return &Service{
		devices: devices,
		links:   links,
		logger:  logger.With().Str("component", "device-service").Logger(),
	}
}

func (s *Service) CreateDevice(ctx context.Context, d *Device) error {
	if d.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !ValidProtocol(d.Protocol) {
		return fmt.Errorf("invalid protocol: %s", d.Protocol)
	}
	if !ValidConnectionType(d.ConnectionType) {
		return fmt.Errorf("invalid connection type: %s", d.ConnectionType)
	}
	if err := s.devices.Create(ctx, d); err != nil {
		return err
	}

	// A device created active is connected immediately. Connection failures
	// surface to the operator but do not roll back the registration.
	if d.IsActive {
		if err := s.links.Connect(ctx, d.ID); err != nil {
			s.logger.Warn().Err(err).Stringer("device_id", d.ID).Msg("device created but connect failed")
			return fmt.Errorf("device created but connect failed: %w", err)
		}
	}
	return nil
}

func (s *Service) GetDevice(ctx context.Context, id uuid.UUID) (*Device, error) {
	return s.devices.GetByID(ctx, id)
}

func (s *Service) ListDevices(ctx context.Context, limit, offset int) ([]*Device, int, error) {
	return s.devices.List(ctx, limit, offset)
}

// UpdateDevice persists changes and reconciles the live connection with the
// administrative flag: activating connects, deactivating disconnects.
func (s *Service) UpdateDevice(ctx context.Context, d *Device) error {
	if !ValidProtocol(d.Protocol) {
		return fmt.Errorf("invalid protocol: %s", d.Protocol)
	}
	if !ValidConnectionType(d.ConnectionType) {
		return fmt.Errorf("invalid connection type: %s", d.ConnectionType)
	}

	prev, err := s.devices.GetByID(ctx, d.ID)
	if err != nil {
		return err
	}

	if err := s.devices.Update(ctx, d); err != nil {
		return err
	}

	switch {
	case d.IsActive && !prev.IsActive:
		if err := s.links.Connect(ctx, d.ID); err != nil {
			return fmt.Errorf("device updated but connect failed: %w", err)
		}
	case !d.IsActive && prev.IsActive:
		if err := s.links.Disconnect(d.ID); err != nil {
			return fmt.Errorf("device updated but disconnect failed: %w", err)
		}
	}
	return nil
}

func (s *Service) DeleteDevice(ctx context.Context, id uuid.UUID) error {
	// Tear down the link first so a live socket never outlives its device.
	if err := s.links.Disconnect(id); err != nil {
		s.logger.Warn().Err(err).Stringer("device_id", id).Msg("disconnect before delete failed")
	}
	return s.devices.Delete(ctx, id)
}

func (s *Service) Connect(ctx context.Context, id uuid.UUID) error {
	return s.links.Connect(ctx, id)
}

func (s *Service) Disconnect(id uuid.UUID) error {
	return s.links.Disconnect(id)
}

func (s *Service) IsConnected(id uuid.UUID) bool {
	return s.links.IsConnected(id)
}

func (s *Service) AddMapping(ctx context.Context, deviceID uuid.UUID, deviceTestCode string, testParameterID uuid.UUID) (*TestMapping, error) {
	if deviceTestCode == "" {
		return nil, fmt.Errorf("device_test_code is required")
	}
	if testParameterID == uuid.Nil {
		return nil, fmt.Errorf("test_parameter_id is required")
	}
	if _, err := s.devices.GetByID(ctx, deviceID); err != nil {
		return nil, err
	}
	m := &TestMapping{
		DeviceID:        deviceID,
		DeviceTestCode:  deviceTestCode,
		TestParameterID: testParameterID,
	}
	if err := s.devices.AddMapping(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) RemoveMapping(ctx context.Context, mappingID uuid.UUID) error {
	return s.devices.RemoveMapping(ctx, mappingID)
}

func (s *Service) ListMappings(ctx context.Context, deviceID uuid.UUID) ([]*TestMapping, error) {
	return s.devices.ListMappings(ctx, deviceID)
}
