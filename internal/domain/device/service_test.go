package device

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// -- Mock repository --

type mockDeviceRepo struct {
	devices  map[uuid.UUID]*Device
	mappings map[uuid.UUID]*TestMapping
}

func newMockDeviceRepo() *mockDeviceRepo {
	return &mockDeviceRepo{
		devices:  make(map[uuid.UUID]*Device),
		mappings: make(map[uuid.UUID]*TestMapping),
	}
}

func (m *mockDeviceRepo) Create(_ context.Context, d *Device) error {
	d.ID = uuid.New()
	cp := *d
	m.devices[d.ID] = &cp
	return nil
}

func (m *mockDeviceRepo) GetByID(_ context.Context, id uuid.UUID) (*Device, error) {
	d, ok := m.devices[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *mockDeviceRepo) Update(_ context.Context, d *Device) error {
	if _, ok := m.devices[d.ID]; !ok {
		return ErrNotFound
	}
	cp := *d
	m.devices[d.ID] = &cp
	return nil
}

func (m *mockDeviceRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.devices, id)
	return nil
}

func (m *mockDeviceRepo) List(_ context.Context, limit, offset int) ([]*Device, int, error) {
	var r []*Device
	for _, d := range m.devices {
		r = append(r, d)
	}
	return r, len(r), nil
}

func (m *mockDeviceRepo) ListActive(_ context.Context) ([]*Device, error) {
	var r []*Device
	for _, d := range m.devices {
		if d.IsActive {
			r = append(r, d)
		}
	}
	return r, nil
}

func (m *mockDeviceRepo) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	d, ok := m.devices[id]
	if !ok {
		return ErrNotFound
	}
	d.IsActive = active
	return nil
}

func (m *mockDeviceRepo) TouchLastConnected(_ context.Context, id uuid.UUID, at time.Time) error {
	d, ok := m.devices[id]
	if !ok {
		return ErrNotFound
	}
	d.LastConnected = &at
	return nil
}

func (m *mockDeviceRepo) AddMapping(_ context.Context, tm *TestMapping) error {
	tm.ID = uuid.New()
	cp := *tm
	m.mappings[tm.ID] = &cp
	return nil
}

func (m *mockDeviceRepo) RemoveMapping(_ context.Context, mappingID uuid.UUID) error {
	if _, ok := m.mappings[mappingID]; !ok {
		return ErrNotFound
	}
	delete(m.mappings, mappingID)
	return nil
}

func (m *mockDeviceRepo) ListMappings(_ context.Context, deviceID uuid.UUID) ([]*TestMapping, error) {
	var r []*TestMapping
	for _, tm := range m.mappings {
		if tm.DeviceID == deviceID {
			r = append(r, tm)
		}
	}
	return r, nil
}

// -- Fake link controller --

type fakeLinks struct {
	connected   map[uuid.UUID]bool
	connects    int
	disconnects int
}

func newFakeLinks() *fakeLinks {
	return &fakeLinks{connected: make(map[uuid.UUID]bool)}
}

func (f *fakeLinks) Connect(_ context.Context, id uuid.UUID) error {
	f.connects++
	f.connected[id] = true
	return nil
}

func (f *fakeLinks) Disconnect(id uuid.UUID) error {
	f.disconnects++
	delete(f.connected, id)
	return nil
}

func (f *fakeLinks) IsConnected(id uuid.UUID) bool { return f.connected[id] }

func newTestService() (*Service, *mockDeviceRepo, *fakeLinks) {
	repo := newMockDeviceRepo()
	links := newFakeLinks()
	return NewService(repo, links, zerolog.Nop()), repo, links
}

// -- Tests --

func TestCreateDevice_Validation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	cases := []struct {
		name string
		d    Device
	}{
		{"missing name", Device{Protocol: ProtocolASTM, ConnectionType: ConnectionTCP}},
		{"bad protocol", Device{Name: "a1", Protocol: "DICOM", ConnectionType: ConnectionTCP}},
		{"bad connection type", Device{Name: "a1", Protocol: ProtocolASTM, ConnectionType: "CARRIER_PIGEON"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := tc.d
			if err := svc.CreateDevice(ctx, &d); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestCreateDevice_ActiveConnectsImmediately(t *testing.T) {
	svc, _, links := newTestService()

	d := Device{Name: "cobas-501", Protocol: ProtocolASTM, ConnectionType: ConnectionTCP, IsActive: true}
	if err := svc.CreateDevice(context.Background(), &d); err != nil {
		t.Fatalf("CreateDevice() error: %v", err)
	}
	if links.connects != 1 {
		t.Errorf("expected 1 connect, got %d", links.connects)
	}
	if !links.IsConnected(d.ID) {
		t.Error("expected device to be connected")
	}
}

func TestCreateDevice_InactiveDoesNotConnect(t *testing.T) {
	svc, _, links := newTestService()

	d := Device{Name: "cobas-501", Protocol: ProtocolHL7, ConnectionType: ConnectionSerial}
	if err := svc.CreateDevice(context.Background(), &d); err != nil {
		t.Fatalf("CreateDevice() error: %v", err)
	}
	if links.connects != 0 {
		t.Errorf("expected no connects, got %d", links.connects)
	}
}

func TestUpdateDevice_ActivationToggles(t *testing.T) {
	svc, _, links := newTestService()
	ctx := context.Background()

	d := Device{Name: "au-480", Protocol: ProtocolASTM, ConnectionType: ConnectionTCP}
	if err := svc.CreateDevice(ctx, &d); err != nil {
		t.Fatalf("CreateDevice() error: %v", err)
	}

	d.IsActive = true
	if err := svc.UpdateDevice(ctx, &d); err != nil {
		t.Fatalf("UpdateDevice() error: %v", err)
	}
	if links.connects != 1 {
		t.Errorf("expected connect on activation, got %d connects", links.connects)
	}

	d.IsActive = false
	if err := svc.UpdateDevice(ctx, &d); err != nil {
		t.Fatalf("UpdateDevice() error: %v", err)
	}
	if links.disconnects != 1 {
		t.Errorf("expected disconnect on deactivation, got %d disconnects", links.disconnects)
	}

	// No toggle, no link calls.
	if err := svc.UpdateDevice(ctx, &d); err != nil {
		t.Fatalf("UpdateDevice() error: %v", err)
	}
	if links.connects != 1 || links.disconnects != 1 {
		t.Errorf("expected no extra link calls, got %d/%d", links.connects, links.disconnects)
	}
}

func TestUpdateDevice_Unknown(t *testing.T) {
	svc, _, _ := newTestService()

	d := Device{ID: uuid.New(), Name: "ghost", Protocol: ProtocolASTM, ConnectionType: ConnectionTCP}
	if err := svc.UpdateDevice(context.Background(), &d); err == nil {
		t.Error("expected error updating unknown device")
	}
}

func TestDeleteDevice_DisconnectsFirst(t *testing.T) {
	svc, repo, links := newTestService()
	ctx := context.Background()

	d := Device{Name: "bs-240", Protocol: ProtocolHL7, ConnectionType: ConnectionTCP, IsActive: true}
	if err := svc.CreateDevice(ctx, &d); err != nil {
		t.Fatalf("CreateDevice() error: %v", err)
	}
	if err := svc.DeleteDevice(ctx, d.ID); err != nil {
		t.Fatalf("DeleteDevice() error: %v", err)
	}
	if links.disconnects != 1 {
		t.Errorf("expected disconnect before delete, got %d", links.disconnects)
	}
	if _, err := repo.GetByID(ctx, d.ID); err == nil {
		t.Error("expected device to be deleted")
	}
}

func TestAddMapping(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	d := Device{Name: "dxh-500", Protocol: ProtocolASTM, ConnectionType: ConnectionSerial}
	if err := svc.CreateDevice(ctx, &d); err != nil {
		t.Fatalf("CreateDevice() error: %v", err)
	}

	paramID := uuid.New()
	m, err := svc.AddMapping(ctx, d.ID, "GLU", paramID)
	if err != nil {
		t.Fatalf("AddMapping() error: %v", err)
	}
	if m.TestParameterID != paramID || m.DeviceTestCode != "GLU" {
		t.Errorf("unexpected mapping: %+v", m)
	}

	if _, err := svc.AddMapping(ctx, d.ID, "", paramID); err == nil {
		t.Error("expected error for empty test code")
	}
	if _, err := svc.AddMapping(ctx, d.ID, "GLU", uuid.Nil); err == nil {
		t.Error("expected error for nil parameter id")
	}
	if _, err := svc.AddMapping(ctx, uuid.New(), "GLU", paramID); err == nil {
		t.Error("expected error for unknown device")
	}
}

func TestEffectiveBaudRate(t *testing.T) {
	d := Device{}
	if got := d.EffectiveBaudRate(); got != DefaultBaudRate {
		t.Errorf("expected default %d, got %d", DefaultBaudRate, got)
	}
	rate := 115200
	d.BaudRate = &rate
	if got := d.EffectiveBaudRate(); got != 115200 {
		t.Errorf("expected 115200, got %d", got)
	}
}
