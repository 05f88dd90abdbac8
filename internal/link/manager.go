// Package link maintains the live connections to laboratory analyzers and
// forwards everything they send, unparsed, into the ingestion queue.
package link

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.bug.st/serial"

	"github.com/halilibrahimsaltas/HIS/internal/domain/device"
)

var (
	// ErrMissingConfig is returned when a device lacks the connection
	// parameters its connection type requires.
	ErrMissingConfig = errors.New("missing connection configuration")

	// ErrConnectTimeout is returned when a TCP connect attempt does not
	// complete within the configured window.
	ErrConnectTimeout = errors.New("connect timed out")
)

// Sink receives raw inbound messages. The ingestion queue implements it.
type Sink interface {
	Enqueue(ctx context.Context, deviceID uuid.UUID, rawMessage string) error
}

// Registry is the slice of the device registry the link layer touches.
type Registry interface {
	GetByID(ctx context.Context, id uuid.UUID) (*device.Device, error)
	ListActive(ctx context.Context) ([]*device.Device, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	TouchLastConnected(ctx context.Context, id uuid.UUID, at time.Time) error
}

// State is the lifecycle state of one device link.
type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
	StateFailed       State = "FAILED"
)

// deviceLink is one slot in the ownership table. A CONNECTING or FAILED
// link carries no live conn.
type deviceLink struct {
	state State
	c     *conn
}

// Manager owns at most one link per device, tracked through an explicit
// state machine. The ownership table is guarded by a mutex; everything
// else runs on per-connection goroutines so one stalled analyzer never
// blocks another.
type Manager struct {
	devices Registry
	sink    Sink
	logger  zerolog.Logger

	connectTimeout time.Duration

	mu    sync.Mutex
	links map[uuid.UUID]*deviceLink
}

func NewManager(devices Registry, sink Sink, connectTimeout time.Duration, logger zerolog.Logger) *Manager {
	return &Manager{
		devices:        devices,
		sink:           sink,
		logger:         logger.With().Str("component", "link-manager").Logger(),
		connectTimeout: connectTimeout,
		links:          make(map[uuid.UUID]*deviceLink),
	}
}

// Start connects every active device. Individual failures are logged and
// skipped so one misconfigured analyzer cannot hold up boot.
func (m *Manager) Start(ctx context.Context) {
	devices, err := m.devices.ListActive(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("failed to list active devices")
		return
	}
	for _, d := range devices {
		if err := m.Connect(ctx, d.ID); err != nil {
			m.logger.Warn().Err(err).Stringer("device_id", d.ID).Str("name", d.Name).Msg("startup connect failed")
		}
	}
}

// Stop tears down every live connection.
func (m *Manager) Stop() {
	m.mu.Lock()
	conns := make(map[uuid.UUID]*conn, len(m.links))
	for id, l := range m.links {
		if l.c != nil {
			conns[id] = l.c
		}
		delete(m.links, id)
	}
	m.mu.Unlock()

	for id, c := range conns {
		c.close()
		m.logger.Info().Stringer("device_id", id).Msg("link closed")
	}
}

func (m *Manager) Connect(ctx context.Context, deviceID uuid.UUID) error {
	d, err := m.devices.GetByID(ctx, deviceID)
	if err != nil {
		return err
	}

	// Reserve the slot as CONNECTING so a concurrent Connect for the same
	// device cannot dial a second link.
	m.mu.Lock()
	if cur, ok := m.links[deviceID]; ok && cur.state != StateFailed {
		m.mu.Unlock()
		m.logger.Warn().Stringer("device_id", deviceID).Msg("device already connected")
		return nil
	}
	l := &deviceLink{state: StateConnecting}
	m.links[deviceID] = l
	m.mu.Unlock()

	var c *conn
	switch d.ConnectionType {
	case device.ConnectionTCP:
		c, err = m.dialTCP(d)
	case device.ConnectionSerial:
		c, err = m.openSerial(d)
	case device.ConnectionFile:
		// Accepted as configuration but produces no live connection.
		m.release(deviceID, l)
		m.logger.Info().Stringer("device_id", deviceID).Msg("FILE connection type is a no-op")
		return nil
	default:
		m.release(deviceID, l)
		return fmt.Errorf("%w: unknown connection type %s", ErrMissingConfig, d.ConnectionType)
	}
	if err != nil {
		m.mu.Lock()
		if m.links[deviceID] == l {
			l.state = StateFailed
		}
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	if m.links[deviceID] != l {
		// Disconnected while dialing; drop the fresh link.
		m.mu.Unlock()
		c.close()
		return nil
	}
	l.state = StateConnected
	l.c = c
	m.mu.Unlock()

	if err := m.devices.TouchLastConnected(ctx, deviceID, time.Now()); err != nil {
		m.logger.Warn().Err(err).Stringer("device_id", deviceID).Msg("failed to stamp last_connected")
	}
	m.logger.Info().
		Stringer("device_id", deviceID).
		Str("name", d.Name).
		Str("connection_type", string(d.ConnectionType)).
		Msg("device connected")

	go m.readLoop(deviceID, c)
	return nil
}

func (m *Manager) dialTCP(d *device.Device) (*conn, error) {
	if d.Host == nil || *d.Host == "" || d.Port == nil {
		return nil, fmt.Errorf("%w: TCP device %s needs host and port", ErrMissingConfig, d.Name)
	}
	addr := net.JoinHostPort(*d.Host, strconv.Itoa(*d.Port))
	nc, err := net.DialTimeout("tcp", addr, m.connectTimeout)
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return nil, fmt.Errorf("%w: %s", ErrConnectTimeout, addr)
		}
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return newTCPConn(nc), nil
}

func (m *Manager) openSerial(d *device.Device) (*conn, error) {
	if d.SerialPort == nil || *d.SerialPort == "" {
		return nil, fmt.Errorf("%w: serial device %s needs a port path", ErrMissingConfig, d.Name)
	}
	mode := &serial.Mode{
		BaudRate: d.EffectiveBaudRate(),
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(*d.SerialPort, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", *d.SerialPort, err)
	}
	return newSerialConn(port), nil
}

// release drops a CONNECTING slot that never became a live link, unless
// something else already replaced it.
func (m *Manager) release(deviceID uuid.UUID, l *deviceLink) {
	m.mu.Lock()
	if m.links[deviceID] == l {
		delete(m.links, deviceID)
	}
	m.mu.Unlock()
}

// Disconnect is idempotent and returns the device to DISCONNECTED.
func (m *Manager) Disconnect(deviceID uuid.UUID) error {
	m.mu.Lock()
	l, ok := m.links[deviceID]
	if ok {
		delete(m.links, deviceID)
	}
	m.mu.Unlock()

	if ok && l.c != nil {
		l.c.close()
		m.logger.Info().Stringer("device_id", deviceID).Msg("device disconnected")
	}
	return nil
}

func (m *Manager) IsConnected(deviceID uuid.UUID) bool {
	return m.State(deviceID) == StateConnected
}

// State reports a device's link state. Devices with no tracked link are
// DISCONNECTED.
func (m *Manager) State(deviceID uuid.UUID) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.links[deviceID]; ok {
		return l.state
	}
	return StateDisconnected
}

// readLoop pumps inbound data into the sink until the link dies.
func (m *Manager) readLoop(deviceID uuid.UUID, c *conn) {
	err := c.pump(func(msg string) {
		if err := m.sink.Enqueue(context.Background(), deviceID, msg); err != nil {
			m.logger.Error().Err(err).Stringer("device_id", deviceID).Msg("enqueue failed, message dropped")
		}
	})
	m.handleLinkDown(deviceID, c, err)
}

// handleLinkDown runs when a link errors or the remote closes it. A
// deliberate Disconnect already removed the link from the table, so the
// FAILED transition and deactivation below only fire for unexpected
// drops.
func (m *Manager) handleLinkDown(deviceID uuid.UUID, c *conn, err error) {
	m.mu.Lock()
	l, ok := m.links[deviceID]
	if !ok || l.c != c {
		m.mu.Unlock()
		return
	}
	l.state = StateFailed
	l.c = nil
	m.mu.Unlock()

	c.close()
	m.logger.Warn().Err(err).Stringer("device_id", deviceID).Msg("link lost, marking device inactive")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.devices.SetActive(ctx, deviceID, false); err != nil {
		m.logger.Error().Err(err).Stringer("device_id", deviceID).Msg("failed to deactivate device")
	}
}
