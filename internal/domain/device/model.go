package device

import (
	"time"

	"github.com/google/uuid"
)

// Protocol is the wire protocol a device speaks.
type Protocol string

const (
	ProtocolASTM   Protocol = "ASTM"
	ProtocolHL7    Protocol = "HL7"
	ProtocolCustom Protocol = "CUSTOM"
)

// ConnectionType is the transport used to reach a device.
type ConnectionType string

const (
	ConnectionTCP    ConnectionType = "TCP_IP"
	ConnectionSerial ConnectionType = "SERIAL"
	ConnectionFile   ConnectionType = "FILE"
)

// DefaultBaudRate applies when a serial device has no configured baud rate.
const DefaultBaudRate = 9600

// Device maps to the device table: one configured laboratory analyzer.
type Device struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	Name           string         `db:"name" json:"name"`
	Manufacturer   *string        `db:"manufacturer" json:"manufacturer,omitempty"`
	Model          *string        `db:"model" json:"model,omitempty"`
	SerialNumber   *string        `db:"serial_number" json:"serial_number,omitempty"`
	Protocol       Protocol       `db:"protocol" json:"protocol"`
	ConnectionType ConnectionType `db:"connection_type" json:"connection_type"`
	Host           *string        `db:"host" json:"host,omitempty"`
	Port           *int           `db:"port" json:"port,omitempty"`
	SerialPort     *string        `db:"serial_port" json:"serial_port,omitempty"`
	BaudRate       *int           `db:"baud_rate" json:"baud_rate,omitempty"`
	IsActive       bool           `db:"is_active" json:"is_active"`
	LastConnected  *time.Time     `db:"last_connected" json:"last_connected,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// EffectiveBaudRate returns the configured baud rate or the default.
func (d *Device) EffectiveBaudRate() int {
	if d.BaudRate != nil && *d.BaudRate > 0 {
		return *d.BaudRate
	}
	return DefaultBaudRate
}

// TestMapping associates a device-native test code with an internal test
// parameter. Unique per (device, device test code); read-only to the
// reconciler.
type TestMapping struct {
	ID              uuid.UUID `db:"id" json:"id"`
	DeviceID        uuid.UUID `db:"device_id" json:"device_id"`
	DeviceTestCode  string    `db:"device_test_code" json:"device_test_code"`
	TestParameterID uuid.UUID `db:"test_parameter_id" json:"test_parameter_id"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// ValidProtocol reports whether p is a known protocol value.
func ValidProtocol(p Protocol) bool {
	switch p {
	case ProtocolASTM, ProtocolHL7, ProtocolCustom:
		return true
	}
	return false
}

// ValidConnectionType reports whether t is a known connection type.
func ValidConnectionType(t ConnectionType) bool {
	switch t {
	case ConnectionTCP, ConnectionSerial, ConnectionFile:
		return true
	}
	return false
}
