// Package ble carries the Wave packet engine over Bluetooth Low Energy.
// It connects to a ring whose address is already known, relays the API
// characteristic's notifications into an engine.Engine and owns the
// reconnect policy.
package ble

import "context"

// Wave BLE UUIDs
const (
	ServiceUUID = "65e9296c-8dfb-11ea-bc55-0242ac130003"
	APICharUUID = "65e92bb1-8dfb-11ea-bc55-0242ac130003"
)

// Characteristic represents a BLE GATT characteristic.
type Characteristic interface {
	// Write sends data to the characteristic.
	Write(data []byte) error
	// Subscribe registers a callback for notifications on this characteristic.
	Subscribe(callback func(data []byte)) error
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// DiscoverCharacteristic finds a characteristic by UUID within a service.
	DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error)
	// Disconnect terminates the connection.
	Disconnect() error
	// OnDisconnect registers a callback invoked when the connection drops.
	OnDisconnect(callback func())
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Connect establishes a connection to the device at address.
	Connect(ctx context.Context, address string) (Connection, error)
}
