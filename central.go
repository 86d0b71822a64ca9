package sensorscan

import (
	"context"
	"errors"
	"iter"

	"github.com/google/uuid"
)

var (
	ErrNoClient               = errors.New("ble client not initialized")
	ErrScanInProgress         = errors.New("scan already in progress")
	ErrNotConnected           = errors.New("peripheral not connected")
	ErrPeripheralUnknown      = errors.New("peripheral not discovered")
	ErrCharacteristicNotFound = errors.New("characteristic not found")
)

// Characteristic is the result of a characteristic read. Value carries the
// payload as standard base64 text.
type Characteristic struct {
	PeripheralID string
	Service      uuid.UUID
	UUID         uuid.UUID
	Value        string
}

// Central is the BLE client a Session drives. Implementations live in the
// bluetooth and gatt packages.
type Central interface {
	// Discover scans for advertising peripherals with no service filter until
	// ctx is done or the consumer stops iterating. A non-nil error is a single
	// failed discovery event and does not end the stream.
	Discover(ctx context.Context) iter.Seq2[*Peripheral, error]

	IsConnected(ctx context.Context, id string) (bool, error)

	Connect(ctx context.Context, id string) (*Peripheral, error)

	// DiscoverAll discovers every service and characteristic of a connected
	// peripheral. It must complete before characteristics can be read.
	DiscoverAll(ctx context.Context, id string) error

	ReadCharacteristic(
		ctx context.Context,
		id string,
		service, characteristic uuid.UUID,
	) (*Characteristic, error)

	Disconnect(id string) error

	Close() error
}
