package sensorscan

import (
	"context"
	"encoding/base64"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/kellegous/poop"
)

// Sensor names a characteristic that carries a sensor reading as text.
type Sensor struct {
	Label          string
	Service        uuid.UUID
	Characteristic uuid.UUID
}

type Sensors struct {
	Humidity Sensor
	Battery  Sensor
	Light    Sensor
}

var (
	DefaultServiceUUID = uuid.MustParse("12345678-1234-1234-1234-123456789abc")
	HumidityUUID       = uuid.MustParse("abcdef12-1234-1234-1234-abcdef123456")
	BatteryUUID        = uuid.MustParse("abcdef13-1234-1234-1234-abcdef123456")
	LightUUID          = uuid.MustParse("abcdef14-1234-1234-1234-abcdef123456")
)

func DefaultSensors() Sensors {
	return Sensors{
		Humidity: Sensor{Label: "humidity", Service: DefaultServiceUUID, Characteristic: HumidityUUID},
		Battery:  Sensor{Label: "battery", Service: DefaultServiceUUID, Characteristic: BatteryUUID},
		Light:    Sensor{Label: "light", Service: DefaultServiceUUID, Characteristic: LightUUID},
	}
}

// DecodeValue decodes a base64 characteristic value into plain text.
func DecodeValue(value string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return "", poop.Chain(err)
	}
	return string(b), nil
}

// ParseNumbers splits a comma separated reading into numbers. Tokens that are
// not numbers become NaN.
func ParseNumbers(s string) []float64 {
	parts := strings.Split(s, ",")
	nums := make([]float64, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			v = math.NaN()
		}
		nums[i] = v
	}
	return nums
}

// Reader reads sensor characteristics and decodes them to text.
type Reader struct {
	central  Central
	discover bool
	log      *slog.Logger
}

func NewReader(central Central, opts ...Option) *Reader {
	o := buildOptions(opts)
	return &Reader{
		central:  central,
		discover: o.discoverBeforeRead,
		log:      o.logger,
	}
}

func (r *Reader) Read(ctx context.Context, id string, sensor Sensor) (string, error) {
	if r.central == nil {
		return "", poop.Chain(ErrNoClient)
	}

	if r.discover {
		r.log.Debug("discovering services and characteristics", "id", id)
		if err := r.central.DiscoverAll(ctx, id); err != nil {
			return "", poop.Chain(err)
		}
	}

	r.log.Debug("reading characteristic",
		"id", id,
		"label", sensor.Label,
		"service", sensor.Service,
		"characteristic", sensor.Characteristic)

	c, err := r.central.ReadCharacteristic(ctx, id, sensor.Service, sensor.Characteristic)
	if err != nil {
		return "", poop.Chain(err)
	}

	value, err := DecodeValue(c.Value)
	if err != nil {
		return "", poop.Chain(err)
	}

	r.log.Info("reading received", "id", id, "label", sensor.Label, "value", value)
	return value, nil
}
