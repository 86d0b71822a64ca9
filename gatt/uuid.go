package gatt

import (
	"strings"

	"github.com/google/uuid"
	"github.com/kellegous/poop"
)

const baseUUIDSuffix = "-0000-1000-8000-00805f9b34fb"

// toUUID converts the hex form gatt prints, which may be a 16 or 32 bit
// short UUID, into a full 128 bit UUID.
func toUUID(s string) (uuid.UUID, error) {
	s = strings.ToLower(strings.ReplaceAll(s, "-", ""))
	switch len(s) {
	case 4:
		return uuid.Parse("0000" + s + baseUUIDSuffix)
	case 8:
		return uuid.Parse(s + baseUUIDSuffix)
	case 32:
		return uuid.Parse(s)
	}
	return uuid.UUID{}, poop.Newf("invalid uuid %q", s)
}
