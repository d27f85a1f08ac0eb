package chains

import (
	"strconv"
	"strings"

	"faktoro.io/faktoro-relay/pkg/errors"
)

// NormalizeChainID turns the mixed chain id representations seen on the wire
// (decimal strings, 0x-prefixed hex strings, plain integers) into an int.
func NormalizeChainID(value interface{}) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		// JSON numbers decode as float64.
		return int(v), nil
	case string:
		return NormalizeChainIDString(v)
	default:
		return 0, errors.Wrapf(errors.ErrInvalidChainID, "unsupported chain id type %T", value)
	}
}

func NormalizeChainIDString(value string) (int, error) {
	trimmed := strings.TrimSpace(value)
	base := 10
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		trimmed = trimmed[2:]
		base = 16
	}
	parsed, err := strconv.ParseInt(trimmed, base, 64)
	if err != nil {
		return 0, errors.Wrapf(errors.ErrInvalidChainID, "parse %q", value)
	}
	return int(parsed), nil
}

// ShortenAddress renders an address as head + "..." + tail for display.
// Inputs too short to shorten are returned unchanged.
func ShortenAddress(address string, headLength int) string {
	tailLength := headLength - 2
	if headLength <= 2 || len(address) <= headLength+tailLength {
		return address
	}
	return address[:headLength] + "..." + address[len(address)-tailLength:]
}
