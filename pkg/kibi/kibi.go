package kibi

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidByteSizeString = errors.New("Invalid byte size string")

var units = []string{"KB", "MB", "GB", "TB", "PB"}

// FormatBytes formats b with the largest binary unit that keeps the value >= 1, rounded down, eg "35 MB"
func FormatBytes(b int64) string {
	if b < 1024 {
		return fmt.Sprintf("%v bytes", b)
	}
	v := b / 1024
	unit := 0
	for v >= 1024 && unit < len(units)-1 {
		v /= 1024
		unit++
	}
	return fmt.Sprintf("%v %v", v, units[unit])
}

// ParseBytes accepts an integer with an optional binary suffix, such as "50", "50 bytes", "50 kb", "50 M", "2gb".
func ParseBytes(v string) (int64, error) {
	v = strings.TrimSpace(strings.ToLower(v))
	end := 0
	for end < len(v) && v[end] >= '0' && v[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, ErrInvalidByteSizeString
	}
	value, err := strconv.ParseInt(v[:end], 10, 64)
	if err != nil {
		return 0, err
	}
	suffix := strings.TrimSpace(v[end:])
	if suffix == "" || suffix == "bytes" {
		return value, nil
	}
	multiplier := int64(1)
	for _, unit := range units {
		multiplier *= 1024
		u := strings.ToLower(unit)
		if suffix == u || suffix == u[:1] {
			return value * multiplier, nil
		}
	}
	return 0, ErrInvalidByteSizeString
}
