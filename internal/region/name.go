package region

import (
	"fmt"
	"regexp"
	"strconv"
)

// Ext is the file extension of Anvil region files.
const Ext = ".mca"

var namePattern = regexp.MustCompile(`^r\.(-?\d+)\.(-?\d+)\.mca$`)

// ParseName extracts region coordinates from a file name such as "r.-1.3.mca".
func ParseName(name string) (rx, rz int, ok bool) {
	m := namePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, 0, false
	}
	x, errX := strconv.Atoi(m[1])
	z, errZ := strconv.Atoi(m[2])
	if errX != nil || errZ != nil {
		return 0, 0, false
	}
	return x, z, true
}

// Name is the inverse of ParseName.
func Name(rx, rz int) string {
	return fmt.Sprintf("r.%d.%d%s", rx, rz, Ext)
}
