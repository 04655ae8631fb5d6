package ids

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

func ContainerID(typ string, x, y, z int) string {
	return fmt.Sprintf("%s@%d,%d,%d", typ, x, y, z)
}

func ParseContainerID(id string) (typ string, x, y, z int, ok bool) {
	parts := strings.SplitN(id, "@", 2)
	if len(parts) != 2 || parts[0] == "" {
		return "", 0, 0, 0, false
	}
	typ = parts[0]
	coord := strings.Split(parts[1], ",")
	if len(coord) != 3 {
		return "", 0, 0, 0, false
	}
	x, err1 := strconv.Atoi(coord[0])
	y, err2 := strconv.Atoi(coord[1])
	z, err3 := strconv.Atoi(coord[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return "", 0, 0, 0, false
	}
	return typ, x, y, z, true
}

// PileID names a loose pile lying in the world.
func PileID(n uint64) string {
	return fmt.Sprintf("P%06d", n)
}

func ParseUintAfterPrefix(prefix, id string) (uint64, bool) {
	if !strings.HasPrefix(id, prefix) {
		return 0, false
	}
	n, err := strconv.ParseUint(id[len(prefix):], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// SessionID returns a fresh identifier for a trade or caravan session.
func SessionID() string {
	return "S_" + uuid.NewString()
}
