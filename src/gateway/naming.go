package gateway

import (
	"fmt"
	"strconv"
	"strings"
)

// Every tenant's container name and session client id are pure functions of
// the user id, so two users can never collide and orphan detection can
// recover the owner from a container name alone.

const containerPrefix = "ib-gateway-"

// clientIDBase offsets tenant session ids away from low reserved ids.
const clientIDBase = 100

// probeClientID is the throwaway low-privilege id used only for the
// session-level readiness handshake. It is torn down immediately and never
// coexists with the same tenant's scheduler session.
const probeClientID = 9999

// ContainerName returns the deterministic container name for a user.
func ContainerName(userID uint) string {
	return fmt.Sprintf("%s%d", containerPrefix, userID)
}

// ParseUserID recovers the owning user id from a container name. The
// second return is false for names outside the naming scheme.
func ParseUserID(name string) (uint, bool) {
	if !strings.HasPrefix(name, containerPrefix) {
		return 0, false
	}
	id, err := strconv.ParseUint(strings.TrimPrefix(name, containerPrefix), 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}

// SessionClientID returns the deterministic per-tenant session id used by
// the scheduler. The fixed offset keeps ids unique across tenants; the
// scheduler additionally never holds two sessions open at once.
func SessionClientID(userID uint) int {
	return clientIDBase + int(userID)
}
