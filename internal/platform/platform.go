// Package platform defines the closed set of streaming platforms audiblezenbot
// can authenticate against and the OAuth endpoints each one uses.
package platform

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ID identifies a streaming platform. The canonical form is lower case and
// comparisons are case-sensitive.
type ID string

const (
	Twitch  ID = "twitch"
	YouTube ID = "youtube"
	Trovo   ID = "trovo"
	Kick    ID = "kick"
)

// ErrUnknownPlatform is returned for identifiers outside the supported set.
var ErrUnknownPlatform = errors.New("unknown platform")

// ErrPlatformNotConfigured is returned when a platform has no client id.
var ErrPlatformNotConfigured = errors.New("platform has no client id configured")

var known = map[ID]struct{}{
	Twitch:  {},
	YouTube: {},
	Trovo:   {},
	Kick:    {},
}

// All returns every supported platform in a stable order.
func All() []ID {
	ids := make([]ID, 0, len(known))
	for id := range known {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Parse validates s as a platform identifier. It does not fold case:
// "Twitch" is rejected.
func Parse(s string) (ID, error) {
	id := ID(s)
	if _, ok := known[id]; !ok {
		return "", fmt.Errorf("%w: %q (expected one of %s)", ErrUnknownPlatform, s, joinIDs(All()))
	}
	return id, nil
}

// Valid reports whether id is a supported platform.
func (id ID) Valid() bool {
	_, ok := known[id]
	return ok
}

func (id ID) String() string {
	return string(id)
}

// EnvPrefix returns the environment variable prefix for the platform,
// e.g. "TWITCH" for Twitch.
func (id ID) EnvPrefix() string {
	return strings.ToUpper(string(id))
}

func joinIDs(ids []ID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ", ")
}
