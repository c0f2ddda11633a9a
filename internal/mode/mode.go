package mode

import "fmt"

// ID identifies a flight mode on the host autopilot.
//
// The numbering follows the common multirotor convention so that configs and
// telemetry remain directly comparable with ground-station output.
type ID int16

// Unset marks "no mode recorded". Valid mode ids are >= 0.
const Unset ID = -1

const (
	Stabilize   ID = 0
	AltHold     ID = 2
	Auto        ID = 3
	Guided      ID = 4
	Loiter      ID = 5
	RTL         ID = 6
	Land        ID = 9
	PosHold     ID = 16
	GuidedNoGPS ID = 20
)

var names = map[ID]string{
	Unset:       "unset",
	Stabilize:   "stabilize",
	AltHold:     "althold",
	Auto:        "auto",
	Guided:      "guided",
	Loiter:      "loiter",
	RTL:         "rtl",
	Land:        "land",
	PosHold:     "poshold",
	GuidedNoGPS: "guided_nogps",
}

func (id ID) String() string {
	if n, ok := names[id]; ok {
		return n
	}
	return fmt.Sprintf("mode(%d)", int16(id))
}

// Parse maps a config-facing mode name back to its ID.
func Parse(name string) (ID, error) {
	for id, n := range names {
		if n == name {
			return id, nil
		}
	}
	return Unset, fmt.Errorf("unknown flight mode %q", name)
}

// Set is an allow-list of flight modes.
type Set map[ID]struct{}

func NewSet(ids ...ID) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s Set) Contains(id ID) bool {
	_, ok := s[id]
	return ok
}

// IDs returns the members in no particular order.
func (s Set) IDs() []ID {
	out := make([]ID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	return out
}

// DefaultProtected is the allow-list of pilot-flown modes from which
// dead-reckoning may engage. Autonomous modes (auto, guided, rtl, land) are
// excluded: they already have their own failsafe handling.
func DefaultProtected() Set {
	return NewSet(Stabilize, AltHold, Loiter, PosHold)
}
