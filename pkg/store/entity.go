package store

import "time"

// EntityKind identifies what a span of user text refers to
type EntityKind string

const (
	KindContainer    EntityKind = "container_number"
	KindBL           EntityKind = "bl_number"
	KindCarrier      EntityKind = "carrier_name"
	KindRelativeTime EntityKind = "relative_time"
	KindMalformed    EntityKind = "malformed_identifier"
	KindPort         EntityKind = "port"
	KindDate         EntityKind = "date"
)

// Carrier attribution sources
const (
	CarrierFromPrefix = "prefix"
	CarrierFromStated = "stated"
)

// Roles for ports and dates
const (
	RolePOL      = "pol"
	RolePOD      = "pod"
	RoleDispatch = "dispatch"
)

// Entity is one recognized domain identifier inside a message
type Entity struct {
	Kind  EntityKind `json:"kind"`
	Raw   string     `json:"raw"`
	Value string     `json:"value"` // Normalized (uppercase id, canonical carrier, LOCODE)
	Start int        `json:"start"`
	End   int        `json:"end"`

	// Identifiers (container, BL, malformed)
	Carrier            string `json:"carrier,omitempty"`
	CarrierSource      string `json:"carrier_source,omitempty"`
	ConflictingCarrier string `json:"conflicting_carrier,omitempty"`

	// Carrier names
	Resolved bool `json:"resolved,omitempty"`

	// Relative time
	ElapsedHours float64 `json:"elapsed_hours,omitempty"`
	ElapsedKnown bool    `json:"elapsed_known,omitempty"`

	// Dates and ports
	Date time.Time `json:"date,omitempty"`
	Role string    `json:"role,omitempty"`
}

// IsIdentifier reports whether the entity names a tracked object (or a failed attempt at one)
func (e Entity) IsIdentifier() bool {
	return e.Kind == KindContainer || e.Kind == KindBL || e.Kind == KindMalformed
}
