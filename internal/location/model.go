package location

import "fmt"

// Horizon is a delta lookback window in hours
type Horizon int

// HorizonCount is the number of tracked delta horizons
const HorizonCount = 5

// Horizons lists the delta lookback windows, shortest first.
// CurrentLocation.Deltas is indexed in the same order.
var Horizons = [HorizonCount]Horizon{1, 3, 6, 12, 24}

// Column returns the current_locations column holding this horizon's delta
func (h Horizon) Column() string {
	return fmt.Sprintf("delta_%dh", int(h))
}

// Millis returns the horizon length in epoch milliseconds
func (h Horizon) Millis() int64 {
	return int64(h) * 60 * 60 * 1000
}

// Measurement is one country as reported by the upstream feed
type Measurement struct {
	Name          string
	CountryCode   string
	ProviderCount int64
	Stable        bool
	StrongPrivacy bool
}

// Snapshot is an immutable, timestamped measurement row.
// At most one exists per country per TakenAt.
type Snapshot struct {
	TakenAt       int64 // epoch ms
	Country       string
	CountryCode   string
	ProviderCount int64
	Stable        bool
	StrongPrivacy bool
}

// CurrentLocation is the materialized latest state of one country
type CurrentLocation struct {
	Country       string
	CountryCode   string
	ProviderCount int64
	Stable        bool
	StrongPrivacy bool
	Deltas        [HorizonCount]*int64 // nil when no snapshot matched within tolerance
	LastUpdated   int64                // epoch ms
}

// Direction of a delta
type Direction string

const (
	DirectionUp      Direction = "up"
	DirectionDown    Direction = "down"
	DirectionNeutral Direction = "neutral"
)

// Delta is the API representation of a change over one horizon.
// Every field is null when no historical snapshot exists.
type Delta struct {
	Count     *int64     `json:"count"`
	Percent   *float64   `json:"percent"`
	Direction *Direction `json:"direction"`
	PrevCount *int64     `json:"prev_count"`
}

// LocationView is the history endpoint payload for one country
type LocationView struct {
	Name          string `json:"name"`
	CountryCode   string `json:"country_code"`
	ProviderCount int64  `json:"provider_count"`
	Stable        bool   `json:"stable"`
	StrongPrivacy bool   `json:"strong_privacy"`
	Delta1h       Delta  `json:"delta_1h"`
	Delta3h       Delta  `json:"delta_3h"`
	Delta6h       Delta  `json:"delta_6h"`
	Delta12h      Delta  `json:"delta_12h"`
	Delta24h      Delta  `json:"delta_24h"`
	LastUpdated   int64  `json:"last_updated"`
}
