package realtime

// MessageLocationsUpdated is pushed after every completed location cycle
const MessageLocationsUpdated = "locations_updated"

// LocationsUpdated tells dashboards to refetch /api/locations/history
// ⭐ SSOT: websocket payload shape
type LocationsUpdated struct {
	Type        string `json:"type"`
	Timestamp   int64  `json:"timestamp"` // snapshot epoch ms
	Countries   int    `json:"countries"`
	FetchFailed bool   `json:"fetch_failed"`
}
