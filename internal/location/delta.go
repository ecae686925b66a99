package location

import "math"

// CalculateDelta returns current - past, or nil when past is unknown
func CalculateDelta(current int64, past *int64) *int64 {
	if past == nil {
		return nil
	}
	d := current - *past
	return &d
}

// FormatDelta builds the API delta object. Percent is rounded to one
// decimal and reported as 0 when the previous count is 0.
func FormatDelta(current int64, past *int64) Delta {
	if past == nil {
		return Delta{}
	}

	count := current - *past

	percent := 0.0
	if *past > 0 {
		percent = roundTenth(float64(count) / float64(*past) * 100)
	}

	direction := DirectionNeutral
	switch {
	case count > 0:
		direction = DirectionUp
	case count < 0:
		direction = DirectionDown
	}

	prev := *past
	return Delta{
		Count:     &count,
		Percent:   &percent,
		Direction: &direction,
		PrevCount: &prev,
	}
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}

// NearestWithin picks the snapshot closest to target among those no further
// than tolerance ms away. Ties go to the earlier snapshot.
func NearestWithin(snapshots []Snapshot, target, tolerance int64) (Snapshot, bool) {
	var (
		best     Snapshot
		bestDist int64 = -1
	)

	for _, s := range snapshots {
		dist := s.TakenAt - target
		if dist < 0 {
			dist = -dist
		}
		if dist > tolerance {
			continue
		}
		if bestDist < 0 || dist < bestDist || (dist == bestDist && s.TakenAt < best.TakenAt) {
			best, bestDist = s, dist
		}
	}

	return best, bestDist >= 0
}

// View renders a current-state row for the API, rebuilding the previous
// count of each horizon from the stored delta
func (c CurrentLocation) View() LocationView {
	var deltas [HorizonCount]Delta
	for i, d := range c.Deltas {
		var past *int64
		if d != nil {
			p := c.ProviderCount - *d
			past = &p
		}
		deltas[i] = FormatDelta(c.ProviderCount, past)
	}

	return LocationView{
		Name:          c.Country,
		CountryCode:   c.CountryCode,
		ProviderCount: c.ProviderCount,
		Stable:        c.Stable,
		StrongPrivacy: c.StrongPrivacy,
		Delta1h:       deltas[0],
		Delta3h:       deltas[1],
		Delta6h:       deltas[2],
		Delta12h:      deltas[3],
		Delta24h:      deltas[4],
		LastUpdated:   c.LastUpdated,
	}
}
