package location

import "sort"

// BuildSnapshot merges the tracked country set with the fetched measurements.
// Fetched countries keep their real values; tracked countries missing from
// the fetch are zero-filled so they decay to zero instead of disappearing.
func BuildSnapshot(takenAt int64, tracked []string, measurements []Measurement) []Snapshot {
	fetched := make(map[string]Measurement, len(measurements))
	for _, m := range measurements {
		fetched[m.Name] = m
	}

	countries := make(map[string]struct{}, len(tracked)+len(fetched))
	for _, c := range tracked {
		countries[c] = struct{}{}
	}
	for name := range fetched {
		countries[name] = struct{}{}
	}

	rows := make([]Snapshot, 0, len(countries))
	for country := range countries {
		row := Snapshot{TakenAt: takenAt, Country: country}
		if m, ok := fetched[country]; ok {
			row.CountryCode = m.CountryCode
			row.ProviderCount = m.ProviderCount
			row.Stable = m.Stable
			row.StrongPrivacy = m.StrongPrivacy
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Country < rows[j].Country })
	return rows
}

// ZeroFill returns an explicit "everything is down" measurement set
func ZeroFill(tracked []string) []Measurement {
	out := make([]Measurement, 0, len(tracked))
	for _, country := range tracked {
		out = append(out, Measurement{Name: country})
	}
	return out
}
