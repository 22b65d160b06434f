package models

import "time"

// Point is a geographic coordinate, longitude first (GeoJSON order).
type Point struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// ProviderSnapshot is the liveness read model the engine consumes.
// It is refreshed at observation time and never cached across dispatch
// attempts; the realtime layer owns the underlying data.
type ProviderSnapshot struct {
	ID           string    `json:"id"`
	Online       bool      `json:"online"`
	Capabilities []string  `json:"capabilities"`
	LastPosition Point     `json:"last_position"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasCapability reports whether the provider offers the given service category.
func (p *ProviderSnapshot) HasCapability(capability string) bool {
	for _, c := range p.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// Candidate is one nearby online provider returned by the geo index,
// with its great-circle distance from the query origin in meters.
type Candidate struct {
	ProviderID string
	DistanceM  float64
}
