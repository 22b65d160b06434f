package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"taskhive/internal/models"
)

func TestDistanceM(t *testing.T) {
	tests := []struct {
		name  string
		a, b  models.Point
		want  float64
		delta float64
	}{
		{
			name:  "same point",
			a:     models.Point{Lon: 9.76, Lat: 4.05},
			b:     models.Point{Lon: 9.76, Lat: 4.05},
			want:  0,
			delta: 0.001,
		},
		{
			name:  "one degree of latitude",
			a:     models.Point{Lon: 0, Lat: 0},
			b:     models.Point{Lon: 0, Lat: 1},
			want:  111195,
			delta: 100,
		},
		{
			name:  "douala to yaounde",
			a:     models.Point{Lon: 9.7679, Lat: 4.0511},
			b:     models.Point{Lon: 11.5021, Lat: 3.8480},
			want:  194000,
			delta: 2000,
		},
		{
			name:  "fifty meters north",
			a:     models.Point{Lon: 9.76, Lat: 4.05},
			b:     models.Point{Lon: 9.76, Lat: 4.05045},
			want:  50,
			delta: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceM(tt.a, tt.b)
			assert.InDelta(t, tt.want, got, tt.delta)
			// distance is symmetric
			assert.InDelta(t, got, DistanceM(tt.b, tt.a), 0.001)
		})
	}
}

func TestWithinM(t *testing.T) {
	origin := models.Point{Lon: 9.76, Lat: 4.05}
	near := models.Point{Lon: 9.76, Lat: 4.050009} // about a meter away
	far := models.Point{Lon: 9.76, Lat: 4.05045}   // about fifty meters away

	assert.True(t, WithinM(origin, near, 2))
	assert.False(t, WithinM(origin, far, 2))
	assert.True(t, WithinM(origin, far, 51))
}
