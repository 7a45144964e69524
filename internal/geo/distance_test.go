package geo

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDistance_SamePoint(t *testing.T) {
	p := Coordinate{Latitude: -6.2088, Longitude: 106.8456}
	assert.Equal(t, 0.0, Distance(p, p))
}

func TestDistance_Symmetric(t *testing.T) {
	pairs := []struct {
		a, b Coordinate
	}{
		{Coordinate{40.7128, -74.0060}, Coordinate{34.0522, -118.2437}},
		{Coordinate{-6.2088, 106.8456}, Coordinate{-6.2100, 106.8456}},
		{Coordinate{0, 0}, Coordinate{0, 179.9999}},
		{Coordinate{89.9, 10}, Coordinate{-89.9, -170}},
		{Coordinate{51.5007, -0.1246}, Coordinate{51.5008, -0.1247}},
	}

	for _, p := range pairs {
		ab := Distance(p.a, p.b)
		ba := Distance(p.b, p.a)
		assert.InDelta(t, ab, ba, 1e-6)
		assert.GreaterOrEqual(t, ab, 0.0)
		assert.False(t, math.IsNaN(ab))
	}
}

func TestDistance_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Coordinate
		expected float64
		delta    float64
	}{
		{
			name:     "one degree of latitude",
			a:        Coordinate{0, 0},
			b:        Coordinate{1, 0},
			expected: 111194.9,
			delta:    1,
		},
		{
			name:     "short hop",
			a:        Coordinate{-6.2088, 106.8456},
			b:        Coordinate{-6.2100, 106.8456},
			expected: 133.4,
			delta:    1,
		},
		{
			name:     "new york to los angeles",
			a:        Coordinate{40.7128, -74.0060},
			b:        Coordinate{34.0522, -118.2437},
			expected: 3935746,
			delta:    5000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Distance(tt.a, tt.b), tt.delta)
		})
	}
}

func TestSpeed(t *testing.T) {
	assert.InDelta(t, 10.0, Speed(20, 2*time.Second), 1e-9)
	assert.Equal(t, 0.0, Speed(20, 0))
	assert.Equal(t, 0.0, Speed(20, -time.Second))
}

func TestUnitConversions(t *testing.T) {
	assert.InDelta(t, 6.7056, MPHToMPS(15), 1e-4)
	assert.InDelta(t, 60.96, FeetToMeters(200), 1e-9)
	assert.InDelta(t, 15.24, FeetToMeters(50), 1e-9)
}

func TestCoordinate_Valid(t *testing.T) {
	tests := []struct {
		name string
		c    Coordinate
		want bool
	}{
		{"origin", Coordinate{0, 0}, true},
		{"lat too low", Coordinate{-91, 0}, false},
		{"lat too high", Coordinate{91, 0}, false},
		{"lon too low", Coordinate{0, -181}, false},
		{"lon too high", Coordinate{0, 181}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.c.Valid())
		})
	}
}
