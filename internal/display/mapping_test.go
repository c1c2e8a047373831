package display

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var canvas = ScaleConfig{Baseline: 750, Offset: 0.2, Span: 0.5}

func TestMapToDisplay_Linear(t *testing.T) {
	// value == offset 映射到基线
	assert.InDelta(t, 750.0, MapToDisplay(0.2, canvas), 1e-9)

	// value == offset + span 映射到 0（画布顶部）
	assert.InDelta(t, 0.0, MapToDisplay(0.7, canvas), 1e-9)

	// 中点
	assert.InDelta(t, 375.0, MapToDisplay(0.45, canvas), 1e-9)
}

func TestMapToDisplay_Deterministic(t *testing.T) {
	a := MapToDisplay(0.33, canvas)
	b := MapToDisplay(0.33, canvas)
	assert.Equal(t, a, b)
}

func TestSmoother_ConvergesToTarget(t *testing.T) {
	s := NewSmoother(0.1, 750)

	var last float64
	for i := 0; i < 200; i++ {
		last = s.Next(100)
	}
	assert.InDelta(t, 100.0, last, 0.01)
}

func TestSmoother_SingleStep(t *testing.T) {
	s := NewSmoother(0.1, 750)

	got := s.Next(250)
	// 750 + (250-750)*0.1 = 700
	assert.InDelta(t, 700.0, got, 1e-9)
	assert.InDelta(t, 700.0, s.Position(), 1e-9)
}

func TestNewSmoother_InvalidAlphaFallsBack(t *testing.T) {
	s := NewSmoother(0, 10)
	got := s.Next(20)
	assert.InDelta(t, 11.0, got, 1e-9)
}
