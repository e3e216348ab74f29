package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateWindow_SlidesOverOneHour(t *testing.T) {
	var w rateWindow
	w.observe(t0, true)
	w.observe(t0.Add(30*time.Minute), false)
	s := w.observe(t0.Add(59*time.Minute), false)
	assert.Equal(t, rateSample{Errors: 3, Critical: 1}, s)

	s = w.sample(t0.Add(61 * time.Minute))
	assert.Equal(t, rateSample{Errors: 2, Critical: 0}, s)

	s = w.sample(t0.Add(3 * time.Hour))
	assert.Equal(t, rateSample{}, s)
}

func TestAlertConfig_Crossed(t *testing.T) {
	c := AlertConfig{ErrorRatePerHour: 5, CriticalPerHour: 3}

	errRate, critRate := c.crossed(rateSample{Errors: 5, Critical: 3}, true)
	assert.False(t, errRate)
	assert.False(t, critRate)

	errRate, critRate = c.crossed(rateSample{Errors: 6, Critical: 4}, true)
	assert.True(t, errRate)
	assert.True(t, critRate)

	// A non-critical submission never fires the critical alert.
	_, critRate = c.crossed(rateSample{Errors: 7, Critical: 4}, false)
	assert.False(t, critRate)

	errRate, _ = AlertConfig{}.crossed(rateSample{Errors: 1}, false)
	assert.False(t, errRate)
}
