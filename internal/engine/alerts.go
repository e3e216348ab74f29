package engine

import (
	"sync"
	"time"
)

// AlertConfig sets hourly thresholds above which a warning is raised.
// Zero disables the corresponding alert.
type AlertConfig struct {
	ErrorRatePerHour int
	CriticalPerHour  int
}

// rateWindow keeps submission times for the last hour.
type rateWindow struct {
	mu       sync.Mutex
	all      []time.Time
	critical []time.Time
}

// rateSample is the state of the window after one observation.
type rateSample struct {
	Errors   int
	Critical int
}

func trimBefore(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && ts[i].Before(cutoff) {
		i++
	}
	return ts[i:]
}

func (w *rateWindow) observe(now time.Time, critical bool) rateSample {
	w.mu.Lock()
	defer w.mu.Unlock()
	cutoff := now.Add(-time.Hour)
	w.all = append(trimBefore(w.all, cutoff), now)
	w.critical = trimBefore(w.critical, cutoff)
	if critical {
		w.critical = append(w.critical, now)
	}
	return rateSample{Errors: len(w.all), Critical: len(w.critical)}
}

func (w *rateWindow) sample(now time.Time) rateSample {
	w.mu.Lock()
	defer w.mu.Unlock()
	cutoff := now.Add(-time.Hour)
	w.all = trimBefore(w.all, cutoff)
	w.critical = trimBefore(w.critical, cutoff)
	return rateSample{Errors: len(w.all), Critical: len(w.critical)}
}

// crossed reports which thresholds the sample has just exceeded. Each
// alert fires once per crossing, not on every submission above it.
func (c AlertConfig) crossed(s rateSample, critical bool) (errorRate, criticalRate bool) {
	errorRate = c.ErrorRatePerHour > 0 && s.Errors == c.ErrorRatePerHour+1
	criticalRate = critical && c.CriticalPerHour > 0 && s.Critical == c.CriticalPerHour+1
	return errorRate, criticalRate
}
