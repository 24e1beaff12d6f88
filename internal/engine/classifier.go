package engine

import "fmt"

// Thresholds holds the heart-rate cut-offs used for classification.
type Thresholds struct {
	Warn     float64 // HeartRate >= this -> WARNING (default 120)
	Critical float64 // HeartRate >= this -> CRITICAL (default 160)
}

// DefaultThresholds returns the stock anomaly/critical thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Warn:     120,
		Critical: 160,
	}
}

// Validate rejects thresholds where Warn > Critical. Classify never calls it;
// configuration loading does.
func (t Thresholds) Validate() error {
	if t.Warn > t.Critical {
		return fmt.Errorf("warn threshold %.1f exceeds critical threshold %.1f", t.Warn, t.Critical)
	}
	return nil
}

// Classify maps a heart rate onto a Severity.
//
// Rules (applied in order, inclusive):
//  1. heartRate >= Critical → CRITICAL
//  2. heartRate >= Warn     → WARNING
//  3. Otherwise             → NORMAL
//
// The critical check always runs first, so with Warn > Critical a value in
// [Critical, Warn) is still critical. Callers are expected to pass validated
// thresholds.
func Classify(heartRate float64, t Thresholds) Severity {
	if heartRate >= t.Critical {
		return SeverityCritical
	}
	if heartRate >= t.Warn {
		return SeverityWarning
	}
	return SeverityNormal
}
