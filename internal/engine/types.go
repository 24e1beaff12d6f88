package engine

// Severity is the classification outcome for one reading.
type Severity int

const (
	SeverityNormal Severity = iota + 1
	SeverityWarning
	SeverityCritical
)

// String returns the lowercase severity name.
func (s Severity) String() string {
	switch s {
	case SeverityNormal:
		return "normal"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "unspecified"
	}
}
