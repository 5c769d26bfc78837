package alert

// Severity classifies the impact of an alert. The ranking drives the
// status machine: CRITICAL is the most severe, DEBUG the least, and
// NORMAL marks a cleared condition.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityMajor    Severity = "MAJOR"
	SeverityMinor    Severity = "MINOR"
	SeverityWarning  Severity = "WARNING"
	SeverityNormal   Severity = "NORMAL"
	SeverityInform   Severity = "INFORM"
	SeverityDebug    Severity = "DEBUG"
	SeverityUnknown  Severity = "UNKNOWN"
)

var severityCodes = map[Severity]int{
	SeverityCritical: 1,
	SeverityMajor:    2,
	SeverityMinor:    3,
	SeverityWarning:  4,
	SeverityNormal:   5,
	SeverityInform:   6,
	SeverityDebug:    7,
}

// Code returns the numeric severity code used on the wire. Unlisted
// severities, including UNKNOWN, report 9. The server recomputes the code
// from the severity on every path; the value supplied by a sender is
// advisory only.
func (s Severity) Code() int {
	if c, ok := severityCodes[s]; ok {
		return c
	}
	return 9
}
