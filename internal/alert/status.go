package alert

// Status is the lifecycle state of an alert. EXPIRED is assigned by an
// external reaper when expireTime lapses; the server itself never sets it.
type Status string

const (
	StatusOpen    Status = "OPEN"
	StatusAck     Status = "ACK"
	StatusClosed  Status = "CLOSED"
	StatusExpired Status = "EXPIRED"
	StatusUnknown Status = "UNKNOWN"
)

// InitialStatus returns the status assigned on first insert: NORMAL
// severity inserts as CLOSED, anything else as OPEN.
func InitialStatus(severity Severity) Status {
	if severity == SeverityNormal {
		return StatusClosed
	}
	return StatusOpen
}

// DuplicateStatus corrects a stale status when a duplicate arrives.
// Alerts already OPEN, ACK or CLOSED are left alone; any other status is
// reset from the severity. The second return reports whether a change is
// required.
func DuplicateStatus(severity Severity, current Status) (Status, bool) {
	switch current {
	case StatusOpen, StatusAck, StatusClosed:
		return current, false
	}
	if severity == SeverityNormal {
		return StatusClosed, true
	}
	return StatusOpen, true
}

// SeverityChangeStatus decides the status after a severity change.
// Escalations from the previous severity reopen the alert, NORMAL closes
// it, DEBUG and INFORM always open, and an unrecognised severity maps to
// UNKNOWN. The second return reports whether a change is required.
func SeverityChangeStatus(severity, previous Severity) (Status, bool) {
	switch severity {
	case SeverityDebug, SeverityInform:
		return StatusOpen, true
	case SeverityNormal:
		return StatusClosed, true
	case SeverityWarning:
		if previous == SeverityNormal {
			return StatusOpen, true
		}
	case SeverityMinor:
		switch previous {
		case SeverityNormal, SeverityWarning:
			return StatusOpen, true
		}
	case SeverityMajor:
		switch previous {
		case SeverityNormal, SeverityWarning, SeverityMinor:
			return StatusOpen, true
		}
	case SeverityCritical:
		switch previous {
		case SeverityNormal, SeverityWarning, SeverityMinor, SeverityMajor:
			return StatusOpen, true
		}
	default:
		return StatusUnknown, true
	}
	return "", false
}
