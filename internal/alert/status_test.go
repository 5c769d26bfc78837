package alert_test

import (
	"testing"

	"alerta/internal/alert"
)

func TestInitialStatus(t *testing.T) {
	tests := []struct {
		severity alert.Severity
		want     alert.Status
	}{
		{alert.SeverityCritical, alert.StatusOpen},
		{alert.SeverityMajor, alert.StatusOpen},
		{alert.SeverityWarning, alert.StatusOpen},
		{alert.SeverityDebug, alert.StatusOpen},
		{alert.SeverityNormal, alert.StatusClosed},
	}
	for _, tt := range tests {
		if got := alert.InitialStatus(tt.severity); got != tt.want {
			t.Errorf("InitialStatus(%s): want %s, got %s", tt.severity, tt.want, got)
		}
	}
}

func TestDuplicateStatusLeavesSettledStatesAlone(t *testing.T) {
	for _, current := range []alert.Status{alert.StatusOpen, alert.StatusAck, alert.StatusClosed} {
		if _, changed := alert.DuplicateStatus(alert.SeverityCritical, current); changed {
			t.Errorf("DuplicateStatus(CRITICAL, %s): want no change", current)
		}
	}
}

func TestDuplicateStatusResetsStaleStates(t *testing.T) {
	tests := []struct {
		severity alert.Severity
		current  alert.Status
		want     alert.Status
	}{
		{alert.SeverityCritical, alert.StatusExpired, alert.StatusOpen},
		{alert.SeverityCritical, alert.StatusUnknown, alert.StatusOpen},
		{alert.SeverityCritical, "", alert.StatusOpen},
		{alert.SeverityNormal, alert.StatusExpired, alert.StatusClosed},
		{alert.SeverityNormal, "", alert.StatusClosed},
	}
	for _, tt := range tests {
		got, changed := alert.DuplicateStatus(tt.severity, tt.current)
		if !changed {
			t.Errorf("DuplicateStatus(%s, %q): want change", tt.severity, tt.current)
			continue
		}
		if got != tt.want {
			t.Errorf("DuplicateStatus(%s, %q): want %s, got %s", tt.severity, tt.current, tt.want, got)
		}
	}
}

func TestSeverityChangeStatus(t *testing.T) {
	tests := []struct {
		severity    alert.Severity
		previous    alert.Severity
		want        alert.Status
		wantChanged bool
	}{
		// DEBUG and INFORM always open.
		{alert.SeverityDebug, alert.SeverityCritical, alert.StatusOpen, true},
		{alert.SeverityInform, alert.SeverityNormal, alert.StatusOpen, true},
		// NORMAL always closes.
		{alert.SeverityNormal, alert.SeverityCritical, alert.StatusClosed, true},
		{alert.SeverityNormal, alert.SeverityWarning, alert.StatusClosed, true},
		// WARNING opens only from NORMAL.
		{alert.SeverityWarning, alert.SeverityNormal, alert.StatusOpen, true},
		{alert.SeverityWarning, alert.SeverityMinor, "", false},
		{alert.SeverityWarning, alert.SeverityCritical, "", false},
		// MINOR opens from NORMAL and WARNING.
		{alert.SeverityMinor, alert.SeverityNormal, alert.StatusOpen, true},
		{alert.SeverityMinor, alert.SeverityWarning, alert.StatusOpen, true},
		{alert.SeverityMinor, alert.SeverityMajor, "", false},
		// MAJOR opens from NORMAL, WARNING and MINOR.
		{alert.SeverityMajor, alert.SeverityNormal, alert.StatusOpen, true},
		{alert.SeverityMajor, alert.SeverityMinor, alert.StatusOpen, true},
		{alert.SeverityMajor, alert.SeverityCritical, "", false},
		// CRITICAL opens from anything below it.
		{alert.SeverityCritical, alert.SeverityNormal, alert.StatusOpen, true},
		{alert.SeverityCritical, alert.SeverityWarning, alert.StatusOpen, true},
		{alert.SeverityCritical, alert.SeverityMinor, alert.StatusOpen, true},
		{alert.SeverityCritical, alert.SeverityMajor, alert.StatusOpen, true},
		{alert.SeverityCritical, alert.SeverityDebug, "", false},
		{alert.SeverityCritical, alert.SeverityUnknown, "", false},
		// Unrecognised severities map to UNKNOWN.
		{alert.Severity("PANIC"), alert.SeverityMajor, alert.StatusUnknown, true},
		{alert.SeverityUnknown, alert.SeverityMajor, alert.StatusUnknown, true},
	}
	for _, tt := range tests {
		got, changed := alert.SeverityChangeStatus(tt.severity, tt.previous)
		if changed != tt.wantChanged {
			t.Errorf("SeverityChangeStatus(%s, %s): want changed=%v, got %v",
				tt.severity, tt.previous, tt.wantChanged, changed)
			continue
		}
		if changed && got != tt.want {
			t.Errorf("SeverityChangeStatus(%s, %s): want %s, got %s",
				tt.severity, tt.previous, tt.want, got)
		}
	}
}
