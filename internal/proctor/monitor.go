// Package proctor implements the violation counter that supervises an active
// session. It is not a state machine of named states: every environment
// signal is one violation, counted while the session runs, with escalation to
// forced submission once a configured ceiling is reached. The signal source
// (browser visibility, fullscreen, focus APIs) lives on the client; the
// monitor only consumes the typed signals delivered to it, which keeps it
// runtime-agnostic and unit-testable by synthetic injection.
package proctor

// Signal identifies one observed environment event.
type Signal string

const (
	// SignalVisibilityHidden fires when the document becomes hidden
	// (tab or application switch).
	SignalVisibilityHidden Signal = "visibility_hidden"
	// SignalFullscreenExited fires when the runtime loses exclusive
	// fullscreen presentation.
	SignalFullscreenExited Signal = "fullscreen_exited"
	// SignalFocusLost fires when the window loses input focus.
	SignalFocusLost Signal = "focus_lost"

	// SignalCopyAttempt, SignalPasteAttempt and SignalContextMenu report
	// suppressed clipboard/context-menu actions. Deterrence only: recorded
	// for the audit trail, never counted as violations.
	SignalCopyAttempt  Signal = "copy_attempt"
	SignalPasteAttempt Signal = "paste_attempt"
	SignalContextMenu  Signal = "context_menu"
)

// Outcome is the monitor's verdict for one signal.
type Outcome int

const (
	// OutcomeIgnored: unknown signal, or any signal arriving after the
	// session left the active state.
	OutcomeIgnored Outcome = iota
	// OutcomeWarn: violation counted; session blocks on a warning that the
	// student must acknowledge by re-entering supervised mode.
	OutcomeWarn
	// OutcomeEscalate: violation counted and the ceiling reached; the
	// session must finalize immediately, no warning shown.
	OutcomeEscalate
	// OutcomeDeterrence: suppressed clipboard/context-menu action, recorded
	// for the audit trail without touching the count.
	OutcomeDeterrence
)

// IsViolation reports whether the signal counts against the ceiling.
func (s Signal) IsViolation() bool {
	switch s {
	case SignalVisibilityHidden, SignalFullscreenExited, SignalFocusLost:
		return true
	}
	return false
}

// IsDeterrence reports whether the signal is audit-only.
func (s Signal) IsDeterrence() bool {
	switch s {
	case SignalCopyAttempt, SignalPasteAttempt, SignalContextMenu:
		return true
	}
	return false
}

// Monitor counts violations for one session. A ceiling of 0 disables
// escalation entirely (violations are still counted and warned). Monitor is
// not safe for concurrent use; the owning session controller serializes all
// access.
type Monitor struct {
	ceiling int
	count   int
}

// NewMonitor creates a monitor with the exam's configured violation ceiling.
func NewMonitor(ceiling int) *Monitor {
	return &Monitor{ceiling: ceiling}
}

// Record applies one signal and returns the verdict. The count is
// monotonically non-decreasing; deterrence signals leave it untouched.
func (m *Monitor) Record(sig Signal) Outcome {
	if sig.IsDeterrence() {
		return OutcomeDeterrence
	}
	if !sig.IsViolation() {
		return OutcomeIgnored
	}

	m.count++

	if m.ceiling > 0 && m.count >= m.ceiling {
		return OutcomeEscalate
	}
	return OutcomeWarn
}

// Count returns the violations recorded so far.
func (m *Monitor) Count() int {
	return m.count
}

// Restore seeds the count from a session snapshot.
func (m *Monitor) Restore(count int) {
	if count > m.count {
		m.count = count
	}
}
