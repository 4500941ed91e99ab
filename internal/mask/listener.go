package mask

import (
	"github.com/prettymuchbryce/calltrace/internal/report"
)

// Listener masks messages, variables and exit errors before they reach
// the wrapped listener.
type Listener struct {
	delegate report.Listener
	masker   *Masker
}

// NewListener wraps delegate.
func NewListener(delegate report.Listener, m *Masker) *Listener {
	return &Listener{delegate: delegate, masker: m}
}

func (l *Listener) Reported(e report.Event) error {
	e.Message = l.masker.Mask(e.Message)
	if len(e.Variables) > 0 {
		vars := make(report.Variables, len(e.Variables))
		for k, v := range e.Variables {
			vars[l.masker.Mask(k)] = l.masker.Mask(v)
		}
		e.Variables = vars
	}
	return l.delegate.Reported(e)
}

func (l *Listener) ReportFixtureExit(err *report.FixtureError) error {
	if err == nil {
		return l.delegate.ReportFixtureExit(nil)
	}
	masked := &report.FixtureError{
		Message: l.masker.Mask(err.Message),
		Cause:   l.maskError(err.Cause),
	}
	if err.KeyValues != nil {
		masked.KeyValues = make(map[string]any, len(err.KeyValues))
		for k, v := range err.KeyValues {
			if s, ok := v.(string); ok {
				v = l.masker.Mask(s)
			}
			masked.KeyValues[k] = v
		}
	}
	return l.delegate.ReportFixtureExit(masked)
}

func (l *Listener) ReportExceptionExit(err error) error {
	return l.delegate.ReportExceptionExit(l.maskError(err))
}

func (l *Listener) ReportAssertionExit(err *report.AssertionError) error {
	if err == nil {
		return l.delegate.ReportAssertionExit(nil)
	}
	return l.delegate.ReportAssertionExit(&report.AssertionError{
		Message: l.masker.Mask(err.Message),
		Cause:   l.maskError(err.Cause),
	})
}

func (l *Listener) maskError(err error) error {
	if err == nil {
		return nil
	}
	return &maskedError{msg: l.masker.Mask(err.Error()), err: err}
}

// maskedError reports a masked message but still unwraps to the original.
type maskedError struct {
	msg string
	err error
}

func (e *maskedError) Error() string { return e.msg }
func (e *maskedError) Unwrap() error { return e.err }
