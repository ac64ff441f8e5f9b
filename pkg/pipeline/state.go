package pipeline

import (
	"fmt"

	"voiceboost/pkg/models"
)

// ProgressFunc observes state and progress changes of a run.
type ProgressFunc func(state models.State, p models.Progress)

var successor = map[models.State]models.State{
	models.StateIdle:        models.StateSizeChecked,
	models.StateSizeChecked: models.StateToolChecked,
	models.StateToolChecked: models.StateExtracted,
	models.StateExtracted:   models.StateEnhanced,
	models.StateEnhanced:    models.StateRemuxed,
	models.StateRemuxed:     models.StatePresented,
}

// machine tracks one run. States only move to their successor or to
// Aborted, and the reported percentage never goes down.
type machine struct {
	state    models.State
	progress models.Progress
	report   ProgressFunc
}

func newMachine(report ProgressFunc) *machine {
	if report == nil {
		report = func(models.State, models.Progress) {}
	}
	return &machine{state: models.StateIdle, report: report}
}

func (m *machine) advance(next models.State, percent int, message string) error {
	if want, ok := successor[m.state]; !ok || want != next {
		return fmt.Errorf("invalid transition %s -> %s", m.state, next)
	}
	m.state = next
	m.set(percent, message)
	return nil
}

// update reports progress within the current state.
func (m *machine) update(percent int, message string) {
	m.set(percent, message)
}

func (m *machine) set(percent int, message string) {
	if percent < m.progress.Percent {
		percent = m.progress.Percent
	}
	m.progress = models.Progress{Percent: percent, Message: message}
	m.report(m.state, m.progress)
}

// abort moves to Aborted, keeping the last percentage, and returns err.
func (m *machine) abort(err *Error) *Error {
	if m.state.Terminal() {
		return err
	}
	m.state = models.StateAborted
	m.progress.Message = err.Message
	m.report(m.state, m.progress)
	return err
}
