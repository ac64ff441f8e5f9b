package pipeline

import (
	"errors"
	"testing"

	"voiceboost/pkg/models"
)

func TestMachineRejectsSkippedStates(t *testing.T) {
	m := newMachine(nil)
	if err := m.advance(models.StateExtracted, 30, "skip"); err == nil {
		t.Fatal("advance from idle to extracted should fail")
	}
	if err := m.advance(models.StateSizeChecked, 0, "ok"); err != nil {
		t.Fatalf("advance() error: %v", err)
	}
}

func TestMachineProgressNeverRegresses(t *testing.T) {
	var seen []int
	m := newMachine(func(_ models.State, p models.Progress) { seen = append(seen, p.Percent) })

	m.update(30, "a")
	m.update(10, "b")
	m.update(60, "c")

	want := []int{30, 30, 60}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("progress = %v, want %v", seen, want)
		}
	}
}

func TestMachineAbortIsAbsorbing(t *testing.T) {
	var states []models.State
	m := newMachine(func(s models.State, _ models.Progress) { states = append(states, s) })

	err := newError(KindTimeout, models.StateEnhanced, errors.New("late"), "too slow")
	m.abort(err)
	m.abort(err)
	if err := m.advance(models.StateSizeChecked, 0, ""); err == nil {
		t.Fatal("advance after abort should fail")
	}
	if len(states) != 1 || states[0] != models.StateAborted {
		t.Fatalf("states = %v, want one abort", states)
	}
}
