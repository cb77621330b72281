package render

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func newTestOrchestrator(e *fakeEngine, settings Settings) (*Orchestrator, *[]time.Duration) {
	o := NewOrchestrator(e, settings)
	var sleeps []time.Duration
	o.SetSleep(func(d time.Duration) {
		sleeps = append(sleeps, d)
	})
	return o, &sleeps
}

func assertKind(t *testing.T, err error, want Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("Expected a %s error, got nil", want)
	}
	kind, ok := KindOf(err)
	if !ok {
		t.Fatalf("Expected a *RunError, got %T: %v", err, err)
	}
	if kind != want {
		t.Errorf("Expected kind %s, got %s (%v)", want, kind, err)
	}
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", dir, err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected %s to stay empty, found %d entries", dir, len(entries))
	}
}

func TestRunEnqueuesOneJobPerIndexAndSelection(t *testing.T) {
	engine := newFakeEngine(DefaultRosterSize)
	engine.selectComps("CompA", "CompB")
	dest := t.TempDir()

	o, _ := newTestOrchestrator(engine, DefaultSettings())
	report, err := o.Run(RunInput{Range: Range{Start: 3, End: 7}, Destination: dest})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(report.Jobs) != 10 {
		t.Errorf("Expected 10 jobs, got %d", len(report.Jobs))
	}
	if engine.clearCalls != 5 || engine.startCalls != 5 {
		t.Errorf("Expected 5 clear/start cycles, got %d clears and %d starts", engine.clearCalls, engine.startCalls)
	}
	if report.Batches != 5 {
		t.Errorf("Expected 5 batches, got %d", report.Batches)
	}
	if engine.dirtyEnqueue {
		t.Error("Jobs were enqueued on top of a previous batch")
	}

	wantWrites := []int{3, 4, 5, 6, 7, 12}
	if !reflect.DeepEqual(engine.selectorWrites, wantWrites) {
		t.Errorf("Expected selector writes %v, got %v", wantWrites, engine.selectorWrites)
	}
	if engine.menu != 12 {
		t.Errorf("Expected selector restored to 12, got %d", engine.menu)
	}
	if !report.Restored || report.OriginalSelector != 12 {
		t.Errorf("Expected report to record restore of 12, got restored=%v original=%d", report.Restored, report.OriginalSelector)
	}
	if report.State != StateDone || o.State() != StateDone {
		t.Errorf("Expected state done, got %s", report.State)
	}

	if len(report.Folders) != 5 {
		t.Fatalf("Expected 5 folders, got %d", len(report.Folders))
	}
	for _, folder := range report.Folders {
		if info, err := os.Stat(folder); err != nil || !info.IsDir() {
			t.Errorf("Expected folder %s to exist", folder)
		}
	}
	if jobs := report.JobsForIndex(5); len(jobs) != 2 {
		t.Errorf("Expected 2 jobs for index 5, got %d", len(jobs))
	}
}

func TestRunSingleIndexTwoItems(t *testing.T) {
	engine := newFakeEngine(DefaultRosterSize)
	engine.selectComps("CompA", "CompB")
	dest := t.TempDir()

	o, _ := newTestOrchestrator(engine, DefaultSettings())
	report, err := o.Run(RunInput{Range: Range{Start: 3, End: 3}, Destination: dest})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	wantEvents := []string{"clear", "select:3", "enqueue:CompA", "enqueue:CompB", "start", "select:12"}
	if !reflect.DeepEqual(engine.events, wantEvents) {
		t.Errorf("Expected events %v, got %v", wantEvents, engine.events)
	}

	folder := filepath.Join(dest, "003_First3_Last3")
	want := []string{
		filepath.Join(folder, "CompA_Option3.mov"),
		filepath.Join(folder, "CompB_Option3.mov"),
	}
	if len(report.Jobs) != len(want) {
		t.Fatalf("Expected %d jobs, got %d", len(want), len(report.Jobs))
	}
	for i, job := range report.Jobs {
		if job.Destination != want[i] {
			t.Errorf("Job %d: expected destination %s, got %s", i, want[i], job.Destination)
		}
		if job.OutputTemplate != "LHF-FINAL" {
			t.Errorf("Job %d: expected template LHF-FINAL, got %s", i, job.OutputTemplate)
		}
		if job.Handle == "" {
			t.Errorf("Job %d: expected an engine handle", i)
		}
	}
}

func TestRunEmptySelectionIsFatal(t *testing.T) {
	engine := newFakeEngine(DefaultRosterSize)
	dest := t.TempDir()

	o, _ := newTestOrchestrator(engine, DefaultSettings())
	report, err := o.Run(RunInput{Range: Range{Start: 1, End: 5}, Destination: dest})
	assertKind(t, err, KindPrecondition)

	if len(engine.selectorWrites) != 0 {
		t.Errorf("Expected no selector writes, got %v", engine.selectorWrites)
	}
	if engine.clearCalls != 0 || len(report.Jobs) != 0 {
		t.Errorf("Expected no queue activity, got %d clears and %d jobs", engine.clearCalls, len(report.Jobs))
	}
	if report.State != StateFatal {
		t.Errorf("Expected state fatal, got %s", report.State)
	}
	assertEmptyDir(t, dest)
}

func TestRunRangeBounds(t *testing.T) {
	tests := []struct {
		name    string
		r       Range
		wantErr bool
	}{
		{"last index", Range{Start: 47, End: 47}, false},
		{"past roster", Range{Start: 1, End: 48}, true},
		{"zero start", Range{Start: 0, End: 3}, true},
		{"reversed", Range{Start: 5, End: 4}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newFakeEngine(DefaultRosterSize)
			engine.selectComps("CompA")
			dest := t.TempDir()

			o, _ := newTestOrchestrator(engine, DefaultSettings())
			_, err := o.Run(RunInput{Range: tt.r, Destination: dest})
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("Expected range %+v to be accepted, got %v", tt.r, err)
				}
				return
			}

			assertKind(t, err, KindPrecondition)
			if len(engine.selectorWrites) != 0 {
				t.Errorf("Expected no selector writes, got %v", engine.selectorWrites)
			}
			assertEmptyDir(t, dest)
		})
	}
}

func TestRunAdvancesAfterDoneAndFailed(t *testing.T) {
	engine := newFakeEngine(DefaultRosterSize)
	engine.selectComps("CompA", "CompB")
	engine.failComps["CompB"] = true
	engine.renderPolls = 2

	o, sleeps := newTestOrchestrator(engine, DefaultSettings())
	report, err := o.Run(RunInput{Range: Range{Start: 1, End: 2}, Destination: t.TempDir()})
	if err != nil {
		t.Fatalf("Expected a failed render not to abort the run, got %v", err)
	}

	if report.Batches != 2 || len(report.Jobs) != 4 {
		t.Errorf("Expected 2 batches with 4 jobs, got %d batches with %d jobs", report.Batches, len(report.Jobs))
	}
	// Two pending polls per batch
	if len(*sleeps) != 4 {
		t.Errorf("Expected 4 waits between polls, got %d", len(*sleeps))
	}
	for _, d := range *sleeps {
		if d != DefaultPollInterval {
			t.Errorf("Expected poll interval %v, got %v", DefaultPollInterval, d)
		}
	}
}

func TestRunAdvancesWhileLaterItemsStayQueued(t *testing.T) {
	engine := newFakeEngine(DefaultRosterSize)
	engine.selectComps("CompA", "CompB")
	engine.stuckComps["CompB"] = true

	o, sleeps := newTestOrchestrator(engine, DefaultSettings())
	report, err := o.Run(RunInput{Range: Range{Start: 4, End: 5}, Destination: t.TempDir()})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Batches != 2 || engine.startCalls != 2 {
		t.Errorf("Expected 2 batches and 2 starts, got %d batches and %d starts", report.Batches, engine.startCalls)
	}
	// The lead finishes on the first poll of each batch
	if engine.statusCalls != 2 || len(*sleeps) != 0 {
		t.Errorf("Expected one poll per batch and no waits, got %d polls and %d waits", engine.statusCalls, len(*sleeps))
	}
	if !reflect.DeepEqual(engine.selectorWrites, []int{4, 5, 12}) {
		t.Errorf("Expected selector writes [4 5 12], got %v", engine.selectorWrites)
	}
}

func TestRunFolderFailureRestoresSelector(t *testing.T) {
	engine := newFakeEngine(DefaultRosterSize)
	engine.selectComps("CompA", "CompB")
	dest := t.TempDir()

	o, _ := newTestOrchestrator(engine, DefaultSettings())
	calls := 0
	o.paths.mkdirAll = func(path string, perm os.FileMode) error {
		calls++
		if calls == 2 {
			return os.ErrPermission
		}
		return os.MkdirAll(path, perm)
	}

	report, err := o.Run(RunInput{Range: Range{Start: 1, End: 3}, Destination: dest})
	assertKind(t, err, KindIOFailure)
	if !errors.Is(err, ErrIOFailure) {
		t.Errorf("Expected errors.Is to match ErrIOFailure")
	}
	if !errors.Is(err, os.ErrPermission) {
		t.Errorf("Expected the mkdir error to be wrapped, got %v", err)
	}

	if report.Batches != 1 {
		t.Errorf("Expected 1 finished batch, got %d", report.Batches)
	}
	if len(report.Jobs) != 2 || engine.startCalls != 1 {
		t.Errorf("Expected only the first index to be enqueued, got %d jobs and %d starts", len(report.Jobs), engine.startCalls)
	}
	if !reflect.DeepEqual(engine.selectorWrites, []int{1, 2, 12}) {
		t.Errorf("Expected selector writes [1 2 12], got %v", engine.selectorWrites)
	}
	if engine.menu != 12 || !report.Restored {
		t.Errorf("Expected selector restored to 12, got %d (restored=%v)", engine.menu, report.Restored)
	}
	if report.State != StateFatal || o.State() != StateFatal {
		t.Errorf("Expected state fatal, got %s", report.State)
	}
}

func TestRunEnqueueFailureRestoresSelector(t *testing.T) {
	engine := newFakeEngine(DefaultRosterSize)
	engine.selectComps("CompA", "CompB")
	engine.enqueueErr = func(item Item) error {
		if item.Name == "CompB" {
			return errors.New("output module template not found")
		}
		return nil
	}

	o, _ := newTestOrchestrator(engine, DefaultSettings())
	report, err := o.Run(RunInput{Range: Range{Start: 2, End: 4}, Destination: t.TempDir()})
	assertKind(t, err, KindEngineRejection)
	if !errors.Is(err, ErrEngineRejection) {
		t.Errorf("Expected errors.Is to match ErrEngineRejection")
	}

	if !reflect.DeepEqual(engine.selectorWrites, []int{2, 12}) {
		t.Errorf("Expected selector writes [2 12], got %v", engine.selectorWrites)
	}
	if engine.startCalls != 0 {
		t.Errorf("Expected no render to start, got %d", engine.startCalls)
	}
	if !report.Restored || report.State != StateFatal {
		t.Errorf("Expected a restored fatal run, got restored=%v state=%s", report.Restored, report.State)
	}
}

func TestRunEnqueueFailureWithoutRestore(t *testing.T) {
	engine := newFakeEngine(DefaultRosterSize)
	engine.selectComps("CompA")
	engine.enqueueErr = func(Item) error { return errors.New("disk full") }

	settings := DefaultSettings()
	settings.RestoreOnFailure = false

	o, _ := newTestOrchestrator(engine, settings)
	report, err := o.Run(RunInput{Range: Range{Start: 2, End: 4}, Destination: t.TempDir()})
	assertKind(t, err, KindEngineRejection)

	if engine.menu != 2 {
		t.Errorf("Expected selector left at 2, got %d", engine.menu)
	}
	if report.Restored {
		t.Error("Expected no restore")
	}
}

func TestRunStateSequence(t *testing.T) {
	engine := newFakeEngine(DefaultRosterSize)
	engine.selectComps("CompA")

	o, _ := newTestOrchestrator(engine, DefaultSettings())
	var states []State
	o.OnStateChange(func(from, to State) {
		states = append(states, to)
	})

	if _, err := o.Run(RunInput{Range: Range{Start: 1, End: 1}, Destination: t.TempDir()}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []State{StateValidating, StateIterating, StateRestoring, StateDone}
	if !reflect.DeepEqual(states, want) {
		t.Errorf("Expected states %v, got %v", want, states)
	}
	if !o.State().Terminal() {
		t.Errorf("Expected a terminal state, got %s", o.State())
	}
}

func TestRunValidationFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, e *fakeEngine, dest string) string
	}{
		{"missing control comp", func(t *testing.T, e *fakeEngine, dest string) string {
			delete(e.comps, DefaultControlComp)
			return dest
		}},
		{"missing selector layer", func(t *testing.T, e *fakeEngine, dest string) string {
			e.noLayer = true
			return dest
		}},
		{"missing selector effect", func(t *testing.T, e *fakeEngine, dest string) string {
			e.noEffect = true
			return dest
		}},
		{"unreadable selector", func(t *testing.T, e *fakeEngine, dest string) string {
			e.readErr = errors.New("no such property")
			return dest
		}},
		{"missing roster comp", func(t *testing.T, e *fakeEngine, dest string) string {
			delete(e.comps, DefaultRosterComp)
			return dest
		}},
		{"missing first name comp", func(t *testing.T, e *fakeEngine, dest string) string {
			delete(e.comps, DefaultFirstNameComp)
			return dest
		}},
		{"missing destination", func(t *testing.T, e *fakeEngine, dest string) string {
			return filepath.Join(dest, "nope")
		}},
		{"empty destination", func(t *testing.T, e *fakeEngine, dest string) string {
			return ""
		}},
		{"destination is a file", func(t *testing.T, e *fakeEngine, dest string) string {
			path := filepath.Join(dest, "file.txt")
			if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
				t.Fatalf("Failed to write file: %v", err)
			}
			return path
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newFakeEngine(DefaultRosterSize)
			engine.selectComps("CompA")
			dest := tt.setup(t, engine, t.TempDir())

			o, _ := newTestOrchestrator(engine, DefaultSettings())
			_, err := o.Run(RunInput{Range: Range{Start: 1, End: 2}, Destination: dest})
			assertKind(t, err, KindPrecondition)

			if len(engine.selectorWrites) != 0 || engine.clearCalls != 0 {
				t.Errorf("Expected no mutation, got writes=%v clears=%d", engine.selectorWrites, engine.clearCalls)
			}
		})
	}
}

func TestRunBlankNamingEntries(t *testing.T) {
	engine := newFakeEngine(3)
	engine.selectComps("CompA")
	engine.setEntry(DefaultFirstNameComp, 2, nil)
	dest := t.TempDir()

	settings := DefaultSettings()
	settings.RosterSize = 5

	o, _ := newTestOrchestrator(engine, settings)
	report, err := o.Run(RunInput{Range: Range{Start: 2, End: 4}, Destination: dest})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []string{
		filepath.Join(dest, "002__Last2"),
		filepath.Join(dest, "003_First3_Last3"),
		filepath.Join(dest, "__"), // Index 4 is past every lookup comp
	}
	if !reflect.DeepEqual(report.Folders, want) {
		t.Errorf("Expected folders %v, got %v", want, report.Folders)
	}
}

func TestPlanDoesNotMutate(t *testing.T) {
	engine := newFakeEngine(DefaultRosterSize)
	engine.selectComps("CompA", "CompB")
	dest := t.TempDir()

	o, _ := newTestOrchestrator(engine, DefaultSettings())
	report, err := o.Plan(RunInput{Range: Range{Start: 1, End: 3}, Destination: dest})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	if !report.Planned || len(report.Jobs) != 6 || report.Batches != 3 {
		t.Errorf("Expected a plan of 6 jobs in 3 batches, got planned=%v jobs=%d batches=%d", report.Planned, len(report.Jobs), report.Batches)
	}
	if len(engine.selectorWrites) != 0 || engine.clearCalls != 0 || engine.startCalls != 0 || len(engine.queue) != 0 {
		t.Errorf("Plan mutated the engine: %v", engine.events)
	}
	assertEmptyDir(t, dest)

	want := filepath.Join(dest, "001_First1_Last1", "CompB_Option1.mov")
	if report.Jobs[1].Destination != want {
		t.Errorf("Expected %s, got %s", want, report.Jobs[1].Destination)
	}
}
