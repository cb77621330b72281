package render

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/zenibako/roster-render/templates"
)

// State is a step of the batch state machine
type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateIterating  State = "iterating"
	StateRestoring  State = "restoring"
	StateDone       State = "done"
	StateFatal      State = "fatal"
)

// Terminal reports whether no further transitions happen from this state
func (s State) Terminal() bool {
	return s == StateDone || s == StateFatal
}

// Defaults matching the project layout the roster renders are built from
const (
	DefaultControlComp    = "00_Simulator"
	DefaultSelectorLayer  = "PLAYER TO RENDER"
	DefaultSelectorEffect = "DROPDOWN"
	DefaultRosterComp     = "NAME LIST"
	DefaultNumberComp     = "NUMBERLIST - NEW"
	DefaultFirstNameComp  = "FIRSTNAME LIST"
	DefaultLastNameComp   = "LASTNAME LIST"
	DefaultRosterSize     = 47
)

// Settings names the project objects the orchestrator works with
type Settings struct {
	ControlComp      string
	SelectorLayer    string
	SelectorEffect   string
	SelectorProperty string
	RosterComp       string
	NumberComp       string
	FirstNameComp    string
	LastNameComp     string
	RosterSize       int
	OutputTemplate   templates.OutputTemplate
	Poll             PollPolicy
	// RestoreOnFailure restores the selector when a run aborts mid-range.
	// With false, only a successful run restores it.
	RestoreOnFailure bool
}

// DefaultSettings returns the settings for the standard roster project
func DefaultSettings() Settings {
	return Settings{
		ControlComp:      DefaultControlComp,
		SelectorLayer:    DefaultSelectorLayer,
		SelectorEffect:   DefaultSelectorEffect,
		SelectorProperty: DefaultSelectorProperty,
		RosterComp:       DefaultRosterComp,
		NumberComp:       DefaultNumberComp,
		FirstNameComp:    DefaultFirstNameComp,
		LastNameComp:     DefaultLastNameComp,
		RosterSize:       DefaultRosterSize,
		OutputTemplate:   templates.Default(),
		Poll:             DefaultPollPolicy(),
		RestoreOnFailure: true,
	}
}

// RunInput is what the operator supplies before a run
type RunInput struct {
	Range       Range
	Destination string
}

// Orchestrator renders every selected composition once per roster index
type Orchestrator struct {
	engine        Engine
	settings      Settings
	paths         *PathBuilder
	texts         *TextSource
	drainer       *Drainer
	state         State
	onStateChange func(from, to State)
}

// NewOrchestrator creates an orchestrator driving the given engine
func NewOrchestrator(engine Engine, settings Settings) *Orchestrator {
	settings.OutputTemplate = settings.OutputTemplate.Normalize()
	if settings.SelectorProperty == "" {
		settings.SelectorProperty = DefaultSelectorProperty
	}
	if settings.RosterSize <= 0 {
		settings.RosterSize = DefaultRosterSize
	}

	return &Orchestrator{
		engine:   engine,
		settings: settings,
		paths:    NewPathBuilder(settings.OutputTemplate),
		texts:    NewTextSource(engine),
		drainer:  NewDrainer(engine, settings.Poll),
		state:    StateIdle,
	}
}

// OnStateChange registers a callback invoked on every state transition
func (o *Orchestrator) OnStateChange(callback func(from, to State)) {
	o.onStateChange = callback
}

// SetSleep replaces the function used to wait between queue polls
func (o *Orchestrator) SetSleep(sleep func(time.Duration)) {
	o.drainer.sleep = sleep
}

// State returns the current state of the orchestrator
func (o *Orchestrator) State() State {
	return o.state
}

func (o *Orchestrator) transition(to State) {
	from := o.state
	o.state = to
	log.Debug("Orchestrator state change", "from", from, "to", to)
	if o.onStateChange != nil {
		o.onStateChange(from, to)
	}
}

// preparedRun holds everything resolved during validation
type preparedRun struct {
	input    RunInput
	selector SelectorControl
	original int
	selected []Item
	naming   NamingSources
}

// Run validates the input and renders the whole range. Every failure is
// returned as a *RunError and ends the run.
func (o *Orchestrator) Run(input RunInput) (*RunReport, error) {
	report := newRunReport(input, false)
	log.Info("Starting roster render", "run_id", report.RunID, "start", input.Range.Start, "end", input.Range.End, "destination", input.Destination)

	o.transition(StateValidating)
	run, err := o.validate(input)
	if err != nil {
		return o.fail(report, err)
	}
	report.OriginalSelector = run.original
	report.Selected = itemNames(run.selected)

	o.transition(StateIterating)
	for i := input.Range.Start; i <= input.Range.End; i++ {
		if err := o.renderIndex(run, i, report); err != nil {
			if o.settings.RestoreOnFailure {
				o.transition(StateRestoring)
				if rerr := o.restore(run, report); rerr != nil {
					err = errors.Join(err, rerr)
				}
			}
			return o.fail(report, err)
		}
	}

	o.transition(StateRestoring)
	if err := o.restore(run, report); err != nil {
		return o.fail(report, err)
	}

	o.transition(StateDone)
	report.finish(o.state)
	log.Info("Rendering completed successfully", "run_id", report.RunID, "jobs", len(report.Jobs), "batches", report.Batches)
	return report, nil
}

// Plan validates the input and lists the jobs a run would enqueue without
// touching the selector, the render queue or the filesystem
func (o *Orchestrator) Plan(input RunInput) (*RunReport, error) {
	report := newRunReport(input, true)

	o.transition(StateValidating)
	run, err := o.validate(input)
	if err != nil {
		return o.fail(report, err)
	}
	report.OriginalSelector = run.original
	report.Selected = itemNames(run.selected)

	for i := input.Range.Start; i <= input.Range.End; i++ {
		naming, err := o.texts.Naming(run.naming, i)
		if err != nil {
			return o.fail(report, engineRejection("plan.naming", fmt.Sprintf("failed to resolve naming for index %d", i), err))
		}
		folder := filepath.Join(input.Destination, o.paths.FolderName(naming))
		report.addFolder(folder)
		for _, item := range run.selected {
			report.Jobs = append(report.Jobs, RenderJob{
				Source:         item,
				OutputTemplate: o.settings.OutputTemplate.Name,
				Destination:    o.paths.FileFor(folder, item.Name, i),
				Index:          i,
			})
		}
		report.Batches++
	}

	o.transition(StateDone)
	report.finish(o.state)
	return report, nil
}

func (o *Orchestrator) fail(report *RunReport, err error) (*RunReport, error) {
	o.transition(StateFatal)
	report.finish(o.state)
	log.Error("Roster render failed", "run_id", report.RunID, "error", err)
	return report, err
}

// validate resolves all project objects and checks the operator input.
// The selector is read here but never written.
func (o *Orchestrator) validate(input RunInput) (*preparedRun, error) {
	s := o.settings

	control, err := o.requireComp("validate.control_comp", s.ControlComp)
	if err != nil {
		return nil, err
	}

	layer, found, err := o.engine.LayerByName(control, s.SelectorLayer)
	if err != nil {
		return nil, engineRejection("validate.selector_layer", fmt.Sprintf("failed to look up layer %q", s.SelectorLayer), err)
	}
	if !found {
		return nil, precondition("validate.selector_layer", fmt.Sprintf("layer %q not found in %q", s.SelectorLayer, s.ControlComp), nil)
	}

	effect, found, err := o.engine.EffectByName(layer, s.SelectorEffect)
	if err != nil {
		return nil, engineRejection("validate.selector_effect", fmt.Sprintf("failed to look up effect %q", s.SelectorEffect), err)
	}
	if !found {
		return nil, precondition("validate.selector_effect", fmt.Sprintf("effect %q not found on %q layer", s.SelectorEffect, s.SelectorLayer), nil)
	}

	selector := NewEffectSelector(o.engine, effect, s.SelectorProperty)
	original, err := selector.Read()
	if err != nil {
		return nil, precondition("validate.selector_value", "cannot read the current selector value", err)
	}

	selected, err := o.engine.SelectedItems()
	if err != nil {
		return nil, engineRejection("validate.selection", "failed to read selected compositions", err)
	}
	if len(selected) == 0 {
		return nil, precondition("validate.selection", "no compositions selected; select at least one composition to render", nil)
	}

	if _, err := o.requireComp("validate.roster_comp", s.RosterComp); err != nil {
		return nil, err
	}
	var naming NamingSources
	if naming.FirstName, err = o.requireComp("validate.naming_comps", s.FirstNameComp); err != nil {
		return nil, err
	}
	if naming.LastName, err = o.requireComp("validate.naming_comps", s.LastNameComp); err != nil {
		return nil, err
	}
	if naming.Number, err = o.requireComp("validate.naming_comps", s.NumberComp); err != nil {
		return nil, err
	}

	if err := input.Range.Validate(s.RosterSize); err != nil {
		return nil, precondition("validate.range", "invalid index range", err)
	}

	if input.Destination == "" {
		return nil, precondition("validate.destination", "no output folder selected", nil)
	}
	info, err := os.Stat(input.Destination)
	if err != nil {
		return nil, precondition("validate.destination", fmt.Sprintf("output folder %s is not accessible", input.Destination), err)
	}
	if !info.IsDir() {
		return nil, precondition("validate.destination", fmt.Sprintf("output path %s is not a folder", input.Destination), nil)
	}

	log.Info("Validation passed",
		"selected", len(selected),
		"selector", original,
		"indexes", input.Range.Len())

	return &preparedRun{
		input:    input,
		selector: selector,
		original: original,
		selected: selected,
		naming:   naming,
	}, nil
}

func (o *Orchestrator) requireComp(op, name string) (Item, error) {
	item, found, err := o.engine.FindByName(name)
	if err != nil {
		return Item{}, engineRejection(op, fmt.Sprintf("failed to look up composition %q", name), err)
	}
	if !found {
		return Item{}, precondition(op, fmt.Sprintf("composition %q not found", name), nil)
	}
	return item, nil
}

// renderIndex runs one clear/select/enqueue/render/drain cycle
func (o *Orchestrator) renderIndex(run *preparedRun, index int, report *RunReport) error {
	if err := o.engine.Clear(); err != nil {
		return engineRejection("iterate.clear", "failed to clear the render queue", err)
	}

	if err := run.selector.Write(index); err != nil {
		return engineRejection("iterate.selector", fmt.Sprintf("failed to set selector to %d", index), err)
	}

	naming, err := o.texts.Naming(run.naming, index)
	if err != nil {
		return engineRejection("iterate.naming", fmt.Sprintf("failed to resolve naming for index %d", index), err)
	}

	folder, err := o.paths.FolderFor(run.input.Destination, naming)
	if err != nil {
		return ioFailure("iterate.folder", fmt.Sprintf("cannot prepare output folder for index %d", index), err)
	}
	report.addFolder(folder)

	log.Info("Rendering roster entry", "index", index, "folder", folder, "comps", len(run.selected))

	enqueued := 0
	for _, item := range run.selected {
		destination := o.paths.FileFor(folder, item.Name, index)
		handle, err := o.engine.Enqueue(item, o.settings.OutputTemplate.Name, destination)
		if err != nil {
			return engineRejection("iterate.enqueue", fmt.Sprintf("engine rejected %q for index %d", item.Name, index), err)
		}
		report.Jobs = append(report.Jobs, RenderJob{
			Source:         item,
			OutputTemplate: o.settings.OutputTemplate.Name,
			Destination:    destination,
			Index:          index,
			Handle:         handle,
		})
		enqueued++
	}

	if enqueued == 0 {
		return nil
	}

	if err := o.engine.Start(); err != nil {
		return engineRejection("iterate.start", "failed to start rendering", err)
	}
	if err := o.drainer.AwaitDrain(); err != nil {
		return engineRejection("iterate.await", fmt.Sprintf("lost track of the render queue for index %d", index), err)
	}
	report.Batches++
	return nil
}

func (o *Orchestrator) restore(run *preparedRun, report *RunReport) error {
	if err := run.selector.Write(run.original); err != nil {
		return engineRejection("restore.selector", fmt.Sprintf("failed to restore selector to %d", run.original), err)
	}
	report.Restored = true
	log.Debug("Selector restored", "value", run.original)
	return nil
}

func itemNames(items []Item) []string {
	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, item.Name)
	}
	return names
}
