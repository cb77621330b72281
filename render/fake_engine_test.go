package render

import (
	"fmt"
)

// fakeEngine is an in-memory Engine for orchestrator tests
type fakeEngine struct {
	comps    map[string]*fakeComp
	order    []string
	selected []string

	controlComp    string
	selectorLayer  string
	selectorEffect string
	menu           int
	noLayer        bool
	noEffect       bool
	readErr        error

	queue        []QueueItem
	nextID       int
	renderPolls  int
	pollsLeft    int
	started      bool
	failComps    map[string]bool
	stuckComps   map[string]bool // Items that never leave "queued"
	enqueueErr   func(item Item) error
	dirtyEnqueue bool // Enqueue saw items left over from a started batch

	clearCalls     int
	startCalls     int
	statusCalls    int
	selectorWrites []int
	events         []string
}

type fakeComp struct {
	texts []*string
}

func newFakeEngine(rosterSize int) *fakeEngine {
	s := DefaultSettings()
	e := &fakeEngine{
		comps:          make(map[string]*fakeComp),
		controlComp:    s.ControlComp,
		selectorLayer:  s.SelectorLayer,
		selectorEffect: s.SelectorEffect,
		menu:           12,
		failComps:      make(map[string]bool),
		stuckComps:     make(map[string]bool),
	}

	e.addComp(s.ControlComp)
	e.addComp(s.RosterComp)
	number := e.addComp(s.NumberComp)
	first := e.addComp(s.FirstNameComp)
	last := e.addComp(s.LastNameComp)
	for i := 1; i <= rosterSize; i++ {
		number.texts = append(number.texts, strPtr(fmt.Sprintf("%03d", i)))
		first.texts = append(first.texts, strPtr(fmt.Sprintf("First%d", i)))
		last.texts = append(last.texts, strPtr(fmt.Sprintf("Last%d", i)))
	}
	return e
}

func strPtr(s string) *string {
	return &s
}

func (e *fakeEngine) addComp(name string) *fakeComp {
	c := &fakeComp{}
	e.comps[name] = c
	e.order = append(e.order, name)
	return c
}

func (e *fakeEngine) selectComps(names ...string) {
	for _, name := range names {
		if _, ok := e.comps[name]; !ok {
			e.addComp(name)
		}
	}
	e.selected = names
}

func (e *fakeEngine) setEntry(comp string, index int, text *string) {
	c := e.comps[comp]
	for len(c.texts) < index {
		c.texts = append(c.texts, nil)
	}
	c.texts[index-1] = text
}

func (e *fakeEngine) item(name string) Item {
	for i, n := range e.order {
		if n == name {
			return Item{Name: name, Position: i + 1, LayerCount: len(e.comps[name].texts)}
		}
	}
	return Item{}
}

func (e *fakeEngine) FindByName(name string) (Item, bool, error) {
	if _, ok := e.comps[name]; !ok {
		return Item{}, false, nil
	}
	return e.item(name), true, nil
}

func (e *fakeEngine) SelectedItems() ([]Item, error) {
	items := make([]Item, 0, len(e.selected))
	for _, name := range e.selected {
		item := e.item(name)
		item.Selected = true
		items = append(items, item)
	}
	return items, nil
}

func (e *fakeEngine) LayerCount(comp Item) (int, error) {
	c, ok := e.comps[comp.Name]
	if !ok {
		return 0, fmt.Errorf("no comp %q", comp.Name)
	}
	return len(c.texts), nil
}

func (e *fakeEngine) LayerText(comp Item, index int) (string, bool, error) {
	t := e.comps[comp.Name].texts[index-1]
	if t == nil {
		return "", false, nil
	}
	return *t, true, nil
}

func (e *fakeEngine) LayerByName(comp Item, name string) (Layer, bool, error) {
	if e.noLayer || comp.Name != e.controlComp || name != e.selectorLayer {
		return Layer{}, false, nil
	}
	return Layer{Comp: comp.Name, Index: 1, Name: name}, true, nil
}

func (e *fakeEngine) EffectByName(layer Layer, name string) (Effect, bool, error) {
	if e.noEffect || name != e.selectorEffect {
		return Effect{}, false, nil
	}
	return Effect{Layer: layer, Name: name}, true, nil
}

func (e *fakeEngine) PropertyValue(effect Effect, property string) (int, error) {
	if e.readErr != nil {
		return 0, e.readErr
	}
	return e.menu, nil
}

func (e *fakeEngine) SetPropertyValue(effect Effect, property string, value int) error {
	e.menu = value
	e.selectorWrites = append(e.selectorWrites, value)
	e.events = append(e.events, fmt.Sprintf("select:%d", value))
	return nil
}

func (e *fakeEngine) Enqueue(item Item, outputTemplate string, destination string) (JobHandle, error) {
	if e.enqueueErr != nil {
		if err := e.enqueueErr(item); err != nil {
			return "", err
		}
	}
	for _, q := range e.queue {
		if q.Status != StatusQueued {
			e.dirtyEnqueue = true
		}
	}
	e.nextID++
	id := fmt.Sprintf("RQ-%d", e.nextID)
	e.queue = append(e.queue, QueueItem{ID: JobHandle(id), Comp: item.Name, Status: StatusQueued})
	e.events = append(e.events, "enqueue:"+item.Name)
	return JobHandle(id), nil
}

func (e *fakeEngine) Clear() error {
	e.clearCalls++
	e.queue = nil
	e.started = false
	e.events = append(e.events, "clear")
	return nil
}

func (e *fakeEngine) Start() error {
	e.startCalls++
	e.started = true
	e.pollsLeft = e.renderPolls
	e.events = append(e.events, "start")
	return nil
}

func (e *fakeEngine) QueueStatus() (QueueStatus, error) {
	e.statusCalls++
	// Started items stay queued for renderPolls polls, then finish together
	if e.pollsLeft > 0 {
		e.pollsLeft--
	} else if e.started {
		for i := range e.queue {
			if e.queue[i].Status != StatusQueued || e.stuckComps[e.queue[i].Comp] {
				continue
			}
			if e.failComps[e.queue[i].Comp] {
				e.queue[i].Status = StatusFailed
			} else {
				e.queue[i].Status = StatusDone
			}
		}
	}
	items := make([]QueueItem, len(e.queue))
	copy(items, e.queue)
	return QueueStatus{Items: items}, nil
}

func (e *fakeEngine) countEvents(name string) int {
	n := 0
	for _, ev := range e.events {
		if ev == name {
			n++
		}
	}
	return n
}
