package render

// ItemRegistry looks up compositions in the engine's project.
// A missing item is reported through the bool, not as an error.
type ItemRegistry interface {
	FindByName(name string) (Item, bool, error)
	SelectedItems() ([]Item, error)
}

// LayerReader reads layer structure and text content from a composition
type LayerReader interface {
	LayerCount(comp Item) (int, error)
	// LayerText returns the text of the layer at a 1-based index.
	// ok is false when the layer does not exist or has no text property.
	LayerText(comp Item, index int) (text string, ok bool, err error)
	LayerByName(comp Item, name string) (Layer, bool, error)
}

// EffectAccess resolves effects and reads/writes their enumerated properties
type EffectAccess interface {
	EffectByName(layer Layer, name string) (Effect, bool, error)
	PropertyValue(effect Effect, property string) (int, error)
	SetPropertyValue(effect Effect, property string, value int) error
}

// RenderQueue is the engine's render queue
type RenderQueue interface {
	// Enqueue adds a composition, applies a named output template and binds the destination file
	Enqueue(item Item, outputTemplate string, destination string) (JobHandle, error)
	// Clear removes every item regardless of status
	Clear() error
	// Start begins rendering all queued items
	Start() error
	QueueStatus() (QueueStatus, error)
}

// Engine is everything the orchestrator needs from the render engine
type Engine interface {
	ItemRegistry
	LayerReader
	EffectAccess
	RenderQueue
}
