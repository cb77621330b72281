package render

import (
	"fmt"

	"github.com/charmbracelet/log"
)

// DefaultSelectorProperty is the enumerated property on a dropdown effect
const DefaultSelectorProperty = "Menu"

// SelectorControl reads and writes the single shared menu parameter that
// decides which roster entry the compositions show
type SelectorControl interface {
	Read() (int, error)
	Write(value int) error
}

// EffectSelector is a SelectorControl backed by an effect property
type EffectSelector struct {
	access   EffectAccess
	effect   Effect
	property string
}

// NewEffectSelector creates a selector over the named property of an effect
func NewEffectSelector(access EffectAccess, effect Effect, property string) *EffectSelector {
	if property == "" {
		property = DefaultSelectorProperty
	}
	return &EffectSelector{
		access:   access,
		effect:   effect,
		property: property,
	}
}

// Read returns the current menu index
func (s *EffectSelector) Read() (int, error) {
	value, err := s.access.PropertyValue(s.effect, s.property)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s/%s: %w", s.effect.Name, s.property, err)
	}
	return value, nil
}

// Write sets the menu index. Bounds are enforced by the engine only.
func (s *EffectSelector) Write(value int) error {
	if err := s.access.SetPropertyValue(s.effect, s.property, value); err != nil {
		return fmt.Errorf("failed to set %s/%s to %d: %w", s.effect.Name, s.property, value, err)
	}
	log.Debug("Selector updated", "effect", s.effect.Name, "property", s.property, "value", value)
	return nil
}
