package render

import (
	"fmt"

	"github.com/charmbracelet/log"
)

// AbsentReason explains why a text lookup produced no value
type AbsentReason string

const (
	AbsentNone       AbsentReason = ""
	AbsentOutOfRange AbsentReason = "out_of_range"
	AbsentNoText     AbsentReason = "no_text"
)

// TextLookup is the result of reading one indexed text entry.
// An absent lookup is a normal outcome; callers that want the
// best-effort behaviour use OrEmpty.
type TextLookup struct {
	Value  string
	Absent AbsentReason
}

// Present reports whether the lookup found a text value
func (t TextLookup) Present() bool {
	return t.Absent == AbsentNone
}

// OrEmpty returns the value, or "" when absent
func (t TextLookup) OrEmpty() string {
	if !t.Present() {
		return ""
	}
	return t.Value
}

// TextSource resolves display strings from compositions that keep one text
// layer per roster entry
type TextSource struct {
	reader LayerReader
}

// NewTextSource creates a text source reading through the given layer reader
func NewTextSource(reader LayerReader) *TextSource {
	return &TextSource{reader: reader}
}

// TextAt returns the text of the layer whose ordinal equals index.
// Out-of-range indexes and layers without text are absent, not errors.
func (s *TextSource) TextAt(comp Item, index int) (TextLookup, error) {
	count, err := s.reader.LayerCount(comp)
	if err != nil {
		return TextLookup{}, fmt.Errorf("failed to read layer count of %q: %w", comp.Name, err)
	}

	if index < 1 || index > count {
		log.Debug("Text lookup out of range", "comp", comp.Name, "index", index, "layers", count)
		return TextLookup{Absent: AbsentOutOfRange}, nil
	}

	text, ok, err := s.reader.LayerText(comp, index)
	if err != nil {
		return TextLookup{}, fmt.Errorf("failed to read text of layer %d in %q: %w", index, comp.Name, err)
	}
	if !ok {
		log.Debug("Layer has no text", "comp", comp.Name, "index", index)
		return TextLookup{Absent: AbsentNoText}, nil
	}

	return TextLookup{Value: text}, nil
}

// NamingSources groups the three compositions a naming tuple is read from
type NamingSources struct {
	Number    Item
	FirstName Item
	LastName  Item
}

// Naming resolves the naming tuple for a roster index. Absent entries become
// empty strings.
func (s *TextSource) Naming(sources NamingSources, index int) (NamingTuple, error) {
	number, err := s.TextAt(sources.Number, index)
	if err != nil {
		return NamingTuple{}, err
	}
	first, err := s.TextAt(sources.FirstName, index)
	if err != nil {
		return NamingTuple{}, err
	}
	last, err := s.TextAt(sources.LastName, index)
	if err != nil {
		return NamingTuple{}, err
	}

	fields := []struct {
		name   string
		lookup TextLookup
	}{
		{"number", number},
		{"first_name", first},
		{"last_name", last},
	}
	for _, f := range fields {
		if !f.lookup.Present() {
			log.Warn("Naming field is blank", "field", f.name, "index", index, "reason", f.lookup.Absent)
		}
	}

	return NamingTuple{
		Number:    number.OrEmpty(),
		FirstName: first.OrEmpty(),
		LastName:  last.OrEmpty(),
	}, nil
}
