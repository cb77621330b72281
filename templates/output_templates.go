package templates

import (
	"fmt"
	"strings"
)

// OutputTemplate represents a named output-module template on the render engine
type OutputTemplate struct {
	Name      string `json:"name" yaml:"name"`           // Template name as configured in the engine
	Extension string `json:"extension" yaml:"extension"` // Container extension including the dot
}

// Default output template used for roster renders
const (
	DefaultTemplateName = "LHF-FINAL"
	DefaultExtension    = ".mov"
)

// Default returns the output template the roster renders were produced with
func Default() OutputTemplate {
	return OutputTemplate{
		Name:      DefaultTemplateName,
		Extension: DefaultExtension,
	}
}

// Normalize fills missing fields from the default template and makes sure the
// extension starts with a dot
func (t OutputTemplate) Normalize() OutputTemplate {
	if strings.TrimSpace(t.Name) == "" {
		t.Name = DefaultTemplateName
	}
	if strings.TrimSpace(t.Extension) == "" {
		t.Extension = DefaultExtension
	}
	if !strings.HasPrefix(t.Extension, ".") {
		t.Extension = "." + t.Extension
	}
	return t
}

// Validate checks that the template can be used to build file names
func (t OutputTemplate) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("output template name is required")
	}
	if strings.ContainsAny(t.Extension, `/\`) {
		return fmt.Errorf("output template extension %q must not contain path separators", t.Extension)
	}
	return nil
}
