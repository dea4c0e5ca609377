package provision

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"mercator-hq/saturn/pkg/retention"
	"mercator-hq/saturn/pkg/retention/policy"
)

// File is the parsed content of a policies file.
type File struct {
	Policies []Entry `yaml:"policies"`
}

// Entry declares one policy. A nil Containers leaves assignments untouched;
// an empty list removes them all.
type Entry struct {
	policy.Input `yaml:",inline"`
	Containers   []string `yaml:"containers"`
}

// LoadFile reads and parses a policies file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policies file %q: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse policies file %q: %w", path, err)
	}
	return f, nil
}

// Parse decodes policies file content. Unknown keys are rejected and
// every entry must carry a unique name.
func Parse(data []byte) (*File, error) {
	f := &File{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(f); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	seen := make(map[string]int, len(f.Policies))
	for i := range f.Policies {
		name := strings.TrimSpace(f.Policies[i].Name)
		if name == "" {
			return nil, retention.NewValidationError(fmt.Sprintf("policies[%d].name", i), "is required")
		}
		if prev, dup := seen[name]; dup {
			return nil, retention.NewValidationError(fmt.Sprintf("policies[%d].name", i),
				fmt.Sprintf("duplicates policies[%d] (%q)", prev, name))
		}
		seen[name] = i
		f.Policies[i].Name = name
	}
	return f, nil
}
