package registry

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mimo-os/runtime/procedure"
)

// LoadDefinitionBytes parses a procedure definition from raw YAML or JSON
// document bytes. This is useful when definition data has already been read
// from a file or received over the gateway, avoiding redundant I/O. The
// filename parameter selects the format and is used for error reporting.
//
// The result is not validated; pass it to Register for that.
func LoadDefinitionBytes(filename string, data []byte) (*procedure.Definition, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	if ext == ".yaml" || ext == ".yml" {
		// Parse as a generic structure, then round-trip through JSON so
		// both formats share one set of struct tags.
		var temp any
		if err := yaml.Unmarshal(data, &temp); err != nil {
			return nil, fmt.Errorf("failed to parse YAML definition %s: %w", filename, err)
		}

		jsonData, err := json.Marshal(temp)
		if err != nil {
			return nil, fmt.Errorf("failed to convert YAML to JSON for %s: %w", filename, err)
		}

		var def procedure.Definition
		if err := json.Unmarshal(jsonData, &def); err != nil {
			return nil, fmt.Errorf("failed to unmarshal definition %s: %w", filename, err)
		}
		return &def, nil
	}

	var def procedure.Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse JSON definition %s: %w", filename, err)
	}
	return &def, nil
}
