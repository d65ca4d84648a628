package orchestrator

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PatchDevicePath rewrites the serial adapter port in a gateway
// configuration file. It reports whether the file was modified. Unknown
// structure is left untouched rather than guessed at.
func PatchDevicePath(configPath, devicePath string) (bool, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return false, fmt.Errorf("read configuration: %w", err)
	}

	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return false, fmt.Errorf("parse configuration: %w", err)
	}
	if doc == nil {
		doc = make(map[string]interface{})
	}

	serial, ok := doc["serial"].(map[string]interface{})
	if !ok {
		if _, present := doc["serial"]; present {
			return false, fmt.Errorf("serial section has unexpected structure")
		}
		serial = make(map[string]interface{})
	}
	if current, ok := serial["port"].(string); ok && current == devicePath {
		return false, nil
	}
	serial["port"] = devicePath
	doc["serial"] = serial

	updated, err := yaml.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("encode configuration: %w", err)
	}
	if err := os.WriteFile(configPath, updated, 0o644); err != nil {
		return false, fmt.Errorf("write configuration: %w", err)
	}
	return true, nil
}
