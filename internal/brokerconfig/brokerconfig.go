// Package brokerconfig loads optional broker startup overrides from a YAML
// file. This is deliberately thin: a bind address and queue-capacity
// override, nothing resembling a role/session-template system.
package brokerconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Overrides holds the fields a config file may set; a zero value leaves
// the broker's built-in defaults untouched.
type Overrides struct {
	BindAddr           string `yaml:"bind_addr"`
	QueueCapacity      int    `yaml:"queue_capacity"`
	SubscriberCapacity int    `yaml:"subscriber_capacity"`
	ActivityLogPath    string `yaml:"activity_log_path"`
}

// Load reads and parses the YAML file at path. A missing file returns a
// zero-value Overrides and no error, since the config file is optional.
func Load(path string) (Overrides, error) {
	var o Overrides
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return o, nil
	}
	if err != nil {
		return o, fmt.Errorf("brokerconfig: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &o); err != nil {
		return o, fmt.Errorf("brokerconfig: parse %s: %w", path, err)
	}
	return o, nil
}
