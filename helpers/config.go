package helpers

import (
	"strings"
	"sync"
	"time"

	"github.com/Jeffail/gabs"
)

var (
	config      *gabs.Container
	configMutex sync.RWMutex
)

// LoadConfig loads the config from $path into $config
func LoadConfig(path string) {
	json, err := gabs.ParseJSONFile(path)
	Relax(err)

	SetConfig(json)
}

// SetConfig replaces the loaded config, used by tests and LoadConfig
func SetConfig(c *gabs.Container) {
	configMutex.Lock()
	config = c
	configMutex.Unlock()
}

// GetConfig is a config getter
func GetConfig() *gabs.Container {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if config == nil {
		return gabs.New()
	}
	return config
}

// ConfigString returns the string at $path or $fallback if the key is missing or empty
func ConfigString(path, fallback string) string {
	value, ok := GetConfig().Path(path).Data().(string)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// ConfigInt returns the number at $path or $fallback
func ConfigInt(path string, fallback int) int {
	switch value := GetConfig().Path(path).Data().(type) {
	case float64:
		return int(value)
	case int:
		return value
	}
	return fallback
}

// ConfigBool returns the bool at $path or $fallback
func ConfigBool(path string, fallback bool) bool {
	value, ok := GetConfig().Path(path).Data().(bool)
	if !ok {
		return fallback
	}
	return value
}

// ConfigDuration reads a duration string like "3h" at $path
func ConfigDuration(path string, fallback time.Duration) time.Duration {
	raw := ConfigString(path, "")
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
