package applications

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/adamcubel/Cubel-Cloud/internal/errors"
)

// Application describes a downstream application shown on the portal.
type Application struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	URL         string `json:"url"`
}

// RegistryConfig mirrors config/applications.json.
type RegistryConfig struct {
	Applications []Application `json:"applications"`
}

// Registry is an ordered, id-indexed set of application descriptors.
// Immutable once built.
type Registry struct {
	apps  []Application
	index map[string]int
}

func NewRegistry(apps []Application) *Registry {
	r := &Registry{
		apps:  make([]Application, len(apps)),
		index: make(map[string]int, len(apps)),
	}
	copy(r.apps, apps)
	for i, app := range r.apps {
		r.index[app.ID] = i
	}
	return r
}

// DefaultRegistry returns the built-in application set used when no
// remote registry is configured.
func DefaultRegistry() *Registry {
	return NewRegistry(Defaults())
}

func (r *Registry) Get(id string) (Application, bool) {
	i, ok := r.index[id]
	if !ok {
		return Application{}, false
	}
	return r.apps[i], true
}

func (r *Registry) All() []Application {
	out := make([]Application, len(r.apps))
	copy(out, r.apps)
	return out
}

func (r *Registry) Len() int {
	return len(r.apps)
}

// LoadRegistryFile reads and validates config/applications.json.
func LoadRegistryFile(path string) (*RegistryConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("application registry %s: %w", path, errors.ErrConfigurationMissing)
		}
		return nil, fmt.Errorf("read application registry %s: %w", path, err)
	}

	var cfg RegistryConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse application registry %s: %w", path, errors.ErrInvalidConfiguration)
	}
	if cfg.Applications == nil {
		return nil, fmt.Errorf("application registry must contain an applications array: %w", errors.ErrInvalidConfiguration)
	}
	return &cfg, nil
}
