package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/adamcubel/Cubel-Cloud/internal/errors"
)

// GravatarFile reads the avatar-provider API key from a plain key file.
// A missing or empty file means avatars are simply not configured.
type GravatarFile struct {
	folder string

	once   sync.Once
	apiKey string
	err    error
}

var _ GravatarConfig = (*GravatarFile)(nil)

func NewGravatarFile(folder string) *GravatarFile {
	return &GravatarFile{folder: folder}
}

func (f *GravatarFile) GetGravatarAPIKey() (string, error) {
	f.once.Do(func() {
		path := filepath.Join(f.folder, "gravatar-api-key")
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				f.err = fmt.Errorf("gravatar api key %s: %w", path, errors.ErrConfigurationMissing)
				return
			}
			f.err = fmt.Errorf("read gravatar api key %s: %w", path, err)
			return
		}
		f.apiKey = strings.TrimSpace(string(data))
		if f.apiKey == "" {
			f.err = fmt.Errorf("gravatar api key is empty: %w", errors.ErrConfigurationMissing)
		}
	})
	return f.apiKey, f.err
}

func (f *GravatarFile) GetGravatarLoggingEnabled() bool {
	return os.Getenv("ENABLE_GRAVATAR_LOGGING") == "true"
}
