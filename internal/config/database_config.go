package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adamcubel/Cubel-Cloud/internal/errors"
)

// DatabaseSettings mirrors config/database.json, pool sizing included.
type DatabaseSettings struct {
	Host                    string `json:"host"`
	Port                    int    `json:"port,omitempty"`
	Database                string `json:"database"`
	User                    string `json:"user"`
	Password                string `json:"password,omitempty"`
	SSL                     bool   `json:"ssl,omitempty"`
	MaxConns                int    `json:"max,omitempty"`
	IdleTimeoutMillis       int    `json:"idleTimeoutMillis,omitempty"`
	ConnectionTimeoutMillis int    `json:"connectionTimeoutMillis,omitempty"`
}

func (s *DatabaseSettings) PortOrDefault() int {
	if s.Port == 0 {
		return 5432
	}
	return s.Port
}

func (s *DatabaseSettings) MaxConnsOrDefault() int {
	if s.MaxConns == 0 {
		return 20
	}
	return s.MaxConns
}

func (s *DatabaseSettings) IdleTimeout() time.Duration {
	if s.IdleTimeoutMillis == 0 {
		return 30 * time.Second
	}
	return time.Duration(s.IdleTimeoutMillis) * time.Millisecond
}

func (s *DatabaseSettings) ConnectTimeout() time.Duration {
	if s.ConnectionTimeoutMillis == 0 {
		return 2 * time.Second
	}
	return time.Duration(s.ConnectionTimeoutMillis) * time.Millisecond
}

// DSN builds a postgres connection string for the pgx stdlib driver.
func (s *DatabaseSettings) DSN() string {
	sslMode := "disable"
	if s.SSL {
		sslMode = "require"
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(s.User, s.Password),
		Host:   fmt.Sprintf("%s:%d", s.Host, s.PortOrDefault()),
		Path:   s.Database,
	}
	q := u.Query()
	q.Set("sslmode", sslMode)
	q.Set("connect_timeout", fmt.Sprintf("%d", int(s.ConnectTimeout().Seconds())))
	u.RawQuery = q.Encode()
	return u.String()
}

// DatabaseFile loads database settings from disk once and caches them.
type DatabaseFile struct {
	folder string

	once     sync.Once
	settings *DatabaseSettings
	err      error
}

var _ DatabaseConfig = (*DatabaseFile)(nil)

func NewDatabaseFile(folder string) *DatabaseFile {
	return &DatabaseFile{folder: folder}
}

func (f *DatabaseFile) GetDatabaseSettings() (*DatabaseSettings, error) {
	f.once.Do(func() {
		f.settings, f.err = loadDatabaseSettings(filepath.Join(f.folder, "database.json"))
	})
	return f.settings, f.err
}

func loadDatabaseSettings(path string) (*DatabaseSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("database settings %s: %w", path, errors.ErrConfigurationMissing)
		}
		return nil, fmt.Errorf("read database settings %s: %w", path, err)
	}

	var settings DatabaseSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parse database settings %s: %w", path, errors.ErrInvalidConfiguration)
	}
	if settings.Host == "" || settings.Database == "" || settings.User == "" {
		return nil, fmt.Errorf("database settings missing host, database or user: %w", errors.ErrInvalidConfiguration)
	}
	return &settings, nil
}
