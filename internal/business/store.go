package business

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Store loads the business context of a device.
type Store interface {
	Load(ctx context.Context, deviceID string) (*Context, error)
}

var deviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// FileStore reads one YAML document per device from <dir>/<deviceID>.yaml.
type FileStore struct {
	dir              string
	defaultThreshold float64
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string, defaultAlertThreshold float64) *FileStore {
	return &FileStore{dir: dir, defaultThreshold: defaultAlertThreshold}
}

// Load parses and validates the device's YAML file.
func (s *FileStore) Load(ctx context.Context, deviceID string) (*Context, error) {
	if !deviceIDPattern.MatchString(deviceID) {
		return nil, &ValidationError{DeviceID: deviceID, Problems: []string{"device id contains invalid characters"}}
	}

	data, err := os.ReadFile(filepath.Join(s.dir, deviceID+".yaml"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrContextNotFound
		}
		return nil, fmt.Errorf("failed to read business context: %w", err)
	}

	return Parse(data, deviceID, s.defaultThreshold)
}

// Parse decodes a YAML business context, applies defaults and validates it.
// The device id from the caller wins over any id in the document.
func Parse(data []byte, deviceID string, defaultAlertThreshold float64) (*Context, error) {
	var c Context
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, &ValidationError{DeviceID: deviceID, Problems: []string{err.Error()}}
	}
	c.DeviceID = deviceID
	c.ApplyDefaults(defaultAlertThreshold)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
