package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"bors-backend/pkg/logger"
)

// DiskStorage keeps all keys in one JSON object file. Every write replaces
// the file atomically through a temp file and rename.
type DiskStorage struct {
	path   string
	mu     sync.RWMutex
	values map[string]string
}

func NewDiskStorage(path string) *DiskStorage {
	return &DiskStorage{
		path:   path,
		values: make(map[string]string),
	}
}

func (d *DiskStorage) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(d.path), 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInit, err)
	}

	data, err := os.ReadFile(d.path)
	if os.IsNotExist(err) {
		logger.Debugf("settings file %s not found, starting empty", d.path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInit, err)
	}
	if len(data) == 0 {
		return nil
	}

	values := make(map[string]string)
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidData, d.path, err)
	}
	d.values = values
	return nil
}

func (d *DiskStorage) Close() error {
	return nil
}

func (d *DiskStorage) Get(key string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	value, exists := d.values[key]
	if !exists {
		return "", ErrKeyNotFound
	}
	return value, nil
}

func (d *DiskStorage) Set(key, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	previous, existed := d.values[key]
	d.values[key] = value
	if err := d.flush(); err != nil {
		if existed {
			d.values[key] = previous
		} else {
			delete(d.values, key)
		}
		return err
	}
	return nil
}

func (d *DiskStorage) Delete(key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	previous, existed := d.values[key]
	if !existed {
		return nil
	}
	delete(d.values, key)
	if err := d.flush(); err != nil {
		d.values[key] = previous
		return err
	}
	return nil
}

// flush must be called with d.mu held.
func (d *DiskStorage) flush() error {
	data, err := json.MarshalIndent(d.values, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	tempPath := d.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}
	if err := os.Rename(tempPath, d.path); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}
	return nil
}
