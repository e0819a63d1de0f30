package command

import (
	"fmt"
	"os"

	"github.com/pixil98/go-errors"

	"github.com/pixil98/ubichill/internal/instance"
	"github.com/pixil98/ubichill/internal/storage"
)

const worldKind = "World"

type StorageConfig struct {
	TemplatesPath string `json:"templates_path"`
	Watch         bool   `json:"watch"`
	ReloadDelay   string `json:"reload_delay"`
}

func (c *StorageConfig) validate() error {
	el := errors.NewErrorList()

	if c.TemplatesPath != "" {
		info, err := os.Stat(c.TemplatesPath)
		if err != nil {
			el.Add(fmt.Errorf("invalid templates_path %q: %w", c.TemplatesPath, err))
		} else if !info.IsDir() {
			el.Add(fmt.Errorf("templates_path %q is not a directory", c.TemplatesPath))
		}
	}
	if c.Watch && c.TemplatesPath == "" {
		el.Add(fmt.Errorf("watch requires templates_path"))
	}
	_, err := parseOptionalDuration("reload_delay", c.ReloadDelay)
	el.Add(err)

	return el.Err()
}

// buildCatalog loads world templates. The watcher is nil unless watching is
// enabled.
func (c *StorageConfig) buildCatalog() (*instance.Catalog, *storage.Watcher, error) {
	if c.TemplatesPath == "" {
		return instance.NewCatalog(nil), nil, nil
	}

	store, err := storage.NewFileStore[*instance.WorldSpec](c.TemplatesPath, worldKind)
	if err != nil {
		return nil, nil, fmt.Errorf("loading world templates: %w", err)
	}

	var watcher *storage.Watcher
	if c.Watch {
		delay, err := parseOptionalDuration("reload_delay", c.ReloadDelay)
		if err != nil {
			return nil, nil, err
		}
		watcher = storage.NewWatcher(store, delay)
	}

	return instance.NewCatalog(store), watcher, nil
}
