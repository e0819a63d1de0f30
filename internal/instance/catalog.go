package instance

import (
	"sort"

	"github.com/pixil98/ubichill/internal/storage"
)

// TemplateSource looks up world templates by id.
type TemplateSource interface {
	Template(id string) (*Template, bool)
	Templates() []*Template
}

// AssetStore is the subset of the template file store the catalog reads.
type AssetStore interface {
	GetAll() map[string]*storage.Asset[*WorldSpec]
}

// Catalog resolves template files into Templates. When no files are
// loaded it serves DefaultTemplate instead.
type Catalog struct {
	assets AssetStore
}

func NewCatalog(assets AssetStore) *Catalog {
	return &Catalog{assets: assets}
}

func (c *Catalog) Template(id string) (*Template, bool) {
	assets := c.loaded()
	if len(assets) == 0 {
		if id == DefaultTemplateID {
			return DefaultTemplate(), true
		}
		return nil, false
	}

	a, ok := assets[id]
	if !ok {
		return nil, false
	}
	return Resolve(id, a.Metadata.Version, a.Spec), true
}

// Templates returns every available template sorted by id.
func (c *Catalog) Templates() []*Template {
	assets := c.loaded()
	if len(assets) == 0 {
		return []*Template{DefaultTemplate()}
	}

	out := make([]*Template, 0, len(assets))
	for id, a := range assets {
		out = append(out, Resolve(id, a.Metadata.Version, a.Spec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *Catalog) loaded() map[string]*storage.Asset[*WorldSpec] {
	if c.assets == nil {
		return nil
	}
	return c.assets.GetAll()
}
