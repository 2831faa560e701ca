package session

// Model is the read-only metadata the core needs about one model.
type Model struct {
	ID   int    `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// ModelCatalog resolves model ids to model metadata. Catalog maintenance is
// an external concern; the session only performs lookups.
type ModelCatalog interface {
	Lookup(modelID int) (Model, bool)
}

// StaticCatalog is a map-backed ModelCatalog.
type StaticCatalog struct {
	models map[int]Model
}

func NewStaticCatalog(models []Model) *StaticCatalog {
	c := &StaticCatalog{models: make(map[int]Model, len(models))}
	for _, m := range models {
		c.models[m.ID] = m
	}
	return c
}

func (c *StaticCatalog) Lookup(modelID int) (Model, bool) {
	m, ok := c.models[modelID]
	return m, ok
}

var _ ModelCatalog = (*StaticCatalog)(nil)
