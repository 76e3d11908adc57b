package deobfuscator

import (
	"sort"
	"sync"
)

// Catalog is an immutable, priority ordered list of schemes.
type Catalog struct {
	schemes []Scheme
}

// NewCatalog orders schemes by descending priority. Schemes with equal
// priority keep the order they were passed in.
func NewCatalog(schemes ...Scheme) *Catalog {
	sorted := append([]Scheme(nil), schemes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() > sorted[j].Priority()
	})
	return &Catalog{schemes: sorted}
}

func (c *Catalog) Schemes() []Scheme {
	return append([]Scheme(nil), c.schemes...)
}

func (c *Catalog) Len() int {
	return len(c.schemes)
}

func (c *Catalog) Lookup(name string) (Scheme, bool) {
	for _, s := range c.schemes {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}

// BuiltinSchemes returns fresh instances of every known scheme in
// registration order.
func BuiltinSchemes() []Scheme {
	return []Scheme{
		newOnePiece(),
		newMiscCn(),
		newFairGuard(),
		newFairGuard2(),
		newNetease(),
		newShengqu(),
		newNaruto(),
		newXinYuan(),
		newNikke(),
		newHoloearth(),
		newOnePunch(),
		newJewelPri(),
		newFakeHeader(),
		newTenkafuMA(),
		newSekai(),
		newSingleByteXor(),
	}
}

var (
	defaultCatalog     *Catalog
	defaultCatalogOnce sync.Once
)

// DefaultCatalog is built on first use and shared afterwards.
func DefaultCatalog() *Catalog {
	defaultCatalogOnce.Do(func() {
		defaultCatalog = NewCatalog(BuiltinSchemes()...)
		logger.Debugf("Loaded %d deobfuscation schemes", defaultCatalog.Len())
	})
	return defaultCatalog
}
