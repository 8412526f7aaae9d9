// Package catalog holds the units the depot understands, keyed by the short
// names clients send over the wire.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/chosenoffset/measure/pkg/units"
)

var (
	ErrUnknownUnit   = errors.New("unknown unit")
	ErrDuplicateUnit = errors.New("unit key already registered")
)

// Catalog maps keys to units. It is safe for concurrent use.
type Catalog struct {
	mu    sync.RWMutex
	units map[string]*units.Unit
}

func New() *Catalog {
	return &Catalog{units: make(map[string]*units.Unit)}
}

// Register adds u under key.
func (c *Catalog) Register(key string, u *units.Unit) error {
	if key == "" || u == nil {
		return fmt.Errorf("register %q: key and unit are required", key)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.units[key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateUnit, key)
	}
	c.units[key] = u
	return nil
}

func (c *Catalog) Lookup(key string) (*units.Unit, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.units[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUnit, key)
	}
	return u, nil
}

// Keys returns the registered keys in sorted order.
func (c *Catalog) Keys() []string {
	c.mu.RLock()
	keys := make([]string, 0, len(c.units))
	for k := range c.units {
		keys = append(keys, k)
	}
	c.mu.RUnlock()

	sort.Strings(keys)
	return keys
}

// Standard returns a catalog of volume, mass and flow units built from the
// metre, the kilogram and the second.
func Standard() *Catalog {
	m := units.NewBase("m")
	kg := units.NewBase("kg")
	s := units.NewBase("s")

	m3 := m.Mul(m).Mul(m).Named("m3")
	l := units.Must(m3.DivScalar(1000)).Named("L")
	gal := units.Must(l.MulScalar(3.785411784)).Named("gal")
	bbl := units.Must(gal.MulScalar(42)).Named("bbl")

	t := units.Must(kg.MulScalar(1000)).Named("t")
	lb := units.Must(kg.MulScalar(0.45359237)).Named("lb")

	min := units.Must(s.MulScalar(60)).Named("min")
	h := units.Must(min.MulScalar(60)).Named("h")

	c := New()
	for key, u := range map[string]*units.Unit{
		"m":     m,
		"kg":    kg,
		"s":     s,
		"m3":    m3,
		"L":     l,
		"gal":   gal,
		"bbl":   bbl,
		"t":     t,
		"lb":    lb,
		"min":   min,
		"h":     h,
		"L/min": l.Div(min).Named("L/min"),
		"gal/h": gal.Div(h).Named("gal/h"),
	} {
		// keys are unique literals
		_ = c.Register(key, u)
	}
	return c
}
