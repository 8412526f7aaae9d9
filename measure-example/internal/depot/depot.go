// Package depot is a small fuel depot: tanks hold a level expressed in a
// catalog unit, and fills and transfers may arrive in any compatible unit.
//
// Every level change is published to a conversion feed, one channel per
// tank, so the feed shows each tank in its own unit.
package depot

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/chosenoffset/measure/measure-example/internal/catalog"
	"github.com/chosenoffset/measure/pkg/units"
	"github.com/chosenoffset/measure/pkg/units/feed"
)

var (
	ErrTankExists        = errors.New("tank already exists")
	ErrTankNotFound      = errors.New("tank not found")
	ErrInsufficientLevel = errors.New("insufficient level")
	ErrInvalidQuantity   = errors.New("quantity must be positive and finite")
	ErrSameTank          = errors.New("source and destination are the same tank")
)

// Publisher receives tank levels. *feed.Server satisfies it.
type Publisher interface {
	AddChannel(name string, display *units.Unit) error
	Publish(channel, source string, m units.Measure) (feed.Reading, error)
}

// Depot manages tank levels. All operations are safe for concurrent use.
type Depot struct {
	mu      sync.RWMutex
	tanks   map[string]units.Measure
	catalog *catalog.Catalog
	feed    Publisher
	logger  logrus.FieldLogger
}

// New returns an empty depot. publisher may be nil.
func New(c *catalog.Catalog, publisher Publisher, logger logrus.FieldLogger) *Depot {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Depot{
		tanks:   make(map[string]units.Measure),
		catalog: c,
		feed:    publisher,
		logger:  logger,
	}
}

func validQuantity(q float64) bool {
	return q > 0 && !math.IsInf(q, 0)
}

// ChannelName is the feed channel carrying a tank's level.
func ChannelName(id string) string {
	return "tank/" + id
}

// CreateTank adds an empty tank measured in the catalog unit unitKey.
func (d *Depot) CreateTank(id, unitKey string) error {
	unit, err := d.catalog.Lookup(unitKey)
	if err != nil {
		return err
	}

	d.mu.Lock()
	if _, exists := d.tanks[id]; exists {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTankExists, id)
	}
	level := units.New(0, unit)
	d.tanks[id] = level
	d.mu.Unlock()

	if d.feed != nil {
		if err := d.feed.AddChannel(ChannelName(id), unit); err != nil {
			d.mu.Lock()
			delete(d.tanks, id)
			d.mu.Unlock()
			return fmt.Errorf("register feed channel: %w", err)
		}
	}
	d.publish(id, level)
	return nil
}

// Fill adds amount to a tank. The amount may be in any unit compatible with
// the tank's.
func (d *Depot) Fill(id string, amount units.Measure) (units.Measure, error) {
	if !validQuantity(amount.Quantity()) {
		return units.Measure{}, ErrInvalidQuantity
	}

	d.mu.Lock()
	level, ok := d.tanks[id]
	if !ok {
		d.mu.Unlock()
		return units.Measure{}, fmt.Errorf("%w: %s", ErrTankNotFound, id)
	}
	next, err := level.Add(amount)
	if err != nil {
		d.mu.Unlock()
		return units.Measure{}, fmt.Errorf("fill %s: %w", id, err)
	}
	if math.IsInf(next.Quantity(), 0) {
		d.mu.Unlock()
		return units.Measure{}, fmt.Errorf("fill %s: %w: level overflows", id, ErrInvalidQuantity)
	}
	d.tanks[id] = next
	d.mu.Unlock()

	d.publish(id, next)
	return next, nil
}

// Transfer moves amount from one tank to another. Both tanks must be able to
// express amount, and the source must hold at least that much.
func (d *Depot) Transfer(from, to string, amount units.Measure) error {
	if !validQuantity(amount.Quantity()) {
		return ErrInvalidQuantity
	}
	if from == to {
		return fmt.Errorf("%w: %s", ErrSameTank, from)
	}

	d.mu.Lock()
	fromLevel, fromOk := d.tanks[from]
	toLevel, toOk := d.tanks[to]
	if !fromOk || !toOk {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrTankNotFound, from, to)
	}

	drained, err := fromLevel.Sub(amount)
	if err != nil {
		d.mu.Unlock()
		return fmt.Errorf("transfer from %s: %w", from, err)
	}
	filled, err := toLevel.Add(amount)
	if err != nil {
		d.mu.Unlock()
		return fmt.Errorf("transfer to %s: %w", to, err)
	}
	if math.IsInf(filled.Quantity(), 0) {
		d.mu.Unlock()
		return fmt.Errorf("transfer to %s: %w: level overflows", to, ErrInvalidQuantity)
	}
	// tolerate rounding left over from the conversion
	if drained.Quantity() < -units.Epsilon*fromLevel.Quantity() {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s holds %s", ErrInsufficientLevel, from, fromLevel)
	}
	if drained.Quantity() < 0 {
		drained = units.New(0, drained.Unit())
	}

	d.tanks[from] = drained
	d.tanks[to] = filled
	d.mu.Unlock()

	d.publish(from, drained)
	d.publish(to, filled)
	return nil
}

// Level returns a tank's level, converted to the catalog unit unitKey when
// it is not empty.
func (d *Depot) Level(id, unitKey string) (units.Measure, error) {
	d.mu.RLock()
	level, ok := d.tanks[id]
	d.mu.RUnlock()
	if !ok {
		return units.Measure{}, fmt.Errorf("%w: %s", ErrTankNotFound, id)
	}
	if unitKey == "" {
		return level, nil
	}

	unit, err := d.catalog.Lookup(unitKey)
	if err != nil {
		return units.Measure{}, err
	}
	converted, err := level.Convert(unit)
	if err != nil {
		return units.Measure{}, fmt.Errorf("level of %s: %w", id, err)
	}
	return converted, nil
}

// Tanks returns the tank ids in sorted order.
func (d *Depot) Tanks() []string {
	d.mu.RLock()
	ids := make([]string, 0, len(d.tanks))
	for id := range d.tanks {
		ids = append(ids, id)
	}
	d.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

func (d *Depot) publish(id string, level units.Measure) {
	if d.feed == nil {
		return
	}
	if _, err := d.feed.Publish(ChannelName(id), "depot", level); err != nil {
		d.logger.WithField("tank", id).WithError(err).Warn("publish level")
	}
}
