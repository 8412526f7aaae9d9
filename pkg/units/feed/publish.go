package feed

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chosenoffset/measure/pkg/units"
	"github.com/chosenoffset/measure/pkg/units/actions"
)

// Reading is a measure accepted on a channel, expressed in its display unit.
type Reading struct {
	Channel   string    `json:"channel"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Quantity  float64   `json:"quantity"`
	Unit      string    `json:"unit"`
	Text      string    `json:"text"`

	measure units.Measure
}

// Measure returns the converted measure.
func (r Reading) Measure() units.Measure { return r.measure }

// Rejection describes a measure refused by a channel.
type Rejection struct {
	Channel   string    `json:"channel"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Given     string    `json:"given"`
	Error     string    `json:"error"`
}

type message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func finite(q float64) bool {
	return !math.IsNaN(q) && !math.IsInf(q, 0)
}

// Publish converts m into the channel's display unit, records it and
// broadcasts it. A measure whose unit is incompatible with the channel is
// broadcast as a rejection and the error wraps units.ErrUnitMismatch. NaN and
// infinite quantities, before or after conversion, are refused with
// ErrNonFinite and never enter the history.
func (s *Server) Publish(channel, source string, m units.Measure) (Reading, error) {
	s.mutex.RLock()
	st, ok := s.channels[channel]
	s.mutex.RUnlock()
	if !ok {
		return Reading{}, fmt.Errorf("%w: %s", ErrUnknownChannel, channel)
	}
	if m.Unit() == nil {
		return Reading{}, fmt.Errorf("publish to %s: %w", channel, units.ErrInvalidOperand)
	}
	if !finite(m.Quantity()) {
		return Reading{}, fmt.Errorf("publish to %s: %w: %v", channel, ErrNonFinite, m.Quantity())
	}

	converted, err := m.Convert(st.channel.Display)
	if err != nil {
		s.reject(channel, source, m, err)
		return Reading{}, fmt.Errorf("publish to %s: %w", channel, err)
	}
	if !finite(converted.Quantity()) {
		return Reading{}, fmt.Errorf("publish %s to %s: %w in %s", m, channel, ErrNonFinite, st.channel.Display)
	}

	reading := Reading{
		Channel:   channel,
		Source:    source,
		Timestamp: time.Now(),
		Quantity:  converted.Quantity(),
		Unit:      converted.Unit().String(),
		Text:      converted.String(),
		measure:   converted,
	}

	s.mutex.Lock()
	st.history[st.index] = reading
	st.index = (st.index + 1) % len(st.history)
	if st.count < len(st.history) {
		st.count++
	}
	s.mutex.Unlock()

	s.conversions.ObserveConverted(channel, converted)
	s.dispatch(actions.ConvertedAction, channel, fmt.Sprintf("%s -> %s", m, converted), nil)
	s.enqueue(message{Type: "reading", Data: reading})
	return reading, nil
}

func (s *Server) reject(channel, source string, m units.Measure, err error) {
	s.conversions.ObserveRejected(channel)
	s.dispatch(actions.MismatchAction, channel, fmt.Sprintf("rejected %s", m), err)
	s.enqueue(message{Type: "rejected", Data: Rejection{
		Channel:   channel,
		Source:    source,
		Timestamp: time.Now(),
		Given:     m.String(),
		Error:     err.Error(),
	}})
}

// History returns up to limit of the channel's most recent readings, oldest
// first. A limit of zero or less returns everything kept.
func (s *Server) History(channel string, limit int) ([]Reading, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	st, ok := s.channels[channel]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, channel)
	}

	n := st.count
	if limit > 0 && limit < n {
		n = limit
	}
	size := len(st.history)
	out := make([]Reading, n)
	// index points one past the newest reading
	start := st.index - n
	for i := 0; i < n; i++ {
		out[i] = st.history[((start+i)%size+size)%size]
	}
	return out, nil
}

func (s *Server) dispatch(t actions.ActionType, channel, msg string, cause error) {
	if s.actions == nil {
		return
	}
	err := s.actions.ExecuteAction(s.actions.CreateAction(t, channel, msg, cause))
	if err != nil && !errors.Is(err, actions.ErrNoHandlers) {
		s.logger.WithFields(logrus.Fields{"channel": channel, "action": t}).WithError(err).Warn("action failed")
	}
}

func (s *Server) enqueue(msg message) {
	select {
	case s.messages <- msg:
	default:
		s.logger.WithField("type", msg.Type).Debug("broadcast queue full, dropping message")
	}
}
