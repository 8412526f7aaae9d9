// Package actions dispatches the outcome of a unit conversion (a reading
// converted, or rejected for a unit mismatch) to registered handlers.
package actions

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type ActionType string

const (
	ConvertedAction ActionType = "converted"
	MismatchAction  ActionType = "mismatch"
)

// ErrNoHandlers is returned by ExecuteAction when nothing is registered for
// the action's type.
var ErrNoHandlers = errors.New("no handlers registered")

type Action struct {
	Type      ActionType
	Channel   string
	Message   string
	Timestamp time.Time
	Err       error
}

type ActionHandler interface {
	Handle(action Action) error
}

// HandlerFunc lets a plain function act as an ActionHandler.
type HandlerFunc func(action Action) error

func (f HandlerFunc) Handle(action Action) error { return f(action) }

// LogHandler writes actions to a logrus logger. Mismatches are logged at
// warning level, everything else at debug level.
type LogHandler struct {
	logger logrus.FieldLogger
}

func NewLogHandler(logger logrus.FieldLogger) *LogHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogHandler{logger: logger}
}

func (h *LogHandler) Handle(action Action) error {
	entry := h.logger.WithFields(logrus.Fields{
		"action":  action.Type,
		"channel": action.Channel,
	})
	if action.Err != nil {
		entry.WithError(action.Err).Warn(action.Message)
		return nil
	}
	entry.Debug(action.Message)
	return nil
}

type ActionRegistry struct {
	mu       sync.RWMutex
	handlers map[ActionType][]ActionHandler
}

func NewActionRegistry() *ActionRegistry {
	return &ActionRegistry{
		handlers: make(map[ActionType][]ActionHandler),
	}
}

func (r *ActionRegistry) RegisterHandler(actionType ActionType, handler ActionHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[actionType] = append(r.handlers[actionType], handler)
}

// ExecuteAction runs every handler registered for the action's type, stopping
// at the first failure.
func (r *ActionRegistry) ExecuteAction(action Action) error {
	r.mu.RLock()
	handlers := make([]ActionHandler, len(r.handlers[action.Type]))
	copy(handlers, r.handlers[action.Type])
	r.mu.RUnlock()

	if len(handlers) == 0 {
		return fmt.Errorf("%w for action type: %s", ErrNoHandlers, action.Type)
	}

	for _, handler := range handlers {
		if err := handler.Handle(action); err != nil {
			return fmt.Errorf("handler error for %s: %w", action.Type, err)
		}
	}
	return nil
}

func (r *ActionRegistry) CreateAction(actionType ActionType, channel, message string, err error) Action {
	return Action{
		Type:      actionType,
		Channel:   channel,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}
