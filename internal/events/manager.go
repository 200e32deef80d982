package events

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
)

// EventType represents different event types
type EventType string

const (
	HoldingsImported   EventType = "HOLDINGS_IMPORTED"
	HoldingUpdated     EventType = "HOLDING_UPDATED"
	RulesUpdated       EventType = "RULES_UPDATED"
	PriceSyncStart     EventType = "PRICE_SYNC_START"
	PriceSyncComplete  EventType = "PRICE_SYNC_COMPLETE"
	AllocationComputed EventType = "ALLOCATION_COMPUTED"
	AccountCreated     EventType = "ACCOUNT_CREATED"
	ErrorOccurred      EventType = "ERROR_OCCURRED"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}

// Manager handles event emission and logging
type Manager struct {
	log zerolog.Logger
}

// NewManager creates a new event manager
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		log: log.With().Str("service", "events").Logger(),
	}
}

// Emit emits an event
func (m *Manager) Emit(eventType EventType, module string, data map[string]interface{}) {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
		Module:    module,
	}

	eventJSON, _ := json.Marshal(event)
	m.log.Info().
		Str("event_type", string(eventType)).
		Str("module", module).
		RawJSON("event", eventJSON).
		Msg("Event emitted")
}

// EmitError emits an error event
func (m *Manager) EmitError(module string, err error, context map[string]interface{}) {
	data := map[string]interface{}{
		"error":   err.Error(),
		"context": context,
	}
	m.Emit(ErrorOccurred, module, data)
}
