package persistence

import "github.com/pbaumard/FROST-Server/internal/model"

// EventType is the kind of change an EntityChangedMessage reports.
type EventType int

const (
	EventCreate EventType = iota
	EventUpdate
	EventDelete
)

func (t EventType) String() string {
	switch t {
	case EventCreate:
		return "CREATE"
	case EventUpdate:
		return "UPDATE"
	case EventDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// EntityChangedMessage records which properties an update touched, for
// change notification.
type EntityChangedMessage struct {
	Event  EventType
	Entity *model.Entity
	fields []*model.Property
}

// NewEntityChangedMessage creates a message for e.
func NewEntityChangedMessage(event EventType, e *model.Entity) *EntityChangedMessage {
	return &EntityChangedMessage{Event: event, Entity: e}
}

// AddField records p as changed. Adding a property twice has no effect.
func (m *EntityChangedMessage) AddField(p *model.Property) {
	if m == nil || m.HasField(p) {
		return
	}
	m.fields = append(m.fields, p)
}

// HasField reports whether p was recorded.
func (m *EntityChangedMessage) HasField(p *model.Property) bool {
	for _, f := range m.fields {
		if f == p {
			return true
		}
	}
	return false
}

// Fields returns the changed properties in the order they were recorded.
func (m *EntityChangedMessage) Fields() []*model.Property {
	return append([]*model.Property(nil), m.fields...)
}
