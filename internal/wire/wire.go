// Package wire implements the battle protocol's on-wire text codec: a
// message is a sequence of "name: value" lines, one field per line.
package wire

import (
	"errors"
	"strings"
)

// FieldMessageType is the one field every encodable message must carry.
const FieldMessageType = "message_type"

// ErrMissingType is returned by Encode when the message has no message_type
// field set.
var ErrMissingType = errors.New("wire: message has no message_type field")

// Message is an ordered set of field/value pairs. Fields is kept as a slice
// of pairs (rather than a map) so Encode output is deterministic, which
// matters for tests asserting exact wire bytes.
type Message struct {
	order  []string
	values map[string]string
}

// New returns an empty Message.
func New() *Message {
	return &Message{values: make(map[string]string)}
}

// NewWithType returns a Message pre-populated with message_type.
func NewWithType(messageType string) *Message {
	m := New()
	m.Set(FieldMessageType, messageType)
	return m
}

// Set assigns a field, preserving first-insertion order for Encode.
func (m *Message) Set(name, value string) {
	if m.values == nil {
		m.values = make(map[string]string)
	}
	if _, exists := m.values[name]; !exists {
		m.order = append(m.order, name)
	}
	m.values[name] = value
}

// Clone returns an independent copy of m: mutating the copy (e.g. stamping
// it with its own sequence number before a send) never touches m, so the
// same logical message can be handed to two concurrent consumers safely.
func (m *Message) Clone() *Message {
	cp := &Message{
		order:  append([]string(nil), m.order...),
		values: make(map[string]string, len(m.values)),
	}
	for k, v := range m.values {
		cp.values[k] = v
	}
	return cp
}

// Get returns a field's value and whether it was present.
func (m *Message) Get(name string) (string, bool) {
	v, ok := m.values[name]
	return v, ok
}

// GetOr returns a field's value, or a fallback if absent.
func (m *Message) GetOr(name, fallback string) string {
	if v, ok := m.values[name]; ok {
		return v
	}
	return fallback
}

// Type returns the message_type field, or "" if unset.
func (m *Message) Type() string {
	return m.GetOr(FieldMessageType, "")
}

// Fields returns the field names in insertion order.
func (m *Message) Fields() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Encode renders the message as "name: value" lines joined by "\n". It
// rejects any message lacking message_type, per the wire-codec contract.
func Encode(m *Message) (string, error) {
	if _, ok := m.Get(FieldMessageType); !ok {
		return "", ErrMissingType
	}
	lines := make([]string, 0, len(m.order))
	for _, name := range m.order {
		lines = append(lines, name+": "+m.values[name])
	}
	return strings.Join(lines, "\n"), nil
}

// Decode parses the wire text format back into a Message. Lines are
// trimmed; empty lines and lines without a colon are skipped. The value is
// everything after the first colon, trimmed, so embedded colons survive.
// Decode never fails outright — a message missing message_type is returned
// as-is so the caller (the dispatcher) can treat it as malformed.
func Decode(raw string) *Message {
	m := New()
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		name := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		m.Set(name, value)
	}
	return m
}
