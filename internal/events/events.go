package events

import (
	"context"
)

// Subject constants for the position event bus.
const (
	// Inbound: one RawPositionEvent per message.
	TopicPositionUpdate = "fleet.positions.update"
	// Inbound: JSON array of RawPositionEvent, sent when a consumer (re)joins.
	TopicPositionSnapshot = "fleet.positions.snapshot"
	// Inbound: JSON array of RawPositionEvent that replaces the registry.
	TopicPositionResync = "fleet.positions.resync"

	// Outbound: the full registry snapshot after each publish.
	TopicRegistrySnapshot = "fleet.registry.snapshot"
)

// InboundTopics lists the subjects the ingester subscribes to.
var InboundTopics = []string{TopicPositionUpdate, TopicPositionSnapshot, TopicPositionResync}

// Message is a raw payload received on a subject.
type Message struct {
	Topic string
	Data  []byte
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// ConnState is a transport connectivity transition.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateReconnected
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateReconnected:
		return "reconnected"
	}
	return "unknown"
}

// StateHandler is notified of transport connectivity transitions. It may
// be called from transport goroutines and must not block.
type StateHandler func(ConnState)
