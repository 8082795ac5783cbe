package connection

import (
	"fmt"

	"github.com/rigado/blesec"
)

type EventType int

const (
	EventConnected EventType = iota
	EventDisconnected
	EventSecured
	EventSecurityFailed
	EventConflict
)

var eventStrings = map[EventType]string{
	EventConnected:      "connected",
	EventDisconnected:   "disconnected",
	EventSecured:        "secured",
	EventSecurityFailed: "security failed",
	EventConflict:       "conflict",
}

func (t EventType) String() string {
	if v, ok := eventStrings[t]; ok {
		return v
	}
	return fmt.Sprintf("event(%d)", int(t))
}

// Event is delivered to subscribers on the work queue.
type Event struct {
	Type   EventType
	Handle blesec.Handle
	Peer   blesec.PeerIdentity
	Level  blesec.SecurityLevel

	// Reason is the HCI disconnect reason for EventDisconnected.
	Reason uint8
	Err    error
}

func (e Event) String() string {
	switch e.Type {
	case EventDisconnected:
		return fmt.Sprintf("%s handle %d peer %s: %s", e.Type, e.Handle, e.Peer, blesec.ReasonString(e.Reason))
	case EventSecured:
		return fmt.Sprintf("%s handle %d peer %s at %s", e.Type, e.Handle, e.Peer, e.Level)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s handle %d peer %s: %v", e.Type, e.Handle, e.Peer, e.Err)
	}
	return fmt.Sprintf("%s handle %d peer %s", e.Type, e.Handle, e.Peer)
}
