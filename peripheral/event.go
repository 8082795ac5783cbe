package peripheral

import (
	"github.com/rigado/blesec/connection"
	"github.com/rigado/blesec/smp"
)

// Event is either a connection event or a pairing session transition.
type Event struct {
	Conn    *connection.Event
	Session *smp.Session
}

func (e Event) String() string {
	switch {
	case e.Conn != nil:
		return e.Conn.String()
	case e.Session != nil:
		return e.Session.String()
	}
	return "empty event"
}

func connEvent(ce connection.Event) Event {
	return Event{Conn: &ce}
}

func sessionEvent(s smp.Session) Event {
	return Event{Session: &s}
}

// IsConn reports whether e is a connection event of type t.
func (e Event) IsConn(t connection.EventType) bool {
	return e.Conn != nil && e.Conn.Type == t
}

// IsSession reports whether e is a session transition to o.
func (e Event) IsSession(o smp.Outcome) bool {
	return e.Session != nil && e.Session.Outcome() == o
}
