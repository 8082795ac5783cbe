package connection

import (
	"fmt"
	"time"

	"github.com/rigado/blesec"
	"github.com/rigado/blesec/security"
)

type State int

const (
	Connecting State = iota
	Connected
	Disconnecting
	Disconnected
)

var stateStrings = map[State]string{
	Connecting:    "connecting",
	Connected:     "connected",
	Disconnecting: "disconnecting",
	Disconnected:  "disconnected",
}

func (s State) String() string {
	if v, ok := stateStrings[s]; ok {
		return v
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Connection is a read-only view of the active link. The supervisor hands out
// copies; they do not change after they are returned.
type Connection struct {
	handle   blesec.Handle
	peer     blesec.PeerIdentity
	level    blesec.SecurityLevel
	security security.State
	state    State
	since    time.Time
}

func (c *Connection) Handle() blesec.Handle       { return c.handle }
func (c *Connection) Peer() blesec.PeerIdentity   { return c.peer }
func (c *Connection) Level() blesec.SecurityLevel { return c.level }
func (c *Connection) Security() security.State    { return c.security }
func (c *Connection) State() State                { return c.state }
func (c *Connection) Since() time.Time            { return c.since }

// Secured reports whether the link reached its target level.
func (c *Connection) Secured() bool {
	return c.security == security.Secured
}

func (c *Connection) String() string {
	return fmt.Sprintf("handle %d peer %s %s %s (%s)", c.handle, c.peer, c.state, c.security, c.level)
}

func (c *Connection) copy() *Connection {
	cp := *c
	return &cp
}
