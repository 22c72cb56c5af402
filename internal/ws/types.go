package ws

// client -> server
const (
	MsgCreate       = "create"
	MsgJoin         = "join"
	MsgMove         = "move"
	MsgResetRequest = "reset_request"
	MsgResetConfirm = "reset_confirm"
	MsgLeave        = "leave"
)

// server -> client (on top of the session's own state/toast/ended events)
const (
	MsgReady  = "ready"
	MsgJoined = "joined"
	MsgLeft   = "left"
	MsgError  = "error"
)

// InboundMessage is the envelope for everything a UI client sends.
type InboundMessage struct {
	Type   string `json:"type"`
	Room   string `json:"room,omitempty"`
	Value  string `json:"value,omitempty"`
	Accept bool   `json:"accept,omitempty"`
}
