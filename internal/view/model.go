package view

// Phase - экран, который должен показывать клиент
type Phase string

const (
	PhaseWaiting Phase = "waiting" // host alone, waiting for an opponent
	PhasePlaying Phase = "playing"
)

// Model is the render-ready projection of a session snapshot for one seat.
// The UI layer consumes it as-is; it never reads the shared record directly.
type Model struct {
	RoomCode string `json:"room_code"`
	Seat     int    `json:"seat"`
	Phase    Phase  `json:"phase"`

	Round     int `json:"round"`
	YourScore int `json:"your_score"`
	OppScore  int `json:"opp_score"`
	Ties      int `json:"ties"`

	YourMoved bool `json:"your_moved"`
	OppMoved  bool `json:"opp_moved"`

	// Revealed only once both moves are in; until then the opponent's move
	// is masked behind OppMoved.
	YourMove string `json:"your_move,omitempty"`
	OppMove  string `json:"opp_move,omitempty"`
	Result   string `json:"result,omitempty"` // win | lose | draw

	ResetPrompt   bool `json:"reset_prompt"`   // opponent asked for a reset
	AwaitingReset bool `json:"awaiting_reset"` // own request pending
}
