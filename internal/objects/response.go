package objects

type ErrorResponse struct {
	Error Error `json:"error"`
}

type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`

	// Reason carries the stable denial reason code when the error is an
	// access decision.
	Reason string `json:"reason,omitempty"`
}
