package domain

// Vote is a single vote event read from the queue.
type Vote struct {
	VoterID string `json:"voter_id"`
	Choice  string `json:"vote"`
}

// VoteRecord is the persisted latest vote of a voter.
type VoteRecord struct {
	ID   string
	Vote string
}

type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connected
)

func (s ConnectionState) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// StateOf maps a health check result to a ConnectionState.
func StateOf(ok bool) ConnectionState {
	if ok {
		return Connected
	}
	return Disconnected
}
