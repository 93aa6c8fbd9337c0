package codec

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vncsmyrnk/voteworker/internal/core/domain"
	"github.com/vncsmyrnk/voteworker/internal/core/ports"
)

type jsonVoteDecoder struct{}

// NewJSONVoteDecoder decodes records of the form {"voter_id": "...", "vote": "..."}.
func NewJSONVoteDecoder() ports.VoteDecoder {
	return jsonVoteDecoder{}
}

func (jsonVoteDecoder) Decode(record []byte) (domain.Vote, error) {
	var vote domain.Vote
	if err := json.Unmarshal(record, &vote); err != nil {
		return domain.Vote{}, fmt.Errorf("%w: %v", domain.ErrMalformedVote, err)
	}

	var missing []string
	if vote.VoterID == "" {
		missing = append(missing, "voter_id")
	}
	if vote.Choice == "" {
		missing = append(missing, "vote")
	}
	if len(missing) > 0 {
		return domain.Vote{}, fmt.Errorf("%w: missing %s", domain.ErrMalformedVote, strings.Join(missing, ", "))
	}

	return vote, nil
}
