package domain

// Speaker tags the author of a turn.
type Speaker string

const (
	// SpeakerGeorgia marks a turn spoken by the agent.
	SpeakerGeorgia Speaker = "georgia"
	// SpeakerUser marks a turn spoken by the user.
	SpeakerUser Speaker = "user"
)

// Valid reports whether s is a known speaker.
func (s Speaker) Valid() bool {
	return s == SpeakerGeorgia || s == SpeakerUser
}

// Turn is one utterance within a session. Turns are never edited after they are appended.
type Turn struct {
	Role    Speaker `json:"role"`
	Content string  `json:"content"`
}

// AgentTurn builds a turn authored by Georgia.
func AgentTurn(text string) Turn {
	return Turn{Role: SpeakerGeorgia, Content: text}
}

// UserTurn builds a turn authored by the user.
func UserTurn(text string) Turn {
	return Turn{Role: SpeakerUser, Content: text}
}

// CountUserTurns returns how many turns in the history were spoken by the user.
func CountUserTurns(turns []Turn) int {
	n := 0
	for _, t := range turns {
		if t.Role == SpeakerUser {
			n++
		}
	}
	return n
}

// CloneTurns returns a copy of turns that callers may keep without aliasing.
func CloneTurns(turns []Turn) []Turn {
	if turns == nil {
		return nil
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}
