package agent

import "time"

var openingQuestions = []string{
	"What from today is still with you — a moment, a feeling, a conversation, anything at all?",
	"What's lingering from today — something you saw, felt, said, or wondered about?",
	"What moment from today do you find yourself returning to?",
	"Something from today is still with you. What is it?",
	"What from today hasn't quite let go of you yet?",
	"What did today stir in you — big or small, expected or not?",
	"What's still alive in you from today — a thought, a feeling, a face, a moment?",
	"What did you carry home from today without meaning to?",
	"If today left a mark on you, what would it be?",
	"What's one thing from today you don't want to lose?",
}

// OpeningQuestions returns a copy of the rotating pool of opening lines.
func OpeningQuestions() []string {
	return append([]string(nil), openingQuestions...)
}

// OpeningQuestion picks the opening line for the calendar day of t. The result
// depends only on the day of the year in t's location, never on the time of day.
func OpeningQuestion(t time.Time) string {
	return openingQuestions[t.YearDay()%len(openingQuestions)]
}
