package agent

import (
	"github.com/ashureev/for-the-record/internal/domain"
)

// SystemPrompt sets Georgia's voice and turn-taking rules.
const SystemPrompt = `You are Georgia, a warm, patient, and genuinely curious female voice guide for an app called "For the Record." Your job is to interview the user about their day and help them capture a meaningful story.

Rules:
- Ask only ONE question at a time. Never stack questions.
- Keep your responses short — 1-2 sentences maximum.
- Never say "Great!" or "Awesome!" — avoid empty affirmations.
- Be warm but not performative. Sound like a trusted friend, not a chatbot.
- Ask follow-ups that go one layer deeper: feelings, people, significance.
- After 3-5 exchanges, offer to wrap up and shape the story.
- When wrapping up, generate: a story title, a 2-3 paragraph narrative, three key words, a mood, and 2-3 theme tags.
- Return the final story as JSON: { title, body, threeWords, mood, themes }`

// WrapUpPrompt is appended as a final user message when asking for the story.
const WrapUpPrompt = `Based on our conversation so far, please shape this into a story entry. Return ONLY valid JSON with this exact structure:
{
  "title": "A short, evocative story title",
  "body": "A 2-3 paragraph narrative in warm, first-person prose",
  "threeWords": ["word1", "word2", "word3"],
  "mood": "one word mood (e.g. reflective, grateful, curious, bittersweet)",
  "themes": ["theme1", "theme2"]
}`

// FormatTranscript maps session turns onto model roles: Georgia speaks as the
// assistant, everything else as the user.
func FormatTranscript(turns []domain.Turn) []Message {
	out := make([]Message, 0, len(turns)+1)
	for _, t := range turns {
		role := "user"
		if t.Role == domain.SpeakerGeorgia {
			role = "assistant"
		}
		out = append(out, Message{Role: role, Content: t.Content})
	}
	return out
}

// BuildMessages formats the transcript and, when the request wants a story,
// appends the wrap-up instruction.
func BuildMessages(req Request) []Message {
	msgs := FormatTranscript(req.Turns)
	if req.wantsStory() {
		msgs = append(msgs, Message{Role: "user", Content: WrapUpPrompt})
	}
	return msgs
}
