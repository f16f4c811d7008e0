package live

import "github.com/ashureev/for-the-record/internal/session"

// Client to server message types.
const (
	msgBegin           = "begin"
	msgDoneTalking     = "done_talking"
	msgEndNow          = "end_now"
	msgSave            = "save"
	msgReset           = "reset"
	msgPartial         = "partial"
	msgFinal           = "final"
	msgCaptureError    = "capture_error"
	msgPlaybackStarted = "playback_started"
	msgPlaybackEnded   = "playback_ended"
	msgPlaybackError   = "playback_error"
	msgPing            = "ping"
)

// Server to client message types.
const (
	msgState         = "state"
	msgListen        = "listen"
	msgStopListening = "stop_listening"
	msgSpeakLocal    = "speak_local"
	msgAudio         = "audio"
	msgStopSpeaking  = "stop_speaking"
	msgSaved         = "saved"
	msgReminder      = "reminder"
	msgPong          = "pong"
	msgError         = "error"
)

// inbound is any message sent by the browser.
type inbound struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
	ID    uint64 `json:"id,omitempty"`
}

// outbound is any JSON message sent to the browser. Binary MP3 frames follow
// an "audio" message carrying the same playback id.
type outbound struct {
	Type    string            `json:"type"`
	Session *session.Snapshot `json:"session,omitempty"`
	ID      uint64            `json:"id,omitempty"`
	Text    string            `json:"text,omitempty"`
	StoryID string            `json:"storyId,omitempty"`
	Message string            `json:"message,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// ReminderMessage builds the payload pushed to live connections for a daily reminder.
func ReminderMessage(text string) any {
	return outbound{Type: msgReminder, Message: text}
}
