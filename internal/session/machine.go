package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/for-the-record/internal/agent"
	"github.com/ashureev/for-the-record/internal/domain"
)

const (
	defaultConverseTimeout = 30 * time.Second
	defaultPlaybackTimeout = 60 * time.Second
	defaultMaxSilentRearms = 3
	saveTimeout            = 10 * time.Second
)

// Config wires a Machine to its collaborators.
type Config struct {
	UserID    string
	Converser Converser
	Capture   Capture
	Playback  Playback
	Store     StoryStore

	// Observer is called with a fresh snapshot after every change, while the
	// machine's lock is held. It must not block or call back into the machine.
	Observer func(Snapshot)
	Metrics  Metrics
	Logger   *slog.Logger
	Now      func() time.Time

	ConverseTimeout time.Duration
	PlaybackTimeout time.Duration
	// MaxSilentRearms bounds how many empty captures in a row re-arm the
	// microphone before the machine waits for DoneTalking or EndNow.
	MaxSilentRearms int
}

// record is the in-memory session. It is replaced wholesale on Begin and Reset.
type record struct {
	state           State
	turns           []domain.Turn
	transcript      string
	story           *domain.StoryDraft
	errMsg          string
	cause           error
	userTurns       int
	speechAvailable bool
	speechErr       string
	savedID         string
}

func newRecord() record {
	return record{state: StateIdle, speechAvailable: true}
}

// Machine sequences capture, conversation, playback and persistence for one
// user. All mutations happen under mu. Collaborator calls run on goroutines
// tagged with the epoch they were issued in; a continuation whose epoch (or
// capture/playback sequence) is no longer current is dropped, so Reset always
// wins over late results.
type Machine struct {
	userID   string
	conv     Converser
	capture  Capture
	playback Playback
	store    StoryStore
	observer func(Snapshot)
	metrics  Metrics
	logger   *slog.Logger
	now      func() time.Time

	converseTimeout time.Duration
	playbackTimeout time.Duration
	maxSilentRearms int

	wg sync.WaitGroup

	mu     sync.Mutex
	epoch  uint64
	ctx    context.Context
	cancel context.CancelFunc
	rec    record

	listenSeq     uint64
	capturing     bool
	captureCancel context.CancelFunc
	silentRearms  int

	speakSeq    uint64
	speaking    bool
	speakCancel context.CancelFunc

	saving bool
}

// New creates an idle machine.
func New(cfg Config) (*Machine, error) {
	switch {
	case cfg.Converser == nil:
		return nil, errors.New("session: converser is required")
	case cfg.Capture == nil:
		return nil, errors.New("session: capture is required")
	case cfg.Playback == nil:
		return nil, errors.New("session: playback is required")
	case cfg.Store == nil:
		return nil, errors.New("session: story store is required")
	}

	m := &Machine{
		userID:          cfg.UserID,
		conv:            cfg.Converser,
		capture:         cfg.Capture,
		playback:        cfg.Playback,
		store:           cfg.Store,
		observer:        cfg.Observer,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger,
		now:             cfg.Now,
		converseTimeout: cfg.ConverseTimeout,
		playbackTimeout: cfg.PlaybackTimeout,
		maxSilentRearms: cfg.MaxSilentRearms,
		rec:             newRecord(),
	}
	if m.metrics == nil {
		m.metrics = noopMetrics{}
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.converseTimeout <= 0 {
		m.converseTimeout = defaultConverseTimeout
	}
	if m.playbackTimeout <= 0 {
		m.playbackTimeout = defaultPlaybackTimeout
	}
	if m.maxSilentRearms <= 0 {
		m.maxSilentRearms = defaultMaxSilentRearms
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m, nil
}

// Snapshot returns a copy of the current session.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// State returns the active state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rec.state
}

// LastError returns the cause of the current error state, if any.
func (m *Machine) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rec.cause
}

// Begin starts a new session with today's opening question. From saved,
// error or story_preview the previous session is torn down first.
func (m *Machine) Begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.rec.state.canBegin() {
		return fmt.Errorf("begin from %s: %w", m.rec.state, ErrInvalidTransition)
	}
	m.teardownLocked()

	opening := agent.OpeningQuestion(m.now())
	m.rec.turns = []domain.Turn{domain.AgentTurn(opening)}
	m.logger.Info("session started", "user_id", m.userID, "epoch", m.epoch)
	m.speakTurnLocked(opening)
	return nil
}

// DoneTalking stops capture early. Accumulated text becomes the user's turn;
// with nothing said it behaves like EndNow.
func (m *Machine) DoneTalking() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rec.state != StateListening {
		return fmt.Errorf("done talking from %s: %w", m.rec.state, ErrInvalidTransition)
	}
	text := strings.TrimSpace(m.stopCaptureLocked())
	if text == "" {
		text = strings.TrimSpace(m.rec.transcript)
	}
	m.silentRearms = 0
	if text == "" {
		m.requestStoryLocked()
		return nil
	}
	m.acceptUtteranceLocked(text)
	return nil
}

// EndNow asks for the story immediately, whatever the turn count. Anything
// captured so far is kept as a final user turn.
func (m *Machine) EndNow() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.rec.state {
	case StateAgentSpeaking, StateListening:
	default:
		return fmt.Errorf("end now from %s: %w", m.rec.state, ErrInvalidTransition)
	}
	m.stopPlaybackLocked()
	text := strings.TrimSpace(m.stopCaptureLocked())
	if text == "" && m.rec.state == StateListening {
		text = strings.TrimSpace(m.rec.transcript)
	}
	if text != "" {
		m.rec.turns = append(m.rec.turns, domain.UserTurn(text))
		m.rec.userTurns++
	}
	m.requestStoryLocked()
	return nil
}

// ConfirmSave persists the previewed story with today's date and the full
// transcript, then plays the confirmation phrase. It returns the new story id,
// or ErrNothingToSave without changing anything when there is no story to save.
func (m *Machine) ConfirmSave(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.rec.state != StateStoryPreview || m.rec.story == nil || m.saving {
		m.mu.Unlock()
		return "", ErrNothingToSave
	}
	epoch := m.epoch
	story := domain.NewStoryFromDraft(*m.rec.story, m.now(), m.rec.turns)
	m.saving = true
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, saveTimeout)
	id, err := m.store.CreateStory(ctx, m.userID, story)
	cancel()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.saving = false

	if err != nil {
		m.logger.Error("failed to save story", "user_id", m.userID, "error", err)
		if epoch == m.epoch && m.rec.state == StateStoryPreview {
			m.rec.errMsg = MsgSaveFailed
			m.notifyLocked()
		}
		return "", fmt.Errorf("save story: %w", err)
	}
	if id == "" {
		return "", fmt.Errorf("save story: %w", errors.New("store returned an empty id"))
	}

	m.metrics.RecordStorySaved()
	m.logger.Info("story saved", "user_id", m.userID, "story_id", id, "epoch", epoch)
	if epoch != m.epoch || m.rec.state != StateStoryPreview {
		// Reset won the race; the story is stored but the session is gone.
		return id, nil
	}
	m.rec.savedID = id
	m.rec.errMsg = ""
	m.transitionLocked(StateSaved)
	m.speakLocked(SavedPhrase, nil)
	return id, nil
}

// Reset cancels everything in flight and returns to idle with an empty session.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked()
	m.transitionLocked(StateIdle)
}

// Close resets the machine and waits for its goroutines to finish.
func (m *Machine) Close() {
	m.Reset()
	m.mu.Lock()
	m.cancel()
	m.mu.Unlock()
	m.wg.Wait()
}

// teardownLocked stops collaborators, invalidates every outstanding
// continuation and discards the session record.
func (m *Machine) teardownLocked() {
	m.stopPlaybackLocked()
	m.stopCaptureLocked()
	m.cancel()
	m.epoch++
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.silentRearms = 0
	from := m.rec.state
	m.rec = newRecord()
	m.rec.state = from
}

// transitionLocked moves to a new state and reports it.
func (m *Machine) transitionLocked(to State) {
	from := m.rec.state
	m.rec.state = to
	if from != to {
		m.metrics.RecordTransition(string(from), string(to))
		m.logger.Debug("session transition", "user_id", m.userID, "from", from, "to", to, "epoch", m.epoch)
	}
	m.notifyLocked()
}

func (m *Machine) notifyLocked() {
	if m.observer != nil {
		m.observer(m.snapshotLocked())
	}
}

func (m *Machine) snapshotLocked() Snapshot {
	snap := Snapshot{
		Epoch:           m.epoch,
		State:           m.rec.state,
		Turns:           domain.CloneTurns(m.rec.turns),
		Transcript:      m.rec.transcript,
		Error:           m.rec.errMsg,
		UserTurns:       m.rec.userTurns,
		SpeechAvailable: m.rec.speechAvailable,
		SpeechError:     m.rec.speechErr,
		SavedStoryID:    m.rec.savedID,
	}
	if snap.Turns == nil {
		snap.Turns = []domain.Turn{}
	}
	if m.rec.story != nil {
		draft := *m.rec.story
		draft.Themes = append([]string(nil), draft.Themes...)
		snap.Story = &draft
	}
	return snap
}

func (m *Machine) failLocked(msg string, cause error) {
	m.logger.Warn("session failed", "user_id", m.userID, "state", m.rec.state, "error", cause)
	m.rec.errMsg = msg
	m.rec.cause = cause
	m.transitionLocked(StateError)
}

// goLocked runs fn on a tracked goroutine.
func (m *Machine) goLocked(fn func()) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		fn()
	}()
}

// speakTurnLocked speaks Georgia's line and starts listening once playback ends.
func (m *Machine) speakTurnLocked(text string) {
	m.transitionLocked(StateAgentSpeaking)
	m.speakLocked(text, func() {
		if m.rec.state == StateAgentSpeaking {
			m.startListeningLocked()
		}
	})
}

// speakLocked starts playback of text. When playback returns in the same epoch
// and has not been stopped, the speech outcome is recorded and then runs under
// the lock. A playback failure never blocks progress.
func (m *Machine) speakLocked(text string, then func()) {
	m.stopPlaybackLocked()
	m.speakSeq++
	seq, epoch := m.speakSeq, m.epoch
	ctx, cancel := context.WithTimeout(m.ctx, m.playbackTimeout)
	m.speaking = true
	m.speakCancel = cancel

	m.goLocked(func() {
		err := m.playback.Speak(ctx, text)
		cancel()

		m.mu.Lock()
		defer m.mu.Unlock()
		if epoch != m.epoch || seq != m.speakSeq {
			return
		}
		m.speaking = false
		m.speakCancel = nil
		if err != nil {
			m.metrics.RecordSpeechFailure()
			m.logger.Warn("speech playback failed", "user_id", m.userID, "error", err)
			m.rec.speechAvailable = false
			m.rec.speechErr = err.Error()
		} else {
			m.rec.speechAvailable = true
			m.rec.speechErr = ""
		}
		if then != nil {
			then()
		} else {
			m.notifyLocked()
		}
	})
}

func (m *Machine) stopPlaybackLocked() {
	if !m.speaking {
		return
	}
	m.speaking = false
	m.speakSeq++
	if m.speakCancel != nil {
		m.speakCancel()
		m.speakCancel = nil
	}
	m.playback.Stop()
}

// startListeningLocked arms capture. Handlers carry the capture sequence so
// results from a stopped capture are ignored.
func (m *Machine) startListeningLocked() {
	m.rec.transcript = ""
	m.listenSeq++
	seq, epoch := m.listenSeq, m.epoch
	ctx, cancel := context.WithCancel(m.ctx)
	m.capturing = true
	m.captureCancel = cancel
	m.transitionLocked(StateListening)

	handlers := CaptureHandlers{
		OnPartial: func(text string) { m.onPartial(epoch, seq, text) },
		OnFinal:   func(text string) { m.onFinal(epoch, seq, text) },
		OnError:   func(err error) { m.onCaptureError(epoch, seq, err) },
	}
	m.goLocked(func() {
		if err := m.capture.Start(ctx, handlers); err != nil {
			m.onCaptureError(epoch, seq, err)
		}
	})
}

// stopCaptureLocked ends the active capture, if any, and returns its text.
func (m *Machine) stopCaptureLocked() string {
	if !m.capturing {
		return ""
	}
	m.capturing = false
	m.listenSeq++
	if m.captureCancel != nil {
		m.captureCancel()
		m.captureCancel = nil
	}
	return m.capture.Stop()
}

// currentCaptureLocked reports whether a callback belongs to the live capture.
func (m *Machine) currentCaptureLocked(epoch, seq uint64) bool {
	return epoch == m.epoch && seq == m.listenSeq && m.capturing && m.rec.state == StateListening
}

func (m *Machine) onPartial(epoch, seq uint64, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.currentCaptureLocked(epoch, seq) {
		return
	}
	m.rec.transcript = text
	m.notifyLocked()
}

// onFinal handles a completed capture. Silence re-arms the microphone a
// bounded number of times and never advances the session.
func (m *Machine) onFinal(epoch, seq uint64, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.currentCaptureLocked(epoch, seq) {
		return
	}
	m.capturing = false
	if m.captureCancel != nil {
		m.captureCancel()
		m.captureCancel = nil
	}

	text = strings.TrimSpace(text)
	if text == "" {
		m.silentRearms++
		if m.silentRearms <= m.maxSilentRearms {
			m.logger.Debug("empty capture, listening again", "user_id", m.userID, "attempt", m.silentRearms)
			m.startListeningLocked()
			return
		}
		m.logger.Info("capture stayed silent, waiting for user action", "user_id", m.userID)
		m.rec.transcript = ""
		m.notifyLocked()
		return
	}
	m.silentRearms = 0
	m.acceptUtteranceLocked(text)
}

func (m *Machine) onCaptureError(epoch, seq uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.currentCaptureLocked(epoch, seq) {
		return
	}
	m.capturing = false
	if m.captureCancel != nil {
		m.captureCancel()
		m.captureCancel = nil
	}
	if err == nil {
		err = errors.New("speech capture failed")
	}
	m.failLocked(err.Error(), err)
}

// acceptUtteranceLocked appends the user's turn and asks for the next step.
func (m *Machine) acceptUtteranceLocked(text string) {
	m.rec.turns = append(m.rec.turns, domain.UserTurn(text))
	m.rec.userTurns++
	m.rec.transcript = text
	m.transitionLocked(StateProcessing)
	m.converseLocked(agent.Request{
		Turns:  domain.CloneTurns(m.rec.turns),
		WrapUp: m.rec.userTurns >= WrapUpAfter,
	})
}

// requestStoryLocked forces a wrap-up request.
func (m *Machine) requestStoryLocked() {
	m.transitionLocked(StateGeneratingStory)
	m.converseLocked(agent.Request{
		Turns:      domain.CloneTurns(m.rec.turns),
		WrapUp:     true,
		ForceStory: true,
	})
}

func (m *Machine) converseLocked(req agent.Request) {
	epoch := m.epoch
	expect := m.rec.state
	ctx, cancel := context.WithTimeout(m.ctx, m.converseTimeout)

	m.goLocked(func() {
		reply, err := m.conv.Converse(ctx, req)
		cancel()

		m.mu.Lock()
		defer m.mu.Unlock()
		if epoch != m.epoch || m.rec.state != expect {
			return
		}
		m.handleReplyLocked(req, reply, err)
	})
}

func (m *Machine) handleReplyLocked(req agent.Request, reply *agent.Reply, err error) {
	failMsg := MsgConverseFailed
	if req.ForceStory {
		failMsg = MsgStoryFailed
	}
	if err != nil {
		m.failLocked(failMsg, err)
		return
	}
	if reply == nil {
		m.failLocked(failMsg, agent.ErrEmptyReply)
		return
	}

	if reply.Story != nil {
		draft := *reply.Story
		m.rec.story = &draft
		m.transitionLocked(StateStoryPreview)
		return
	}
	if req.ForceStory {
		m.failLocked(MsgStoryFailed, ErrNoStory)
		return
	}

	msg := strings.TrimSpace(reply.Message)
	if msg == "" {
		m.failLocked(failMsg, agent.ErrEmptyReply)
		return
	}
	m.rec.turns = append(m.rec.turns, domain.AgentTurn(msg))
	m.speakTurnLocked(msg)
}
