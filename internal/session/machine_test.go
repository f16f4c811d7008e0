package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/for-the-record/internal/agent"
	"github.com/ashureev/for-the-record/internal/domain"
)

var fixedNow = time.Date(2026, time.October, 14, 21, 30, 0, 0, time.UTC)

type fakeConverser struct {
	mu       sync.Mutex
	requests []agent.Request
	respond  func(req agent.Request) (*agent.Reply, error)
	// gate, when set, holds every reply until closed and ignores cancellation.
	gate     chan struct{}
	returned int
}

func (f *fakeConverser) Converse(_ context.Context, req agent.Request) (*agent.Reply, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	respond, gate := f.respond, f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	defer func() {
		f.mu.Lock()
		f.returned++
		f.mu.Unlock()
	}()
	if respond == nil {
		return &agent.Reply{Message: "Tell me more about that."}, nil
	}
	return respond(req)
}

func (f *fakeConverser) requestLog() []agent.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]agent.Request(nil), f.requests...)
}

func (f *fakeConverser) returnedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.returned
}

type fakeCapture struct {
	mu       sync.Mutex
	handlers []CaptureHandlers
	startErr error
	stopText string
	stops    int
}

func (c *fakeCapture) Start(_ context.Context, h CaptureHandlers) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
	return c.startErr
}

func (c *fakeCapture) Stop() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	return c.stopText
}

func (c *fakeCapture) starts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers)
}

func (c *fakeCapture) at(i int) CaptureHandlers {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers[i]
}

func (c *fakeCapture) setStopText(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopText = s
}

type fakePlayback struct {
	mu     sync.Mutex
	spoken []string
	err    error
	block  bool
	stops  int
}

func (p *fakePlayback) Speak(ctx context.Context, text string) error {
	p.mu.Lock()
	p.spoken = append(p.spoken, text)
	err, block := p.err, p.block
	p.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (p *fakePlayback) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
}

func (p *fakePlayback) spokenLines() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.spoken...)
}

type fakeStore struct {
	mu      sync.Mutex
	userID  string
	stories []*domain.Story
	err     error
}

func (s *fakeStore) CreateStory(_ context.Context, userID string, story *domain.Story) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.userID = userID
	s.stories = append(s.stories, story)
	return "story-1", nil
}

type observerLog struct {
	mu     sync.Mutex
	states []State
}

func (o *observerLog) observe(s Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, s.State)
}

func (o *observerLog) seen() []State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]State(nil), o.states...)
}

type harness struct {
	m        *Machine
	conv     *fakeConverser
	capture  *fakeCapture
	playback *fakePlayback
	store    *fakeStore
	obs      *observerLog
	heard    int
}

func newHarness(t *testing.T, opts ...func(*Config, *harness)) *harness {
	t.Helper()
	h := &harness{
		conv:     &fakeConverser{},
		capture:  &fakeCapture{},
		playback: &fakePlayback{},
		store:    &fakeStore{},
		obs:      &observerLog{},
	}
	cfg := Config{
		UserID:    "anon_test",
		Converser: h.conv,
		Capture:   h.capture,
		Playback:  h.playback,
		Store:     h.store,
		Observer:  h.obs.observe,
		Now:       func() time.Time { return fixedNow },
	}
	for _, opt := range opts {
		opt(&cfg, h)
	}
	m, err := New(cfg)
	require.NoError(t, err)
	h.m = m
	t.Cleanup(m.Close)
	return h
}

func (h *harness) waitForState(t *testing.T, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return h.m.State() == want }, 2*time.Second, 5*time.Millisecond,
		"expected state %s, still %s", want, h.m.State())
}

// nextCapture waits for the next armed capture and returns its handlers.
func (h *harness) nextCapture(t *testing.T) CaptureHandlers {
	t.Helper()
	h.waitForState(t, StateListening)
	require.Eventually(t, func() bool { return h.capture.starts() > h.heard }, 2*time.Second, 5*time.Millisecond,
		"capture was never started")
	h.heard = h.capture.starts()
	return h.capture.at(h.heard - 1)
}

// say delivers a final transcript for the next capture.
func (h *harness) say(t *testing.T, text string) {
	t.Helper()
	h.nextCapture(t).OnFinal(text)
}

func validDraft() *domain.StoryDraft {
	return &domain.StoryDraft{
		Title:      "The Old Bike",
		Body:       "I fixed an old bike today.",
		ThreeWords: [3]string{"chain", "grease", "sunlight"},
		Mood:       "proud",
		Themes:     []string{"craft", "patience"},
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	assert.Error(t, err)
}

func TestBeginSpeaksOpeningAndListens(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	require.NoError(t, h.m.Begin())
	h.nextCapture(t)

	snap := h.m.Snapshot()
	opening := agent.OpeningQuestion(fixedNow)
	require.Len(t, snap.Turns, 1)
	assert.Equal(t, domain.AgentTurn(opening), snap.Turns[0])
	assert.Equal(t, []string{opening}, h.playback.spokenLines())
	assert.True(t, snap.SpeechAvailable)
	assert.Equal(t, []State{StateAgentSpeaking, StateListening}, h.obs.seen())
}

func TestBeginRejectedMidSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	require.NoError(t, h.m.Begin())
	h.nextCapture(t)

	assert.ErrorIs(t, h.m.Begin(), ErrInvalidTransition)
	assert.Equal(t, StateListening, h.m.State())
}

func TestFollowUpQuestionLoopsBackToListening(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(_ *Config, h *harness) {
		h.conv.respond = func(agent.Request) (*agent.Reply, error) {
			return &agent.Reply{Message: "What made you pick it up again?"}, nil
		}
	})
	require.NoError(t, h.m.Begin())
	h.say(t, "I fixed an old bike")
	h.nextCapture(t)

	reqs := h.conv.requestLog()
	require.Len(t, reqs, 1)
	assert.False(t, reqs[0].WrapUp)
	assert.Equal(t, []domain.Turn{
		domain.AgentTurn(agent.OpeningQuestion(fixedNow)),
		domain.UserTurn("I fixed an old bike"),
	}, reqs[0].Turns)

	snap := h.m.Snapshot()
	assert.Equal(t, 1, snap.UserTurns)
	require.Len(t, snap.Turns, 3)
	assert.Equal(t, domain.AgentTurn("What made you pick it up again?"), snap.Turns[2])
	assert.Equal(t, []State{
		StateAgentSpeaking, StateListening, StateProcessing, StateAgentSpeaking, StateListening,
	}, h.obs.seen())
}

func TestWrapFlagSetFromFourthUserTurn(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(_ *Config, h *harness) {
		h.conv.respond = func(req agent.Request) (*agent.Reply, error) {
			if req.WrapUp {
				return &agent.Reply{Story: validDraft()}, nil
			}
			return &agent.Reply{Message: "And then?"}, nil
		}
	})
	require.NoError(t, h.m.Begin())
	for _, line := range []string{"one", "two", "three", "four"} {
		h.say(t, line)
	}
	h.waitForState(t, StateStoryPreview)

	reqs := h.conv.requestLog()
	require.Len(t, reqs, 4)
	for i, req := range reqs {
		assert.Equal(t, i+1 >= WrapUpAfter, req.WrapUp, "request %d", i)
		assert.False(t, req.ForceStory)
		assert.Equal(t, i+1, domain.CountUserTurns(req.Turns))
	}
	assert.Equal(t, validDraft(), h.m.Snapshot().Story)
}

func TestMalformedStoryIsTreatedAsQuestion(t *testing.T) {
	t.Parallel()

	proc := processorFunc(func(context.Context, string, []agent.Message) (string, error) {
		return `Sure! {"title":"A","body":"B"}`, nil
	})
	h := newHarness(t, func(cfg *Config, _ *harness) {
		cfg.Converser = agent.NewServiceWithProcessor(proc, time.Second, nil, nil)
	})
	require.NoError(t, h.m.Begin())
	for _, line := range []string{"one", "two", "three", "four"} {
		h.say(t, line)
	}
	h.nextCapture(t)

	snap := h.m.Snapshot()
	assert.Nil(t, snap.Story)
	last := snap.Turns[len(snap.Turns)-1]
	assert.Equal(t, domain.AgentTurn(`Sure! {"title":"A","body":"B"}`), last)
}

type processorFunc func(ctx context.Context, system string, messages []agent.Message) (string, error)

func (f processorFunc) Complete(ctx context.Context, system string, messages []agent.Message) (string, error) {
	return f(ctx, system, messages)
}

func TestEndNowForcesStory(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(_ *Config, h *harness) {
		h.conv.respond = func(req agent.Request) (*agent.Reply, error) {
			if req.ForceStory {
				return &agent.Reply{Story: validDraft()}, nil
			}
			return &agent.Reply{Message: "Go on."}, nil
		}
	})
	require.NoError(t, h.m.Begin())
	h.nextCapture(t)
	h.capture.setStopText("just this one thing")

	require.NoError(t, h.m.EndNow())
	h.waitForState(t, StateStoryPreview)

	reqs := h.conv.requestLog()
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].ForceStory)
	assert.True(t, reqs[0].WrapUp)
	assert.Equal(t, domain.UserTurn("just this one thing"), reqs[0].Turns[len(reqs[0].Turns)-1])
	assert.Contains(t, h.obs.seen(), StateGeneratingStory)
}

func TestEndNowWithoutStoryFails(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(_ *Config, h *harness) {
		h.conv.respond = func(agent.Request) (*agent.Reply, error) {
			return &agent.Reply{Message: "What else happened?"}, nil
		}
	})
	require.NoError(t, h.m.Begin())
	h.nextCapture(t)

	require.NoError(t, h.m.EndNow())
	h.waitForState(t, StateError)

	assert.Equal(t, MsgStoryFailed, h.m.Snapshot().Error)
	assert.ErrorIs(t, h.m.LastError(), ErrNoStory)
}

func TestEndNowWhileSpeakingStopsPlayback(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(_ *Config, h *harness) {
		h.playback.block = true
		h.conv.respond = func(agent.Request) (*agent.Reply, error) {
			return &agent.Reply{Story: validDraft()}, nil
		}
	})
	require.NoError(t, h.m.Begin())
	require.Equal(t, StateAgentSpeaking, h.m.State())

	require.NoError(t, h.m.EndNow())
	h.waitForState(t, StateStoryPreview)
	assert.Zero(t, h.capture.starts(), "capture must not start after EndNow")
	h.playback.mu.Lock()
	assert.Equal(t, 1, h.playback.stops)
	h.playback.mu.Unlock()
}

func TestEndNowInvalidStates(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	assert.ErrorIs(t, h.m.EndNow(), ErrInvalidTransition)
	assert.ErrorIs(t, h.m.DoneTalking(), ErrInvalidTransition)
	assert.Equal(t, StateIdle, h.m.State())
}

func TestDoneTalkingWithTextActsAsFinal(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	require.NoError(t, h.m.Begin())
	h.nextCapture(t)
	h.capture.setStopText("  we went to the lake ")

	require.NoError(t, h.m.DoneTalking())
	h.nextCapture(t)

	reqs := h.conv.requestLog()
	require.Len(t, reqs, 1)
	assert.False(t, reqs[0].ForceStory)
	assert.Equal(t, domain.UserTurn("we went to the lake"), reqs[0].Turns[1])
}

func TestDoneTalkingUsesPartialWhenStopReturnsNothing(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	require.NoError(t, h.m.Begin())
	h.nextCapture(t).OnPartial("a quiet morning")
	require.Eventually(t, func() bool { return h.m.Snapshot().Transcript == "a quiet morning" },
		time.Second, 5*time.Millisecond)

	require.NoError(t, h.m.DoneTalking())
	h.nextCapture(t)
	assert.Equal(t, domain.UserTurn("a quiet morning"), h.conv.requestLog()[0].Turns[1])
}

func TestDoneTalkingEmptyActsAsEndNow(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(_ *Config, h *harness) {
		h.conv.respond = func(agent.Request) (*agent.Reply, error) {
			return &agent.Reply{Story: validDraft()}, nil
		}
	})
	require.NoError(t, h.m.Begin())
	h.nextCapture(t)

	require.NoError(t, h.m.DoneTalking())
	h.waitForState(t, StateStoryPreview)
	reqs := h.conv.requestLog()
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].ForceStory)
}

func TestEmptyFinalRearmsCapture(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(cfg *Config, _ *harness) {
		cfg.MaxSilentRearms = 2
	})
	require.NoError(t, h.m.Begin())
	h.say(t, "")
	h.say(t, "   ")
	h.nextCapture(t).OnFinal("")

	// Two re-arms were allowed; the third silence leaves the microphone off.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 3, h.capture.starts())
	assert.Equal(t, StateListening, h.m.State())
	assert.Empty(t, h.conv.requestLog())

	require.NoError(t, h.m.DoneTalking())
	require.Eventually(t, func() bool { return len(h.conv.requestLog()) == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, h.conv.requestLog()[0].ForceStory)
}

func TestConfirmSavePersistsAndSpeaksConfirmation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(_ *Config, h *harness) {
		h.conv.respond = func(agent.Request) (*agent.Reply, error) {
			return &agent.Reply{Story: validDraft()}, nil
		}
	})
	require.NoError(t, h.m.Begin())
	h.nextCapture(t)
	h.capture.setStopText("I fixed an old bike")
	require.NoError(t, h.m.DoneTalking())
	h.waitForState(t, StateStoryPreview)

	id, err := h.m.ConfirmSave(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "story-1", id)
	assert.Equal(t, StateSaved, h.m.State())
	assert.Equal(t, "story-1", h.m.Snapshot().SavedStoryID)

	h.store.mu.Lock()
	require.Len(t, h.store.stories, 1)
	saved := h.store.stories[0]
	assert.Equal(t, "anon_test", h.store.userID)
	h.store.mu.Unlock()
	assert.Equal(t, "2026-10-14", saved.Date)
	assert.Equal(t, "The Old Bike", saved.Title)
	assert.Equal(t, []string{"craft", "patience"}, saved.Tags)
	assert.Len(t, saved.SessionTranscript, 2)

	require.Eventually(t, func() bool {
		lines := h.playback.spokenLines()
		return len(lines) > 0 && lines[len(lines)-1] == SavedPhrase
	}, time.Second, 5*time.Millisecond)

	_, err = h.m.ConfirmSave(context.Background())
	assert.ErrorIs(t, err, ErrNothingToSave, "a saved session cannot be saved twice")
}

func TestConfirmSaveNoopOutsidePreview(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, err := h.m.ConfirmSave(context.Background())
	assert.ErrorIs(t, err, ErrNothingToSave)
	assert.Equal(t, StateIdle, h.m.State())

	require.NoError(t, h.m.Begin())
	h.nextCapture(t)
	_, err = h.m.ConfirmSave(context.Background())
	assert.ErrorIs(t, err, ErrNothingToSave)
	assert.Equal(t, StateListening, h.m.State())

	h.store.mu.Lock()
	assert.Empty(t, h.store.stories)
	h.store.mu.Unlock()
}

func TestConfirmSaveStoreFailureKeepsPreview(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(_ *Config, h *harness) {
		h.store.err = errors.New("disk full")
		h.conv.respond = func(agent.Request) (*agent.Reply, error) {
			return &agent.Reply{Story: validDraft()}, nil
		}
	})
	require.NoError(t, h.m.Begin())
	h.nextCapture(t)
	require.NoError(t, h.m.EndNow())
	h.waitForState(t, StateStoryPreview)

	_, err := h.m.ConfirmSave(context.Background())
	require.Error(t, err)
	snap := h.m.Snapshot()
	assert.Equal(t, StateStoryPreview, snap.State)
	assert.Equal(t, MsgSaveFailed, snap.Error)
	assert.NotNil(t, snap.Story)
}

func TestConverseFailureMovesToError(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(_ *Config, h *harness) {
		h.conv.respond = func(agent.Request) (*agent.Reply, error) {
			return nil, errors.New("503 from upstream")
		}
	})
	require.NoError(t, h.m.Begin())
	h.say(t, "hello")
	h.waitForState(t, StateError)

	assert.Equal(t, MsgConverseFailed, h.m.Snapshot().Error)

	// error only exits through Begin or Reset.
	assert.ErrorIs(t, h.m.DoneTalking(), ErrInvalidTransition)
	require.NoError(t, h.m.Begin())
	h.nextCapture(t)
	snap := h.m.Snapshot()
	assert.Empty(t, snap.Error)
	assert.Len(t, snap.Turns, 1)
}

func TestCaptureErrorMovesToError(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	require.NoError(t, h.m.Begin())
	h.nextCapture(t).OnError(errors.New("microphone permission denied"))
	h.waitForState(t, StateError)
	assert.Equal(t, "microphone permission denied", h.m.Snapshot().Error)
}

func TestCaptureStartErrorMovesToError(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(_ *Config, h *harness) {
		h.capture.startErr = errors.New("speech recognition not supported")
	})
	require.NoError(t, h.m.Begin())
	h.waitForState(t, StateError)
	assert.Equal(t, "speech recognition not supported", h.m.Snapshot().Error)
}

func TestPlaybackFailureDoesNotAbort(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(_ *Config, h *harness) {
		h.playback.err = errors.New("speech unavailable")
	})
	require.NoError(t, h.m.Begin())
	h.nextCapture(t)

	snap := h.m.Snapshot()
	assert.False(t, snap.SpeechAvailable)
	assert.Equal(t, "speech unavailable", snap.SpeechError)
}

func TestPlaybackTimeoutAdvances(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(cfg *Config, h *harness) {
		cfg.PlaybackTimeout = 20 * time.Millisecond
		h.playback.block = true
	})
	require.NoError(t, h.m.Begin())
	h.nextCapture(t)
	assert.False(t, h.m.Snapshot().SpeechAvailable)
}

func TestResetFromEveryReachableState(t *testing.T) {
	t.Parallel()

	reach := map[State]func(t *testing.T, h *harness){
		StateIdle: func(*testing.T, *harness) {},
		StateAgentSpeaking: func(t *testing.T, h *harness) {
			h.playback.block = true
			require.NoError(t, h.m.Begin())
		},
		StateListening: func(t *testing.T, h *harness) {
			require.NoError(t, h.m.Begin())
			h.nextCapture(t)
		},
		StateProcessing: func(t *testing.T, h *harness) {
			h.conv.gate = make(chan struct{})
			t.Cleanup(func() { close(h.conv.gate) })
			require.NoError(t, h.m.Begin())
			h.say(t, "hello")
		},
		StateGeneratingStory: func(t *testing.T, h *harness) {
			h.conv.gate = make(chan struct{})
			t.Cleanup(func() { close(h.conv.gate) })
			require.NoError(t, h.m.Begin())
			h.nextCapture(t)
			require.NoError(t, h.m.EndNow())
		},
		StateStoryPreview: func(t *testing.T, h *harness) {
			h.conv.respond = func(agent.Request) (*agent.Reply, error) { return &agent.Reply{Story: validDraft()}, nil }
			require.NoError(t, h.m.Begin())
			h.nextCapture(t)
			require.NoError(t, h.m.EndNow())
		},
		StateSaved: func(t *testing.T, h *harness) {
			h.conv.respond = func(agent.Request) (*agent.Reply, error) { return &agent.Reply{Story: validDraft()}, nil }
			require.NoError(t, h.m.Begin())
			h.nextCapture(t)
			require.NoError(t, h.m.EndNow())
			h.waitForState(t, StateStoryPreview)
			_, err := h.m.ConfirmSave(context.Background())
			require.NoError(t, err)
		},
		StateError: func(t *testing.T, h *harness) {
			require.NoError(t, h.m.Begin())
			h.nextCapture(t).OnError(errors.New("no speech detected"))
		},
	}

	for _, state := range States {
		t.Run(string(state), func(t *testing.T) {
			t.Parallel()
			h := newHarness(t)
			reach[state](t, h)
			h.waitForState(t, state)

			h.m.Reset()
			snap := h.m.Snapshot()
			assert.Equal(t, StateIdle, snap.State)
			assert.Empty(t, snap.Turns)
			assert.Nil(t, snap.Story)
			assert.Empty(t, snap.Error)
			assert.Zero(t, snap.UserTurns)
		})
	}
}

func TestResetDropsLateReply(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(_ *Config, h *harness) {
		h.conv.gate = make(chan struct{})
		h.conv.respond = func(agent.Request) (*agent.Reply, error) {
			return &agent.Reply{Story: validDraft()}, nil
		}
	})
	require.NoError(t, h.m.Begin())
	h.say(t, "hello")
	h.waitForState(t, StateProcessing)

	h.m.Reset()
	require.NoError(t, h.m.Begin())
	h.nextCapture(t)

	close(h.conv.gate)
	require.Eventually(t, func() bool { return h.conv.returnedCount() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	snap := h.m.Snapshot()
	assert.Equal(t, StateListening, snap.State, "late reply from a previous session must be dropped")
	assert.Nil(t, snap.Story)
	assert.Len(t, snap.Turns, 1)
}

func TestStaleCaptureCallbacksIgnored(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	require.NoError(t, h.m.Begin())
	old := h.nextCapture(t)

	h.m.Reset()
	require.NoError(t, h.m.Begin())
	h.nextCapture(t)

	old.OnPartial("ghost")
	old.OnFinal("ghost words")
	old.OnError(errors.New("ghost error"))

	snap := h.m.Snapshot()
	assert.Equal(t, StateListening, snap.State)
	assert.Empty(t, snap.Transcript)
	assert.Empty(t, h.conv.requestLog())
}

func TestObserverSeesOnlyValidStates(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	require.NoError(t, h.m.Begin())
	h.say(t, "hello")
	h.nextCapture(t)
	h.m.Reset()

	for _, s := range h.obs.seen() {
		assert.True(t, s.Valid(), "unexpected state %q", s)
	}
	seen := h.obs.seen()
	assert.Equal(t, StateIdle, seen[len(seen)-1])
}
