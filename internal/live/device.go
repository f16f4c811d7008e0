package live

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/for-the-record/internal/session"
	"github.com/ashureev/for-the-record/internal/speech"
)

const controlWriteTimeout = 5 * time.Second

var (
	errPlaybackStopped = errors.New("playback stopped")
	errDeviceClosed    = errors.New("device closed")
)

// transport writes frames to the browser.
type transport interface {
	SendJSON(ctx context.Context, v any) error
	SendBinary(ctx context.Context, data []byte) error
}

// Device is the browser seen as a microphone and a speaker. It implements
// session.Capture directly and offers two speech backends: remote neural
// audio streamed as MP3 and the browser's own synthesizer.
type Device struct {
	out    transport
	synth  speech.Synthesizer
	logger *slog.Logger

	mu        sync.Mutex
	closed    bool
	capturing bool
	handlers  session.CaptureHandlers
	text      string

	playID  uint64
	playing chan error
}

var _ session.Capture = (*Device)(nil)

// NewDevice creates a device over out. synth may be nil when no remote voice is configured.
func NewDevice(out transport, synth speech.Synthesizer, logger *slog.Logger) *Device {
	if logger == nil {
		logger = slog.Default()
	}
	return &Device{out: out, synth: synth, logger: logger}
}

// Start asks the browser to begin speech recognition.
func (d *Device) Start(ctx context.Context, h session.CaptureHandlers) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return errDeviceClosed
	}
	d.capturing = true
	d.handlers = h
	d.text = ""
	d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	sendCtx, cancel := context.WithTimeout(ctx, controlWriteTimeout)
	defer cancel()
	return d.out.SendJSON(sendCtx, outbound{Type: msgListen})
}

// Stop ends recognition and returns the transcript accumulated so far.
func (d *Device) Stop() string {
	d.mu.Lock()
	wasCapturing := d.capturing
	d.capturing = false
	text := d.text
	d.mu.Unlock()

	if wasCapturing {
		d.sendAsync(outbound{Type: msgStopListening})
	}
	return text
}

func (d *Device) handlePartial(text string) {
	d.mu.Lock()
	if !d.capturing {
		d.mu.Unlock()
		return
	}
	d.text = text
	fn := d.handlers.OnPartial
	d.mu.Unlock()

	if fn != nil {
		fn(text)
	}
}

func (d *Device) handleFinal(text string) {
	d.mu.Lock()
	if !d.capturing {
		d.mu.Unlock()
		return
	}
	d.capturing = false
	d.text = text
	fn := d.handlers.OnFinal
	d.mu.Unlock()

	if fn != nil {
		fn(text)
	}
}

func (d *Device) handleCaptureError(reason string) {
	d.mu.Lock()
	if !d.capturing {
		d.mu.Unlock()
		return
	}
	d.capturing = false
	fn := d.handlers.OnError
	d.mu.Unlock()

	if reason == "" {
		reason = "speech capture failed"
	}
	if fn != nil {
		fn(errors.New(reason))
	}
}

// RemoteVoice returns the backend that streams synthesized MP3 to the browser.
func (d *Device) RemoteVoice() speech.Backend { return remoteVoice{d} }

// LocalVoice returns the backend that asks the browser to speak on-device.
func (d *Device) LocalVoice() speech.Backend { return localVoice{d} }

// Playback returns the playback chain for this device, remote voice first when configured.
func (d *Device) Playback(recorder speech.FallbackRecorder) *speech.Chain {
	backends := []speech.Backend{d.LocalVoice()}
	if d.synth != nil {
		backends = append([]speech.Backend{d.RemoteVoice()}, backends...)
	}
	return speech.NewChain(recorder, d.logger, backends...)
}

type remoteVoice struct{ d *Device }

func (v remoteVoice) Name() string { return "google_tts" }
func (v remoteVoice) Stop()        { v.d.stopPlayback() }

func (v remoteVoice) Speak(ctx context.Context, text string) error {
	if v.d.synth == nil {
		return speech.ErrNotConfigured
	}
	audio, err := v.d.synth.Synthesize(ctx, text)
	if err != nil {
		return err
	}
	id, done, err := v.d.beginPlayback()
	if err != nil {
		return err
	}
	if err := v.d.out.SendJSON(ctx, outbound{Type: msgAudio, ID: id}); err != nil {
		v.d.endPlayback(id, nil)
		return err
	}
	if err := v.d.out.SendBinary(ctx, audio); err != nil {
		v.d.endPlayback(id, nil)
		return err
	}
	return v.d.waitPlayback(ctx, id, done)
}

type localVoice struct{ d *Device }

func (v localVoice) Name() string { return "device" }
func (v localVoice) Stop()        { v.d.stopPlayback() }

func (v localVoice) Speak(ctx context.Context, text string) error {
	id, done, err := v.d.beginPlayback()
	if err != nil {
		return err
	}
	if err := v.d.out.SendJSON(ctx, outbound{Type: msgSpeakLocal, ID: id, Text: text}); err != nil {
		v.d.endPlayback(id, nil)
		return err
	}
	return v.d.waitPlayback(ctx, id, done)
}

// beginPlayback allocates a playback id and the channel its outcome arrives on.
func (d *Device) beginPlayback() (uint64, chan error, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, nil, errDeviceClosed
	}
	d.playID++
	d.playing = make(chan error, 1)
	return d.playID, d.playing, nil
}

// endPlayback resolves playback id with err, if it is still the current one.
func (d *Device) endPlayback(id uint64, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if id != d.playID || d.playing == nil {
		return
	}
	d.playing <- err
	d.playing = nil
}

func (d *Device) waitPlayback(ctx context.Context, id uint64, done chan error) error {
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		d.endPlayback(id, ctx.Err())
		d.sendAsync(outbound{Type: msgStopSpeaking, ID: id})
		return ctx.Err()
	}
}

func (d *Device) stopPlayback() {
	d.mu.Lock()
	id := d.playID
	active := d.playing != nil
	d.mu.Unlock()

	if active {
		d.endPlayback(id, errPlaybackStopped)
		d.sendAsync(outbound{Type: msgStopSpeaking, ID: id})
	}
}

// close fails any pending playback and drops later capture results.
func (d *Device) close() {
	d.mu.Lock()
	d.closed = true
	d.capturing = false
	id := d.playID
	d.mu.Unlock()
	d.endPlayback(id, errDeviceClosed)
}

// sendAsync writes a control message without blocking the caller.
func (d *Device) sendAsync(v outbound) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), controlWriteTimeout)
		defer cancel()
		if err := d.out.SendJSON(ctx, v); err != nil {
			d.logger.Debug("live control write failed", "type", v.Type, "error", err)
		}
	}()
}
