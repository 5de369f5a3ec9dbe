package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"scribe/log"
	"scribe/transcriber"
)

var (
	ErrEngineUnavailable         = errors.New("speech recognition not initialized")
	ErrInvalidLanguagePreference = errors.New("language preference must contain at least one language")
	ErrClosed                    = errors.New("session: controller closed")
)

// UnavailableMessage is shown when the controller was built without an engine.
const UnavailableMessage = "Speech recognition is not available. Set DEEPGRAM_API_KEY to enable it."

type State int

const (
	Idle State = iota
	Listening
)

func (s State) String() string {
	if s == Listening {
		return "listening"
	}
	return "idle"
}

// Notification is an engine event tagged with the engine generation that
// produced it.
type Notification struct {
	Generation int
	Event      transcriber.Event
}

// Snapshot is a point-in-time copy of everything the UI renders.
type Snapshot struct {
	State     State
	Segments  []Segment
	Interim   string
	Err       string
	Languages []string
}

type Option func(*Controller)

// WithClock replaces time.Now for segment timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithIDs replaces the segment ID generator.
func WithIDs(newID func() string) Option {
	return func(c *Controller) { c.newID = newID }
}

// WithProvider names the engine backend in the diagnostics log.
func WithProvider(name string) Option {
	return func(c *Controller) { c.provider = name }
}

// Controller runs one recognition session at a time. Commands and Handle are
// meant to be called from a single host loop; the mutex only makes Snapshot
// safe from other goroutines.
type Controller struct {
	factory  transcriber.Factory
	provider string
	now      func() time.Time
	newID    func() string

	notes chan Notification
	done  chan struct{}

	mu        sync.Mutex
	state     State
	buf       Buffer
	errMsg    string
	languages []string
	engine    transcriber.Engine
	gen       int
	closed    bool
}

// New builds a controller. A nil factory means no engine exists on this
// system: the controller starts with the unavailability error set and every
// Start fails with ErrEngineUnavailable.
func New(factory transcriber.Factory, languages []string, opts ...Option) (*Controller, error) {
	if len(languages) == 0 {
		return nil, ErrInvalidLanguagePreference
	}
	c := &Controller{
		factory:   factory,
		provider:  "engine",
		now:       time.Now,
		newID:     uuid.NewString,
		notes:     make(chan Notification, 64),
		done:      make(chan struct{}),
		languages: append([]string(nil), languages...),
	}
	for _, o := range opts {
		o(c)
	}
	if factory == nil {
		c.errMsg = UnavailableMessage
		log.Warn("no speech recognition engine configured")
	}
	return c, nil
}

// Notifications delivers engine events for Handle.
func (c *Controller) Notifications() <-chan Notification { return c.notes }

func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.state == Listening {
		return nil
	}
	if c.factory == nil {
		c.errMsg = UnavailableMessage
		return ErrEngineUnavailable
	}

	c.errMsg = ""
	c.buf.Clear()

	lang := c.languages[0]
	eng, err := c.factory(transcriber.Config{
		Continuous:     true,
		InterimResults: true,
		Language:       lang,
	})
	if err != nil {
		c.errMsg = fmt.Sprintf("Error: %v", err)
		log.Errorf("engine create failed: %v", err)
		return fmt.Errorf("session: create engine: %w", err)
	}

	c.retireEngine()
	c.gen++
	c.engine = eng
	go c.forward(c.gen, eng)

	eng.Start()
	c.state = Listening
	log.SessionStart(c.provider, lang)
	return nil
}

func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Listening {
		return
	}
	c.engine.Stop()
	c.state = Idle
	c.buf.SetInterim("")
	log.SessionEnd(c.buf.Len())
}

// Clear empties the transcript without touching the session state.
func (c *Controller) Clear() {
	c.buf.Clear()
}

// SetLanguagePreference replaces the ordered language list. The first entry
// is used from the next Start on.
func (c *Controller) SetLanguagePreference(languages []string) error {
	if len(languages) == 0 {
		return ErrInvalidLanguagePreference
	}
	c.mu.Lock()
	c.languages = append([]string(nil), languages...)
	c.mu.Unlock()
	return nil
}

func (c *Controller) Languages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.languages...)
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		State:     c.state,
		Segments:  c.buf.Segments(),
		Interim:   c.buf.Interim(),
		Err:       c.errMsg,
		Languages: append([]string(nil), c.languages...),
	}
}

// Transcript returns the finalized text, one segment per line.
func (c *Controller) Transcript() string {
	return c.buf.Text()
}

// Handle applies one engine notification. Notifications from an engine that
// has since been replaced are dropped.
func (c *Controller) Handle(n Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n.Generation != c.gen || c.engine == nil {
		return
	}

	switch ev := n.Event.(type) {
	case transcriber.ResultEvent:
		if c.state == Listening {
			c.applyResult(ev)
		}
	case transcriber.ErrorEvent:
		if c.state == Listening {
			c.applyError(ev)
		}
	case transcriber.EndEvent:
		if c.state == Listening {
			log.EngineRestart(c.gen)
			c.engine.Start()
		}
	}
}

func (c *Controller) applyResult(ev transcriber.ResultEvent) {
	var finals []string
	var interim strings.Builder
	sawFinal := false

	for _, r := range ev.Results {
		text := r.Primary()
		if r.Final {
			sawFinal = true
			if t := strings.TrimSpace(text); t != "" {
				finals = append(finals, t)
			}
			continue
		}
		interim.WriteString(text)
	}

	if !sawFinal {
		c.buf.SetInterim(interim.String())
		return
	}

	c.buf.SetInterim("")
	if len(finals) == 0 {
		return
	}
	seg := Segment{
		ID:         c.newID(),
		Text:       strings.Join(finals, " "),
		CapturedAt: c.now(),
		IsFinal:    true,
	}
	c.buf.Append(seg)
	log.SegmentText(seg.Text)
}

func (c *Controller) applyError(ev transcriber.ErrorEvent) {
	if ev.Reason == transcriber.ReasonNoSpeech {
		log.RecognitionError(string(ev.Reason), false)
		return
	}
	log.RecognitionError(string(ev.Reason), true)
	if ev.Err != nil {
		log.Errorf("recognition error cause: %v", ev.Err)
	}
	c.errMsg = ErrorMessage(ev.Reason)
	c.state = Idle
	c.buf.SetInterim("")
	log.SessionEnd(c.buf.Len())
}

// ErrorMessage renders a recognizer error code for the user.
func ErrorMessage(reason transcriber.ErrorReason) string {
	msg := "Error: " + string(reason)
	switch reason {
	case transcriber.ReasonNotAllowed:
		return msg + " (check the API key and microphone permissions)"
	case transcriber.ReasonServiceNotAllowed:
		return msg + " (the speech service refused the request)"
	case transcriber.ReasonAudioCapture:
		return msg + " (no microphone could be opened)"
	case transcriber.ReasonNetwork:
		return msg + " (lost connection to the speech service)"
	case transcriber.ReasonLanguageNotSupported:
		return msg + " (pick another language)"
	}
	return msg
}

// Close stops any session and releases the engine.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.state == Listening {
		c.engine.Stop()
		c.state = Idle
		c.buf.SetInterim("")
		log.SessionEnd(c.buf.Len())
	}
	c.retireEngine()
	close(c.done)
}

// retireEngine closes the current engine. Its forwarder drains and exits on
// its own once the engine closes its event channel.
func (c *Controller) retireEngine() {
	if c.engine == nil {
		return
	}
	if err := c.engine.Close(); err != nil {
		log.Warnf("engine close: %v", err)
	}
	c.engine = nil
}

func (c *Controller) forward(gen int, eng transcriber.Engine) {
	for ev := range eng.Events() {
		select {
		case c.notes <- Notification{Generation: gen, Event: ev}:
		case <-c.done:
			return
		}
	}
}
