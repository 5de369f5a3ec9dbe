package transcriber

import (
	"sync"
)

// Fake is a scripted engine. Tests and -test mode push notifications into it
// with the Emit methods; Start and Stop are only counted, except that Stop
// reports an EndEvent the way a real engine does.
type Fake struct {
	cfg    Config
	events chan Event

	mu        sync.Mutex
	starts    int
	stops     int
	closed    bool
	finalized int
}

func NewFake(cfg Config) *Fake {
	return &Fake{cfg: cfg, events: make(chan Event, engineEventBuffer)}
}

func (f *Fake) Config() Config { return f.cfg }

func (f *Fake) Events() <-chan Event { return f.events }

func (f *Fake) Start() {
	f.mu.Lock()
	f.starts++
	f.mu.Unlock()
}

func (f *Fake) Stop() {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
	f.emit(EndEvent{})
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	return nil
}

// Starts reports how many times Start was called.
func (f *Fake) Starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

func (f *Fake) Stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// EmitResult sends ev unchanged.
func (f *Fake) EmitResult(ev ResultEvent) { f.emit(ev) }

// EmitInterim sends one non-final result at the current position.
func (f *Fake) EmitInterim(text string) {
	f.mu.Lock()
	idx := f.finalized
	f.mu.Unlock()
	f.emit(ResultEvent{ResultIndex: idx, Results: []Result{textResult(text, false)}})
}

// EmitFinal sends one final result per text in a single event.
func (f *Fake) EmitFinal(texts ...string) {
	f.mu.Lock()
	idx := f.finalized
	f.finalized += len(texts)
	f.mu.Unlock()
	results := make([]Result, len(texts))
	for i, t := range texts {
		results[i] = textResult(t, true)
	}
	f.emit(ResultEvent{ResultIndex: idx, Results: results})
}

func (f *Fake) EmitError(reason ErrorReason) { f.emit(ErrorEvent{Reason: reason}) }

func (f *Fake) EmitEnd() { f.emit(EndEvent{}) }

func (f *Fake) emit(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case f.events <- ev:
	default:
		// a stalled reader must not wedge the test driver
	}
}

func textResult(text string, final bool) Result {
	return Result{Final: final, Alternatives: []Alternative{{Transcript: text, Confidence: 1}}}
}

// FakeFactory hands out Fake engines and remembers them in creation order.
type FakeFactory struct {
	// Err, when set, is returned instead of a new engine.
	Err error

	mu      sync.Mutex
	engines []*Fake
}

func (ff *FakeFactory) New(cfg Config) (Engine, error) {
	if ff.Err != nil {
		return nil, ff.Err
	}
	f := NewFake(cfg)
	ff.mu.Lock()
	ff.engines = append(ff.engines, f)
	ff.mu.Unlock()
	return f, nil
}

// Last returns the most recently created engine, or nil.
func (ff *FakeFactory) Last() *Fake {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if len(ff.engines) == 0 {
		return nil
	}
	return ff.engines[len(ff.engines)-1]
}

func (ff *FakeFactory) Engines() []*Fake {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return append([]*Fake(nil), ff.engines...)
}
