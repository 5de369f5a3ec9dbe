package transcriber

import (
	"errors"
	"fmt"
	"os"
)

// ErrEngineUnavailable is returned by New when no recognition backend can be built.
var ErrEngineUnavailable = errors.New("speech recognition engine unavailable")

// Config is applied to a single engine instance. The language tag is fixed for
// the lifetime of the instance; a new language needs a new engine.
type Config struct {
	Continuous     bool
	InterimResults bool
	Language       string
}

// Engine is one session-scoped recognizer. Start and Stop return immediately;
// everything they cause is reported later on Events.
type Engine interface {
	Start()
	Stop()
	Events() <-chan Event
	Close() error
}

// Factory builds a new engine instance.
type Factory func(cfg Config) (Engine, error)

// Options selects and configures the recognition backend.
type Options struct {
	APIKey string
	Model  string
	Device string // capture device name, empty = system default
}

// New returns a factory for the configured backend. Without an API key there is
// nothing to build and ErrEngineUnavailable is returned.
func New(opts Options) (Factory, string, error) {
	key := opts.APIKey
	if key == "" {
		key = os.Getenv("DEEPGRAM_API_KEY")
	}
	if key == "" {
		return nil, "", fmt.Errorf("%w: set DEEPGRAM_API_KEY", ErrEngineUnavailable)
	}

	dg := NewDeepgram(key, WithModel(opts.Model), WithDevice(opts.Device))
	return dg.NewEngine, dg.Name(), nil
}
