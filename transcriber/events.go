package transcriber

// Event is one engine notification: ResultEvent, ErrorEvent or EndEvent.
type Event interface {
	isEvent()
}

// Alternative is one candidate transcript for a result, best first.
type Alternative struct {
	Transcript string
	Confidence float64
}

// Result is a recognition result. Final results are never revised.
type Result struct {
	Final        bool
	Alternatives []Alternative
}

// Primary returns the transcript of the first alternative.
func (r Result) Primary() string {
	if len(r.Alternatives) == 0 {
		return ""
	}
	return r.Alternatives[0].Transcript
}

// ResultEvent carries the results that changed since the previous event.
// ResultIndex is the position of Results[0] in the engine's running result
// list; it only grows, advancing past results once they are final.
type ResultEvent struct {
	ResultIndex int
	Results     []Result
}

// ErrorReason is the recognizer's error code.
type ErrorReason string

const (
	ReasonNoSpeech             ErrorReason = "no-speech"
	ReasonAborted              ErrorReason = "aborted"
	ReasonAudioCapture         ErrorReason = "audio-capture"
	ReasonNetwork              ErrorReason = "network"
	ReasonNotAllowed           ErrorReason = "not-allowed"
	ReasonServiceNotAllowed    ErrorReason = "service-not-allowed"
	ReasonLanguageNotSupported ErrorReason = "language-not-supported"
)

// ErrorEvent reports a recognition failure. Err holds the underlying cause
// when there is one.
type ErrorEvent struct {
	Reason ErrorReason
	Err    error
}

// EndEvent is sent whenever the engine stops delivering results, whether it
// was asked to or not.
type EndEvent struct{}

func (ResultEvent) isEvent() {}
func (ErrorEvent) isEvent()  {}
func (EndEvent) isEvent()    {}
