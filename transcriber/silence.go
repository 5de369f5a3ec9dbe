package transcriber

import "time"

const (
	silenceTick      = 100 * time.Millisecond
	silenceWarnAfter = 8 * time.Second
	speechMinRatio   = 0.10
	speechClearRatio = 0.25 // higher threshold to clear the warning (hysteresis)
)

type silenceEvent int

const (
	silenceNone   silenceEvent = iota
	silenceWarn                // no voice for silenceWarnAfter
	silenceClear               // speech resumed after a warning
	silenceRepeat              // still silent, another silenceWarnAfter elapsed
)

// silenceMonitor turns per-tick voice activity into no-speech notifications
// over a sliding window.
type silenceMonitor struct {
	windowSz int
	window   []bool
	ticks    int
	warned   bool
	lastWarn int
}

func newSilenceMonitor() *silenceMonitor {
	n := int(silenceWarnAfter / silenceTick)
	return &silenceMonitor{windowSz: n, window: make([]bool, n)}
}

func (m *silenceMonitor) ratio() float64 {
	n := min(m.ticks, m.windowSz)
	if n == 0 {
		return 1.0
	}
	count := 0
	for i := 0; i < n; i++ {
		if m.window[(m.ticks-1-i+m.windowSz)%m.windowSz] {
			count++
		}
	}
	return float64(count) / float64(n)
}

func (m *silenceMonitor) Tick(hasSpeech bool) silenceEvent {
	m.window[m.ticks%m.windowSz] = hasSpeech
	m.ticks++

	r := m.ratio()
	switch {
	case !m.warned && m.ticks >= m.windowSz && r < speechMinRatio:
		m.warned = true
		m.lastWarn = m.ticks
		return silenceWarn
	case m.warned && r >= speechClearRatio:
		m.warned = false
		return silenceClear
	case m.warned && m.ticks-m.lastWarn >= m.windowSz:
		m.lastWarn = m.ticks
		return silenceRepeat
	}
	return silenceNone
}

// Reset forgets all history, e.g. when a new connection starts.
func (m *silenceMonitor) Reset() {
	clear(m.window)
	m.ticks = 0
	m.warned = false
	m.lastWarn = 0
}
