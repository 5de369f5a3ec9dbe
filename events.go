package main

import (
	"fmt"
	"io"

	"scribe/session"
)

// EventSink abstracts the plain-text front ends so line mode and test mode
// can share the same change detection over controller snapshots.
type EventSink interface {
	Segment(seg session.Segment)
	Interim(text string)
	StateChanged(state session.State, errMsg string)
	Cleared()
}

// snapshotDiff remembers what a sink has already been told.
type snapshotDiff struct {
	segments int
	interim  string
	state    session.State
	err      string
}

func newSnapshotDiff(snap session.Snapshot) *snapshotDiff {
	return &snapshotDiff{
		segments: len(snap.Segments),
		interim:  snap.Interim,
		state:    snap.State,
		err:      snap.Err,
	}
}

// emit reports everything that changed between the last snapshot and snap.
func (d *snapshotDiff) emit(snap session.Snapshot, sink EventSink) {
	if len(snap.Segments) < d.segments {
		d.segments = 0
		sink.Cleared()
	}
	for _, seg := range snap.Segments[d.segments:] {
		sink.Segment(seg)
	}
	d.segments = len(snap.Segments)

	if snap.Interim != d.interim {
		d.interim = snap.Interim
		sink.Interim(snap.Interim)
	}
	if snap.State != d.state || snap.Err != d.err {
		d.state = snap.State
		d.err = snap.Err
		sink.StateChanged(snap.State, snap.Err)
	}
}

// lineSink prints finalized segments to out and problems to errOut.
type lineSink struct {
	out, errOut io.Writer
}

func (s lineSink) Segment(seg session.Segment) {
	fmt.Fprintf(s.out, "[%s] %s\n", seg.CapturedAt.Format("15:04:05"), seg.Text)
}

func (s lineSink) Interim(string) {}

func (s lineSink) StateChanged(state session.State, errMsg string) {
	if errMsg != "" {
		fmt.Fprintln(s.errOut, errMsg)
		return
	}
	fmt.Fprintf(s.errOut, "(%s)\n", state)
}

func (s lineSink) Cleared() {}

// protocolSink writes one tagged line per change, for -test mode.
type protocolSink struct {
	out io.Writer
}

func (s protocolSink) Segment(seg session.Segment) {
	fmt.Fprintf(s.out, "SEGMENT %s\n", seg.Text)
}

func (s protocolSink) Interim(text string) {
	fmt.Fprintf(s.out, "INTERIM %s\n", text)
}

func (s protocolSink) StateChanged(state session.State, errMsg string) {
	fmt.Fprintf(s.out, "STATE %s\n", state)
	if errMsg != "" {
		fmt.Fprintf(s.out, "ERROR %s\n", errMsg)
	}
}

func (s protocolSink) Cleared() {
	fmt.Fprintln(s.out, "CLEARED")
}
