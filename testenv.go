package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"scribe/audio"
	"scribe/config"
	"scribe/log"
	"scribe/session"
	"scribe/transcriber"
)

const (
	testPumpTimeout    = 2 * time.Second
	testSegmentTimeout = 60 * time.Second
	testSettleQuiet    = 300 * time.Millisecond
)

// testEnv drives a controller from stdin commands, one per line:
//
//	START | STOP | CLEAR | LANG en-US,hi-IN | SNAPSHOT | QUIT
//	PARTIAL text | SAY text | END | ERROR reason   (scripted engine only)
//	WAIT_SEGMENT | SLEEP ms
//
// Every change is reported on out through protocolSink.
type testEnv struct {
	ctrl  *session.Controller
	fakes *transcriber.FakeFactory // nil when a real engine is in use
	out   io.Writer
	sink  protocolSink
	diff  *snapshotDiff
}

// newTestEngine picks the engine for -test mode. With a WAV file and an API
// key the real Deepgram engine streams the file as if it were a microphone;
// SCRIBE_TEST_ENGINE=none simulates a system without any engine.
func newTestEngine(cfg *config.Config, wavPath string) (transcriber.Factory, *transcriber.FakeFactory, string, error) {
	if os.Getenv("SCRIBE_TEST_ENGINE") == "none" {
		return nil, nil, "none", nil
	}
	if wavPath == "" {
		ff := &transcriber.FakeFactory{}
		return ff.New, ff, "fake", nil
	}

	pcm, err := audio.LoadWAV(wavPath)
	if err != nil {
		return nil, nil, "", err
	}
	// 1024 frames every 64ms is real time at 16 kHz
	open := func() (audio.Context, error) { return audio.NewFakeContext(pcm, 64*time.Millisecond), nil }
	if cfg.Deepgram.APIKey == "" {
		return nil, nil, "", fmt.Errorf("%w: streaming %s needs DEEPGRAM_API_KEY", transcriber.ErrEngineUnavailable, wavPath)
	}
	dg := transcriber.NewDeepgram(cfg.Deepgram.APIKey, transcriber.WithModel(cfg.Deepgram.Model), transcriber.WithAudio(open))
	return dg.NewEngine, nil, dg.Name(), nil
}

func runTestMode(cfg *config.Config, wavPath string) int {
	factory, fakes, provider, err := newTestEngine(cfg, wavPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	ctrl, err := session.New(factory, cfg.Languages, session.WithProvider(provider))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer ctrl.Close()

	env := &testEnv{
		ctrl:  ctrl,
		fakes: fakes,
		out:   os.Stdout,
		sink:  protocolSink{out: os.Stdout},
		diff:  newSnapshotDiff(ctrl.Snapshot()),
	}
	if snap := ctrl.Snapshot(); snap.Err != "" {
		fmt.Fprintf(env.out, "ERROR %s\n", snap.Err)
	}
	return env.run(os.Stdin)
}

func (e *testEnv) run(in io.Reader) int {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cmd, arg, _ := strings.Cut(line, " ")
		if cmd == "QUIT" {
			e.ctrl.Stop()
			e.report()
			log.SessionEnd(len(e.ctrl.Snapshot().Segments))
			return 0
		}
		if err := e.exec(strings.ToUpper(cmd), arg); err != nil {
			fmt.Fprintf(e.out, "FAIL %s: %v\n", cmd, err)
			log.Warnf("test command %q: %v", line, err)
		}
		e.report()
	}
	e.ctrl.Stop()
	return 0
}

func (e *testEnv) exec(cmd, arg string) error {
	switch cmd {
	case "START":
		return e.ctrl.Start()
	case "STOP":
		e.ctrl.Stop()
		e.settle()
	case "CLEAR":
		e.ctrl.Clear()
	case "LANG":
		return e.ctrl.SetLanguagePreference(config.SplitLanguages(arg))
	case "SNAPSHOT":
		snap := e.ctrl.Snapshot()
		fmt.Fprintf(e.out, "SNAPSHOT state=%s segments=%d interim=%q languages=%s\n",
			snap.State, len(snap.Segments), snap.Interim, strings.Join(snap.Languages, ","))
	case "WAIT_SEGMENT":
		return e.waitSegment()
	case "SLEEP":
		ms, err := strconv.Atoi(arg)
		if err != nil {
			return err
		}
		e.pumpFor(time.Duration(ms) * time.Millisecond)
	case "PARTIAL", "SAY", "END", "ERROR":
		eng, err := e.fakeEngine()
		if err != nil {
			return err
		}
		switch cmd {
		case "PARTIAL":
			eng.EmitInterim(arg)
		case "SAY":
			eng.EmitFinal(arg)
		case "END":
			eng.EmitEnd()
		case "ERROR":
			eng.EmitError(transcriber.ErrorReason(arg))
		}
		return e.pump(1)
	default:
		return fmt.Errorf("unknown command")
	}
	return nil
}

func (e *testEnv) fakeEngine() (*transcriber.Fake, error) {
	if e.fakes == nil {
		return nil, fmt.Errorf("needs the scripted engine")
	}
	eng := e.fakes.Last()
	if eng == nil {
		return nil, fmt.Errorf("no engine started yet")
	}
	return eng, nil
}

func (e *testEnv) report() {
	e.diff.emit(e.ctrl.Snapshot(), e.sink)
}

func (e *testEnv) pump(n int) error {
	for i := 0; i < n; i++ {
		select {
		case note := <-e.ctrl.Notifications():
			e.ctrl.Handle(note)
		case <-time.After(testPumpTimeout):
			return fmt.Errorf("timed out waiting for engine")
		}
	}
	return nil
}

// settle handles notifications until the engine has been quiet for a while.
func (e *testEnv) settle() {
	for {
		select {
		case note := <-e.ctrl.Notifications():
			e.ctrl.Handle(note)
		case <-time.After(testSettleQuiet):
			return
		}
	}
}

func (e *testEnv) pumpFor(d time.Duration) {
	deadline := time.After(d)
	for {
		select {
		case note := <-e.ctrl.Notifications():
			e.ctrl.Handle(note)
			e.report()
		case <-deadline:
			return
		}
	}
}

func (e *testEnv) waitSegment() error {
	start := e.ctrl.Snapshot()
	timeout := time.After(testSegmentTimeout)
	for {
		select {
		case note := <-e.ctrl.Notifications():
			e.ctrl.Handle(note)
			e.report()
			snap := e.ctrl.Snapshot()
			if len(snap.Segments) > len(start.Segments) {
				return nil
			}
			if snap.State == session.Idle {
				return fmt.Errorf("session ended before a segment arrived")
			}
		case <-timeout:
			return fmt.Errorf("timed out waiting for a segment")
		}
	}
}
