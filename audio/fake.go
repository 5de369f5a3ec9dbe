package audio

import (
	"fmt"
	"os"
	"sync"
	"time"
)

const fakeChunkFrames = 1024

// FakeContext plays back fixed PCM instead of a microphone. Once the PCM is
// exhausted it keeps delivering silence, like a muted mic.
type FakeContext struct {
	pcm      []byte
	interval time.Duration
}

// NewFakeContext plays pcm in chunks every interval (zero = as fast as possible).
func NewFakeContext(pcm []byte, interval time.Duration) *FakeContext {
	return &FakeContext{pcm: pcm, interval: interval}
}

// LoadWAV reads a 16 kHz mono 16-bit WAV file and strips its header.
func LoadWAV(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < WAVHeaderSize || string(data[0:4]) != "RIFF" {
		return nil, fmt.Errorf("%s: not a WAV file", path)
	}
	return data[WAVHeaderSize:], nil
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake"}}, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	return &FakeCapture{pcm: f.pcm, interval: f.interval, audioDone: make(chan struct{})}, nil
}

type FakeCapture struct {
	pcm       []byte
	interval  time.Duration
	audioDone chan struct{}
	doneOnce  sync.Once

	mu     sync.Mutex
	cb     DataCallback
	stopCh chan struct{}
	feed   sync.WaitGroup
}

// AudioDone is closed once the recorded PCM has been delivered in full.
func (f *FakeCapture) AudioDone() <-chan struct{} { return f.audioDone }

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) DeviceName() string { return "fake" }

func (f *FakeCapture) Start() error {
	f.mu.Lock()
	if f.stopCh != nil {
		f.mu.Unlock()
		return nil
	}
	stop := make(chan struct{})
	f.stopCh = stop
	f.mu.Unlock()

	f.feed.Add(1)
	go f.run(stop)
	return nil
}

func (f *FakeCapture) run(stop <-chan struct{}) {
	defer f.feed.Done()
	const chunkBytes = fakeChunkFrames * 2
	silence := make([]byte, chunkBytes)
	pos := 0
	for {
		select {
		case <-stop:
			return
		default:
		}

		chunk := silence
		if pos < len(f.pcm) {
			end := min(pos+chunkBytes, len(f.pcm))
			chunk = make([]byte, end-pos)
			copy(chunk, f.pcm[pos:end])
			pos = end
		} else {
			f.doneOnce.Do(func() { close(f.audioDone) })
		}

		f.mu.Lock()
		cb := f.cb
		f.mu.Unlock()
		if cb != nil {
			cb(chunk, uint32(len(chunk)/2))
		}

		wait := f.interval
		if wait <= 0 {
			wait = time.Millisecond
		}
		select {
		case <-stop:
			return
		case <-time.After(wait):
		}
	}
}

func (f *FakeCapture) Stop() {
	f.mu.Lock()
	stop := f.stopCh
	f.stopCh = nil
	f.mu.Unlock()
	if stop != nil {
		close(stop)
		f.feed.Wait()
	}
}

func (f *FakeCapture) Close() { f.Stop() }
