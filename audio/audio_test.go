package audio

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestIsBluetooth(t *testing.T) {
	for _, tt := range []struct {
		name string
		want bool
	}{
		{"AirPods Pro", true},
		{"Sony WH-1000XM4", true},
		{"Built-in Microphone", false},
		{"alsa_input.pci-0000_00_1f.3.analog-stereo", false},
		{"Headset (BT)", true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsBluetooth(tt.name); got != tt.want {
				t.Errorf("IsBluetooth(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestLevel(t *testing.T) {
	if got := Level(nil); got != 0 {
		t.Errorf("Level(nil) = %v, want 0", got)
	}
	if got := Level(make([]byte, 320)); got != 0 {
		t.Errorf("Level(silence) = %v, want 0", got)
	}

	loud := make([]byte, 320)
	for i := 0; i < len(loud); i += 2 {
		binary.LittleEndian.PutUint16(loud[i:], uint16(16384))
	}
	if got := Level(loud); got < 0.49 || got > 0.51 {
		t.Errorf("Level(half scale) = %v, want ~0.5", got)
	}
}

func TestPickerKeys(t *testing.T) {
	p := picker{names: []string{"a", "b", "c"}}

	p.key([]byte{'j'})
	p.key([]byte{0x1b, '[', 'B'})
	p.key([]byte{'j'}) // clamped at the last entry
	if p.cursor != 2 {
		t.Fatalf("cursor = %d, want 2", p.cursor)
	}
	p.key([]byte{0x1b, '[', 'A'})
	if p.cursor != 1 {
		t.Fatalf("cursor = %d, want 1", p.cursor)
	}
	if got := p.key([]byte{13}); got != pickDone {
		t.Errorf("Enter = %v, want pickDone", got)
	}
	if got := p.key([]byte{3}); got != pickAbort {
		t.Errorf("Ctrl+C = %v, want pickAbort", got)
	}
}

func TestLoadWAV(t *testing.T) {
	dir := t.TempDir()

	wav := make([]byte, WAVHeaderSize+8)
	copy(wav, "RIFF")
	good := filepath.Join(dir, "good.wav")
	if err := os.WriteFile(good, wav, 0644); err != nil {
		t.Fatal(err)
	}
	pcm, err := LoadWAV(good)
	if err != nil {
		t.Fatalf("LoadWAV: %v", err)
	}
	if len(pcm) != 8 {
		t.Errorf("len(pcm) = %d, want 8", len(pcm))
	}

	bad := filepath.Join(dir, "bad.wav")
	if err := os.WriteFile(bad, []byte("not audio"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadWAV(bad); err == nil {
		t.Error("expected error for non-WAV file")
	}
}

func TestFakeCaptureDeliversPCMThenSilence(t *testing.T) {
	pcm := make([]byte, fakeChunkFrames*2*3)
	for i := range pcm {
		pcm[i] = 1
	}
	ctx := NewFakeContext(pcm, 0)
	dev, err := ctx.NewCapture(nil, DefaultCaptureConfig())
	if err != nil {
		t.Fatal(err)
	}
	fc := dev.(*FakeCapture)

	var mu sync.Mutex
	var got int
	dev.SetCallback(func(data []byte, frames uint32) {
		mu.Lock()
		got += len(data)
		mu.Unlock()
	})
	if err := dev.Start(); err != nil {
		t.Fatal(err)
	}

	select {
	case <-fc.AudioDone():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for AudioDone")
	}
	dev.Stop()

	mu.Lock()
	defer mu.Unlock()
	if got < len(pcm) {
		t.Errorf("delivered %d bytes, want at least %d", got, len(pcm))
	}
}

func TestFakeCaptureStopIdempotent(t *testing.T) {
	dev, _ := NewFakeContext(nil, 0).NewCapture(nil, DefaultCaptureConfig())
	if err := dev.Start(); err != nil {
		t.Fatal(err)
	}
	dev.Stop()
	dev.Stop()
	dev.Close()
}
