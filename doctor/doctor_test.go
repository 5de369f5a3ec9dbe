package doctor

import (
	"encoding/binary"
	"strings"
	"testing"

	"scribe/audio"
)

func TestMicVerdict(t *testing.T) {
	if ok, msg := micVerdict(nil); ok || msg != "no audio captured" {
		t.Errorf("micVerdict(nil) = %v, %q", ok, msg)
	}

	silent := make([]byte, audio.BytesPerSecond)
	if ok, msg := micVerdict(silent); ok || !strings.Contains(msg, "silent") {
		t.Errorf("micVerdict(silence) = %v, %q", ok, msg)
	}

	// one loud window inside a second of silence is enough
	loud := make([]byte, audio.BytesPerSecond)
	for i := 0; i < audio.BytesPerSecond/10; i += 2 {
		binary.LittleEndian.PutUint16(loud[i:], uint16(8000))
	}
	if ok, msg := micVerdict(loud); !ok || !strings.Contains(msg, "captured 1.0s") {
		t.Errorf("micVerdict(loud) = %v, %q", ok, msg)
	}
}
