package doctor

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"scribe/audio"
	"scribe/clipboard"
	"scribe/config"
	"scribe/session"
	"scribe/shutdown"
	"scribe/transcriber"
)

const (
	micSeconds    = 3
	listenSeconds = 6
	quietLevel    = 0.01
)

// Run executes interactive diagnostic checks and returns an exit code (0=all pass, 1=any fail).
func Run(configPath string) int {
	resetTerminal()
	setupInterruptHandler()

	fmt.Println("scribe doctor - interactive system diagnostics")
	fmt.Println("==============================================")

	cfg, ok := checkConfig(configPath)
	allPass := ok
	if allPass && !checkMicrophone(cfg) {
		allPass = false
	}
	if allPass && !checkTranscription(cfg) {
		allPass = false
	}
	if !checkClipboard() {
		allPass = false
	}

	fmt.Println()
	if allPass {
		fmt.Println("All checks passed!")
		return 0
	}
	fmt.Println("Some checks failed. See details above.")
	return 1
}

func setupInterruptHandler() {
	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	go func() {
		<-sigChan
		resetTerminal()
		fmt.Fprintln(os.Stderr, "\nInterrupted")
		os.Exit(1)
	}()
}

func checkConfig(path string) (*config.Config, bool) {
	fmt.Println()
	fmt.Println("[1/4] Configuration")

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return nil, false
	}
	fmt.Printf("  config:    %s\n", path)
	fmt.Printf("  languages: %s\n", strings.Join(cfg.Languages, ", "))
	fmt.Printf("  theme:     %s\n", cfg.Theme)
	if cfg.Deepgram.APIKey == "" {
		fmt.Println("  FAIL: DEEPGRAM_API_KEY is not set")
		return cfg, false
	}
	fmt.Println("  PASS: configuration valid")
	return cfg, true
}

func checkMicrophone(cfg *config.Config) bool {
	fmt.Println()
	fmt.Println("[2/4] Microphone")

	ctx, err := audio.NewContext()
	if err != nil {
		fmt.Printf("  FAIL: cannot connect to audio: %v\n", err)
		return false
	}
	defer ctx.Close()

	device, err := audio.FindDevice(ctx, cfg.Device)
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	name := "system default"
	if device != nil {
		name = device.Name
	}
	fmt.Printf("  device: %s\n", name)
	if audio.IsBluetooth(name) {
		fmt.Println("  Warning: bluetooth microphones lower recognition accuracy")
	}

	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("Press Enter and speak for %d seconds...", micSeconds)
	reader.ReadString('\n')

	pcm, err := recordAudio(ctx, device, micSeconds*time.Second)
	if err != nil {
		fmt.Printf("  FAIL: recording error: %v\n", err)
		return false
	}
	ok, msg := micVerdict(pcm)
	if !ok {
		fmt.Printf("  FAIL: %s\n", msg)
		return false
	}
	fmt.Printf("  PASS: %s\n", msg)
	return true
}

// micVerdict judges captured PCM by its loudest 100 ms window.
func micVerdict(pcm []byte) (bool, string) {
	if len(pcm) == 0 {
		return false, "no audio captured"
	}
	const window = audio.BytesPerSecond / 10
	peak := 0.0
	for i := 0; i < len(pcm); i += window {
		end := min(i+window, len(pcm))
		peak = max(peak, audio.Level(pcm[i:end]))
	}
	secs := float64(len(pcm)) / audio.BytesPerSecond
	if peak < quietLevel {
		return false, fmt.Sprintf("captured %.1fs but the signal is silent (peak %.3f); check the input volume", secs, peak)
	}
	return true, fmt.Sprintf("captured %.1fs, peak level %.3f", secs, peak)
}

func recordAudio(ctx audio.Context, device *audio.DeviceInfo, d time.Duration) ([]byte, error) {
	var pcmBuf []byte
	var bufMu sync.Mutex

	captureDevice, err := ctx.NewCapture(device, audio.DefaultCaptureConfig())
	if err != nil {
		return nil, err
	}
	defer captureDevice.Close()

	captureDevice.SetCallback(func(data []byte, _ uint32) {
		bufMu.Lock()
		pcmBuf = append(pcmBuf, data...)
		bufMu.Unlock()
	})

	if err := captureDevice.Start(); err != nil {
		return nil, err
	}

	fmt.Print("  Recording")
	done := time.After(d)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
wait:
	for {
		select {
		case <-done:
			break wait
		case <-ticker.C:
			fmt.Print(".")
		}
	}
	captureDevice.Stop()
	captureDevice.ClearCallback()
	fmt.Println(" done")

	bufMu.Lock()
	defer bufMu.Unlock()
	return pcmBuf, nil
}

// checkTranscription runs a real session through the controller, the same
// path the TUI uses.
func checkTranscription(cfg *config.Config) bool {
	fmt.Println()
	fmt.Println("[3/4] Live transcription")

	factory, provider, err := transcriber.New(transcriber.Options{
		APIKey: cfg.Deepgram.APIKey,
		Model:  cfg.Deepgram.Model,
		Device: cfg.Device,
	})
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	ctrl, err := session.New(factory, cfg.Languages, session.WithProvider(provider))
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	defer ctrl.Close()

	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("Press Enter and speak for %d seconds (%s)...", listenSeconds, cfg.Languages[0])
	reader.ReadString('\n')

	if err := ctrl.Start(); err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	deadline := time.After(listenSeconds * time.Second)
listen:
	for {
		select {
		case n := <-ctrl.Notifications():
			ctrl.Handle(n)
			if ctrl.State() == session.Idle {
				break listen
			}
		case <-deadline:
			break listen
		}
	}
	ctrl.Stop()

	snap := ctrl.Snapshot()
	if snap.Err != "" {
		fmt.Printf("  FAIL: %s\n", snap.Err)
		return false
	}
	text := ctrl.Transcript()
	if snap.Interim != "" {
		text = strings.TrimSpace(text + " " + snap.Interim)
	}
	if text == "" {
		fmt.Println("  FAIL: no speech recognized")
		return false
	}
	fmt.Printf("\n  Transcribed text: %s\n\n", text)

	confirmReader := bufio.NewReader(os.Stdin)
	fmt.Print("Is this correct? [y/n]: ")
	confirm, _ := confirmReader.ReadString('\n')
	confirm = strings.TrimSpace(strings.ToLower(confirm))
	if confirm == "y" || confirm == "yes" {
		fmt.Println("  PASS: transcription verified by user")
		return true
	}
	fmt.Println("  FAIL: transcription not confirmed")
	return false
}

func checkClipboard() bool {
	fmt.Println()
	fmt.Println("[4/4] Clipboard")

	const testStr = "scribe-doctor-test"
	prev, _ := clipboard.Read()
	if err := clipboard.Copy(testStr); err != nil {
		if errors.Is(err, clipboard.ErrUnsupported) {
			fmt.Println("  FAIL: no clipboard utility found (install xclip, xsel or wl-clipboard)")
		} else {
			fmt.Printf("  FAIL: clipboard copy failed: %v\n", err)
		}
		return false
	}
	got, err := clipboard.Read()
	if prev != "" {
		clipboard.Copy(prev)
	}
	if err != nil {
		fmt.Printf("  FAIL: could not read clipboard: %v\n", err)
		return false
	}
	if got != testStr {
		fmt.Printf("  FAIL: clipboard returned %q, want %q\n", got, testStr)
		return false
	}
	fmt.Println("  PASS: copy and read back")
	return true
}
