package transcriber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"scribe/audio"
	"scribe/log"
)

const (
	deepgramEndpoint  = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	streamChunkMs     = 200
	streamChunkBytes  = audio.BytesPerSecond * streamChunkMs / 1000
	dialTimeout       = 10 * time.Second
	closeStreamWait   = 2 * time.Second
	engineEventBuffer = 64
)

// DeepgramOption configures a Deepgram backend.
type DeepgramOption func(*Deepgram)

// WithModel selects the Deepgram model; empty keeps the default.
func WithModel(model string) DeepgramOption {
	return func(d *Deepgram) {
		if model != "" {
			d.model = model
		}
	}
}

// WithDevice captures from the named input device instead of the system default.
func WithDevice(name string) DeepgramOption {
	return func(d *Deepgram) { d.device = name }
}

// WithEndpoint overrides the streaming endpoint URL.
func WithEndpoint(endpoint string) DeepgramOption {
	return func(d *Deepgram) { d.endpoint = endpoint }
}

// WithAudio replaces the microphone backend.
func WithAudio(open func() (audio.Context, error)) DeepgramOption {
	return func(d *Deepgram) { d.openAudio = open }
}

// Deepgram streams microphone audio to the Deepgram live transcription API.
type Deepgram struct {
	apiKey    string
	model     string
	device    string
	endpoint  string
	openAudio func() (audio.Context, error)
}

func NewDeepgram(apiKey string, opts ...DeepgramOption) *Deepgram {
	d := &Deepgram{
		apiKey:    apiKey,
		model:     defaultModel,
		endpoint:  deepgramEndpoint,
		openAudio: audio.NewContext,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *Deepgram) Name() string { return "deepgram" }

// NewEngine returns an idle engine; nothing is dialed until Start.
func (d *Deepgram) NewEngine(cfg Config) (Engine, error) {
	if cfg.Language == "" {
		return nil, errors.New("deepgram: language must not be empty")
	}
	return &deepgramEngine{
		dg:     d,
		cfg:    cfg,
		events: make(chan Event, engineEventBuffer),
		done:   make(chan struct{}),
	}, nil
}

// deepgramLanguages maps BCP-47 tags to the codes Deepgram expects where the
// two differ.
var deepgramLanguages = map[string]string{
	"hi-IN": "hi",
	"es-ES": "es",
	"fr-FR": "fr",
	"de-DE": "de",
	"ja-JP": "ja",
}

func deepgramLanguage(tag string) string {
	if code, ok := deepgramLanguages[tag]; ok {
		return code
	}
	return tag
}

func (d *Deepgram) streamURL(cfg Config) (string, error) {
	u, err := url.Parse(d.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", d.model)
	q.Set("language", deepgramLanguage(cfg.Language))
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(audio.SampleRate))
	q.Set("channels", strconv.Itoa(audio.Channels))
	q.Set("punctuate", "true")
	q.Set("interim_results", strconv.FormatBool(cfg.InterimResults))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type deepgramEngine struct {
	dg     *Deepgram
	cfg    Config
	events chan Event

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	mu   sync.Mutex
	conn *dgConn
}

func (e *deepgramEngine) Events() <-chan Event { return e.events }

func (e *deepgramEngine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	select {
	case <-e.done:
		return
	default:
	}
	if e.conn != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &dgConn{
		e:       e,
		ctx:     ctx,
		cancel:  cancel,
		stopCh:  make(chan struct{}),
		audioCh: make(chan []byte, 64),
	}
	e.conn = c
	e.wg.Add(1)
	go c.run()
}

func (e *deepgramEngine) Stop() {
	e.mu.Lock()
	c := e.conn
	e.mu.Unlock()
	if c != nil {
		c.stop()
	}
}

func (e *deepgramEngine) Close() error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		c := e.conn
		close(e.done)
		e.mu.Unlock()
		if c != nil {
			c.cancel()
		}
		e.wg.Wait()
		close(e.events)
	})
	return nil
}

func (e *deepgramEngine) emit(ev Event) {
	select {
	case e.events <- ev:
	case <-e.done:
	}
}

// release detaches c so the next Start opens a fresh connection.
func (e *deepgramEngine) release(c *dgConn) {
	e.mu.Lock()
	if e.conn == c {
		e.conn = nil
	}
	e.mu.Unlock()
}

type streamStats struct {
	ConnectDur   time.Duration
	SentChunks   int
	SentBytes    uint64
	RecvMessages int
	RecvFinal    int
	RecvInterim  int
	NoSpeech     int
	Voice        bool
	StartedAt    time.Time
}

// dgConn is one websocket connection: Start opens one, and it lives until the
// server closes it, Stop is called or an error occurs.
type dgConn struct {
	e      *deepgramEngine
	ctx    context.Context
	cancel context.CancelFunc
	ws     *websocket.Conn

	stopCh   chan struct{}
	stopOnce sync.Once
	stopping atomic.Bool

	audioCh chan []byte
	feedBuf []byte
	feedMu  sync.Mutex

	mu      sync.Mutex
	sendErr error
	stats   streamStats
	results int // finalized results so far
}

func (c *dgConn) stop() {
	c.stopOnce.Do(func() {
		c.stopping.Store(true)
		close(c.stopCh)
		// the server normally closes right after CloseStream
		time.AfterFunc(closeStreamWait, c.cancel)
	})
}

func (c *dgConn) run() {
	defer c.e.wg.Done()
	defer c.cancel()

	c.stats.StartedAt = time.Now()
	if reason, err := c.dial(); err != nil {
		log.Errorf("deepgram connect: %v", err)
		c.finish(&ErrorEvent{Reason: reason, Err: err})
		return
	}

	actx, capture, err := c.openCapture()
	if err != nil {
		log.Errorf("audio capture: %v", err)
		c.ws.Close(websocket.StatusNormalClosure, "")
		c.finish(&ErrorEvent{Reason: ReasonAudioCapture, Err: err})
		return
	}

	var vad *vadProcessor
	if v, err := newVADProcessor(); err == nil {
		vad = v
	} else {
		log.Warnf("vad init failed, silence detection disabled: %v", err)
	}

	capture.SetCallback(func(data []byte, _ uint32) {
		if c.stopping.Load() {
			return
		}
		if vad != nil {
			vad.Process(data)
		}
		c.feed(data)
	})

	var workers sync.WaitGroup
	workers.Add(1)
	go func() {
		defer workers.Done()
		c.runSender()
	}()
	if vad != nil {
		workers.Add(1)
		go func() {
			defer workers.Done()
			c.runSilence(vad)
		}()
	}

	if err := capture.Start(); err != nil {
		log.Errorf("audio capture start: %v", err)
		c.cancel()
		workers.Wait()
		capture.ClearCallback()
		capture.Close()
		actx.Close()
		c.ws.Close(websocket.StatusNormalClosure, "")
		c.finish(&ErrorEvent{Reason: ReasonAudioCapture, Err: err})
		return
	}

	recvErr := c.runReceiver()

	c.cancel()
	capture.Stop()
	capture.ClearCallback()
	capture.Close()
	actx.Close()
	workers.Wait()
	if vad != nil {
		c.mu.Lock()
		c.stats.Voice = vad.VoiceDetected()
		c.mu.Unlock()
	}
	c.ws.Close(websocket.StatusNormalClosure, "")

	c.finish(c.classifyEnd(recvErr))
}

// finish logs the connection, detaches it from the engine and reports the
// optional error followed by the end notification.
func (c *dgConn) finish(errEv *ErrorEvent) {
	c.mu.Lock()
	stats := c.stats
	c.mu.Unlock()
	log.StreamMetrics(log.StreamMetricsData{
		ConnectMs:    float64(stats.ConnectDur.Milliseconds()),
		TotalMs:      float64(time.Since(stats.StartedAt).Milliseconds()),
		AudioS:       float64(stats.SentBytes) / audio.BytesPerSecond,
		SentChunks:   stats.SentChunks,
		SentKB:       float64(stats.SentBytes) / 1024,
		RecvMessages: stats.RecvMessages,
		RecvFinal:    stats.RecvFinal,
		RecvInterim:  stats.RecvInterim,
		NoSpeech:     stats.NoSpeech,
		Voice:        stats.Voice,
	})

	c.e.release(c)
	if errEv != nil {
		c.e.emit(*errEv)
	}
	c.e.emit(EndEvent{})
}

func (c *dgConn) dial() (ErrorReason, error) {
	endpoint, err := c.e.dg.streamURL(c.e.cfg)
	if err != nil {
		return ReasonNetwork, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+c.e.dg.apiKey)

	dialCtx, cancel := context.WithTimeout(c.ctx, dialTimeout)
	defer cancel()

	start := time.Now()
	ws, resp, err := websocket.Dial(dialCtx, endpoint, &websocket.DialOptions{HTTPHeader: headers})
	c.mu.Lock()
	c.stats.ConnectDur = time.Since(start)
	c.mu.Unlock()
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return dialFailureReason(status), fmt.Errorf("deepgram: dial: %w", err)
	}
	c.ws = ws
	return "", nil
}

func dialFailureReason(status int) ErrorReason {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ReasonNotAllowed
	case http.StatusPaymentRequired, http.StatusTooManyRequests:
		return ReasonServiceNotAllowed
	case http.StatusBadRequest:
		// the language tag is the only free-form query parameter
		return ReasonLanguageNotSupported
	}
	return ReasonNetwork
}

func (c *dgConn) openCapture() (audio.Context, audio.CaptureDevice, error) {
	actx, err := c.e.dg.openAudio()
	if err != nil {
		return nil, nil, err
	}
	dev, err := audio.FindDevice(actx, c.e.dg.device)
	if err != nil {
		log.Warnf("device lookup failed, using default: %v", err)
	}
	capture, err := actx.NewCapture(dev, audio.DefaultCaptureConfig())
	if err != nil {
		actx.Close()
		return nil, nil, err
	}
	return actx, capture, nil
}

// feed buffers PCM and queues it in streamChunkMs chunks.
func (c *dgConn) feed(pcm []byte) {
	c.feedMu.Lock()
	c.feedBuf = append(c.feedBuf, pcm...)
	var chunks [][]byte
	for len(c.feedBuf) >= streamChunkBytes {
		chunk := make([]byte, streamChunkBytes)
		copy(chunk, c.feedBuf[:streamChunkBytes])
		c.feedBuf = c.feedBuf[streamChunkBytes:]
		chunks = append(chunks, chunk)
	}
	c.feedMu.Unlock()

	for _, chunk := range chunks {
		select {
		case c.audioCh <- chunk:
		case <-c.stopCh:
			return
		default:
			log.Warn("deepgram sender behind, dropping audio chunk")
		}
	}
}

func (c *dgConn) runSender() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.stopCh:
			if err := c.ws.Write(c.ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
				c.cancel()
			}
			return
		case chunk := <-c.audioCh:
			if err := c.ws.Write(c.ctx, websocket.MessageBinary, chunk); err != nil {
				c.mu.Lock()
				if c.sendErr == nil {
					c.sendErr = err
				}
				c.mu.Unlock()
				c.cancel()
				return
			}
			c.mu.Lock()
			c.stats.SentChunks++
			c.stats.SentBytes += uint64(len(chunk))
			c.mu.Unlock()
		}
	}
}

func (c *dgConn) runSilence(vad *vadProcessor) {
	mon := newSilenceMonitor()
	ticker := time.NewTicker(silenceTick)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			switch mon.Tick(vad.HasSpeechTick()) {
			case silenceWarn, silenceRepeat:
				c.mu.Lock()
				c.stats.NoSpeech++
				c.mu.Unlock()
				c.e.emit(ErrorEvent{Reason: ReasonNoSpeech})
			}
		}
	}
}

func (c *dgConn) runReceiver() error {
	for {
		_, data, err := c.ws.Read(c.ctx)
		if err != nil {
			return err
		}
		res, ok := parseDeepgramResult(data)
		if !ok {
			continue
		}

		c.mu.Lock()
		c.stats.RecvMessages++
		if res.Final {
			c.stats.RecvFinal++
		} else {
			c.stats.RecvInterim++
		}
		index := c.results
		if res.Final {
			c.results++
		}
		c.mu.Unlock()

		c.e.emit(ResultEvent{ResultIndex: index, Results: []Result{res}})
	}
}

// classifyEnd decides whether the connection ended on its own terms or failed.
func (c *dgConn) classifyEnd(recvErr error) *ErrorEvent {
	if c.stopping.Load() {
		return nil
	}
	if websocket.CloseStatus(recvErr) == websocket.StatusNormalClosure {
		return nil
	}
	c.mu.Lock()
	err := c.sendErr
	c.mu.Unlock()
	if err == nil {
		err = recvErr
	}
	log.Errorf("deepgram stream: %v", err)
	return &ErrorEvent{Reason: ReasonNetwork, Err: err}
}

type deepgramResponse struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// parseDeepgramResult converts a Results message. Other message types and
// results without any text are skipped.
func parseDeepgramResult(data []byte) (Result, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return Result{}, false
	}
	if resp.Type != "Results" || len(resp.Channel.Alternatives) == 0 {
		return Result{}, false
	}

	res := Result{Final: resp.IsFinal || resp.SpeechFinal}
	for _, alt := range resp.Channel.Alternatives {
		res.Alternatives = append(res.Alternatives, Alternative{
			Transcript: strings.TrimSpace(alt.Transcript),
			Confidence: alt.Confidence,
		})
	}
	if res.Primary() == "" {
		return Result{}, false
	}
	return res, true
}
