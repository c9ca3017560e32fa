// Package conversation drives the turn-taking loop of the assistant:
// WaitWake → Listen → Think → Speak → {Listen | WaitWake}.
//
// Every stage runs under its own [Scope] derived from the process context.
// [Orchestrator.Hangup] cancels only the current stage; cancelling the
// process context stops the loop. While a reply is being spoken the
// orchestrator keeps listening for the wake phrase and interrupts playback
// when it is heard (barge-in).
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nanobot-edge/nanobot/internal/agent"
	"github.com/nanobot-edge/nanobot/internal/endpoint"
	"github.com/nanobot-edge/nanobot/internal/events"
	"github.com/nanobot-edge/nanobot/internal/frontend"
	"github.com/nanobot-edge/nanobot/internal/observe"
	"github.com/nanobot-edge/nanobot/pkg/audio"
	"github.com/nanobot-edge/nanobot/pkg/provider/stt"
	"github.com/nanobot-edge/nanobot/pkg/provider/tts"
	"github.com/nanobot-edge/nanobot/pkg/provider/wakeword"
)

// Defaults.
const (
	DefaultBackoff = 5 * time.Second
	DefaultVolume  = 5
)

// Deps are the collaborators of an Orchestrator. Console mode only needs
// Agents.
type Deps struct {
	Capturer   audio.Capturer
	Sink       audio.Sink
	FrontEnd   *frontend.FrontEnd
	Endpointer *endpoint.Endpointer
	STT        stt.Provider
	TTS        tts.Provider
	Agents     []agent.Agent
}

// validateAudio reports the collaborators missing for the audio loop.
func (o *Orchestrator) validateAudio() error {
	var errs []error
	if o.capturer == nil {
		errs = append(errs, errors.New("capturer is required"))
	}
	if o.sink == nil {
		errs = append(errs, errors.New("sink is required"))
	}
	if o.fe == nil {
		errs = append(errs, errors.New("front end is required"))
	}
	if o.ep == nil {
		errs = append(errs, errors.New("endpointer is required"))
	}
	if o.stt == nil {
		errs = append(errs, errors.New("stt provider is required"))
	}
	if o.tts == nil {
		errs = append(errs, errors.New("tts provider is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("conversation: %w", err)
	}
	return nil
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithEvents sets the sink for lifecycle events. Default: [events.Discard].
func WithEvents(sink events.Sink) Option {
	return func(o *Orchestrator) { o.events = sink }
}

// WithMetrics sets the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithHistory replaces the chat history. Default: a History with
// [DefaultHistoryTTL].
func WithHistory(h *History) Option {
	return func(o *Orchestrator) { o.history = h }
}

// WithBackoff sets the pause after a failed turn. Default: [DefaultBackoff].
func WithBackoff(d time.Duration) Option {
	return func(o *Orchestrator) { o.backoff = d }
}

// WithVolume sets the playback volume on a 0-10 scale. Default:
// [DefaultVolume].
func WithVolume(level int) Option {
	return func(o *Orchestrator) { o.volume = min(max(level, 0), audio.MaxVolume) }
}

// WithLanguage sets the language hint passed to speech-to-text.
func WithLanguage(lang string) Option {
	return func(o *Orchestrator) { o.language = lang }
}

// Orchestrator runs the conversation loop. Run and RunConsole must not be
// called concurrently; Hangup, SetAgents and ReplaceSpotter are safe from
// any goroutine.
type Orchestrator struct {
	capturer audio.Capturer
	sink     audio.Sink
	fe       *frontend.FrontEnd
	ep       *endpoint.Endpointer
	stt      stt.Provider
	tts      tts.Provider

	events   events.Sink
	metrics  *observe.Metrics
	history  *History
	backoff  time.Duration
	volume   int
	language string

	mu      sync.Mutex
	agents  []agent.Agent
	scope   *Scope
	stage   Stage
	pending *frontend.Detection
	spotter wakeword.Spotter
}

// New returns an Orchestrator over d.
func New(d Deps, opts ...Option) (*Orchestrator, error) {
	if len(d.Agents) == 0 {
		return nil, errors.New("conversation: at least one agent is required")
	}
	o := &Orchestrator{
		capturer: d.Capturer,
		sink:     d.Sink,
		fe:       d.FrontEnd,
		ep:       d.Endpointer,
		stt:      d.STT,
		tts:      d.TTS,
		agents:   d.Agents,
		events:   events.Discard,
		backoff:  DefaultBackoff,
		volume:   DefaultVolume,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.events == nil {
		o.events = events.Discard
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	if o.history == nil {
		o.history = NewHistory(DefaultHistoryTTL)
	}
	return o, nil
}

// History returns the chat history.
func (o *Orchestrator) History() *History { return o.history }

// Stage returns the stage currently running, or "" between stages.
func (o *Orchestrator) Stage() Stage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stage
}

// SetAgents replaces the agents used from the next wake on.
func (o *Orchestrator) SetAgents(agents []agent.Agent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.agents = agents
}

func (o *Orchestrator) currentAgents() []agent.Agent {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.agents
}

// ReplaceSpotter installs s in the front end before the next WaitWake. The
// replaced spotter is closed.
func (o *Orchestrator) ReplaceSpotter(s wakeword.Spotter) {
	o.mu.Lock()
	old := o.spotter
	o.spotter = s
	o.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
}

func (o *Orchestrator) applySpotter() {
	o.mu.Lock()
	s := o.spotter
	o.spotter = nil
	o.mu.Unlock()
	if s == nil {
		return
	}
	if old := o.fe.SetSpotter(s); old != nil && old != s {
		if err := old.Close(); err != nil {
			slog.Warn("conversation: closing replaced spotter", "err", err)
		}
	}
	slog.Info("conversation: wake word spotter replaced", "phrases", len(s.Profiles()))
}

// Hangup cancels the current stage. The loop goes back to waiting for the
// wake phrase; during WaitWake it simply keeps waiting.
func (o *Orchestrator) Hangup() {
	o.mu.Lock()
	s := o.scope
	o.mu.Unlock()
	o.events.Publish(events.New(events.KindHangup))
	if s != nil {
		s.Hangup()
	}
}

// enter creates the Scope of stage and makes it the target of Hangup. The
// returned function ends the stage.
func (o *Orchestrator) enter(ctx context.Context, stage Stage) (*Scope, func()) {
	ctx, span := observe.StartSpan(ctx, "conversation."+string(stage))
	s := NewScope(ctx)
	o.mu.Lock()
	o.scope, o.stage = s, stage
	o.mu.Unlock()
	start := time.Now()
	return s, func() {
		o.mu.Lock()
		if o.scope == s {
			o.scope, o.stage = nil, ""
		}
		o.mu.Unlock()
		s.Close()
		span.End()
		o.metrics.RecordStage(context.Background(), string(stage), time.Since(start))
	}
}

// Run drives the conversation loop until ctx is done. Turn failures are
// published as error events and retried after the backoff; Run only returns
// on shutdown, with a nil error.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.validateAudio(); err != nil {
		return err
	}
	slog.Info("conversation: started", "agents", len(o.currentAgents()))
	defer o.events.Publish(events.New(events.KindShutdown))

	for {
		if ctx.Err() != nil {
			slog.Info("conversation: stopped")
			return nil
		}
		o.events.Publish(events.New(events.KindOk))

		err := o.cycle(ctx)
		switch {
		case err == nil:
		case errors.Is(err, ErrShutdown) || ctx.Err() != nil:
			slog.Info("conversation: stopped")
			return nil
		case errors.Is(err, ErrHangup):
			slog.Debug("conversation: hung up")
		case errors.Is(err, ErrTranscriptionEmpty):
			slog.Debug("conversation: nothing was said")
		default:
			slog.Error("conversation: turn failed", "err", err, "backoff", o.backoff)
			o.events.Publish(events.Error(err))
			if !sleep(ctx, o.backoff) {
				slog.Info("conversation: stopped")
				return nil
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// cycle runs one wake-initiated conversation until it goes back to WaitWake.
func (o *Orchestrator) cycle(ctx context.Context) error {
	d, err := o.waitWake(ctx)
	if err != nil {
		return err
	}

	ag := agent.Select(o.currentAgents(), d.Phrase)
	if ag == nil {
		return errors.New("conversation: no enabled agent")
	}
	profile := ag.Profile()

	e := events.Wake(d.Phrase)
	e.Agent = profile.Name
	o.events.Publish(e)
	o.metrics.RecordWake(ctx, d.Phrase)

	turnID := uuid.NewString()
	ctx, span := observe.StartTurn(ctx, turnID, profile.Name, d.Phrase)
	defer span.End()
	log := observe.Logger(ctx).With("turn", turnID, "agent", profile.Name)
	log.Info("conversation: wake phrase detected", "phrase", d.Phrase, "replayed", d.Replayed)

	if o.history.ExpireIfIdle() {
		log.Info("conversation: chat history expired")
	}

	o.metrics.ActiveTurns.Add(ctx, 1)
	defer o.metrics.ActiveTurns.Add(context.Background(), -1)

	for {
		transcript, err := o.listen(ctx, log)
		if err != nil {
			return err
		}
		if transcript == "" {
			return nil
		}
		if IsStopWord(transcript, profile.StopWord) {
			log.Info("conversation: stop word heard, ending conversation", "transcript", transcript)
			return nil
		}
		log.Info("conversation: user said", "transcript", transcript)

		reply, sentences, err := o.think(ctx, ag, transcript)
		if err != nil {
			return err
		}
		clean, listen := Continuation(reply)
		log.Info("conversation: agent replied", "reply", clean, "follow_up", listen)

		bargedIn, err := o.speak(ctx, profile.Voice, sentences)
		if err != nil {
			return err
		}
		o.metrics.RecordTurn(ctx, profile.Name)
		if bargedIn {
			log.Info("conversation: reply interrupted by wake phrase")
			return nil
		}
		if !listen {
			return nil
		}
	}
}

// waitWake returns the barge-in detection left by the previous Speak, or
// blocks until the front end hears a wake phrase. A hangup restarts the
// wait.
func (o *Orchestrator) waitWake(ctx context.Context) (frontend.Detection, error) {
	o.mu.Lock()
	pending := o.pending
	o.pending = nil
	o.mu.Unlock()
	if pending != nil {
		return *pending, nil
	}

	o.applySpotter()
	for {
		scope, done := o.enter(ctx, StageWaitWake)
		src, err := o.open(scope.Context())
		var d frontend.Detection
		if err == nil {
			d, err = o.detectWake(scope.Context(), src)
		}
		err = scope.classify(err)
		done()
		switch {
		case err == nil:
			return d, nil
		case errors.Is(err, ErrHangup):
			continue
		default:
			return frontend.Detection{}, err
		}
	}
}

func (o *Orchestrator) open(ctx context.Context) (audio.Source, error) {
	src, err := o.capturer.Open(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: open capture: %w", ErrDevice, err)
	}
	return src, nil
}

// detectWake runs the front end on src and closes src.
func (o *Orchestrator) detectWake(ctx context.Context, src audio.Source) (frontend.Detection, error) {
	defer src.Close()
	d, err := o.fe.WaitWake(ctx, src)
	if err != nil && ctx.Err() == nil && isSourceFailure(err) {
		return d, fmt.Errorf("%w: %w", ErrDevice, err)
	}
	return d, err
}

func isSourceFailure(err error) bool {
	return errors.Is(err, audio.ErrStalled) || errors.Is(err, audio.ErrClosed) || errors.Is(err, audio.ErrDevice)
}

// listen captures one utterance and transcribes it. An empty transcript with
// a nil error means the turn ends quietly.
func (o *Orchestrator) listen(ctx context.Context, log *slog.Logger) (string, error) {
	scope, done := o.enter(ctx, StageListen)
	defer done()
	sctx := scope.Context()

	src, err := o.open(sctx)
	if err != nil {
		return "", scope.classify(err)
	}
	o.events.Publish(events.New(events.KindStartListening))
	res, err := o.ep.Capture(sctx, src)
	_ = src.Close()
	o.events.Publish(events.New(events.KindStopListening))

	if err != nil {
		if isSourceFailure(err) && sctx.Err() == nil {
			err = fmt.Errorf("%w: %w", ErrDevice, err)
		}
		return "", scope.classify(err)
	}
	if res.Status == endpoint.StatusCancelled {
		if cause := scope.Cause(); cause != nil {
			return "", cause
		}
		return "", context.Canceled
	}
	if res.Status != endpoint.StatusOK {
		log.Info("conversation: no utterance captured", "status", res.Status)
		o.metrics.RecordAbortedCapture(ctx, res.Status.String())
		return "", nil
	}
	if !res.Usable() {
		log.Info("conversation: utterance too short", "duration", res.Duration)
		o.metrics.RecordAbortedCapture(ctx, "too_short")
		return "", nil
	}

	wav, err := res.WAV(audio.DefaultSampleRate)
	if err != nil {
		return "", fmt.Errorf("conversation: encode utterance: %w", err)
	}
	start := time.Now()
	text, err := o.stt.Transcribe(sctx, wav, o.language)
	o.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	if errors.Is(err, stt.ErrNoAudio) {
		return "", ErrTranscriptionEmpty
	}
	if err != nil {
		if c := scope.classify(err); c != err {
			return "", c
		}
		o.metrics.RecordProviderError(ctx, "stt", "transcribe")
		return "", upstream(StageListen, err)
	}
	if text = stt.Clean(text); text == "" {
		return "", ErrTranscriptionEmpty
	}
	return text, nil
}

// think asks ag for a reply and records the exchange in the history. It
// returns the full reply and the sentences to speak.
func (o *Orchestrator) think(ctx context.Context, ag agent.Agent, transcript string) (string, []string, error) {
	scope, done := o.enter(ctx, StageThink)
	defer done()

	o.events.Publish(events.New(events.KindStartThinking))
	defer o.events.Publish(events.New(events.KindStopThinking))

	var sentences []string
	start := time.Now()
	reply, err := ag.Respond(scope.Context(), o.history.Messages(), transcript, func(s string) {
		sentences = append(sentences, s)
	})
	o.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		if c := scope.classify(err); c != err {
			return "", nil, c
		}
		o.metrics.RecordProviderError(ctx, "llm", "respond")
		return "", nil, upstream(StageThink, err)
	}
	if len(sentences) == 0 && reply != "" {
		sentences = []string{reply}
	}

	clean, _ := Continuation(reply)
	o.history.AppendTurn(transcript, clean, ag.Profile().MaxHistory)
	return reply, sentences, nil
}

// speak plays sentences while listening for the wake phrase. It reports
// whether a wake phrase interrupted playback; in that case the detection is
// kept for the next WaitWake.
func (o *Orchestrator) speak(ctx context.Context, voice string, sentences []string) (bool, error) {
	scope, done := o.enter(ctx, StageSpeak)
	defer done()
	sctx := scope.Context()

	o.events.Publish(events.New(events.KindStartTalking))
	defer o.events.Publish(events.New(events.KindStopTalking))

	type wakeResult struct {
		d   frontend.Detection
		err error
	}
	var wakeCh chan wakeResult
	if src, err := o.open(sctx); err != nil {
		if c := scope.classify(err); c != err {
			return false, c
		}
		slog.Warn("conversation: cannot listen for barge-in", "err", err)
	} else {
		wakeCh = make(chan wakeResult, 1)
		go func() {
			d, err := o.detectWake(sctx, src)
			wakeCh <- wakeResult{d, err}
		}()
	}

	playCh := make(chan error, 1)
	go func() { playCh <- o.play(sctx, voice, sentences) }()

	var playErr error
	select {
	case playErr = <-playCh:
		scope.Cancel(context.Canceled)
		if wakeCh != nil {
			<-wakeCh
		}
	case w := <-wakeCh:
		if w.err == nil {
			o.sink.Flush()
			scope.Cancel(errBargeIn)
			<-playCh
			o.mu.Lock()
			o.pending = &w.d
			o.mu.Unlock()
			o.metrics.RecordBargeIn(ctx)
			return true, nil
		}
		if c := scope.classify(w.err); c != w.err {
			o.sink.Flush()
			<-playCh
			return false, c
		}
		slog.Warn("conversation: barge-in listener failed", "err", w.err)
		playErr = <-playCh
	}

	if playErr == nil {
		return false, nil
	}
	o.sink.Flush()
	if cause := scope.Cause(); errors.Is(cause, ErrShutdown) || errors.Is(cause, ErrHangup) {
		return false, cause
	}
	if errors.Is(playErr, ErrDevice) {
		return false, playErr
	}
	o.metrics.RecordProviderError(ctx, "tts", "synthesize")
	return false, upstream(StageSpeak, playErr)
}

// play synthesizes and plays each sentence in order, then waits for the
// sink to drain.
func (o *Orchestrator) play(ctx context.Context, voice string, sentences []string) error {
	for _, s := range sentences {
		text := Speakable(s)
		if text == "" {
			continue
		}
		start := time.Now()
		ch, err := o.tts.Synthesize(ctx, text, voice)
		if err != nil {
			return err
		}
		first := true
		for chunk := range ch {
			if first {
				o.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
				first = false
			}
			pcm := audio.Resample(chunk, o.tts.SampleRate(), o.sink.SampleRate())
			pcm = audio.ScaleVolume(pcm, o.volume)
			if err := o.sink.Write(ctx, pcm); err != nil {
				for range ch {
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("%w: playback: %w", ErrDevice, err)
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return o.sink.Drain(ctx)
}
