package conversation

import (
	"errors"
	"fmt"
)

var (
	// ErrDevice means the capture or playback device is unavailable. The
	// turn ends and the loop retries after the backoff.
	ErrDevice = errors.New("conversation: audio device unavailable")

	// ErrShutdown is the cancellation cause when the process context ends.
	// It stops the loop.
	ErrShutdown = errors.New("conversation: shutdown")

	// ErrHangup is the cancellation cause of [Orchestrator.Hangup]. It ends
	// the current stage and the loop continues.
	ErrHangup = errors.New("conversation: hangup")

	// ErrTranscriptionEmpty means speech-to-text returned no words. The turn
	// ends silently.
	ErrTranscriptionEmpty = errors.New("conversation: empty transcription")

	// errBargeIn cancels the Speak stage when a wake phrase interrupts it.
	errBargeIn = errors.New("conversation: barge-in")
)

// Stage names a step of the conversation loop.
type Stage string

const (
	StageWaitWake Stage = "wait_wake"
	StageListen   Stage = "listen"
	StageThink    Stage = "think"
	StageSpeak    Stage = "speak"
)

// UpstreamError wraps a failure of a collaborator (speech-to-text, agent,
// text-to-speech) together with the stage it happened in.
type UpstreamError struct {
	Stage Stage
	Err   error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("conversation: %s: %v", e.Stage, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func upstream(stage Stage, err error) error {
	return &UpstreamError{Stage: stage, Err: err}
}
