// Package events defines the notifications the voice loop publishes while it
// runs and a [Bus] that fans them out to subscribers.
//
// Publishing is fire-and-forget. A slow subscriber loses events rather than
// stalling the audio path.
package events

import (
	"fmt"
	"time"
)

// Kind enumerates every event the system publishes. The set is closed.
type Kind int

const (
	KindOk Kind = iota
	KindStartListening
	KindStopListening
	KindWakeDetected
	KindNoiseDetected
	KindSilenceDetected
	KindStartThinking
	KindStopThinking
	KindStartTalking
	KindStopTalking
	KindFunctionInvoking
	KindFunctionInvoked
	KindHangup
	KindError
	KindShutdown
)

var kindNames = [...]string{
	KindOk:               "ok",
	KindStartListening:   "start_listening",
	KindStopListening:    "stop_listening",
	KindWakeDetected:     "wake_detected",
	KindNoiseDetected:    "noise_detected",
	KindSilenceDetected:  "silence_detected",
	KindStartThinking:    "start_thinking",
	KindStopThinking:     "stop_thinking",
	KindStartTalking:     "start_talking",
	KindStopTalking:      "stop_talking",
	KindFunctionInvoking: "function_invoking",
	KindFunctionInvoked:  "function_invoked",
	KindHangup:           "hangup",
	KindError:            "error",
	KindShutdown:         "shutdown",
}

// String returns the snake_case name of k.
func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Event is one notification. Only the fields relevant to Kind are set.
type Event struct {
	Kind Kind
	At   time.Time

	// Phrase is the wake phrase for KindWakeDetected.
	Phrase string

	// Agent names the agent handling the turn, when known.
	Agent string

	// Tool is the tool name for KindFunctionInvoking and KindFunctionInvoked.
	Tool string

	// Err is set for KindError.
	Err error
}

// New returns an event of kind k stamped with the current time.
func New(k Kind) Event { return Event{Kind: k, At: time.Now()} }

// Wake returns a KindWakeDetected event for phrase.
func Wake(phrase string) Event {
	e := New(KindWakeDetected)
	e.Phrase = phrase
	return e
}

// Function returns a KindFunctionInvoking or KindFunctionInvoked event.
func Function(k Kind, tool string) Event {
	e := New(k)
	e.Tool = tool
	return e
}

// Error returns a KindError event carrying err.
func Error(err error) Event {
	e := New(KindError)
	e.Err = err
	return e
}

// Sink receives events. Publish must not block.
type Sink interface {
	Publish(Event)
}

// Discard is a Sink that drops everything.
var Discard Sink = discard{}

type discard struct{}

func (discard) Publish(Event) {}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

// Publish calls f(e).
func (f SinkFunc) Publish(e Event) { f(e) }
