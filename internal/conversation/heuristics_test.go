package conversation_test

import (
	"testing"

	"github.com/nanobot-edge/nanobot/internal/conversation"
)

func TestContinuation(t *testing.T) {
	tests := []struct {
		name       string
		reply      string
		wantClean  string
		wantListen bool
	}{
		{"marker", "It is sunny. [FOLLOW]", "It is sunny.", true},
		{"marker lower case", "Anything else? [follow]", "Anything else?", true},
		{"last marker only", "[FOLLOW] one [Follow] two [FOLLOW]", "[FOLLOW] one [Follow] two", true},
		{"question", "Do you want to know more?", "Do you want to know more?", true},
		{"statement", "It is sunny.", "It is sunny.", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clean, listen := conversation.Continuation(tt.reply)
			if clean != tt.wantClean || listen != tt.wantListen {
				t.Errorf("Continuation(%q) = (%q, %v), want (%q, %v)", tt.reply, clean, listen, tt.wantClean, tt.wantListen)
			}
		})
	}
}

func TestSpeakable(t *testing.T) {
	if got := conversation.Speakable("Sure thing. [FOLLOW] "); got != "Sure thing." {
		t.Errorf("Speakable = %q", got)
	}
	if got := conversation.Speakable("[follow]"); got != "" {
		t.Errorf("Speakable = %q, want empty", got)
	}
}

func TestIsStopWord(t *testing.T) {
	tests := []struct {
		transcript string
		stop       string
		want       bool
	}{
		{"stop", "stop", true},
		{"Stop!", "stop", true},
		{"  STOP.  ", "stop", true},
		{"stopp", "stop", true},
		{"that is enough", "that's enough", true},
		{"stop the music please", "stop", false},
		{"what is the weather", "stop", false},
		{"", "stop", false},
		{"stop", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.transcript, func(t *testing.T) {
			if got := conversation.IsStopWord(tt.transcript, tt.stop); got != tt.want {
				t.Errorf("IsStopWord(%q, %q) = %v, want %v", tt.transcript, tt.stop, got, tt.want)
			}
		})
	}
}
