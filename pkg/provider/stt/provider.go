// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider turns one captured utterance, encoded as a mono 16-bit
// RIFF/WAVE file, into text. Backends range from cloud APIs (OpenAI, Deepgram)
// to a local whisper.cpp server or an in-process whisper.cpp model.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
	"strings"
)

// ErrNoAudio is returned when the WAV payload carries no samples.
var ErrNoAudio = errors.New("stt: no audio")

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe returns the text spoken in wav. language is a BCP-47 tag
	// such as "en" or "de-DE"; empty lets the backend choose or detect it.
	// Silence or unintelligible audio yields an empty string and a nil
	// error.
	Transcribe(ctx context.Context, wav []byte, language string) (string, error)
}

// Clean trims whitespace and drops the bracketed non-speech annotations
// whisper-family models emit for silence, such as "[BLANK_AUDIO]" or
// "(wind blowing)".
func Clean(text string) string {
	text = strings.TrimSpace(text)
	for _, pair := range [][2]string{{"[", "]"}, {"(", ")"}} {
		for {
			start := strings.Index(text, pair[0])
			if start < 0 {
				break
			}
			end := strings.Index(text[start:], pair[1])
			if end < 0 {
				break
			}
			text = text[:start] + text[start+end+1:]
		}
	}
	return strings.Join(strings.Fields(text), " ")
}
