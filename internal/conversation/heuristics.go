package conversation

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// FollowMarker is appended by agents that expect an answer from the user.
const FollowMarker = "[FOLLOW]"

// StopWordSimilarity is the minimum Jaro-Winkler similarity for a transcript
// to count as the stop word.
const StopWordSimilarity = 0.9

var followRe = regexp.MustCompile(`(?i)\[follow\]`)

// Continuation strips the last follow marker from reply and reports whether
// the conversation should go back to listening: the marker was present, or
// the reply contains a question mark.
func Continuation(reply string) (clean string, listen bool) {
	locs := followRe.FindAllStringIndex(reply, -1)
	if len(locs) > 0 {
		last := locs[len(locs)-1]
		clean = strings.TrimSpace(reply[:last[0]] + reply[last[1]:])
		return clean, true
	}
	return reply, strings.Contains(reply, "?")
}

// Speakable removes every follow marker from text.
func Speakable(text string) string {
	return strings.TrimSpace(followRe.ReplaceAllString(text, ""))
}

// IsStopWord reports whether transcript fuzzily matches stop after both are
// lower-cased and stripped of punctuation.
func IsStopWord(transcript, stop string) bool {
	t, s := normalise(transcript), normalise(stop)
	if t == "" || s == "" {
		return false
	}
	if t == s {
		return true
	}
	return matchr.JaroWinkler(t, s, false) >= StopWordSimilarity
}

func normalise(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
