package realtime

import (
	"regexp"
	"strings"
	"unicode"
)

// Language is a language the assistant can answer in.
type Language string

const (
	English Language = "english"
	Hindi   Language = "hindi"
)

// Valid reports whether l is a known language.
func (l Language) Valid() bool {
	return l == English || l == Hindi
}

// asciiText matches text made only of ASCII letters, whitespace and
// common punctuation. Digits are left out so that mixed Hinglish such as
// "2 BHK dikhaiye" falls through to the word count.
var asciiText = regexp.MustCompile(`^[A-Za-z\s.,!?'"():;\-]+$`)

// hindiWords are frequent romanized Hindi words.
var hindiWords = map[string]struct{}{
	"aap": {}, "aapka": {}, "accha": {}, "acha": {}, "batao": {}, "bataiye": {},
	"chahiye": {}, "dikhaiye": {}, "dikhao": {}, "ghar": {}, "haan": {}, "hai": {},
	"hain": {}, "hum": {}, "ka": {}, "kaise": {}, "kab": {}, "kahan": {},
	"kaun": {}, "ke": {}, "ki": {}, "kitna": {}, "kitne": {}, "kya": {},
	"kyun": {}, "main": {}, "mein": {}, "mera": {}, "mujhe": {}, "nahi": {},
	"namaste": {}, "theek": {}, "thik": {}, "wala": {}, "wali": {},
}

// Detect classifies an utterance as English or Hindi.
//
// This is a cheap heuristic for short conversational utterances, not a
// language identification model. In order: any Devanagari code point
// means Hindi; plain ASCII prose means English; otherwise Hindi wins only
// when more words come from the romanized Hindi word list than not.
func Detect(text string) Language {
	for _, r := range text {
		if r >= 0x0900 && r <= 0x097F {
			return Hindi
		}
	}
	if asciiText.MatchString(text) {
		return English
	}

	var hindi, other int
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r)
		})
		if w == "" {
			continue
		}
		if _, ok := hindiWords[w]; ok {
			hindi++
		} else {
			other++
		}
	}
	if hindi > other {
		return Hindi
	}
	return English
}

// VoiceMap maps a language to a synthesis voice id.
type VoiceMap map[Language]string

// DefaultVoices returns the stock voice mapping.
func DefaultVoices() VoiceMap {
	return VoiceMap{
		English: "alloy",
		Hindi:   "shimmer",
	}
}

// VoiceFor returns the voice for l, falling back to the English voice.
func (m VoiceMap) VoiceFor(l Language) string {
	if v, ok := m[l]; ok && v != "" {
		return v
	}
	return m[English]
}
