package realtime

import "strings"

// TurnState is the state of the turn aggregator.
type TurnState string

const (
	TurnIdle              TurnState = "idle"
	TurnUserSpeaking      TurnState = "user_speaking"
	TurnAssistantSpeaking TurnState = "assistant_speaking"
)

// Aggregator merges interim and final transcripts into whole user turns
// and keeps them from being forwarded while the assistant is talking.
//
// Assistant playback start and end are authoritative: a final user
// transcript that arrives during playback is held until PlaybackEnded.
// Aggregator is not safe for concurrent use; the session serializes it.
type Aggregator struct {
	state   TurnState
	interim strings.Builder
	held    []string
}

// NewAggregator returns an idle aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{state: TurnIdle}
}

// State returns the current turn state.
func (a *Aggregator) State() TurnState {
	return a.state
}

// Pending returns the buffered, not yet forwarded user text.
func (a *Aggregator) Pending() string {
	parts := append([]string(nil), a.held...)
	if a.interim.Len() > 0 {
		parts = append(parts, a.interim.String())
	}
	return strings.Join(parts, " ")
}

// UserSpeechStarted marks the start of a user utterance.
func (a *Aggregator) UserSpeechStarted() {
	if a.state == TurnIdle {
		a.state = TurnUserSpeaking
	}
}

// UserInterim appends a provisional transcript fragment.
func (a *Aggregator) UserInterim(delta string) {
	a.interim.WriteString(delta)
	a.UserSpeechStarted()
}

// UserFinal records a completed user utterance, replacing its interim
// text. It returns the text and true when it should be forwarded now, or
// false when it is held because the assistant is speaking.
func (a *Aggregator) UserFinal(text string) (string, bool) {
	a.interim.Reset()
	text = strings.TrimSpace(text)
	if text == "" {
		if a.state == TurnUserSpeaking {
			a.state = TurnIdle
		}
		return "", false
	}
	if a.state == TurnAssistantSpeaking {
		a.held = append(a.held, text)
		return "", false
	}
	a.state = TurnIdle
	return text, true
}

// AssistantActivity marks the assistant as producing or playing audio.
func (a *Aggregator) AssistantActivity() {
	a.state = TurnAssistantSpeaking
}

// PlaybackEnded returns the aggregator to listening and releases held
// final user utterances as one message.
func (a *Aggregator) PlaybackEnded() (string, bool) {
	if a.state != TurnAssistantSpeaking {
		return "", false
	}
	if a.interim.Len() > 0 {
		a.state = TurnUserSpeaking
	} else {
		a.state = TurnIdle
	}
	if len(a.held) == 0 {
		return "", false
	}
	text := strings.Join(a.held, " ")
	a.held = nil
	return text, true
}

// Stop resolves the buffer at session end. While the assistant is
// speaking everything pending is discarded; otherwise held finals are
// returned for forwarding. Interim-only text is always dropped.
func (a *Aggregator) Stop() (string, bool) {
	defer a.reset()
	if a.state == TurnAssistantSpeaking || len(a.held) == 0 {
		return "", false
	}
	return strings.Join(a.held, " "), true
}

func (a *Aggregator) reset() {
	a.interim.Reset()
	a.held = nil
	a.state = TurnIdle
}
