package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Inbound event types.
const (
	EventUserTranscriptDone  = "conversation.item.input_audio_transcription.completed"
	EventUserTranscriptDelta = "conversation.item.input_audio_transcription.delta"
	EventSpeechStarted       = "input_audio_buffer.speech_started"
	EventAssistantTranscript = "response.audio_transcript.done"
	EventAssistantTextDelta  = "response.audio_transcript.delta"
	EventAssistantAudioDelta = "response.audio.delta"
	EventOutputAudioStarted  = "output_audio_buffer.started"
	EventOutputAudioStopped  = "output_audio_buffer.stopped"
	EventOutputAudioCleared  = "output_audio_buffer.cleared"
	EventError               = "error"
)

// Outbound event types.
const (
	EventResponseCreate = "response.create"
	EventSettingsUpdate = "response.settings.update"
	EventText           = "text"
)

// maxPayloadExcerpt bounds raw frame text kept in errors and logs.
const maxPayloadExcerpt = 256

// ServerEvent is one inbound data channel frame. Only the fields this
// package acts on are decoded; Raw keeps the full frame.
type ServerEvent struct {
	Type       string          `json:"type"`
	EventID    string          `json:"event_id,omitempty"`
	Transcript *string         `json:"transcript,omitempty"`
	Delta      *string         `json:"delta,omitempty"`
	Error      json.RawMessage `json:"error,omitempty"`

	Raw []byte `json:"-"`
}

// ParseEvent decodes a frame. Frames that are not JSON objects, have no
// type, or lack a field their type requires yield a MalformedEventError.
func ParseEvent(data []byte) (*ServerEvent, error) {
	var ev ServerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, &MalformedEventError{Payload: excerpt(data), Cause: err}
	}
	ev.Raw = data
	if ev.Type == "" {
		return nil, &MalformedEventError{Payload: excerpt(data), Cause: errors.New("missing type")}
	}

	var missing string
	switch ev.Type {
	case EventUserTranscriptDone, EventAssistantTranscript:
		if ev.Transcript == nil {
			missing = "transcript"
		}
	case EventUserTranscriptDelta:
		if ev.Delta == nil {
			missing = "delta"
		}
	case EventError:
		if len(ev.Error) == 0 {
			missing = "error"
		}
	}
	if missing != "" {
		return nil, &MalformedEventError{
			Type:    ev.Type,
			Payload: excerpt(data),
			Cause:   fmt.Errorf("missing %s", missing),
		}
	}
	return &ev, nil
}

// TranscriptEvent normalizes transcript-bearing events.
func (e *ServerEvent) TranscriptEvent(now time.Time) (TranscriptEvent, bool) {
	switch e.Type {
	case EventUserTranscriptDone:
		return TranscriptEvent{Speaker: SpeakerUser, Text: *e.Transcript, IsFinal: true, Timestamp: now}, true
	case EventUserTranscriptDelta:
		return TranscriptEvent{Speaker: SpeakerUser, Text: *e.Delta, Timestamp: now}, true
	case EventAssistantTranscript:
		return TranscriptEvent{Speaker: SpeakerAssistant, Text: *e.Transcript, IsFinal: true, Timestamp: now}, true
	}
	return TranscriptEvent{}, false
}

// ModelError decodes the payload of an error event. The payload is
// treated as opaque; unknown shapes still produce an error carrying Raw.
func (e *ServerEvent) ModelError() *ModelReportedError {
	out := &ModelReportedError{EventID: e.EventID, Raw: e.Error}
	var body struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
		Param   string `json:"param"`
		EventID string `json:"event_id"`
	}
	if err := json.Unmarshal(e.Error, &body); err == nil {
		out.Type = body.Type
		out.Code = body.Code
		out.Message = body.Message
		out.Param = body.Param
		if body.EventID != "" {
			out.EventID = body.EventID
		}
	} else {
		var s string
		if json.Unmarshal(e.Error, &s) == nil {
			out.Message = s
		}
	}
	return out
}

// responseCreate asks the model to start generating a response.
type responseCreate struct {
	Type     string   `json:"type"`
	Response struct{} `json:"response"`
}

// settingsUpdate changes the synthesis voice for future speech.
type settingsUpdate struct {
	Type     string `json:"type"`
	Settings struct {
		Voice string `json:"voice"`
	} `json:"settings"`
}

// textMessage injects typed text into the conversation.
type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func newResponseCreate() responseCreate {
	return responseCreate{Type: EventResponseCreate}
}

func newSettingsUpdate(voice string) settingsUpdate {
	u := settingsUpdate{Type: EventSettingsUpdate}
	u.Settings.Voice = voice
	return u
}

func newTextMessage(text string) textMessage {
	return textMessage{Type: EventText, Text: text}
}

func excerpt(b []byte) string {
	if len(b) > maxPayloadExcerpt {
		return string(b[:maxPayloadExcerpt]) + "..."
	}
	return string(b)
}
