package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/teslashibe/go-concierge/internal/config"
	"github.com/teslashibe/go-concierge/pkg/realtime"
)

func TestTranscript(t *testing.T) {
	var buf bytes.Buffer
	out := transcript{w: &buf}

	out.message(realtime.ChatMessage{Role: realtime.SpeakerUser, Text: " Hello, who is the architect? "})
	out.message(realtime.ChatMessage{Role: realtime.SpeakerAssistant, Text: "Studio Mumbai designed it."})
	out.state(realtime.StateListening)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "you") || !strings.HasSuffix(lines[0], "Hello, who is the architect?") {
		t.Errorf("user line = %q", lines[0])
	}
	if !strings.Contains(lines[1], "concierge") || !strings.HasSuffix(lines[1], "Studio Mumbai designed it.") {
		t.Errorf("assistant line = %q", lines[1])
	}
	if !strings.Contains(lines[2], "[listening]") {
		t.Errorf("state line = %q", lines[2])
	}
}

func TestAudioPaths(t *testing.T) {
	t.Run("no mic uses test tone", func(t *testing.T) {
		cfg := testConfig()
		ac := audioPaths{}.audioConfig(cfg)
		if ac.Backend != "mock" {
			t.Errorf("backend = %q, want mock", ac.Backend)
		}
		sink, err := audioPaths{}.sink(ac, nil)
		if err != nil || sink != nil {
			t.Errorf("sink = %v, %v; want nil, nil", sink, err)
		}
	})

	t.Run("stdio uses pipes", func(t *testing.T) {
		cfg := testConfig()
		ac := audioPaths{stdio: true}.audioConfig(cfg)
		if ac.Backend != "pipe" || ac.SampleRate != cfg.SampleRate {
			t.Errorf("audio config = %+v", ac)
		}
	})

	t.Run("speaker file", func(t *testing.T) {
		cfg := testConfig()
		p := audioPaths{speaker: t.TempDir() + "/speaker.pcm"}
		ac := p.audioConfig(cfg)
		sink, err := p.sink(ac, nil)
		if err != nil {
			t.Fatalf("sink: %v", err)
		}
		if sink.Name() != "pipe" {
			t.Errorf("sink = %q, want pipe", sink.Name())
		}
		sink.Close()
	})
}

func testConfig() *config.Config {
	return config.Default()
}
