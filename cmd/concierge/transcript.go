package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/teslashibe/go-concierge/pkg/realtime"
)

var (
	userLabel      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff9f"))
	assistantLabel = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#58a6ff"))
	stateStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7681"))
)

// transcript prints chat messages and state changes for a terminal.
type transcript struct {
	w io.Writer
}

func (t transcript) message(m realtime.ChatMessage) {
	label := userLabel.Render("you")
	if m.Role == realtime.SpeakerAssistant {
		label = assistantLabel.Render("concierge")
	}
	fmt.Fprintf(t.w, "%s %s\n", label, strings.TrimSpace(m.Text))
}

func (t transcript) state(s realtime.UIState) {
	fmt.Fprintln(t.w, stateStyle.Render("["+string(s)+"]"))
}
