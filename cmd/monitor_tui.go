// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/speedlink/pkg/dglab"
	"github.com/Thermoquad/speedlink/pkg/link"
	"github.com/Thermoquad/speedlink/pkg/pipeline"
)

// Event log entry
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for info
}

// TUI model
type monitorModel struct {
	ctx          context.Context
	session      *session
	connInfo     string
	sourceInfo   string
	state        link.State
	stats        link.Statistics
	last         *pipeline.Update
	lastResponse string
	eventLog     []logEntry
	maxLogEntry  int
	speedInput   textinput.Model
	width        int
	height       int
	quitting     bool
}

// Messages
type monitorTickMsg time.Time
type linkEventMsg link.Event
type updateMsg pipeline.Update

// formatUptime formats uptime in milliseconds to human-friendly string
func formatUptime(ms uint64) string {
	if ms == 0 {
		return "0 seconds"
	}

	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	parts := []string{}
	for _, unit := range []struct {
		n    uint64
		name string
	}{
		{days, "day"},
		{hours, "hour"},
		{minutes, "minute"},
	} {
		if unit.n == 1 {
			parts = append(parts, "1 "+unit.name)
		} else if unit.n > 1 {
			parts = append(parts, fmt.Sprintf("%d %ss", unit.n, unit.name))
		}
	}
	if seconds > 0 || len(parts) == 0 {
		if seconds == 1 {
			parts = append(parts, "1 second")
		} else {
			parts = append(parts, fmt.Sprintf("%d seconds", seconds))
		}
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialMonitorModel(ctx context.Context, s *session) monitorModel {
	ti := textinput.New()
	ti.Placeholder = "km/h"
	ti.CharLimit = 6
	ti.Width = 10
	if s.manual != nil {
		ti.Focus()
	}

	return monitorModel{
		ctx:         ctx,
		session:     s,
		connInfo:    s.connInfo,
		sourceInfo:  sourceInfo(),
		state:       s.manager.State(),
		stats:       s.manager.Stats(),
		eventLog:    make([]logEntry, 0),
		maxLogEntry: 100,
		speedInput:  ti,
		width:       80,
		height:      24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(monitorTickCmd(), textinput.Blink)
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case monitorTickMsg:
		m.stats = m.session.manager.Stats()
		m.state = m.session.manager.State()
		return m, monitorTickCmd()

	case linkEventMsg:
		m.handleLinkEvent(link.Event(msg))

	case updateMsg:
		u := pipeline.Update(msg)
		m.last = &u
		if u.Err != nil {
			m.addLogEntry(fmt.Sprintf("Send failed: %v", u.Err), true)
		}
	}

	var cmd tea.Cmd
	m.speedInput, cmd = m.speedInput.Update(msg)
	return m, cmd
}

func (m monitorModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "q":
		if m.speedInput.Value() == "" {
			m.quitting = true
			return m, tea.Quit
		}

	case "ctrl+r":
		m.addLogEntry("Reconnecting...", false)
		return m, m.connectCmd()

	case "ctrl+d":
		if err := m.session.manager.Disconnect(); err != nil {
			m.addLogEntry(fmt.Sprintf("Disconnect failed: %v", err), true)
		}
		m.state = m.session.manager.State()
		return m, nil

	case "enter":
		m.injectSpeed()
		return m, nil
	}

	var cmd tea.Cmd
	m.speedInput, cmd = m.speedInput.Update(msg)
	return m, cmd
}

func (m monitorModel) connectCmd() tea.Cmd {
	mgr := m.session.manager
	ctx := m.ctx
	return func() tea.Msg {
		// failures arrive as link events
		_ = mgr.Connect(ctx)
		return nil
	}
}

func (m *monitorModel) injectSpeed() {
	if m.session.manual == nil {
		return
	}
	text := strings.TrimSpace(m.speedInput.Value())
	m.speedInput.SetValue("")
	if text == "" {
		return
	}
	kmh, err := strconv.ParseFloat(text, 64)
	if err != nil {
		m.addLogEntry(fmt.Sprintf("Not a speed: %q", text), true)
		return
	}
	if !m.session.manual.Set(kmh) {
		m.addLogEntry(fmt.Sprintf("Dropped %.1f km/h: pipeline busy", kmh), true)
	}
}

func (m *monitorModel) handleLinkEvent(ev link.Event) {
	m.state = ev.State
	switch ev.Type {
	case link.EventOpened:
		m.addLogEntry("Connected", false)
	case link.EventClosed:
		m.addLogEntry(fmt.Sprintf("Connection closed (%s)", ev.State), true)
	case link.EventError:
		m.addLogEntry(fmt.Sprint(ev.Err), true)
	case link.EventResponseReceived:
		if ev.Legacy != nil {
			m.lastResponse = dglab.FormatCommand(ev.Legacy)
		} else {
			m.lastResponse = dglab.FormatMessage(ev.Message)
			if ev.Message.HasError() {
				m.addLogEntry(m.lastResponse, true)
			}
		}
	}
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntry {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntry:]
	}
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("SPEEDLINK - MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Source: %s | Press 'q' to quit", m.connInfo, m.sourceInfo)))
	s.WriteString("\n\n")

	// Link state
	switch m.state {
	case link.Connected:
		s.WriteString(valueStyle.Render("✓ Connected"))
		s.WriteString(headerStyle.Render(" (up " + formatUptime(uint64(m.stats.Uptime().Milliseconds())) + ")"))
	case link.Connecting, link.Reconnecting:
		s.WriteString(warningStyle.Render(fmt.Sprintf("⏳ %s...", strings.ToUpper(m.state.String()[:1])+m.state.String()[1:])))
	default:
		s.WriteString(errorStyle.Render("✗ Disconnected"))
		s.WriteString(headerStyle.Render(" (ctrl+r to reconnect)"))
	}
	s.WriteString("\n\n")

	// Control values
	control := strings.Builder{}
	if m.last == nil {
		control.WriteString(headerStyle.Render("(no samples yet)"))
	} else {
		status := valueStyle.Render("sent")
		if m.last.Skipped {
			status = warningStyle.Render("skipped")
		} else if m.last.Err != nil {
			status = errorStyle.Render("failed")
		}
		control.WriteString(fmt.Sprintf("%s %s   %s %s   %s\n",
			labelStyle.Render("Speed:"), valueStyle.Render(fmt.Sprintf("%.1f km/h", m.last.Raw)),
			labelStyle.Render("Smoothed:"), valueStyle.Render(fmt.Sprintf("%.1f km/h", m.last.Smoothed)),
			status,
		))
		control.WriteString(fmt.Sprintf("%s %s   %s %s",
			labelStyle.Render("Intensity:"), valueStyle.Render(fmt.Sprintf("%d", m.last.Params.Intensity)),
			labelStyle.Render("Frequency:"), valueStyle.Render(fmt.Sprintf("%d Hz", m.last.Params.Frequency)),
		))
	}
	if m.lastResponse != "" {
		control.WriteString(fmt.Sprintf("\n%s %s", labelStyle.Render("Last response:"), m.lastResponse))
	}
	s.WriteString(boxStyle.Render(control.String()))
	s.WriteString("\n\n")

	// Statistics
	errors := m.stats.ErrorCount()
	errorsRendered := valueStyle.Render(fmt.Sprintf("%d", errors))
	if errors > 0 {
		errorsRendered = errorStyle.Render(fmt.Sprintf("%d", errors))
	}
	stats := fmt.Sprintf("%s %s   %s %s   %s %s   %s %s\n%s %s   %s %s   %s %s",
		labelStyle.Render("Sent:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.CommandsSent)),
		labelStyle.Render("Heartbeats:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.Heartbeats)),
		labelStyle.Render("Responses:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.ResponsesReceived)),
		labelStyle.Render("Errors:"), errorsRendered,
		labelStyle.Render("Reconnects:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.Reconnects)),
		labelStyle.Render("Rate:"), valueStyle.Render(fmt.Sprintf("%.1f cmds/s", m.stats.CommandRate())),
		labelStyle.Render("Dropped:"), valueStyle.Render(fmt.Sprintf("%d", m.session.pipeline.Dropped())),
	)
	s.WriteString(boxStyle.Render(stats))
	s.WriteString("\n\n")

	// Manual input
	if m.session.manual != nil {
		s.WriteString(labelStyle.Render("Speed: "))
		s.WriteString(m.speedInput.View())
		s.WriteString(headerStyle.Render("  (enter to inject)"))
		s.WriteString("\n\n")
	}

	// Event log
	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - 18 // Reserve space for header and panels
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
