package main

import (
	"fmt"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"scribe/clipboard"
	"scribe/config"
	"scribe/language"
	"scribe/log"
	"scribe/session"
)

// TUI message types
type notificationMsg session.Notification
type copiedMsg struct{ err error }
type noticeExpiredMsg struct{ id int }
type tickMsg time.Time

const noticeTTL = 2 * time.Second

type tuiModel struct {
	ctrl     *session.Controller
	provider string

	theme config.Theme
	st    styles

	width, height int
	frame         int

	showSettings bool
	cursor       int

	scroll   int // lines scrolled up from the newest text
	notice   string
	noticeID int
}

func NewTUIProgram(ctrl *session.Controller, provider string, theme config.Theme) *tea.Program {
	m := newTUIModel(ctrl, provider, theme)
	return tea.NewProgram(m, tea.WithAltScreen())
}

func newTUIModel(ctrl *session.Controller, provider string, theme config.Theme) tuiModel {
	return tuiModel{
		ctrl:     ctrl,
		provider: provider,
		theme:    theme,
		st:       newStyles(theme),
	}
}

func tuiTick() tea.Cmd {
	return tea.Tick(400*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// waitForNotification blocks on the controller's notification channel; the
// model re-arms it after every delivered notification.
func waitForNotification(ctrl *session.Controller) tea.Cmd {
	return func() tea.Msg {
		return notificationMsg(<-ctrl.Notifications())
	}
}

func copyTranscript(text string) tea.Cmd {
	return func() tea.Msg {
		return copiedMsg{err: clipboard.Copy(text)}
	}
}

func (m tuiModel) Init() tea.Cmd {
	return tea.Batch(waitForNotification(m.ctrl), tuiTick())
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.frame++
		return m, tuiTick()

	case notificationMsg:
		m.ctrl.Handle(session.Notification(msg))
		m.scroll = 0
		return m, waitForNotification(m.ctrl)

	case copiedMsg:
		if msg.err != nil {
			log.Warnf("copy failed: %v", msg.err)
			return m.flash("copy failed: " + msg.err.Error())
		}
		return m.flash("✓ transcript copied")

	case noticeExpiredMsg:
		if msg.id == m.noticeID {
			m.notice = ""
		}

	case tea.KeyMsg:
		if m.showSettings {
			return m.updateSettings(msg)
		}
		return m.updateMain(msg)
	}
	return m, nil
}

func (m tuiModel) updateMain(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		m.ctrl.Stop()
		return m, tea.Quit
	case " ", "space", "enter":
		if m.ctrl.State() == session.Listening {
			m.ctrl.Stop()
		} else if err := m.ctrl.Start(); err != nil {
			log.Warnf("start failed: %v", err)
		}
		m.scroll = 0
	case "c":
		m.ctrl.Clear()
		m.scroll = 0
	case "s":
		m.showSettings = true
		m.cursor = 0
	case "t":
		m.theme = nextTheme(m.theme)
		m.st = newStyles(m.theme)
	case "y":
		text := m.ctrl.Transcript()
		if text == "" {
			return m.flash("nothing to copy")
		}
		return m, copyTranscript(text)
	case "up", "k", "pgup":
		m.scroll++
	case "down", "j", "pgdown":
		if m.scroll > 0 {
			m.scroll--
		}
	case "end", "G":
		m.scroll = 0
	}
	return m, nil
}

func (m tuiModel) updateSettings(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	all := language.All()
	switch msg.String() {
	case "ctrl+c", "q":
		m.ctrl.Stop()
		return m, tea.Quit
	case "esc", "s":
		m.showSettings = false
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(all)-1 {
			m.cursor++
		}
	case " ", "space", "enter":
		next := language.Toggle(m.ctrl.Languages(), all[m.cursor].Code)
		if err := m.ctrl.SetLanguagePreference(next); err != nil {
			log.Warnf("language preference: %v", err)
		}
	case "t":
		m.theme = nextTheme(m.theme)
		m.st = newStyles(m.theme)
	}
	return m, nil
}

func (m tuiModel) flash(text string) (tea.Model, tea.Cmd) {
	m.noticeID++
	m.notice = text
	id := m.noticeID
	return m, tea.Tick(noticeTTL, func(time.Time) tea.Msg { return noticeExpiredMsg{id: id} })
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}
	snap := m.ctrl.Snapshot()

	header := m.renderHeader(snap)
	footer := m.renderFooter(snap)

	var settings string
	if m.showSettings {
		settings = m.renderSettings(snap.Languages)
	}

	used := lipgloss.Height(header) + lipgloss.Height(footer)
	if settings != "" {
		used += lipgloss.Height(settings)
	}
	bodyHeight := max(m.height-used, 1)
	body := m.renderTranscript(snap, bodyHeight)

	parts := []string{header}
	if settings != "" {
		parts = append(parts, settings)
	}
	parts = append(parts, body, footer)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m tuiModel) renderHeader(snap session.Snapshot) string {
	var status string
	if snap.State == session.Listening {
		dot := "●"
		if m.frame%2 == 1 {
			dot = "○"
		}
		status = m.st.listening.Render(dot + " Listening")
	} else {
		status = m.st.idle.Render("○ Idle")
	}

	lang := language.Label(snap.Languages[0])
	if extra := len(snap.Languages) - 1; extra > 0 {
		lang += fmt.Sprintf(" +%d", extra)
	}

	left := m.st.title.Render("scribe") + "  " + status + "  " + m.st.hint.Render(lang)
	right := m.st.help.Render(fmt.Sprintf("%s · %s", m.provider, m.theme))
	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(right), 1)
	return left + strings.Repeat(" ", gap) + right + "\n"
}

func (m tuiModel) renderSettings(selected []string) string {
	var b strings.Builder
	b.WriteString(m.st.title.Render("Language Settings") + "\n")
	b.WriteString(m.st.hint.Render("Primary language for recognition (first selected):") + "\n")
	for i, l := range language.All() {
		cursor := "  "
		if i == m.cursor {
			cursor = "▶ "
		}
		mark := "[ ]"
		line := fmt.Sprintf("%s %s", l.Flag, l.Name)
		if pos := slices.Index(selected, l.Code); pos >= 0 {
			mark = "[✓]"
			if pos == 0 {
				line += " (primary)"
			}
			line = m.st.selected.Render(line)
		} else {
			line = m.st.text.Render(line)
		}
		b.WriteString(cursor + mark + " " + line + "\n")
	}
	b.WriteString(m.st.help.Render("↑/↓ move · enter toggle · esc close"))
	return m.st.panel.Width(max(m.width-2, 10)).Render(b.String())
}

// renderTranscript lays out the segment cards and interim text, then shows
// the window of lines ending at the newest text, shifted up by m.scroll.
func (m tuiModel) renderTranscript(snap session.Snapshot, height int) string {
	wrapWidth := max(m.width-6, 10)

	var lines []string
	for _, seg := range snap.Segments {
		var card strings.Builder
		card.WriteString(m.st.cardTime.Render(seg.CapturedAt.Format("15:04:05")) + "\n")
		for i, l := range wrapText(seg.Text, wrapWidth) {
			if i > 0 {
				card.WriteString("\n")
			}
			card.WriteString(m.st.text.Render(l))
		}
		rendered := m.st.card.Width(max(m.width-2, 12)).Render(card.String())
		lines = append(lines, strings.Split(rendered, "\n")...)
	}
	if snap.Interim != "" {
		for _, l := range wrapText(snap.Interim+" …", wrapWidth) {
			lines = append(lines, "  "+m.st.interim.Render(l))
		}
	}

	if len(lines) == 0 {
		hint := "Press space to start"
		if snap.State == session.Listening {
			hint = "Listening... start speaking"
		}
		pad := max(height/2-1, 0)
		return strings.Repeat("\n", pad) +
			lipgloss.PlaceHorizontal(m.width, lipgloss.Center, m.st.hint.Render(hint)) +
			strings.Repeat("\n", max(height-pad-1, 0))
	}

	end := len(lines) - min(m.scroll, max(len(lines)-height, 0))
	start := max(end-height, 0)
	visible := lines[start:end]
	for len(visible) < height {
		visible = append(visible, "")
	}
	return strings.Join(visible, "\n")
}

func (m tuiModel) renderFooter(snap session.Snapshot) string {
	var b strings.Builder
	if snap.Err != "" {
		b.WriteString(m.st.errLine.Render("⚠ "+snap.Err) + "\n")
	}
	if m.notice != "" {
		b.WriteString(m.st.notice.Render(m.notice) + "\n")
	}

	action := " start"
	if snap.State == session.Listening {
		action = " stop"
	}
	keys := []struct{ key, desc string }{
		{"space", action},
		{"c", " clear"},
		{"s", " languages"},
		{"t", " theme"},
		{"y", " copy"},
		{"q", " quit"},
	}
	var help []string
	for _, k := range keys {
		help = append(help, m.st.helpKey.Render(k.key)+m.st.help.Render(k.desc))
	}
	b.WriteString(strings.Join(help, m.st.help.Render(" · ")))
	return b.String()
}

// wrapText breaks text at spaces so that no line is wider than width cells.
// A single word wider than width is split.
func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	var cur strings.Builder
	curW := 0
	for _, word := range strings.Fields(text) {
		w := lipgloss.Width(word)
		if curW > 0 && curW+1+w <= width {
			cur.WriteString(" " + word)
			curW += 1 + w
			continue
		}
		if curW > 0 {
			lines = append(lines, cur.String())
			cur.Reset()
			curW = 0
		}
		for w > width {
			head, rest := splitAtWidth(word, width)
			lines = append(lines, head)
			word = rest
			w = lipgloss.Width(word)
		}
		cur.WriteString(word)
		curW = w
	}
	if curW > 0 {
		lines = append(lines, cur.String())
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}

func splitAtWidth(word string, width int) (string, string) {
	w := 0
	for i, r := range word {
		rw := lipgloss.Width(string(r))
		if w+rw > width && i > 0 {
			return word[:i], word[i:]
		}
		w += rw
	}
	return word, ""
}
