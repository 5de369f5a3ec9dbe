package main

import (
	"github.com/charmbracelet/lipgloss"

	"scribe/config"
)

type palette struct {
	text      lipgloss.Color
	muted     lipgloss.Color
	faint     lipgloss.Color
	accent    lipgloss.Color
	listening lipgloss.Color
	errFg     lipgloss.Color
	card      lipgloss.Color
	selected  lipgloss.Color
}

var palettes = map[config.Theme]palette{
	config.ThemeDark: {
		text:      lipgloss.Color("252"),
		muted:     lipgloss.Color("245"),
		faint:     lipgloss.Color("239"),
		accent:    lipgloss.Color("39"),
		listening: lipgloss.Color("196"),
		errFg:     lipgloss.Color("208"),
		card:      lipgloss.Color("237"),
		selected:  lipgloss.Color("42"),
	},
	config.ThemeLight: {
		text:      lipgloss.Color("235"),
		muted:     lipgloss.Color("242"),
		faint:     lipgloss.Color("248"),
		accent:    lipgloss.Color("25"),
		listening: lipgloss.Color("160"),
		errFg:     lipgloss.Color("166"),
		card:      lipgloss.Color("252"),
		selected:  lipgloss.Color("28"),
	},
}

type styles struct {
	title     lipgloss.Style
	listening lipgloss.Style
	idle      lipgloss.Style
	card      lipgloss.Style
	cardTime  lipgloss.Style
	text      lipgloss.Style
	interim   lipgloss.Style
	hint      lipgloss.Style
	errLine   lipgloss.Style
	help      lipgloss.Style
	helpKey   lipgloss.Style
	panel     lipgloss.Style
	selected  lipgloss.Style
	notice    lipgloss.Style
}

func newStyles(t config.Theme) styles {
	p, ok := palettes[t]
	if !ok {
		p = palettes[config.ThemeDark]
	}
	return styles{
		title:     lipgloss.NewStyle().Foreground(p.accent).Bold(true),
		listening: lipgloss.NewStyle().Foreground(p.listening).Bold(true),
		idle:      lipgloss.NewStyle().Foreground(p.muted),
		card: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(p.card).
			Padding(0, 1),
		cardTime: lipgloss.NewStyle().Foreground(p.faint),
		text:     lipgloss.NewStyle().Foreground(p.text),
		interim:  lipgloss.NewStyle().Foreground(p.muted).Italic(true),
		hint:     lipgloss.NewStyle().Foreground(p.muted),
		errLine:  lipgloss.NewStyle().Foreground(p.errFg).Bold(true),
		help:     lipgloss.NewStyle().Foreground(p.faint),
		helpKey:  lipgloss.NewStyle().Foreground(p.faint).Bold(true),
		panel: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(p.card).
			Padding(0, 1),
		selected: lipgloss.NewStyle().Foreground(p.selected).Bold(true),
		notice:   lipgloss.NewStyle().Foreground(p.selected),
	}
}

func nextTheme(t config.Theme) config.Theme {
	if t == config.ThemeDark {
		return config.ThemeLight
	}
	return config.ThemeDark
}
