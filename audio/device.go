package audio

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/term"
)

// ErrSelectionAborted is returned when the picker is cancelled with Ctrl+C.
var ErrSelectionAborted = errors.New("device selection aborted")

// SelectDevice presents an interactive device picker on the terminal and
// returns the chosen device. A single device is returned without prompting.
func SelectDevice(ctx Context) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("no capture devices found")
	}
	if len(devices) == 1 {
		return &devices[0], nil
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	p := picker{names: make([]string, len(devices))}
	for i, d := range devices {
		p.names[i] = d.Name
	}
	p.render(false)

	buf := make([]byte, 3)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}
		switch p.key(buf[:n]) {
		case pickDone:
			fmt.Print("\r\n")
			return &devices[p.cursor], nil
		case pickAbort:
			fmt.Print("\r\n")
			return nil, ErrSelectionAborted
		}
		p.render(true)
	}
}

type pickResult int

const (
	pickMoved pickResult = iota
	pickDone
	pickAbort
)

type picker struct {
	names  []string
	cursor int
}

// key applies one raw keypress: arrows or j/k move, Enter confirms, Ctrl+C aborts.
func (p *picker) key(b []byte) pickResult {
	switch {
	case len(b) == 1 && b[0] == 13:
		return pickDone
	case len(b) == 1 && b[0] == 3:
		return pickAbort
	case len(b) == 1 && b[0] == 'j', len(b) == 3 && b[0] == 0x1b && b[1] == '[' && b[2] == 'B':
		if p.cursor < len(p.names)-1 {
			p.cursor++
		}
	case len(b) == 1 && b[0] == 'k', len(b) == 3 && b[0] == 0x1b && b[1] == '[' && b[2] == 'A':
		if p.cursor > 0 {
			p.cursor--
		}
	}
	return pickMoved
}

func (p *picker) render(redraw bool) {
	if redraw {
		fmt.Printf("\x1b[%dA", len(p.names)+2)
	}
	fmt.Print("\r\x1b[J")
	fmt.Print("Select input device (↑/↓, Enter to confirm):\r\n\r\n")
	for i, name := range p.names {
		tag := ""
		if IsBluetooth(name) {
			tag = " \x1b[33m[bluetooth: lower accuracy]\x1b[0m"
		}
		if i == p.cursor {
			fmt.Printf("  \x1b[1;36m▶ %s%s\x1b[0m\r\n", name, tag)
		} else {
			fmt.Printf("    %s%s\r\n", name, tag)
		}
	}
}
