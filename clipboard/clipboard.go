package clipboard

import (
	"errors"

	cb "github.com/atotto/clipboard"
)

// ErrUnsupported means no clipboard backend exists on this system, e.g. Linux
// without xclip, xsel or wl-clipboard.
var ErrUnsupported = errors.New("clipboard: no clipboard utility available")

func Available() bool {
	return !cb.Unsupported
}

func Read() (string, error) {
	if !Available() {
		return "", ErrUnsupported
	}
	return cb.ReadAll()
}

func Copy(text string) error {
	if !Available() {
		return ErrUnsupported
	}
	return cb.WriteAll(text)
}
