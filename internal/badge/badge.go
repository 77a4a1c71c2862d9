// Package badge holds the short text shown next to the app: the number of
// available reviews, or "!" when something needs the user's attention.
//
// The text is kept in memory and, when a path is configured, mirrored to a
// small file that status bars (waybar, polybar, tmux) can read.
package badge

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "reviewbadge/pkg/logx"
)

// ErrorText is shown when no API key is configured or a key was rejected.
const ErrorText = "!"

type Badge struct {
	path string
	log  logx.Logger

	mu   sync.Mutex
	text string
}

// New returns a badge mirrored to path ("" keeps it in memory only). The
// previous text, if any, is picked up from the file.
func New(path string, log logx.Logger) *Badge {
	if log.IsZero() {
		log = logx.Nop()
	}
	b := &Badge{path: path, log: log}
	if path != "" {
		if text, err := Read(path); err == nil {
			b.text = text
		}
	}
	return b
}

// SetText replaces the badge text.
func (b *Badge) SetText(text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.path != "" {
		if err := writeAtomic(b.path, text); err != nil {
			return fmt.Errorf("set badge: %w", err)
		}
	}
	if b.text != text {
		b.log.Debug("badge updated", logx.String("text", text))
	}
	b.text = text
	return nil
}

func (b *Badge) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text
}

// Read returns the text stored in a badge file; a missing file reads as "".
func Read(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\n"), nil
}

func writeAtomic(path, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(text+"\n"), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
