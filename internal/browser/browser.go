// Package browser opens pages in the user's web browser.
package browser

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
)

// Opener opens a URL.
type Opener interface {
	Open(ctx context.Context, url string) error
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, url string) error

func (f OpenerFunc) Open(ctx context.Context, url string) error { return f(ctx, url) }

// System opens URLs with the platform's default handler.
type System struct{}

func (System) Open(ctx context.Context, url string) error {
	name, args, err := command(runtime.GOOS, url)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	// Not tied to ctx: the browser must outlive a short CLI invocation.
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open %s: %w", url, err)
	}
	// The handler usually returns immediately; reap it in the background.
	go func() { _ = cmd.Wait() }()
	return nil
}

func command(goos, url string) (string, []string, error) {
	switch goos {
	case "darwin":
		return "open", []string{url}, nil
	case "windows":
		return "cmd", []string{"/c", "start", "", url}, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return "xdg-open", []string{url}, nil
	default:
		return "", nil, fmt.Errorf("don't know how to open a browser on %s", goos)
	}
}
