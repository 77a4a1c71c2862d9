package browser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommand(t *testing.T) {
	name, args, err := command("linux", "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "xdg-open", name)
	assert.Equal(t, []string{"https://example.com"}, args)

	name, _, err = command("darwin", "u")
	require.NoError(t, err)
	assert.Equal(t, "open", name)

	_, args, err = command("windows", "u")
	require.NoError(t, err)
	assert.Equal(t, []string{"/c", "start", "", "u"}, args)

	_, _, err = command("plan9", "u")
	assert.Error(t, err)
}

func TestOpenerFunc(t *testing.T) {
	var got string
	var o Opener = OpenerFunc(func(_ context.Context, url string) error {
		got = url
		return nil
	})
	require.NoError(t, o.Open(context.Background(), "https://example.com/study"))
	assert.Equal(t, "https://example.com/study", got)
}
