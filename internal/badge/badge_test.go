package badge

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "reviewbadge/pkg/logx"
)

func TestMemoryOnly(t *testing.T) {
	b := New("", logx.Nop())
	assert.Empty(t, b.Text())
	require.NoError(t, b.SetText("12"))
	assert.Equal(t, "12", b.Text())
}

func TestMirrorsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "badge")
	b := New(path, logx.Nop())
	require.NoError(t, b.SetText(ErrorText))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, "!", got)

	// A new badge on the same file starts from the stored text.
	assert.Equal(t, "!", New(path, logx.Nop()).Text())
}

func TestReadMissingFile(t *testing.T) {
	got, err := Read(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, got)
}
