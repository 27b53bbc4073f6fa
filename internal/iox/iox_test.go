package iox_test

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rsalesc/robox.io/internal/iox"
)

func TestBindMaterializesStreams(t *testing.T) {
	c, err := iox.Bind(t.TempDir(), []byte("36\n"), []byte("1 2 3\n"))
	require.NoError(t, err)
	defer c.Close()

	in, err := c.OpenInput()
	require.NoError(t, err)
	data, err := io.ReadAll(in)
	require.NoError(t, err)
	require.NoError(t, in.Close())
	require.Equal(t, "36\n", string(data))

	ans, err := os.ReadFile(c.AnswerPath())
	require.NoError(t, err)
	require.Equal(t, "1 2 3\n", string(ans))
}

func TestBindWithoutAnswerGivesEmptyStream(t *testing.T) {
	c, err := iox.Bind(t.TempDir(), []byte("in"), nil)
	require.NoError(t, err)
	defer c.Close()

	ans, err := os.ReadFile(c.AnswerPath())
	require.NoError(t, err)
	require.Empty(t, ans)
}

func TestOutputRoundTrip(t *testing.T) {
	c, err := iox.Bind(t.TempDir(), nil, nil)
	require.NoError(t, err)
	defer c.Close()

	out, err := c.CreateOutput()
	require.NoError(t, err)
	_, err = out.WriteString("answer\n")
	require.NoError(t, err)
	require.NoError(t, out.Close())

	data, err := c.Output()
	require.NoError(t, err)
	require.Equal(t, "answer\n", string(data))
}

func TestCloseRemovesDir(t *testing.T) {
	c, err := iox.Bind(t.TempDir(), nil, nil)
	require.NoError(t, err)
	dir := c.Dir()
	c.Close()

	_, err = os.Stat(dir)
	require.True(t, os.IsNotExist(err))
}
