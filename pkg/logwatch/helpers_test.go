package logwatch

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func appendTo(t *testing.T, path, text string) {
	t.Helper()

	fd, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	require.NoError(t, err)

	_, err = fd.WriteString(text)
	require.NoError(t, err)
	require.NoError(t, fd.Close())
}
