package port

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/votedeploy/internal/model"
)

// listen occupies an OS-assigned loopback port for the rest of the test.
func listen(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	return ln.Addr().(*net.TCPAddr).Port
}

func TestIsAvailable(t *testing.T) {
	s := NewScanner()

	free, err := s.FindAvailable(50000, 50100)
	require.NoError(t, err)
	assert.True(t, s.IsAvailable(free))

	assert.False(t, s.IsAvailable(listen(t)))
}

func TestFindAvailable_SkipsBusyPort(t *testing.T) {
	s := NewScanner()
	busy := listen(t)

	got, err := s.FindAvailable(busy, busy+50)
	require.NoError(t, err)
	assert.NotEqual(t, busy, got)
	assert.Greater(t, got, busy)
}

func TestFindAvailable_NoneAvailable(t *testing.T) {
	s := NewScanner()
	busy := listen(t)

	_, err := s.FindAvailable(busy, busy)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no available")
}

func TestCheckNodePort(t *testing.T) {
	s := NewScanner()

	free, err := s.FindAvailable(51000, 51100)
	require.NoError(t, err)
	assert.NoError(t, s.CheckNodePort(free))

	busy := listen(t)
	err = s.CheckNodePort(busy)
	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitPortUnavailable, cliErr.Code)
	assert.Contains(t, err.Error(), "already in use")
}
