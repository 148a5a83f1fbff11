package port

import (
	"fmt"
	"net"
	"strconv"

	"github.com/shinji-kodama/votedeploy/internal/model"
)

// suggestionRange is how far above a busy port FindAvailable looks for an
// alternative.
const suggestionRange = 100

// Scanner checks TCP ports on one host by briefly listening on them.
type Scanner struct {
	host string
}

// NewScanner returns a Scanner for the loopback interface, where node
// ports are published.
func NewScanner() *Scanner {
	return &Scanner{host: "127.0.0.1"}
}

// IsAvailable reports whether port can be bound right now.
func (s *Scanner) IsAvailable(port int) bool {
	ln, err := net.Listen("tcp", net.JoinHostPort(s.host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}

// FindAvailable returns the first bindable port in [start, end].
func (s *Scanner) FindAvailable(start, end int) (int, error) {
	for p := start; p <= end && p <= 65535; p++ {
		if s.IsAvailable(p) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("no available tcp port found in range %d-%d", start, end)
}

// CheckNodePort returns a CLIError with ExitPortUnavailable when port is
// taken, naming a nearby free port if there is one.
func (s *Scanner) CheckNodePort(port int) error {
	if s.IsAvailable(port) {
		return nil
	}
	msg := fmt.Sprintf("port %d on %s is already in use", port, s.host)
	if alt, err := s.FindAvailable(port+1, port+suggestionRange); err == nil {
		msg += fmt.Sprintf(" (port %d is free; point the network URL at it)", alt)
	}
	return model.NewCLIError(model.ExitPortUnavailable, msg)
}
