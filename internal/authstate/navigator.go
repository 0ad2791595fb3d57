package authstate

import (
	"net/url"
	"sync"

	"github.com/sahilvermadev/mapx/internal/log"
)

// LogNavigator is the Navigator for hosts without a router. It logs each
// move and remembers where it was sent last.
type LogNavigator struct {
	logger *log.Logger

	mu       sync.Mutex
	location string
}

// NewLogNavigator returns a LogNavigator writing to logger.
func NewLogNavigator(logger *log.Logger) *LogNavigator {
	return &LogNavigator{logger: log.OrDefault(logger)}
}

// ReplaceURL implements Navigator.
func (n *LogNavigator) ReplaceURL(u *url.URL) {
	n.mu.Lock()
	n.location = u.String()
	n.mu.Unlock()
	n.logger.Debug("location replaced", "url", u.Redacted())
}

// Navigate implements Navigator.
func (n *LogNavigator) Navigate(path string) {
	n.mu.Lock()
	n.location = path
	n.mu.Unlock()
	n.logger.Debug("navigated", "path", path)
}

// Location returns the last URL or path navigated to.
func (n *LogNavigator) Location() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.location
}
