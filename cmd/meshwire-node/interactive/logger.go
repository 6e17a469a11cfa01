package interactive

import (
	"sync"

	"github.com/meshwire-protocol/meshwire-go/pkg/log"
)

// SwitchableLogger is a protocol event sink whose destination file can
// be swapped while the socket is running. It starts disabled and drops
// events until SwitchTo is called.
type SwitchableLogger struct {
	mu   sync.Mutex
	file *log.FileLogger
	path string
}

// NewSwitchableLogger creates a disabled switchable logger.
func NewSwitchableLogger() *SwitchableLogger {
	return &SwitchableLogger{}
}

// Log forwards the event to the current destination, if any.
func (s *SwitchableLogger) Log(event log.Event) {
	s.mu.Lock()
	file := s.file
	s.mu.Unlock()

	if file != nil {
		file.Log(event)
	}
}

// SwitchTo starts logging to path, closing any previous destination.
func (s *SwitchableLogger) SwitchTo(path string) error {
	file, err := log.NewFileLogger(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	old := s.file
	s.file = file
	s.path = path
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
	return nil
}

// Disable stops logging and closes the current destination.
func (s *SwitchableLogger) Disable() {
	s.mu.Lock()
	old := s.file
	s.file = nil
	s.path = ""
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
}

// Path returns the active destination, or "off" when disabled.
func (s *SwitchableLogger) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path == "" {
		return "off"
	}
	return s.path
}

var _ log.Logger = (*SwitchableLogger)(nil)
