// Package endpoint tracks which output the user selected.
package endpoint

import (
	"sync"

	"github.com/massdroid-cli/massd/log"
)

// Endpoint is a logical playback destination.
type Endpoint struct {
	ID            string `json:"id"`
	IsLocalDevice bool   `json:"is_local_device"`
}

// Selector holds the selected endpoint. Select is its only writer: passive
// "currently playing" telemetry never changes the selection.
type Selector struct {
	localID string
	logger  *log.Entry

	mu        sync.RWMutex
	current   Endpoint
	listeners []func(Endpoint)
}

// NewSelector starts with this device selected.
func NewSelector(localID string) *Selector {
	return &Selector{
		localID: localID,
		logger:  log.For("endpoint"),
		current: Endpoint{ID: localID, IsLocalDevice: true},
	}
}

// Select records an explicit user choice.
func (s *Selector) Select(id string) Endpoint {
	return s.SelectEndpoint(Endpoint{ID: id, IsLocalDevice: id == s.localID})
}

// SelectEndpoint records an explicit user choice whose locality is known by the caller.
func (s *Selector) SelectEndpoint(e Endpoint) Endpoint {
	s.mu.Lock()
	prev := s.current
	s.current = e
	listeners := append([]func(Endpoint){}, s.listeners...)
	s.mu.Unlock()

	s.logger.WithFields(log.Fields{"from": prev.ID, "to": e.ID, "local": e.IsLocalDevice}).Info("endpoint selected")
	if prev == e {
		return e
	}
	for _, fn := range listeners {
		fn(e)
	}
	return e
}

// ObservePlaying is fed by player telemetry. It is logged for diagnostics and never changes the selection.
func (s *Selector) ObservePlaying(id string) {
	s.mu.RLock()
	cur := s.current.ID
	s.mu.RUnlock()

	if id != cur {
		s.logger.WithFields(log.Fields{"playing": id, "selected": cur}).Debug("playing endpoint differs from selection")
	}
}

func (s *Selector) Current() Endpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Selector) IsLocal() bool {
	return s.Current().IsLocalDevice
}

// OnChange registers a callback invoked after every selection change.
func (s *Selector) OnChange(fn func(Endpoint)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}
