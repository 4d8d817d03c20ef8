package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// releaseScope releases acquired resources in reverse acquisition order, once.
type releaseScope struct {
	mu       sync.Mutex
	steps    []releaseStep
	released bool
}

type releaseStep struct {
	name string
	fn   func() error
}

func (s *releaseScope) add(name string, fn func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, releaseStep{name: name, fn: fn})
}

func (s *releaseScope) release() error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return nil
	}
	s.released = true
	steps := s.steps
	s.steps = nil
	s.mu.Unlock()

	var errs []error
	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]
		if err := step.fn(); err != nil {
			slog.Warn("failed to release session resource", "resource", step.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
		}
	}
	return errors.Join(errs...)
}
