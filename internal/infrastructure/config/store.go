package config

import (
	"slices"
	"sync"
	"sync/atomic"
)

// Store holds the live configuration. Reads are a single atomic load;
// writers build a new Compiled value and swap it in.
type Store struct {
	current atomic.Pointer[Compiled]

	mu        sync.Mutex // serializes writers
	listeners []func(*Compiled)
}

// NewStore compiles cfg into a new store.
func NewStore(cfg *Config) (*Store, error) {
	c, err := Compile(cfg)
	if err != nil {
		return nil, err
	}
	s := &Store{}
	s.current.Store(c)
	return s, nil
}

// Load returns the current configuration.
func (s *Store) Load() *Compiled {
	return s.current.Load()
}

// Set replaces the configuration. On a validation error the current value
// is kept.
func (s *Store) Set(cfg *Config) error {
	s.mu.Lock()
	c, listeners, err := s.setLocked(cfg)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	notify(listeners, c)
	return nil
}

// Update applies fn to a copy of the current configuration and stores it.
// Concurrent updates are applied one after the other.
func (s *Store) Update(fn func(*Config)) error {
	s.mu.Lock()
	next := s.current.Load().Config.Clone()
	fn(next)
	c, listeners, err := s.setLocked(next)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	notify(listeners, c)
	return nil
}

func (s *Store) setLocked(cfg *Config) (*Compiled, []func(*Compiled), error) {
	c, err := Compile(cfg)
	if err != nil {
		return nil, nil, err
	}
	s.current.Store(c)
	return c, slices.Clone(s.listeners), nil
}

func notify(listeners []func(*Compiled), c *Compiled) {
	for _, fn := range listeners {
		fn(c)
	}
}

// OnChange registers fn to run after every successful Set.
func (s *Store) OnChange(fn func(*Compiled)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}
