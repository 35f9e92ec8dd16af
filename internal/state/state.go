// Package state holds the runtime configuration of the observer: the ordered
// exporter registry and the key normalization settings.
package state

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/helixir/observe/internal/exporter"
	"github.com/helixir/observe/internal/exporter/console"
	"github.com/helixir/observe/internal/normalize"
)

var (
	// ErrInvalidOptions is returned when Options fail validation.
	ErrInvalidOptions = errors.New("invalid state options")

	// ErrInvalidExporter is returned for nil exporters or exporters without a name.
	ErrInvalidExporter = errors.New("invalid exporter")
)

var validate = validator.New()

// Options is the complete runtime configuration. Init replaces the whole
// state with it; nothing is merged with the previous state.
type Options struct {
	// Exporters are registered in order. Later duplicates of a name replace
	// earlier ones in place.
	Exporters []exporter.Exporter `validate:"dive,required"`

	// Normalization controls key renaming before export.
	Normalization normalize.Config
}

// Validate checks opts for structural errors.
func (o Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}
	for i, e := range o.Exporters {
		if e.Name() == "" {
			return fmt.Errorf("%w: exporter %d: %w", ErrInvalidOptions, i, ErrInvalidExporter)
		}
	}
	return nil
}

// Snapshot is a consistent view of the state taken at one instant.
type Snapshot struct {
	Exporters     []exporter.Exporter
	Normalization normalize.Config
}

// State is safe for concurrent use. The zero value is an empty state with
// no exporters and normalization disabled.
type State struct {
	mu            sync.RWMutex
	registry      *exporter.Registry
	normalization normalize.Config
}

// New creates a state from opts.
func New(opts Options) (*State, error) {
	s := &State{}
	if err := s.Init(opts); err != nil {
		return nil, err
	}
	return s, nil
}

// Init atomically replaces the exporters and normalization config. On a
// validation error the previous state is left untouched.
func (s *State) Init(opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	registry := exporter.NewRegistry(opts.Exporters...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry = registry
	s.normalization = opts.Normalization
	return nil
}

// Register adds e, replacing an exporter of the same name in place.
func (s *State) Register(e exporter.Exporter) error {
	if e == nil || e.Name() == "" {
		return ErrInvalidExporter
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.registry == nil {
		s.registry = exporter.NewRegistry()
	}
	s.registry.Register(e)
	return nil
}

// Unregister removes the exporter with the given name. Unknown names are
// ignored.
func (s *State) Unregister(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.registry != nil {
		s.registry.Unregister(name)
	}
}

// Exporters returns the registered exporters in order.
func (s *State) Exporters() []exporter.Exporter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exporters()
}

// exporters lists the registry. Callers hold mu.
func (s *State) exporters() []exporter.Exporter {
	if s.registry == nil {
		return []exporter.Exporter{}
	}
	return s.registry.List()
}

// Normalization returns the current normalization config.
func (s *State) Normalization() normalize.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.normalization
}

// Snapshot returns the exporters and normalization config as one
// consistent pair.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Exporters:     s.exporters(),
		Normalization: s.normalization,
	}
}

var (
	defaultOnce  sync.Once
	defaultState *State
)

// DefaultOptions returns the options of the process-wide default state: a
// console exporter writing to stdout and normalization disabled.
func DefaultOptions() Options {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	return Options{
		Exporters:     []exporter.Exporter{console.New(logger, console.Config{Enabled: true})},
		Normalization: normalize.DefaultConfig(),
	}
}

// Default returns the process-wide state, creating it on first use.
func Default() *State {
	defaultOnce.Do(func() {
		s, err := New(DefaultOptions())
		if err != nil {
			panic(fmt.Sprintf("state: default options: %v", err))
		}
		defaultState = s
	})
	return defaultState
}

// Init replaces the process-wide state.
func Init(opts Options) error {
	return Default().Init(opts)
}

// Register adds an exporter to the process-wide state.
func Register(e exporter.Exporter) error {
	return Default().Register(e)
}

// Unregister removes an exporter from the process-wide state.
func Unregister(name string) {
	Default().Unregister(name)
}
