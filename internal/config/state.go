// Package config holds the persisted state record (active model, active
// conversation and context files), the optional YAML settings file and the
// logging setup.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kir-gadjello/oai/internal/atomicfile"
	"github.com/kir-gadjello/oai/internal/conversation"
)

const (
	DefaultModel   = "gpt-4o"
	DefaultSession = "default"
)

var (
	// ErrConfigMissing means the state record has not been initialized.
	ErrConfigMissing = errors.New("config not initialized (run `oai init`)")

	// ErrConfigCorrupt means the state record exists but is invalid.
	ErrConfigCorrupt = errors.New("config corrupt")
)

// State is the persisted process-wide record.
type State struct {
	Model        string   `json:"model"`
	Conversation string   `json:"conversation"`
	Context      []string `json:"context"`
}

// Paths locates every file the tool owns.
type Paths struct {
	Home     string
	State    string
	Settings string
	Sessions string
	Archive  string
}

// NewPaths lays out the files under home.
func NewPaths(home string) Paths {
	return Paths{
		Home:     home,
		State:    filepath.Join(home, "config.json"),
		Settings: filepath.Join(home, "settings.yaml"),
		Sessions: filepath.Join(home, "conversations"),
		Archive:  filepath.Join(home, "archive.db"),
	}
}

// DefaultPaths uses $OAI_HOME, falling back to ~/.oai.
func DefaultPaths() (Paths, error) {
	if home := os.Getenv("OAI_HOME"); home != "" {
		return NewPaths(home), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return Paths{}, fmt.Errorf("resolving home directory: %w", err)
	}
	return NewPaths(filepath.Join(home, ".oai")), nil
}

// Store loads and saves the State record.
type Store struct {
	path     string
	sessions *conversation.Store
	logger   *slog.Logger
}

// NewStore returns a Store for the record at path. Conversation paths are
// validated against and created through sessions.
func NewStore(path string, sessions *conversation.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = DiscardLogger()
	}
	return &Store{path: path, sessions: sessions, logger: logger}
}

// Defaults returns the record written by Init and restored by ClearAll.
func (s *Store) Defaults() State {
	p, _ := s.sessions.Path(DefaultSession)
	return State{Model: DefaultModel, Conversation: p, Context: []string{}}
}

// Load reads and validates the record.
func (s *Store) Load() (State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return State{}, ErrConfigMissing
		}
		return State{}, fmt.Errorf("reading %s: %w", s.path, err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var st State
	if err := dec.Decode(&st); err != nil {
		return State{}, fmt.Errorf("%w: %s: %v", ErrConfigCorrupt, s.path, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return State{}, fmt.Errorf("%w: %s: trailing data after record", ErrConfigCorrupt, s.path)
	}
	if err := s.validate(&st); err != nil {
		return State{}, fmt.Errorf("%w: %s: %v", ErrConfigCorrupt, s.path, err)
	}
	return st, nil
}

func (s *Store) validate(st *State) error {
	if st.Model == "" {
		return errors.New("missing model")
	}
	if st.Conversation == "" {
		return errors.New("missing conversation")
	}
	if !s.sessions.Contains(st.Conversation) {
		return fmt.Errorf("conversation %q is outside %s", st.Conversation, s.sessions.Root())
	}
	if st.Context == nil {
		st.Context = []string{}
	}
	seen := make(map[string]bool, len(st.Context))
	for _, p := range st.Context {
		if p == "" {
			return errors.New("empty context path")
		}
		if seen[p] {
			return fmt.Errorf("duplicate context path %q", p)
		}
		seen[p] = true
	}
	return nil
}

// Save overwrites the record in full.
func (s *Store) Save(st State) error {
	if st.Context == nil {
		st.Context = []string{}
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := atomicfile.WriteFile(s.path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	return nil
}

// Init writes the default record and creates the default session. An
// existing record is kept unless force is set.
func (s *Store) Init(force bool) (State, bool, error) {
	if !force {
		if st, err := s.Load(); err == nil {
			return st, false, nil
		} else if !errors.Is(err, ErrConfigMissing) {
			return State{}, false, err
		}
	}

	st := s.Defaults()
	if _, err := s.sessions.Create(st.Conversation); err != nil {
		return State{}, false, err
	}
	if err := s.Save(st); err != nil {
		return State{}, false, err
	}
	s.logger.Debug("config initialized", "path", s.path)
	return st, true, nil
}

// Update loads the record, applies fn and saves the result.
func (s *Store) Update(fn func(*State) error) (State, error) {
	st, err := s.Load()
	if err != nil {
		return State{}, err
	}
	if err := fn(&st); err != nil {
		return State{}, err
	}
	if err := s.Save(st); err != nil {
		return State{}, err
	}
	return st, nil
}

// SetModel changes the active model.
func (s *Store) SetModel(name string) (State, error) {
	if name == "" {
		return State{}, errors.New("model name must not be empty")
	}
	return s.Update(func(st *State) error {
		st.Model = name
		return nil
	})
}

// SetConversation normalizes name into a session path, creates the session
// if it does not exist yet and makes it active.
func (s *Store) SetConversation(name string) (State, bool, error) {
	path, err := s.sessions.Path(name)
	if err != nil {
		return State{}, false, err
	}

	var created bool
	st, err := s.Update(func(st *State) error {
		c, err := s.sessions.Create(path)
		if err != nil {
			return err
		}
		created = c
		st.Conversation = path
		return nil
	})
	return st, created, err
}
