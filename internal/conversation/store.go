// Package conversation persists named chat transcripts, one JSON file per
// session under a sessions root.
package conversation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kir-gadjello/oai/internal/atomicfile"
)

// Ext is the file extension of every session file.
const Ext = ".json"

var (
	// ErrNoAssistantMessage is returned when a transcript holds no
	// assistant reply.
	ErrNoAssistantMessage = errors.New("no assistant message found")

	// ErrInvalidName is returned for names that do not resolve to a file
	// directly inside the sessions root.
	ErrInvalidName = errors.New("invalid session name")

	// ErrCorrupt is returned when a session file cannot be decoded.
	ErrCorrupt = errors.New("corrupt session file")
)

// Role identifies the author of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn half. Content is stored verbatim.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Session describes one session file on disk.
type Session struct {
	Name    string
	Path    string
	ModTime time.Time
	Size    int64
}

// Store reads and writes session files under root.
type Store struct {
	root   string
	logger *slog.Logger
}

// NewStore returns a Store rooted at root. The directory is created lazily.
func NewStore(root string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{root: filepath.Clean(root), logger: logger}
}

// Root returns the sessions directory.
func (s *Store) Root() string { return s.root }

// Path normalizes name into the session file path. The root is prefixed
// when absent and Ext is appended when absent. The result must sit directly
// inside the root.
func (s *Store) Path(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrInvalidName)
	}

	p := name
	if !strings.HasPrefix(filepath.Clean(p), s.root+string(filepath.Separator)) {
		p = filepath.Join(s.root, p)
	}
	if !strings.HasSuffix(p, Ext) {
		p += Ext
	}
	p = filepath.Clean(p)

	if filepath.Dir(p) != s.root || filepath.Base(p) == Ext {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return p, nil
}

// Name returns the display name for a session path or name.
func (s *Store) Name(pathOrName string) string {
	return strings.TrimSuffix(filepath.Base(pathOrName), Ext)
}

// Contains reports whether path is a valid session path under the root.
func (s *Store) Contains(path string) bool {
	p, err := s.Path(path)
	return err == nil && p == filepath.Clean(path)
}

// Load returns the messages of the named session. A missing file yields an
// empty transcript.
func (s *Store) Load(name string) ([]Message, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Debug("session file absent, starting empty", "path", path)
			return []Message{}, nil
		}
		return nil, fmt.Errorf("reading session %s: %w", path, err)
	}

	msgs, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	return msgs, nil
}

func decode(data []byte) ([]Message, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []Message{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var msgs []Message
	if err := dec.Decode(&msgs); err != nil {
		return nil, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, errors.New("trailing data after transcript")
	}
	for i, m := range msgs {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			return nil, fmt.Errorf("message %d: unknown role %q", i, m.Role)
		}
	}
	if msgs == nil {
		msgs = []Message{}
	}
	return msgs, nil
}

func encode(msgs []Message) ([]byte, error) {
	if msgs == nil {
		msgs = []Message{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(msgs); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save replaces the whole transcript of the named session. The complete
// serialized form is built before the destination is touched.
func (s *Store) Save(name string, msgs []Message) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}

	data, err := encode(msgs)
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", path, err)
	}
	if err := atomicfile.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("saving session %s: %w", path, err)
	}
	s.logger.Debug("session saved", "path", path, "messages", len(msgs))
	return nil
}

// Append adds msg to the end of the named session.
func (s *Store) Append(name string, msg Message) error {
	msgs, err := s.Load(name)
	if err != nil {
		return err
	}
	return s.Save(name, append(msgs, msg))
}

// Create writes an empty transcript if the session does not exist yet.
func (s *Store) Create(name string) (bool, error) {
	path, err := s.Path(name)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("checking session %s: %w", path, err)
	}
	if err := s.Save(path, nil); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes the named session. It reports whether a file existed;
// deleting an absent session is not an error.
func (s *Store) Delete(name string) (bool, error) {
	path, err := s.Path(name)
	if err != nil {
		return false, err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("deleting session %s: %w", path, err)
	}
	s.logger.Debug("session deleted", "path", path)
	return true, nil
}

// List enumerates every session file under the root, sorted by name.
func (s *Store) List() ([]Session, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	var sessions []Session
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Ext) || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		sessions = append(sessions, Session{
			Name:    strings.TrimSuffix(e.Name(), Ext),
			Path:    filepath.Join(s.root, e.Name()),
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Name < sessions[j].Name })
	return sessions, nil
}

// ClearAll deletes every session file and returns the removed names.
func (s *Store) ClearAll() ([]string, error) {
	sessions, err := s.List()
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, sess := range sessions {
		if err := os.Remove(sess.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("deleting session %s: %w", sess.Path, err)
		}
		removed = append(removed, sess.Name)
	}
	return removed, nil
}

// LastAssistant returns the most recent assistant message in msgs.
func LastAssistant(msgs []Message) (Message, error) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleAssistant {
			return msgs[i], nil
		}
	}
	return Message{}, ErrNoAssistantMessage
}
