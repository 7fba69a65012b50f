package theme

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

type Theme string

const (
	Dark  Theme = "dark"
	Light Theme = "light"
)

func (t Theme) Toggle() Theme {
	if t == Dark {
		return Light
	}
	return Dark
}

// Parse accepts "dark" or "light", case-insensitive.
func Parse(s string) (Theme, error) {
	switch Theme(strings.ToLower(strings.TrimSpace(s))) {
	case Dark:
		return Dark, nil
	case Light:
		return Light, nil
	default:
		return "", fmt.Errorf("unknown theme %q, want dark or light", s)
	}
}

// Preferences is the on-disk preference document.
type Preferences struct {
	Theme Theme `json:"theme,omitempty"`
}

// Store persists the theme preference in a JSON file.
type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

// Load returns the saved theme string. A missing file is not an error and
// yields "".
func (s *Store) Load() (Theme, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var prefs Preferences
	if err := json.Unmarshal(data, &prefs); err != nil {
		return "", fmt.Errorf("invalid preferences file: %w", err)
	}
	return prefs.Theme, nil
}

// Save writes t atomically.
func (s *Store) Save(t Theme) error {
	if _, err := Parse(string(t)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	content, err := json.MarshalIndent(Preferences{Theme: t}, "", "  ")
	if err != nil {
		return err
	}
	content = append(content, '\n')

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.path)
}

// Detector reports the operating system's colour-scheme preference. ok is
// false when the preference is unknown.
type Detector func() (prefersDark bool, ok bool)

// Resolve picks the theme to render with: a saved "dark" wins, no saved
// value defers to the OS preference, anything else is light.
func Resolve(store *Store, detect Detector) (Theme, error) {
	saved, err := store.Load()
	if err != nil {
		return Light, err
	}
	if saved == Dark {
		return Dark, nil
	}
	if saved == "" && detect != nil {
		if prefersDark, ok := detect(); ok && prefersDark {
			return Dark, nil
		}
	}
	return Light, nil
}

// Toggle flips the resolved theme and persists the result.
func Toggle(store *Store, detect Detector) (Theme, error) {
	current, err := Resolve(store, detect)
	if err != nil {
		return "", err
	}
	next := current.Toggle()
	if err := store.Save(next); err != nil {
		return "", err
	}
	return next, nil
}

// Set persists an explicit choice.
func Set(store *Store, t Theme) (Theme, error) {
	if err := store.Save(t); err != nil {
		return "", err
	}
	return t, nil
}

// DetectEnv reads the terminal's colour-scheme hint. SUBSTUDIO_COLOR_SCHEME
// ("dark"/"light") takes precedence over COLORFGBG ("fg;bg", where a
// background of 0-6 or 8 is dark).
func DetectEnv() (bool, bool) {
	if v := os.Getenv("SUBSTUDIO_COLOR_SCHEME"); v != "" {
		t, err := Parse(v)
		if err != nil {
			return false, false
		}
		return t == Dark, true
	}

	fgbg := os.Getenv("COLORFGBG")
	if fgbg == "" {
		return false, false
	}
	parts := strings.Split(fgbg, ";")
	bg, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return false, false
	}
	return bg <= 6 || bg == 8, true
}
