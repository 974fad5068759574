// Package localstore is the client-side key-value cache: one file per key
// under a state directory.
package localstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/and161185/hacking-zone/internal/model"
	"github.com/and161185/hacking-zone/internal/progression"
	"github.com/spf13/afero"
)

// Fixed cache keys.
const (
	KeyToken    = "hackingZoneToken"
	KeyUser     = "hackingZoneUser"
	KeyGameData = "hackingZoneGameData"
)

var allKeys = []string{KeyToken, KeyUser, KeyGameData}

// Store reads and writes cache entries on fs.
type Store struct {
	fs afero.Fs
}

// New roots a store at dir on fs, creating dir when missing.
func New(fs afero.Fs, dir string) (*Store, error) {
	if err := fs.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("localstore: create %s: %w", dir, err)
	}
	return &Store{fs: afero.NewBasePathFs(fs, dir)}, nil
}

func path(key string) string { return filepath.Join("/", key) }

// Get returns the raw value of key. Missing keys report ok=false without error.
func (s *Store) Get(key string) (string, bool, error) {
	b, err := afero.ReadFile(s.fs, path(key))
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(b), true, nil
}

// Set replaces the value of key. The write goes through a temp file and a
// rename so readers never see half a value.
func (s *Store) Set(key, value string) error {
	tmp := path(key) + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, []byte(value), 0o600); err != nil {
		return err
	}
	return s.fs.Rename(tmp, path(key))
}

// Remove deletes key; a missing key is not an error.
func (s *Store) Remove(key string) error {
	err := s.fs.Remove(path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Clear removes every cache key.
func (s *Store) Clear() error {
	var errsOut []error
	for _, k := range allKeys {
		if err := s.Remove(k); err != nil {
			errsOut = append(errsOut, err)
		}
	}
	return errors.Join(errsOut...)
}

// Token returns the cached session token.
func (s *Store) Token() (string, bool, error) {
	tok, ok, err := s.Get(KeyToken)
	tok = strings.TrimSpace(tok)
	return tok, ok && tok != "", err
}

// SetToken caches the session token.
func (s *Store) SetToken(tok string) error { return s.Set(KeyToken, tok) }

// LoadUser returns the cached profile. A malformed entry is deleted and
// reported as absent.
func (s *Store) LoadUser() (model.PublicUser, bool) {
	var u model.PublicUser
	if !s.loadJSON(KeyUser, &u) {
		return model.PublicUser{}, false
	}
	return u, true
}

// SaveUser caches the profile.
func (s *Store) SaveUser(u model.PublicUser) error { return s.saveJSON(KeyUser, u) }

// LoadGame returns the cached game state, or the defaults with ok=false
// when the entry is missing or malformed. A malformed entry is deleted.
func (s *Store) LoadGame() (progression.State, bool) {
	var st progression.State
	if !s.loadJSON(KeyGameData, &st) {
		return progression.NewState(""), false
	}
	if st.CompletedLevels == nil {
		st.CompletedLevels = []int{}
	}
	if st.Profile.Badges == nil {
		st.Profile.Badges = []model.Badge{}
	}
	return st, true
}

// SaveGame caches the game state.
func (s *Store) SaveGame(st progression.State) error { return s.saveJSON(KeyGameData, st) }

func (s *Store) loadJSON(key string, dst any) bool {
	raw, ok, err := s.Get(key)
	if err != nil || !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		_ = s.Remove(key)
		return false
	}
	return true
}

func (s *Store) saveJSON(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Set(key, string(b))
}
