// Package state persists the front-end bookkeeping shared by the CLI, the
// interactive prompt and the MCP server: sessions, named wallets and defaults.
package state

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/swapflow/api/schemas"
	"github.com/xkilldash9x/swapflow/internal/fsutil"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrProfileNotFound = errors.New("profile not found")
)

// document is the on-disk layout of the state file.
type document struct {
	Sessions map[string]*schemas.Session `json:"sessions"`
	Profiles map[string]string           `json:"profiles"`
	schemas.Defaults
}

// Store is a single JSON file guarded by a mutex. Every mutation is written
// through immediately. Sessions are never removed.
type Store struct {
	path string
	mu   sync.Mutex
	doc  document
	log  *zap.Logger
	now  func() time.Time
}

// Open loads the state file at path. A missing file starts from defaults; an
// unreadable one is logged and replaced on the next write.
func Open(path string, defaults schemas.Defaults, logger *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("state file path is required")
	}
	s := &Store{
		path: path,
		log:  logger.Named("state"),
		now:  time.Now,
		doc:  document{Defaults: defaults},
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read state file: %w", err)
	default:
		var doc document
		if err := json.Unmarshal(data, &doc); err != nil {
			s.log.Error("Error loading state, starting fresh", zap.String("path", path), zap.Error(err))
		} else {
			s.doc = doc
		}
	}
	if s.doc.Sessions == nil {
		s.doc.Sessions = map[string]*schemas.Session{}
	}
	if s.doc.Profiles == nil {
		s.doc.Profiles = map[string]string{}
	}
	return s, nil
}

// Path is the backing file.
func (s *Store) Path() string { return s.path }

func (s *Store) persist() error {
	data, err := json.MarshalIndent(&s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// -- Sessions --

// CreateSession records a new session for req with status "created".
func (s *Store) CreateSession(req schemas.ExchangeRequest) (schemas.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	stem := "session_" + now.Format("20060102_150405")
	n := len(s.doc.Sessions)
	id := fmt.Sprintf("%s_%d", stem, n)
	for s.doc.Sessions[id] != nil {
		n++
		id = fmt.Sprintf("%s_%d", stem, n)
	}

	sess := &schemas.Session{
		ID:        id,
		Request:   req,
		Status:    schemas.SessionCreated,
		CreatedAt: now.UTC(),
	}
	s.doc.Sessions[id] = sess
	if err := s.persist(); err != nil {
		delete(s.doc.Sessions, id)
		return schemas.Session{}, err
	}
	s.log.Info("Created session", zap.String("session_id", id), zap.String("wallet", schemas.MaskWallet(req.WalletAddress)))
	return *sess, nil
}

// Session returns a copy of the session.
func (s *Store) Session(id string) (schemas.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.doc.Sessions[id]
	if !ok {
		return schemas.Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return *sess, nil
}

// Sessions lists every session, oldest first.
func (s *Store) Sessions() []schemas.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schemas.Session, 0, len(s.doc.Sessions))
	for _, sess := range s.doc.Sessions {
		out = append(out, *sess)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// UpdateSession applies fn to the stored session and writes the result.
func (s *Store) UpdateSession(id string, fn func(*schemas.Session)) (schemas.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.doc.Sessions[id]
	if !ok {
		return schemas.Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	before := *sess
	fn(sess)
	if err := s.persist(); err != nil {
		*sess = before
		return schemas.Session{}, err
	}
	return *sess, nil
}

// -- Profiles --

// NamedWallet is a saved profile name and its wallet.
type NamedWallet struct {
	Name          string `json:"name"`
	WalletAddress string `json:"wallet_address"`
}

// SaveProfile stores wallet under name, replacing any previous value.
func (s *Store) SaveProfile(name, wallet string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("profile name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, existed := s.doc.Profiles[name]
	s.doc.Profiles[name] = wallet
	if err := s.persist(); err != nil {
		if existed {
			s.doc.Profiles[name] = prev
		} else {
			delete(s.doc.Profiles, name)
		}
		return err
	}
	s.log.Info("Saved profile", zap.String("name", name), zap.String("wallet", schemas.MaskWallet(wallet)))
	return nil
}

// Profile returns the wallet saved under name.
func (s *Store) Profile(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wallet, ok := s.doc.Profiles[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	return wallet, nil
}

// Profiles lists saved wallets sorted by name.
func (s *Store) Profiles() []NamedWallet {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]NamedWallet, 0, len(s.doc.Profiles))
	for name, wallet := range s.doc.Profiles {
		out = append(out, NamedWallet{Name: name, WalletAddress: wallet})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DeleteProfile removes name.
func (s *Store) DeleteProfile(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wallet, ok := s.doc.Profiles[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	delete(s.doc.Profiles, name)
	if err := s.persist(); err != nil {
		s.doc.Profiles[name] = wallet
		return err
	}
	return nil
}

// -- Defaults --

// Defaults returns the current front-end defaults.
func (s *Store) Defaults() schemas.Defaults {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Defaults
}

// UpdateDefaults overwrites only the non-zero fields of patch.
func (s *Store) UpdateDefaults(patch schemas.Defaults) (schemas.Defaults, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.doc.Defaults
	d := &s.doc.Defaults
	if patch.WalletAddress != "" {
		d.WalletAddress = patch.WalletAddress
	}
	if patch.Amount > 0 {
		d.Amount = patch.Amount
	}
	if patch.FromCurrency != "" {
		d.FromCurrency = patch.FromCurrency
	}
	if patch.ToCurrency != "" {
		d.ToCurrency = patch.ToCurrency
	}
	if err := s.persist(); err != nil {
		s.doc.Defaults = before
		return before, err
	}
	return *d, nil
}

// Counts reports how many sessions and profiles are stored.
func (s *Store) Counts() (sessions, profiles int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.doc.Sessions), len(s.doc.Profiles)
}
