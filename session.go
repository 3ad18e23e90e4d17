package otokit

import (
	"slices"
	"sync"
)

// Game selects which arcade title a run crawls.
type Game int

// Supported games.
const (
	GameMaimai Game = iota
	GameChunithm
)

// String returns the short game name.
func (g Game) String() string {
	switch g {
	case GameMaimai:
		return "maimai"
	case GameChunithm:
		return "chunithm"
	default:
		return "unknown"
	}
}

// ParseGame parses a game name as printed by Game.String.
func ParseGame(s string) (Game, error) {
	switch s {
	case "maimai", "":
		return GameMaimai, nil
	case "chunithm":
		return GameChunithm, nil
	default:
		return 0, Errorf(EINVALID, "unknown game %q", s)
	}
}

// Difficulty identifies one record page on the arcade's mobile site.
type Difficulty int

// Selectable difficulties.
const (
	Basic Difficulty = iota
	Advanced
	Expert
	Master
	ReMaster
	Utage
)

// Pages fetched in addition to the selected difficulties.
const (
	PlayerData Difficulty = -1
	Recent     Difficulty = -2
)

// String returns the display name used in progress messages.
func (d Difficulty) String() string {
	switch d {
	case PlayerData:
		return "用户信息"
	case Recent:
		return "最近游玩"
	case Basic:
		return "Basic"
	case Advanced:
		return "Advance"
	case Expert:
		return "Expert"
	case Master:
		return "Master"
	case ReMaster:
		return "Re:Master"
	case Utage:
		return "Utage/WE"
	default:
		return "Unknown"
	}
}

// DifficultySet is an unordered set of difficulties.
type DifficultySet map[Difficulty]struct{}

// NewDifficultySet returns a set holding ds.
func NewDifficultySet(ds ...Difficulty) DifficultySet {
	s := make(DifficultySet, len(ds))
	for _, d := range ds {
		s[d] = struct{}{}
	}
	return s
}

// AllDifficulties returns the full selectable range, Basic through Utage.
func AllDifficulties() DifficultySet {
	return NewDifficultySet(Basic, Advanced, Expert, Master, ReMaster, Utage)
}

// Has reports whether d is in the set.
func (s DifficultySet) Has(d Difficulty) bool {
	_, ok := s[d]
	return ok
}

// Sorted returns the members in ascending order.
func (s DifficultySet) Sorted() []Difficulty {
	out := make([]Difficulty, 0, len(s))
	for d := range s {
		out = append(out, d)
	}
	slices.Sort(out)
	return out
}

// Clone returns an independent copy of the set.
func (s DifficultySet) Clone() DifficultySet {
	out := make(DifficultySet, len(s))
	for d := range s {
		out[d] = struct{}{}
	}
	return out
}

// Session holds the input parameters of a run. Empty credentials are passed
// through as-is; the crawler is responsible for rejecting them.
type Session struct {
	Username     string
	Password     string
	Game         Game
	Difficulties DifficultySet
}

// DifficultySet returns the selected difficulties, or the full range when
// none were selected. The result is never empty.
func (s Session) DifficultySet() DifficultySet {
	if len(s.Difficulties) == 0 {
		return AllDifficulties()
	}
	return s.Difficulties.Clone()
}

// Snapshot returns a copy of the session that shares no state with s.
func (s Session) Snapshot() Session {
	s.Difficulties = s.DifficultySet()
	return s
}

// SessionStore is the process-wide holder of the current session. Hosts write
// it before starting a run; a run works on a snapshot taken at start.
type SessionStore struct {
	mu      sync.RWMutex
	session Session
}

// Session returns a snapshot of the stored session.
func (s *SessionStore) Session() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Snapshot()
}

// SetSession replaces the stored session.
func (s *SessionStore) SetSession(session Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session.Difficulties != nil {
		session.Difficulties = session.Difficulties.Clone()
	}
	s.session = session
}

// SetCredentials replaces the stored username and password.
func (s *SessionStore) SetCredentials(username, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Username = username
	s.session.Password = password
}

// SetGame replaces the stored game.
func (s *SessionStore) SetGame(g Game) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Game = g
}

// SetDifficulties replaces the stored difficulty selection. A nil set
// restores the default full range.
func (s *SessionStore) SetDifficulties(ds DifficultySet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ds == nil {
		s.session.Difficulties = nil
		return
	}
	s.session.Difficulties = ds.Clone()
}

// Difficulties returns the stored selection, or the full range when unset.
func (s *SessionStore) Difficulties() DifficultySet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.DifficultySet()
}
