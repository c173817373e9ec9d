package directory

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/apperrors"
	"gopkg.in/yaml.v3"
)

type Memory struct {
	mu           sync.RWMutex
	contests     map[string]Contest
	participants map[string]map[string]Participant
}

func NewMemory() *Memory {
	return &Memory{
		contests:     make(map[string]Contest),
		participants: make(map[string]map[string]Participant),
	}
}

type seedFile struct {
	Contests []struct {
		Contest      `yaml:",inline"`
		Participants []Participant `yaml:"participants"`
	} `yaml:"contests"`
}

// LoadSeedFile builds a Memory directory from a YAML file of contests and
// their registered participants.
func LoadSeedFile(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read directory seed: %w", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse directory seed %s: %w", path, err)
	}

	m := NewMemory()
	for _, c := range seed.Contests {
		if c.ID == "" {
			return nil, fmt.Errorf("parse directory seed %s: contest without id", path)
		}
		m.PutContest(c.Contest)
		for _, p := range c.Participants {
			m.Register(c.ID, p)
		}
	}
	return m, nil
}

func (m *Memory) PutContest(c Contest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.Problems = append([]string(nil), c.Problems...)
	m.contests[c.ID] = c
	if m.participants[c.ID] == nil {
		m.participants[c.ID] = make(map[string]Participant)
	}
}

func (m *Memory) SetProblems(contestID string, problems []string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contests[contestID]
	if !ok {
		return false
	}
	c.Problems = append([]string(nil), problems...)
	m.contests[contestID] = c
	return true
}

func (m *Memory) Register(contestID string, p Participant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.participants[contestID] == nil {
		m.participants[contestID] = make(map[string]Participant)
	}
	m.participants[contestID][p.UserID] = p
}

func (m *Memory) Contest(ctx context.Context, contestID string) (*Contest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.contests[contestID]
	if !ok {
		return nil, apperrors.NotFound("directory.Contest", apperrors.ErrUnknownContest)
	}
	c.Problems = append([]string(nil), c.Problems...)
	return &c, nil
}

func (m *Memory) Participant(ctx context.Context, contestID, userID string) (*Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.contests[contestID]; !ok {
		return nil, apperrors.NotFound("directory.Participant", apperrors.ErrUnknownContest)
	}
	p, ok := m.participants[contestID][userID]
	if !ok {
		return nil, apperrors.NotFound("directory.Participant", apperrors.ErrUnknownParticipant)
	}
	return &p, nil
}

func (m *Memory) Participants(ctx context.Context, contestID string) ([]Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.contests[contestID]; !ok {
		return nil, apperrors.NotFound("directory.Participants", apperrors.ErrUnknownContest)
	}
	out := make([]Participant, 0, len(m.participants[contestID]))
	for _, p := range m.participants[contestID] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}
