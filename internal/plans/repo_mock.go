package plans

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// MockPlansRepo is an in-memory stand-in for Repo, used in tests.
type MockPlansRepo struct {
	mu    sync.Mutex
	plans map[string]map[string]WeeklyPlan // account -> week -> plan

	FailGet  bool
	FailSave bool
	Saves    int
}

func NewMockPlansRepo() *MockPlansRepo {
	return &MockPlansRepo{
		plans: make(map[string]map[string]WeeklyPlan),
	}
}

func (m *MockPlansRepo) Get(_ context.Context, accountID, weekOfISO string) (*WeeklyPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailGet {
		return nil, errors.New("get failure injected")
	}
	plan, ok := m.plans[accountID][weekOfISO]
	if !ok {
		return nil, ErrPlanNotFound
	}
	planCopy := clonePlan(plan)
	return &planCopy, nil
}

func (m *MockPlansRepo) Save(_ context.Context, accountID string, plan WeeklyPlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSave {
		return errors.New("save failure injected")
	}
	if err := plan.Validate(); err != nil {
		return err
	}
	if m.plans[accountID] == nil {
		m.plans[accountID] = make(map[string]WeeklyPlan)
	}
	m.plans[accountID][plan.WeekOfISO] = clonePlan(plan)
	m.Saves++
	return nil
}

func (m *MockPlansRepo) ListWeeks(_ context.Context, accountID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var weeks []string
	for week := range m.plans[accountID] {
		weeks = append(weeks, week)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(weeks)))
	return weeks, nil
}
