package publisher

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Manager holds the closed set of registered platform adapters. Adding a
// platform means registering one new adapter here, never branching in the
// orchestrator.
type Manager struct {
	publishers map[string]Publisher
	logger     *zap.Logger
}

func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		publishers: make(map[string]Publisher),
		logger:     logger,
	}
}

func (m *Manager) Register(p Publisher) error {
	name := p.Platform()
	if _, exists := m.publishers[name]; exists {
		return fmt.Errorf("publisher for platform %s already registered", name)
	}

	m.publishers[name] = p
	m.logger.Info("Publisher registered", zap.String("platform", name))
	return nil
}

func (m *Manager) Get(platform string) (Publisher, error) {
	p, exists := m.publishers[platform]
	if !exists {
		return nil, fmt.Errorf("publisher for platform %s not found", platform)
	}
	return p, nil
}

// Platforms returns registered platform names in stable order.
func (m *Manager) Platforms() []string {
	names := make([]string, 0, len(m.publishers))
	for name := range m.publishers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
