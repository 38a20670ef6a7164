package lifecycle

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"evalhub/internal/eval/model"
	"evalhub/pkg/utils/logger"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// TransitionTable declares which status transitions are allowed.
// Terminal statuses have no outgoing edges regardless of the allow-list.
type TransitionTable struct {
	Transitions map[model.Status][]model.Status
	Terminal    map[model.Status]bool
}

// tableDocument is the on-disk YAML shape of a transition table.
type tableDocument struct {
	Transitions map[string][]string `yaml:"transitions"`
	Terminal    []string            `yaml:"terminal"`
}

var knownStatuses = map[model.Status]bool{
	model.StatusSubmitted:    true,
	model.StatusQueued:       true,
	model.StatusProvisioning: true,
	model.StatusRunning:      true,
	model.StatusCompleted:    true,
	model.StatusFailed:       true,
	model.StatusCancelled:    true,
}

// DefaultTable returns the minimal safe transition table used when the
// declarative document cannot be loaded.
func DefaultTable() *TransitionTable {
	return &TransitionTable{
		Transitions: map[model.Status][]model.Status{
			model.StatusSubmitted: {model.StatusQueued, model.StatusFailed, model.StatusCancelled},
			model.StatusQueued:    {model.StatusRunning, model.StatusFailed, model.StatusCancelled},
			model.StatusRunning:   {model.StatusCompleted, model.StatusFailed, model.StatusCancelled},
			model.StatusCompleted: {},
			model.StatusFailed:    {},
			model.StatusCancelled: {},
		},
		Terminal: map[model.Status]bool{
			model.StatusCompleted: true,
			model.StatusFailed:    true,
			model.StatusCancelled: true,
		},
	}
}

// LoadTable parses a transition table document. Unknown statuses in the
// document are logged and skipped, not fatal.
func LoadTable(path string) (*TransitionTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transition table failed: %w", err)
	}
	return ParseTable(data)
}

// ParseTable parses transition table YAML content.
func ParseTable(data []byte) (*TransitionTable, error) {
	var doc tableDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode transition table failed: %w", err)
	}
	if len(doc.Transitions) == 0 {
		return nil, fmt.Errorf("transition table has no transitions")
	}

	table := &TransitionTable{
		Transitions: make(map[model.Status][]model.Status, len(doc.Transitions)),
		Terminal:    make(map[model.Status]bool, len(doc.Terminal)),
	}
	for from, targets := range doc.Transitions {
		fromStatus := model.Status(from)
		if !knownStatuses[fromStatus] {
			logger.Warn(context.Background(), "skipping unknown status in transition table",
				zap.String("status", from))
			continue
		}
		allowed := make([]model.Status, 0, len(targets))
		for _, to := range targets {
			toStatus := model.Status(to)
			if !knownStatuses[toStatus] {
				logger.Warn(context.Background(), "skipping unknown target status in transition table",
					zap.String("from", from), zap.String("to", to))
				continue
			}
			allowed = append(allowed, toStatus)
		}
		table.Transitions[fromStatus] = allowed
	}
	for _, status := range doc.Terminal {
		terminal := model.Status(status)
		if !knownStatuses[terminal] {
			logger.Warn(context.Background(), "skipping unknown terminal status in transition table",
				zap.String("status", status))
			continue
		}
		table.Terminal[terminal] = true
		if _, ok := table.Transitions[terminal]; !ok {
			table.Transitions[terminal] = nil
		}
	}
	return table, nil
}

// StateMachine validates evaluation status transitions against a table.
// It is a pure function over (from, to) and performs no I/O.
type StateMachine struct {
	table *TransitionTable
}

// NewStateMachine creates a state machine over the given table.
func NewStateMachine(table *TransitionTable) *StateMachine {
	if table == nil {
		table = DefaultTable()
	}
	return &StateMachine{table: table}
}

// NewStateMachineFromFile loads the transition table document at path.
// On load failure it falls back to the hardcoded default table; the
// fallback indicates a configuration failure and is logged at warn level.
func NewStateMachineFromFile(path string) *StateMachine {
	table, err := LoadTable(path)
	if err != nil {
		logger.Warn(context.Background(), "falling back to default transition table",
			zap.String("path", path), zap.Error(err))
		return NewStateMachine(DefaultTable())
	}
	return NewStateMachine(table)
}

// IsTerminal reports whether the status is terminal.
func (m *StateMachine) IsTerminal(status model.Status) bool {
	return m.table.Terminal[status]
}

// CanTransition reports whether the transition is allowed.
func (m *StateMachine) CanTransition(from, to model.Status) bool {
	ok, _ := m.ValidateTransition(from, to)
	return ok
}

// ValidateTransition checks the transition and returns a descriptive
// reason on rejection. Same-state transitions are always allowed.
func (m *StateMachine) ValidateTransition(from, to model.Status) (bool, string) {
	if !m.knows(from) {
		return false, fmt.Sprintf("unknown status: %s", from)
	}
	if !m.knows(to) {
		return false, fmt.Sprintf("unknown status: %s", to)
	}
	if from == to {
		return true, ""
	}
	if m.table.Terminal[from] {
		return false, fmt.Sprintf("%s is a terminal status, no further transitions allowed", from)
	}
	allowed := m.table.Transitions[from]
	for _, candidate := range allowed {
		if candidate == to {
			return true, ""
		}
	}
	if len(allowed) == 0 {
		return false, fmt.Sprintf("no transitions allowed from %s", from)
	}
	return false, fmt.Sprintf("cannot transition from %s to %s, allowed targets: %s",
		from, to, joinStatuses(allowed))
}

func (m *StateMachine) knows(status model.Status) bool {
	if _, ok := m.table.Transitions[status]; ok {
		return true
	}
	if m.table.Terminal[status] {
		return true
	}
	for _, targets := range m.table.Transitions {
		for _, t := range targets {
			if t == status {
				return true
			}
		}
	}
	return false
}

func joinStatuses(statuses []model.Status) string {
	names := make([]string, 0, len(statuses))
	for _, s := range statuses {
		names = append(names, string(s))
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
