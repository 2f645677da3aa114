package engine

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goclaw/agentmemory/pkg/memory"
)

const (
	procedureRelevance = 0.8
	procedureIDPrefix  = "procedure:"
	MetaProcedureName  = "procedure_name"
)

// Procedure is a named, ordered list of steps.
type Procedure struct {
	Name      string    `json:"name"`
	Steps     []string  `json:"steps"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProcedureID returns the stable entry ID for a procedure name.
func ProcedureID(name string) string {
	return procedureIDPrefix + name
}

// RenderProcedure formats a procedure the way search results present it.
func RenderProcedure(name string, steps []string) string {
	return fmt.Sprintf("Procedure: %s\nSteps:\n%s", name, strings.Join(steps, "\n"))
}

// ProceduralMemory maps procedure names to step sequences.
type ProceduralMemory struct {
	mu         sync.RWMutex
	procedures map[string]*Procedure
	now        func() time.Time
}

// NewProceduralMemory creates an empty procedure store.
func NewProceduralMemory() *ProceduralMemory {
	return &ProceduralMemory{
		procedures: make(map[string]*Procedure),
		now:        time.Now,
	}
}

// StoreProcedure saves steps under name, replacing any previous version.
func (p *ProceduralMemory) StoreProcedure(name string, steps []string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyName
	}
	if len(steps) == 0 {
		return "", ErrNoSteps
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.procedures[name] = &Procedure{
		Name:      name,
		Steps:     append([]string(nil), steps...),
		UpdatedAt: p.now().UTC(),
	}
	return ProcedureID(name), nil
}

// GetProcedure returns a copy of the named procedure's steps.
func (p *ProceduralMemory) GetProcedure(name string) ([]string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	proc, ok := p.procedures[name]
	if !ok {
		return nil, false
	}
	return append([]string(nil), proc.Steps...), true
}

// DeleteProcedure removes a procedure by name.
func (p *ProceduralMemory) DeleteProcedure(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.procedures[name]; !ok {
		return false
	}
	delete(p.procedures, name)
	return true
}

// SearchProcedures returns an entry for every procedure whose name contains
// query, case-insensitively. Steps are not searched.
func (p *ProceduralMemory) SearchProcedures(query string) []*memory.MemoryEntry {
	q := strings.ToLower(query)
	return p.collect(func(name string) bool {
		return strings.Contains(name, q)
	})
}

// MatchProcedures returns procedures whose name contains the query or
// appears within it, so "how to deploy" finds "deploy".
func (p *ProceduralMemory) MatchProcedures(query string) []*memory.MemoryEntry {
	q := strings.ToLower(query)
	return p.collect(func(name string) bool {
		return strings.Contains(name, q) || (name != "" && strings.Contains(q, name))
	})
}

func (p *ProceduralMemory) collect(match func(lowerName string) bool) []*memory.MemoryEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.procedures))
	for name := range p.procedures {
		if match(strings.ToLower(name)) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	out := make([]*memory.MemoryEntry, 0, len(names))
	for _, name := range names {
		proc := p.procedures[name]
		e := memory.NewEntry(RenderProcedure(proc.Name, proc.Steps), memory.Procedural).
			WithMetadata(MetaProcedureName, proc.Name).
			WithRelevance(procedureRelevance)
		e.ID = ProcedureID(proc.Name)
		e.Timestamp = proc.UpdatedAt
		out = append(out, e)
	}
	return out
}

// Len returns the number of stored procedures.
func (p *ProceduralMemory) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.procedures)
}
