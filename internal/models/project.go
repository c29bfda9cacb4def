package models

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrInvalidTransition indicates a lifecycle operation was attempted
// from a status that does not allow it.
var ErrInvalidTransition = errors.New("invalid status transition")

// ProjectStatus represents the lifecycle state of a project run
type ProjectStatus string

const (
	ProjectStatusCreated   ProjectStatus = "created"
	ProjectStatusRunning   ProjectStatus = "running"
	ProjectStatusPaused    ProjectStatus = "paused"
	ProjectStatusStopped   ProjectStatus = "stopped"
	ProjectStatusCompleted ProjectStatus = "completed"
	ProjectStatusFailed    ProjectStatus = "failed"
)

// ProjectMode selects how role output is coordinated during a run
const (
	// ModeLeader routes every non-leader result back to the team
	// leader's inbox so the leader can react next round.
	ModeLeader = "leader"
	// ModeFlat runs roles without coordinator notifications.
	ModeFlat = "flat"
)

// Employee describes one team member attached to a project
type Employee struct {
	Name    string `json:"name"`
	Profile string `json:"profile"`
	Goal    string `json:"goal"`
	IsIdle  bool   `json:"is_idle"`
}

// DefaultEmployees returns the standard software team roster
func DefaultEmployees() []Employee {
	return []Employee{
		{Name: "Mike", Profile: "TeamLeader", Goal: "coordinate the team and route work to the right member"},
		{Name: "Alice", Profile: "ProductManager", Goal: "create a successful product that meets the user requirement"},
		{Name: "Bob", Profile: "Architect", Goal: "design a concise, usable and complete software system"},
		{Name: "Alex", Profile: "Engineer", Goal: "write elegant, readable, extensible and efficient code"},
		{Name: "David", Profile: "DataAnalyst", Goal: "analyze data and provide actionable insights"},
	}
}

// ProjectConfig is the request payload for creating a project
type ProjectConfig struct {
	Name       string  `json:"name" validate:"required,max=200"`
	Idea       string  `json:"idea" validate:"required"`
	Investment float64 `json:"investment" validate:"gte=0"`
	MaxRounds  int     `json:"max_rounds" validate:"gte=0"`
	Mode       string  `json:"mode" validate:"omitempty,oneof=leader flat"`
}

// ProjectUpdate carries optional field updates; nil pointers leave the
// current value unchanged.
type ProjectUpdate struct {
	Name       *string  `json:"name" validate:"omitempty,max=200"`
	Idea       *string  `json:"idea"`
	Investment *float64 `json:"investment" validate:"omitempty,gte=0"`
	MaxRounds  *int     `json:"max_rounds" validate:"omitempty,gte=1"`
}

// ProjectInfo is the full read model returned by the API
type ProjectInfo struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Idea         string        `json:"idea"`
	Investment   float64       `json:"investment"`
	MaxRounds    int           `json:"max_rounds"`
	Mode         string        `json:"mode"`
	Status       ProjectStatus `json:"status"`
	Employees    []Employee    `json:"employees"`
	TotalCost    float64       `json:"total_cost"`
	ProjectDir   string        `json:"project_dir,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// ProjectSummary is the compact list read model
type ProjectSummary struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Status    ProjectStatus `json:"status"`
	TotalCost float64       `json:"total_cost"`
	CreatedAt time.Time     `json:"created_at"`
}

// Project is the registry record for one orchestrated run. All fields
// are guarded by the mutex because HTTP handlers and websocket clients
// read them while the run loop mutates them.
type Project struct {
	mu           sync.RWMutex
	id           string
	name         string
	idea         string
	investment   float64
	maxRounds    int
	mode         string
	status       ProjectStatus
	employees    []Employee
	totalCost    float64
	projectDir   string
	errorMessage string
	history      []Event
	callCount    int
	paused       bool
	createdAt    time.Time
}

// NewProject creates a project in the created state with the default roster
func NewProject(id string, config ProjectConfig) *Project {
	mode := config.Mode
	if mode == "" {
		mode = ModeLeader
	}
	return &Project{
		id:         id,
		name:       config.Name,
		idea:       config.Idea,
		investment: config.Investment,
		maxRounds:  config.MaxRounds,
		mode:       mode,
		status:     ProjectStatusCreated,
		employees:  DefaultEmployees(),
		createdAt:  time.Now().UTC(),
	}
}

func (p *Project) ID() string {
	return p.id
}

func (p *Project) Name() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.name
}

func (p *Project) Idea() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.idea
}

func (p *Project) Investment() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.investment
}

func (p *Project) MaxRounds() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.maxRounds
}

func (p *Project) Mode() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.mode
}

func (p *Project) Status() ProjectStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

func (p *Project) TotalCost() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.totalCost
}

func (p *Project) ProjectDir() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.projectDir
}

func (p *Project) ErrorMessage() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.errorMessage
}

func (p *Project) CreatedAt() time.Time {
	return p.createdAt
}

func (p *Project) IsPaused() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused
}

// Employees returns a copy of the roster
func (p *Project) Employees() []Employee {
	p.mu.RLock()
	defer p.mu.RUnlock()
	employees := make([]Employee, len(p.employees))
	copy(employees, p.employees)
	return employees
}

// History returns a copy of the event history in append order
func (p *Project) History() []Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	history := make([]Event, len(p.history))
	copy(history, p.history)
	return history
}

// CallCount returns how many model calls have been logged for this project
func (p *Project) CallCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.callCount
}

// NextCallIndex reserves and returns the next 1-based call index
func (p *Project) NextCallIndex() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callCount++
	return p.callCount
}

// ApplyUpdate applies non-nil fields from the update
func (p *Project) ApplyUpdate(update ProjectUpdate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if update.Name != nil {
		p.name = *update.Name
	}
	if update.Idea != nil {
		p.idea = *update.Idea
	}
	if update.Investment != nil {
		p.investment = *update.Investment
	}
	if update.MaxRounds != nil {
		p.maxRounds = *update.MaxRounds
	}
}

// BeginRun transitions the project into the running state and resets
// per-run fields. Valid from created, completed, failed and stopped.
func (p *Project) BeginRun() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.status {
	case ProjectStatusRunning, ProjectStatusPaused:
		return fmt.Errorf("%w: project %s is already %s", ErrInvalidTransition, p.id, p.status)
	}
	p.status = ProjectStatusRunning
	p.paused = false
	p.errorMessage = ""
	p.totalCost = 0
	p.history = nil
	return nil
}

// Pause suspends a running project
func (p *Project) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != ProjectStatusRunning {
		return fmt.Errorf("%w: cannot pause project %s in status %s", ErrInvalidTransition, p.id, p.status)
	}
	p.status = ProjectStatusPaused
	p.paused = true
	return nil
}

// Resume continues a paused project
func (p *Project) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != ProjectStatusPaused {
		return fmt.Errorf("%w: cannot resume project %s in status %s", ErrInvalidTransition, p.id, p.status)
	}
	p.status = ProjectStatusRunning
	p.paused = false
	return nil
}

// MarkCompleted records a successful run
func (p *Project) MarkCompleted(totalCost float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = ProjectStatusCompleted
	p.paused = false
	p.totalCost = totalCost
}

// MarkFailed records a failed run with the error message
func (p *Project) MarkFailed(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = ProjectStatusFailed
	p.paused = false
	p.errorMessage = message
}

// MarkStopped records a cancelled run
func (p *Project) MarkStopped() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = ProjectStatusStopped
	p.paused = false
}

// SetEmployees replaces the roster
func (p *Project) SetEmployees(employees []Employee) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.employees = make([]Employee, len(employees))
	copy(p.employees, employees)
}

// SetEmployeeIdle updates one employee's idle flag by name
func (p *Project) SetEmployeeIdle(name string, idle bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.employees {
		if p.employees[i].Name == name {
			p.employees[i].IsIdle = idle
			return
		}
	}
}

// SetTotalCost updates the running cost total
func (p *Project) SetTotalCost(totalCost float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.totalCost = totalCost
}

// SetProjectDir records the detected project directory. The directory
// is set once per project; later calls are ignored and return false.
func (p *Project) SetProjectDir(dir string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.projectDir != "" {
		return false
	}
	p.projectDir = dir
	return true
}

// AppendEvent appends an event to the project history
func (p *Project) AppendEvent(event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = append(p.history, event)
}

// Snapshot returns a consistent read model of the project
func (p *Project) Snapshot() ProjectInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	employees := make([]Employee, len(p.employees))
	copy(employees, p.employees)
	return ProjectInfo{
		ID:           p.id,
		Name:         p.name,
		Idea:         p.idea,
		Investment:   p.investment,
		MaxRounds:    p.maxRounds,
		Mode:         p.mode,
		Status:       p.status,
		Employees:    employees,
		TotalCost:    p.totalCost,
		ProjectDir:   p.projectDir,
		ErrorMessage: p.errorMessage,
		CreatedAt:    p.createdAt,
	}
}

// Summary returns the compact list read model
func (p *Project) Summary() ProjectSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return ProjectSummary{
		ID:        p.id,
		Name:      p.name,
		Status:    p.status,
		TotalCost: p.totalCost,
		CreatedAt: p.createdAt,
	}
}
