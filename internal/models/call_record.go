package models

import "time"

// ChatMessage is one entry of a normalized model transcript
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TokenUsage holds the per-call token deltas plus the running totals
// at the time the call finished.
type TokenUsage struct {
	Prompt          int `json:"prompt"`
	Completion      int `json:"completion"`
	TotalPrompt     int `json:"total_prompt"`
	TotalCompletion int `json:"total_completion"`
}

// CallRecord is the full-fidelity audit record of one model invocation.
// One record is written per call as a JSON file under the project's
// call-log directory.
type CallRecord struct {
	ID              string        `json:"id"`
	Index           int           `json:"index"`
	AgentName       string        `json:"agent_name"`
	Model           string        `json:"model"`
	Timestamp       time.Time     `json:"timestamp"`
	Messages        []ChatMessage `json:"messages"`
	Response        string        `json:"response"`
	PromptPreview   string        `json:"prompt_preview"`
	ResponsePreview string        `json:"response_preview"`
	Tokens          TokenUsage    `json:"tokens"`
	TotalCost       float64       `json:"total_cost"`
}

// CallSummary is the compact list read model for stored calls
type CallSummary struct {
	ID              string    `json:"id"`
	Index           int       `json:"index"`
	AgentName       string    `json:"agent_name"`
	Model           string    `json:"model"`
	Timestamp       time.Time `json:"timestamp"`
	PromptPreview   string    `json:"prompt_preview"`
	ResponsePreview string    `json:"response_preview"`
}

// CallDetail is the single-call read model with list navigation
type CallDetail struct {
	CallRecord
	HasPrev    bool   `json:"has_prev"`
	HasNext    bool   `json:"has_next"`
	PrevID     string `json:"prev_id,omitempty"`
	NextID     string `json:"next_id,omitempty"`
	TotalCount int    `json:"total_count"`
}
