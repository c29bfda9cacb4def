package llm

import "sync"

// CostManager accumulates token usage and dollar cost for one project
// run. Prices are per 1k tokens. Safe for concurrent role turns.
type CostManager struct {
	mu               sync.Mutex
	promptPrice      float64
	completionPrice  float64
	maxBudget        float64
	promptTokens     int
	completionTokens int
	totalCost        float64
}

// NewCostManager creates a cost manager with the given per-1k-token
// prices and budget ceiling. A maxBudget of 0 disables the ceiling.
func NewCostManager(promptPrice, completionPrice, maxBudget float64) *CostManager {
	return &CostManager{
		promptPrice:     promptPrice,
		completionPrice: completionPrice,
		maxBudget:       maxBudget,
	}
}

// AddUsage records one call's token consumption
func (c *CostManager) AddUsage(promptTokens, completionTokens int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.promptTokens += promptTokens
	c.completionTokens += completionTokens
	c.totalCost += float64(promptTokens)/1000.0*c.promptPrice +
		float64(completionTokens)/1000.0*c.completionPrice
}

// TotalPromptTokens returns the running prompt token total
func (c *CostManager) TotalPromptTokens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.promptTokens
}

// TotalCompletionTokens returns the running completion token total
func (c *CostManager) TotalCompletionTokens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completionTokens
}

// TotalCost returns the accumulated cost in dollars
func (c *CostManager) TotalCost() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalCost
}

// MaxBudget returns the budget ceiling in dollars
func (c *CostManager) MaxBudget() float64 {
	return c.maxBudget
}

// Exceeded reports whether the accumulated cost has reached the budget
func (c *CostManager) Exceeded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxBudget > 0 && c.totalCost >= c.maxBudget
}
