package models

import "time"

// Usage represents token usage of one backend call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// UsageRecord tracks the usage of one conversational step.
type UsageRecord struct {
	ID               int64     `json:"id"`
	RunID            string    `json:"run_id"`
	StepName         string    `json:"step_name"`
	Model            string    `json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	Cost             float64   `json:"cost"`
	CreatedAt        time.Time `json:"created_at"`
}

// StepSummary aggregates usage by step and model.
type StepSummary struct {
	StepName        string  `json:"step_name"`
	Model           string  `json:"model"`
	RequestCount    int     `json:"request_count"`
	TotalPrompt     int     `json:"total_prompt"`
	TotalCompletion int     `json:"total_completion"`
	TotalTokens     int     `json:"total_tokens"`
	Cost            float64 `json:"cost"`
}
