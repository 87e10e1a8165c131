package model

import "time"

// ActionLog tracks each mutating action executed against a router.
type ActionLog struct {
	ID        uint64    `json:"id"`
	Action    string    `json:"action"`
	RouterID  string    `json:"router"`
	Target    string    `json:"target,omitempty"`
	Source    string    `json:"source,omitempty"`
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// ActionLogFilter describes query parameters for journal searching.
type ActionLogFilter struct {
	Action   string
	RouterID string
	Target   string
	Page     int
	PageSize int
}

// ActionLogPage is one page of journal entries, newest first.
type ActionLogPage struct {
	Data     []*ActionLog `json:"data"`
	Total    int          `json:"total"`
	Pages    int          `json:"pages"`
	PageNum  int          `json:"pageNum"`
	PageSize int          `json:"pageSize"`
}
