package models

import "time"

// SignalStatus is the approval state of a signal.
type SignalStatus string

const (
	StatusPending  SignalStatus = "pending"
	StatusApproved SignalStatus = "approved"
	StatusRejected SignalStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s SignalStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether the status is a decision (approved or rejected).
func (s SignalStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Signal is a market call with entry, target and stop-loss prices.
type Signal struct {
	ID          string       `json:"id"`
	Instrument  string       `json:"coin_name"`
	EntryPrice  float64      `json:"entry_price"`
	TargetPrice float64      `json:"target_price"`
	StopLoss    float64      `json:"stop_loss"`
	Note        string       `json:"note,omitempty"`
	ChartImage  string       `json:"chart_image,omitempty"`
	Status      SignalStatus `json:"status"`
	OwnerID     string       `json:"created_by"`
	Creator     *Creator     `json:"creator,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Creator is the public projection of a signal's owner.
type Creator struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"fullname,omitempty"`
}

// SignalFields carries the market fields for create and update. A nil
// pointer means the field was not supplied.
type SignalFields struct {
	Instrument  *string
	EntryPrice  *float64
	TargetPrice *float64
	StopLoss    *float64
	Note        *string
	ChartImage  *string
}

// SignalFilter narrows a signal listing. Zero values mean "any".
type SignalFilter struct {
	Status  SignalStatus
	OwnerID string
}

// Any reports whether at least one field was supplied.
func (f SignalFields) Any() bool {
	return f.Instrument != nil || f.EntryPrice != nil || f.TargetPrice != nil ||
		f.StopLoss != nil || f.Note != nil || f.ChartImage != nil
}
