package model

import "time"

// DispatchRequest asks a worker for an ad-hoc sweep.
type DispatchRequest struct {
	RequestedBy string    `json:"requested_by"`
	RequestedAt time.Time `json:"requested_at"`
}
