package api

import (
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/content"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/moderation"
)

type ErrorResponse struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

// VerifyRequest is the body of POST /api/v1/verifications.
type VerifyRequest struct {
	UserPhone string          `json:"userPhone"`
	Channel   string          `json:"channel"`
	Language  string          `json:"language"`
	Content   content.Payload `json:"content"`
}

// ResolveRequest is the body of POST /api/v1/moderation/:id/resolve.
type ResolveRequest struct {
	Label string `json:"label"`
	Note  string `json:"note"`
}

// ReportRequest is the body of POST /api/v1/reports.
type ReportRequest struct {
	IncidentType string   `json:"incidentType"`
	VictimPhone  string   `json:"victimPhone"`
	Description  string   `json:"description"`
	AmountLost   *float64 `json:"amountLost,omitempty"`
}

type PendingResponse struct {
	Items []moderation.Pending `json:"items"`
	Count int                  `json:"count"`
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// BlockRequest is the body of PUT /api/v1/moderation/blocks/:sender.
// Duration uses Go duration syntax, e.g. "2h".
type BlockRequest struct {
	Duration string `json:"duration"`
	Reason   string `json:"reason"`
}

type BlockResponse struct {
	Sender           string `json:"sender"`
	Blocked          bool   `json:"blocked"`
	Reason           string `json:"reason,omitempty"`
	RemainingSeconds int    `json:"remainingSeconds"`
}
