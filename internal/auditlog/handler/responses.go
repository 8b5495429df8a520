package handler

import (
	"encoding/json"
	"time"

	"gatekeeper/internal/auditlog"
)

// AuditLogResponse is the wire form of one immutable audit record. The three
// evidence documents are emitted as raw JSON, exactly as captured.
type AuditLogResponse struct {
	EvaluationID    string       `json:"evaluation_id"`
	ApplicationID   string       `json:"application_id"`
	ApplicationName string       `json:"application_name"`
	Environment     string       `json:"environment"`
	RiskTier        string       `json:"risk_tier"`
	Allowed         bool         `json:"allowed"`
	Reason          string       `json:"reason,omitempty"`
	Violations      []string     `json:"violations,omitempty"`
	Counts          countsBody   `json:"findings"`
	Evidence        evidenceBody `json:"evidence"`
	DurationMillis  int64        `json:"duration_ms"`
	EvaluatedAt     time.Time    `json:"evaluated_at"`
}

type countsBody struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Total    int `json:"total"`
}

type evidenceBody struct {
	RawScanResults json.RawMessage `json:"raw_scan_results"`
	EngineInput    json.RawMessage `json:"engine_input"`
	EngineOutput   json.RawMessage `json:"engine_output"`
	CapturedAt     time.Time       `json:"captured_at"`
}

func newAuditLogResponse(record *auditlog.AuditLog) AuditLogResponse {
	return AuditLogResponse{
		EvaluationID:    record.EvaluationID.String(),
		ApplicationID:   record.ApplicationID.String(),
		ApplicationName: record.ApplicationName,
		Environment:     record.Environment,
		RiskTier:        string(record.RiskTier),
		Allowed:         record.Allowed,
		Reason:          record.Reason,
		Violations:      record.Violations,
		Counts: countsBody{
			Critical: record.Counts.Critical,
			High:     record.Counts.High,
			Medium:   record.Counts.Medium,
			Low:      record.Counts.Low,
			Total:    record.Counts.Total(),
		},
		Evidence: evidenceBody{
			RawScanResults: json.RawMessage(record.Evidence.RawScanResults),
			EngineInput:    json.RawMessage(record.Evidence.EngineInput),
			EngineOutput:   json.RawMessage(record.Evidence.EngineOutput),
			CapturedAt:     record.Evidence.CapturedAt,
		},
		DurationMillis: record.Duration.Milliseconds(),
		EvaluatedAt:    record.EvaluatedAt,
	}
}

// AuditLogListResponse pages newest-first audit records for one application.
type AuditLogListResponse struct {
	Records []AuditLogResponse `json:"records"`
	Count   int                `json:"count"`
}

func newAuditLogListResponse(records []*auditlog.AuditLog) AuditLogListResponse {
	out := AuditLogListResponse{Records: make([]AuditLogResponse, 0, len(records))}
	for _, record := range records {
		out.Records = append(out.Records, newAuditLogResponse(record))
	}
	out.Count = len(out.Records)
	return out
}
