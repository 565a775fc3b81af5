package protocol

import (
	"testing"

	"github.com/segmentio/encoding/json"

	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/pipeline"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/verdict"
)

// ---------------------------------------------------------------------------
// Test: Parsing a verify message
// ---------------------------------------------------------------------------

func TestParseClientMessage_Verify(t *testing.T) {
	input := []byte(`{"type":"verify","language":"kri","payload":{"type":"image","caption":"Free money from NASSIT"}}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeVerify {
		t.Fatalf("expected type %q, got %q", TypeVerify, msgType)
	}

	vm, ok := msg.(VerifyMsg)
	if !ok {
		t.Fatalf("expected VerifyMsg, got %T", msg)
	}
	if vm.Language != "kri" {
		t.Errorf("expected language %q, got %q", "kri", vm.Language)
	}
	if vm.Payload.Type != "image" || vm.Payload.Caption != "Free money from NASSIT" {
		t.Errorf("unexpected payload: %+v", vm.Payload)
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing a report message
// ---------------------------------------------------------------------------

func TestParseClientMessage_Report(t *testing.T) {
	input := []byte(`{"type":"report","incident_type":"mobile_money_fraud","phone":"+23276000000","description":"fake agent","amount_lost":150000}`)

	_, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rm, ok := msg.(ReportMsg)
	if !ok {
		t.Fatalf("expected ReportMsg, got %T", msg)
	}
	if rm.AmountLost == nil || *rm.AmountLost != 150000 {
		t.Errorf("expected amount_lost 150000, got %v", rm.AmountLost)
	}
	if rm.IncidentType != "mobile_money_fraud" {
		t.Errorf("expected incident_type %q, got %q", "mobile_money_fraud", rm.IncidentType)
	}
}

// ---------------------------------------------------------------------------
// Test: Creating a verdict server message
// ---------------------------------------------------------------------------

func TestNewServerMessage_Verdict(t *testing.T) {
	payload := VerdictMsg{
		Text: "Verdict: FALSE",
		Result: pipeline.Result{
			VerificationID: "VER-1-abc",
			Verdict:        verdict.LabelFalse,
			Confidence:     0.8591,
			RiskLevel:      verdict.RiskHigh,
		},
	}

	data, err := NewServerMessage(TypeVerdict, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}
	if result["type"] != TypeVerdict {
		t.Errorf("expected type %q, got %v", TypeVerdict, result["type"])
	}
	res, ok := result["result"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected result object, got %T", result["result"])
	}
	if res["verdict"] != "FALSE" || res["riskLevel"] != "HIGH" {
		t.Errorf("unexpected result: %v", res)
	}
}

func TestNewServerMessage_OverridesType(t *testing.T) {
	data, err := NewServerMessage(TypeReviewed, VerdictMsg{Type: TypeVerdict})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded VerdictMsg
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if decoded.Type != TypeReviewed {
		t.Errorf("expected type %q, got %q", TypeReviewed, decoded.Type)
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing an unknown message type returns an error
// ---------------------------------------------------------------------------

func TestParseClientMessage_UnknownType(t *testing.T) {
	input := []byte(`{"type":"find_match","interests":["music"]}`)

	msgType, msg, err := ParseClientMessage(input)
	if err == nil {
		t.Fatal("expected an error for unknown message type, got nil")
	}
	if msg != nil {
		t.Errorf("expected nil message for unknown type, got %v", msg)
	}
	if msgType != "find_match" {
		t.Errorf("expected returned type %q, got %q", "find_match", msgType)
	}
}

func TestParseClientMessage_ServerTypeRejected(t *testing.T) {
	if _, _, err := ParseClientMessage([]byte(`{"type":"verdict"}`)); err == nil {
		t.Fatal("expected an error for a server-only type, got nil")
	}
}

// ---------------------------------------------------------------------------
// Test: Envelope UnmarshalJSON edge cases
// ---------------------------------------------------------------------------

func TestEnvelope_MissingType(t *testing.T) {
	input := []byte(`{"payload":{"type":"text"}}`)
	var env Envelope
	if err := json.Unmarshal(input, &env); err == nil {
		t.Fatal("expected error for missing type field, got nil")
	}
}

func TestEnvelope_InvalidJSON(t *testing.T) {
	input := []byte(`{invalid json}`)
	var env Envelope
	if err := json.Unmarshal(input, &env); err == nil {
		t.Fatal("expected error for invalid JSON, got nil")
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing all client message types succeeds
// ---------------------------------------------------------------------------

func TestParseClientMessage_AllTypes(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		wantType string
	}{
		{"verify", `{"type":"verify","payload":{"type":"text","text":"hi"}}`, TypeVerify},
		{"report", `{"type":"report","incident_type":"phishing","phone":"+232","description":"x"}`, TypeReport},
		{"ping", `{"type":"ping"}`, TypePing},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msgType, msg, err := ParseClientMessage([]byte(tc.input))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if msgType != tc.wantType {
				t.Errorf("expected type %q, got %q", tc.wantType, msgType)
			}
			if msg == nil {
				t.Error("expected non-nil message")
			}
		})
	}
}
