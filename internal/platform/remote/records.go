package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/animus/animus/internal/domain/gate"
	"github.com/animus/animus/internal/domain/medicalhistory"
	"github.com/animus/animus/internal/domain/scan"
)

// Classify calls the recommendation service.
func (c *Client) Classify(ctx context.Context, req gate.ClassifyRequest) (gate.Classification, error) {
	var out gate.Classification
	if err := c.do(ctx, http.MethodPost, "/api/recommendations", req, &out); err != nil {
		return gate.Classification{}, err
	}
	out.Urgency = scan.ParseUrgency(string(out.Urgency))
	return out, nil
}

// List returns the caller's medical history. The upstream API scopes the
// list by bearer token, so userID is informational.
func (c *Client) List(ctx context.Context, userID string) ([]medicalhistory.Entry, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/medical-history", nil, &raw); err != nil {
		return nil, err
	}
	var entries []medicalhistory.Entry
	if err := decodeList(raw, &entries, "medicalHistories", "histories"); err != nil {
		return nil, err
	}
	return entries, nil
}

// Create posts a new medical history entry and fills e from the response.
func (c *Client) Create(ctx context.Context, e *medicalhistory.Entry) error {
	body := struct {
		Condition     string      `json:"condition"`
		Description   string      `json:"description"`
		DateDiagnosed interface{} `json:"dateDiagnosed,omitempty"`
		IsActive      bool        `json:"isActive"`
		ReferenceID   string      `json:"referenceId,omitempty"`
	}{e.Condition, e.Description, nil, e.IsActive, e.ReferenceID}
	if e.DateDiagnosed != nil {
		body.DateDiagnosed = e.DateDiagnosed.UTC().Format(time.RFC3339)
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/api/medical-history", body, &raw); err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}
	var wrapped struct {
		Data *medicalhistory.Entry `json:"data"`
	}
	if json.Unmarshal(raw, &wrapped) == nil && wrapped.Data != nil && wrapped.Data.ID != "" {
		*e = *wrapped.Data
		return nil
	}
	var created medicalhistory.Entry
	if json.Unmarshal(raw, &created) == nil && created.ID != "" {
		*e = created
	}
	return nil
}

// HealthReport is a saved analysis report.
type HealthReport struct {
	ID             string `json:"_id,omitempty"`
	ReportType     string `json:"reportType"`
	Result         string `json:"result"`
	DoctorFeedback string `json:"doctorFeedback"`
	Date           string `json:"date,omitempty"`
	// RecordID is the reference back to the scan record, when echoed.
	RecordID string `json:"id,omitempty"`
}

func (c *Client) HealthReports(ctx context.Context) ([]HealthReport, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/health-reports", nil, &raw); err != nil {
		return nil, err
	}
	var reports []HealthReport
	if err := decodeList(raw, &reports, "reports", "healthReports"); err != nil {
		return nil, err
	}
	return reports, nil
}

func (c *Client) CreateHealthReport(ctx context.Context, r HealthReport) error {
	return c.do(ctx, http.MethodPost, "/api/health-reports", r, nil)
}

// Profile returns the caller's profile document as-is.
func (c *Client) Profile(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/profile", nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// ChatMessage is one turn sent to the chat endpoint.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat sends messages and returns the assistant reply.
func (c *Client) Chat(ctx context.Context, messages []ChatMessage, maxTokens int) (string, error) {
	body := struct {
		Messages  []ChatMessage `json:"messages"`
		MaxTokens int           `json:"maxTokens"`
	}{messages, maxTokens}
	var out struct {
		Reply string `json:"reply"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/chat", body, &out); err != nil {
		return "", err
	}
	return out.Reply, nil
}
