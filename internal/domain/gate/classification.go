package gate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/animus/animus/internal/domain/scan"
)

// ClassifyRequest is sent to the recommendation service.
type ClassifyRequest struct {
	Analysis string       `json:"analysis"`
	UserID   string       `json:"userId"`
	ScanType scan.Type    `json:"scanType"`
	ScanData scan.Payload `json:"scanData"`
	VitalsID string       `json:"vitalsId,omitempty"`
}

// Classification is the recommendation service's verdict for a record.
type Classification struct {
	Urgency            scan.Urgency `json:"urgency"`
	Recommendations    Text         `json:"recommendations"`
	Insights           Text         `json:"insights"`
	IsMedicalCondition Flag         `json:"isMedicalCondition"`
	Condition          string       `json:"condition"`
}

// Flag decodes 0/1, true/false and their string forms.
type Flag bool

func (f *Flag) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if string(b) == "null" {
		*f = false
		return nil
	}
	s := strings.Trim(string(b), `"`)
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "0", "false", "no":
		*f = false
		return nil
	case "1", "true", "yes":
		*f = true
		return nil
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		*f = n != 0
		return nil
	}
	return fmt.Errorf("invalid isMedicalCondition value %s", b)
}

// Text decodes either a string or a list of strings joined by newlines.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = Text(strings.TrimSpace(s))
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*t = Text(strings.Join(list, "\n"))
		return nil
	}
	if string(bytes.TrimSpace(b)) == "null" {
		*t = ""
		return nil
	}
	return fmt.Errorf("invalid text value %s", b)
}
