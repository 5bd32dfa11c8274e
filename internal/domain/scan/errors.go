package scan

import (
	"errors"
	"fmt"
)

// UploadError means the image host rejected or failed the upload. Analysis
// must not proceed until the user retries.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string { return fmt.Sprintf("image upload failed: %v", e.Err) }
func (e *UploadError) Unwrap() error { return e.Err }

// BackendAnalysisError is a non-2xx or malformed response from a scan-analysis
// endpoint. Message is shown to the user verbatim when present.
type BackendAnalysisError struct {
	ScanType   Type
	StatusCode int
	Message    string
	Err        error
}

func (e *BackendAnalysisError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s analysis failed (status %d): %s", e.ScanType, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s analysis failed: %s", e.ScanType, msg)
}

func (e *BackendAnalysisError) Unwrap() error { return e.Err }

// IncompleteAnalysisError means the response carried none of the
// summary-bearing fields.
type IncompleteAnalysisError struct {
	ScanType Type
}

func (e *IncompleteAnalysisError) Error() string {
	return fmt.Sprintf("%s analysis response has no short_summary, summary, analysis or message", e.ScanType)
}

// RecommendationFetchError is a failed classification call or history write.
// It never blocks display of the scan result.
type RecommendationFetchError struct {
	RecordID string
	Err      error
}

func (e *RecommendationFetchError) Error() string {
	return fmt.Sprintf("recommendations for record %s: %v", e.RecordID, e.Err)
}

func (e *RecommendationFetchError) Unwrap() error { return e.Err }

// StorageError is a failed local persistence operation.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Alert is the dismissible message shown for a failure.
type Alert struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// AlertFor maps an error from the pipeline onto user-facing text.
func AlertFor(err error) Alert {
	var (
		upload     *UploadError
		backend    *BackendAnalysisError
		incomplete *IncompleteAnalysisError
		rec        *RecommendationFetchError
		storage    *StorageError
	)
	switch {
	case errors.As(err, &upload):
		return Alert{Title: "Image Upload Error", Message: "Failed to upload image. Please try again."}
	case errors.As(err, &backend):
		if backend.Message != "" {
			return Alert{Title: "Analysis Error", Message: backend.Message}
		}
		return Alert{Title: "Analysis Error", Message: fmt.Sprintf("Failed to analyze %s. Please try again.", backend.ScanType.DisplayName())}
	case errors.As(err, &incomplete):
		return Alert{Title: "Analysis Error", Message: "We could not analyze this scan. Please try again."}
	case errors.As(err, &rec):
		return Alert{Title: "Recommendations", Message: "Failed to fetch recommendations"}
	case errors.As(err, &storage):
		return Alert{Title: "Storage Warning", Message: "Your scan is available now but could not be saved on this device."}
	default:
		return Alert{Title: "Error", Message: "Something went wrong. Please try again."}
	}
}
