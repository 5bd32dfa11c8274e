package scan

import (
	"encoding/json"
	"fmt"
)

// Payload is the scan-type specific input captured on the device. The set of
// implementations is closed: one per Type.
type Payload interface {
	ScanType() Type
	isPayload()
}

type CardiacData struct {
	Diagnosis      string `json:"diagnosis"`
	WaveformURL    string `json:"waveformUrl"`
	SpectrogramURL string `json:"spectrogramUrl"`
}

// ImageContext is shared by the image-based scans.
type ImageContext struct {
	ImageURL    string `json:"imageUrl"`
	UserContext string `json:"userContext"`
}

type SkinData struct{ ImageContext }

type EyeData struct{ ImageContext }

type MedicalReportData struct{ ImageContext }

// VitalsData holds manually entered vital signs. Zero means not provided.
type VitalsData struct {
	HeartRate   float64 `json:"heartRate"`
	BPSystolic  float64 `json:"bpSystolic"`
	BPDiastolic float64 `json:"bpDiastolic"`
	O2          float64 `json:"o2"`
	Temperature float64 `json:"temperature"`
}

type SymptomData struct {
	Symptoms string `json:"symptoms"`
}

func (CardiacData) ScanType() Type       { return TypeCardiac }
func (SkinData) ScanType() Type          { return TypeSkin }
func (EyeData) ScanType() Type           { return TypeEye }
func (MedicalReportData) ScanType() Type { return TypeMedicalReport }
func (VitalsData) ScanType() Type        { return TypeVitals }
func (SymptomData) ScanType() Type       { return TypeSymptom }

func (CardiacData) isPayload()       {}
func (SkinData) isPayload()          {}
func (EyeData) isPayload()           {}
func (MedicalReportData) isPayload() {}
func (VitalsData) isPayload()        {}
func (SymptomData) isPayload()       {}

// NewImagePayload builds the payload for an image-based scan type.
func NewImagePayload(t Type, imageURL, userContext string) (Payload, error) {
	ic := ImageContext{ImageURL: imageURL, UserContext: userContext}
	switch t {
	case TypeSkin:
		return SkinData{ic}, nil
	case TypeEye:
		return EyeData{ic}, nil
	case TypeMedicalReport:
		return MedicalReportData{ic}, nil
	default:
		return nil, fmt.Errorf("%s is not an image scan", t)
	}
}

// ImageURL returns the hosted image of an image-based payload, or "".
func ImageURL(p Payload) string {
	switch d := p.(type) {
	case SkinData:
		return d.ImageURL
	case EyeData:
		return d.ImageURL
	case MedicalReportData:
		return d.ImageURL
	case CardiacData:
		return d.WaveformURL
	default:
		return ""
	}
}

func zeroPayload(t Type) Payload {
	switch t {
	case TypeCardiac:
		return CardiacData{}
	case TypeSkin:
		return SkinData{}
	case TypeEye:
		return EyeData{}
	case TypeMedicalReport:
		return MedicalReportData{}
	case TypeVitals:
		return VitalsData{}
	case TypeSymptom:
		return SymptomData{}
	default:
		return nil
	}
}

func decodePayload(t Type, raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return zeroPayload(t), nil
	}
	switch t {
	case TypeCardiac:
		var d CardiacData
		err := json.Unmarshal(raw, &d)
		return d, err
	case TypeSkin:
		var d SkinData
		err := json.Unmarshal(raw, &d)
		return d, err
	case TypeEye:
		var d EyeData
		err := json.Unmarshal(raw, &d)
		return d, err
	case TypeMedicalReport:
		var d MedicalReportData
		err := json.Unmarshal(raw, &d)
		return d, err
	case TypeVitals:
		var d VitalsData
		err := json.Unmarshal(raw, &d)
		return d, err
	case TypeSymptom:
		var d SymptomData
		err := json.Unmarshal(raw, &d)
		return d, err
	default:
		return nil, fmt.Errorf("unknown scan type: %q", t)
	}
}
