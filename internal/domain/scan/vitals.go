package scan

import (
	"strconv"
	"strings"
)

// ParseVitals converts the free-text vitals form into VitalsData. Blood
// pressure is expected as "systolic/diastolic"; units such as "bpm" or "%"
// are stripped. Unparseable fields are left at zero.
func ParseVitals(bloodPressure, pulse, temperature, oxygen string) VitalsData {
	var v VitalsData
	if sys, dia, ok := strings.Cut(bloodPressure, "/"); ok {
		v.BPSystolic = numeric(sys)
		v.BPDiastolic = numeric(dia)
	}
	v.HeartRate = numeric(pulse)
	v.Temperature = numeric(temperature)
	v.O2 = numeric(oxygen)
	return v
}

func numeric(s string) float64 {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	f, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0
	}
	return f
}
