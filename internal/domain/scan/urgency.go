package scan

// Color is a presentation token for an urgency badge.
type Color string

const (
	ColorGreen   Color = "green"
	ColorAmber   Color = "amber"
	ColorRed     Color = "red"
	ColorDefault Color = "default"
)

// UrgencyColor is total: unknown or empty urgency maps to ColorDefault.
func UrgencyColor(u Urgency) Color {
	switch u {
	case UrgencyLow:
		return ColorGreen
	case UrgencyMedium:
		return ColorAmber
	case UrgencyHigh:
		return ColorRed
	default:
		return ColorDefault
	}
}
