package canvas

import "math"

// Viewport describes the client's display area in CSS pixels.
type Viewport struct {
	Width          float64 `json:"width"`
	Height         float64 `json:"height"`
	ContainerWidth float64 `json:"containerWidth"`
}

// Device classes by viewport width.
const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"
)

// Device classifies v.
func (v Viewport) Device() string {
	switch {
	case v.Width < 768:
		return DeviceMobile
	case v.Width < 1024:
		return DeviceTablet
	default:
		return DeviceDesktop
	}
}

// ComputeScale picks the render scale of a width x height poster for v.
func ComputeScale(v Viewport, width, height int) float64 {
	w, h := float64(width), float64(height)
	switch v.Device() {
	case DeviceMobile:
		s := math.Max((v.Width-60)/w, 0.35)
		return math.Min(s, (v.Width-50)/w)
	case DeviceTablet:
		maxWidth := math.Min(v.ContainerWidth-32, 700)
		return math.Min(math.Min(maxWidth/w, v.Height*0.65/h), 1)
	default:
		maxWidth := math.Min(v.ContainerWidth-32, w)
		return math.Min(math.Min(maxWidth/w, v.Height*0.7/h), 1)
	}
}

// NeedsScrollHint reports whether a mobile poster at scale overflows 70% of
// the viewport height.
func NeedsScrollHint(v Viewport, scale float64, height int) bool {
	return v.Device() == DeviceMobile && float64(height)*scale > v.Height*0.7
}
