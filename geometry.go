package rendertree

import "image"

// TimeValue identifies a frame on the timeline. Fractional times are legal
// (retimers produce them), so this is a float, not a frame index.
type TimeValue float64

// ViewIdx identifies a view in a multi-view (e.g. stereo) project.
type ViewIdx int

// RenderScale is a per-axis scale factor applied to a render, combining
// the proxy scale with the mip-map level downscaling.
type RenderScale struct {
	X, Y float64
}

// IdentityScale is the 1:1 render scale.
var IdentityScale = RenderScale{X: 1, Y: 1}

// CombinedScale returns the proxy scale further divided by 2^mipMapLevel
// on both axes. This is the effective scale a node renders at.
func CombinedScale(proxyScale RenderScale, mipMapLevel uint32) RenderScale {
	s := proxyScale
	for i := uint32(0); i < mipMapLevel; i++ {
		s.X /= 2
		s.Y /= 2
	}
	return s
}

// RectD is an axis-aligned rectangle in canonical (scale-independent)
// coordinates. X2/Y2 are exclusive upper bounds.
type RectD struct {
	X1, Y1, X2, Y2 float64
}

// IsNull reports whether the rectangle encloses no area.
func (r RectD) IsNull() bool {
	return r.X2 <= r.X1 || r.Y2 <= r.Y1
}

// Width returns the horizontal extent of the rectangle.
func (r RectD) Width() float64 { return r.X2 - r.X1 }

// Height returns the vertical extent of the rectangle.
func (r RectD) Height() float64 { return r.Y2 - r.Y1 }

// Intersects reports whether r and o share any area.
func (r RectD) Intersects(o RectD) bool {
	if r.IsNull() || o.IsNull() {
		return false
	}
	return r.X1 < o.X2 && o.X1 < r.X2 && r.Y1 < o.Y2 && o.Y1 < r.Y2
}

// Union returns the smallest rectangle containing both r and o.
// A null rectangle is treated as the identity.
func (r RectD) Union(o RectD) RectD {
	if r.IsNull() {
		return o
	}
	if o.IsNull() {
		return r
	}
	u := r
	if o.X1 < u.X1 {
		u.X1 = o.X1
	}
	if o.Y1 < u.Y1 {
		u.Y1 = o.Y1
	}
	if o.X2 > u.X2 {
		u.X2 = o.X2
	}
	if o.Y2 > u.Y2 {
		u.Y2 = o.Y2
	}
	return u
}

// RectI is a pixel-aligned rectangle. Pixel coordinates are plain ints,
// so the stdlib rectangle is used directly.
type RectI = image.Rectangle

// ImagePlaneDesc describes one image plane (layer) a node produces or
// consumes, e.g. color, motion vectors, a custom AOV.
type ImagePlaneDesc struct {
	// PlaneID uniquely identifies the plane within a node's outputs.
	PlaneID string

	// ChannelNames lists the channels of the plane, in order.
	ChannelNames []string
}

// NumComponents returns the channel count. A zero-component plane is the
// "unspecified" sentinel: the engine resolves the node's default plane
// in its place.
func (p ImagePlaneDesc) NumComponents() int { return len(p.ChannelNames) }

// ColorPlaneDesc is the conventional RGBA color plane.
var ColorPlaneDesc = ImagePlaneDesc{
	PlaneID:      "color",
	ChannelNames: []string{"R", "G", "B", "A"},
}
