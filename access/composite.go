package access

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/janelia-flyem/pixaccess/pixel"
	"github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/gonum/floats"
)

// defaultColors are assigned to channels without settings when an array has
// more than one channel.
var defaultColors = []string{"#ff0000", "#00ff00", "#0000ff", "#ff00ff", "#00ffff", "#ffff00", "#ffffff"}

// ChannelSettings control how one channel contributes to a composite.
type ChannelSettings struct {
	Active bool
	Color  string // hex, e.g. "#00ff00"

	// Samples at or below Black are dark and at or above White are full
	// color.  If White <= Black the plane's own min and max are used.
	Black, White float64

	// Gamma is applied to the windowed intensity.  Zero means 1.
	Gamma float64
}

// CompositeSettings select the plane and channel rendering of a composite.
type CompositeSettings struct {
	Z, T int

	// Channels holds settings by channel index.  If nil, every channel is
	// active with a default color and automatic window.
	Channels []ChannelSettings
}

// DefaultCompositeSettings renders all channels of the middle plane at t=0.
func DefaultCompositeSettings(d *PixelArrayDescriptor) CompositeSettings {
	return CompositeSettings{Z: d.Dims.Z / 2}
}

func (cs CompositeSettings) channel(c, numChannels int) ChannelSettings {
	if cs.Channels != nil {
		if c < len(cs.Channels) {
			return cs.Channels[c]
		}
		return ChannelSettings{}
	}
	col := "#ffffff"
	if numChannels > 1 {
		col = defaultColors[c%len(defaultColors)]
	}
	return ChannelSettings{Active: true, Color: col}
}

// Composite renders one plane of every active channel additively into an
// RGB image.
func (f *Facade) Composite(ctx context.Context, d *PixelArrayDescriptor, cs CompositeSettings) (*image.RGBA, error) {
	width, height := d.Dims.X, d.Dims.Y
	n := width * height
	r := make([]float64, n)
	g := make([]float64, n)
	b := make([]float64, n)

	for c := 0; c < d.Dims.C; c++ {
		ch := cs.channel(c, d.Dims.C)
		if !ch.Active {
			continue
		}
		col, err := colorful.Hex(ch.Color)
		if err != nil {
			return nil, fmt.Errorf("bad color %q for channel %d: %v", ch.Color, c, err)
		}
		intensity, err := f.channelIntensity(ctx, d, pixel.Plane{Z: cs.Z, C: c, T: cs.T}, ch)
		if err != nil {
			return nil, err
		}
		floats.AddScaled(r, col.R, intensity)
		floats.AddScaled(g, col.G, intensity)
		floats.AddScaled(b, col.B, intensity)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < n; i++ {
		img.SetRGBA(i%width, i/width, color.RGBA{to8(r[i]), to8(g[i]), to8(b[i]), 0xff})
	}
	return img, nil
}

// channelIntensity returns the windowed, gamma corrected intensity in [0, 1]
// of each pixel in a plane.
func (f *Facade) channelIntensity(ctx context.Context, d *PixelArrayDescriptor, plane pixel.Plane, ch ChannelSettings) ([]float64, error) {
	data, err := f.ReadPlane(ctx, d, plane.Z, plane.C, plane.T, false)
	if err != nil {
		return nil, err
	}
	samples, err := pixel.Samples(data, d.Type, pixel.ByteOrder(false))
	if err != nil {
		return nil, d.wrap("decode "+plane.String()+" of", err)
	}
	black, white := ch.Black, ch.White
	if white <= black {
		black, white = floats.Min(samples), floats.Max(samples)
	}
	width := white - black
	gray := image.NewRGBA(image.Rect(0, 0, d.Dims.X, d.Dims.Y))
	for i, v := range samples {
		var level uint8
		switch {
		case width <= 0:
			if v > black {
				level = 0xff
			}
		default:
			level = to8((v - black) / width)
		}
		gray.Pix[4*i], gray.Pix[4*i+1], gray.Pix[4*i+2], gray.Pix[4*i+3] = level, level, level, 0xff
	}
	if ch.Gamma > 0 && ch.Gamma != 1 {
		gray = adjust.Gamma(gray, ch.Gamma)
	}
	intensity := make([]float64, len(samples))
	for i := range intensity {
		intensity[i] = float64(gray.Pix[4*i]) / 0xff
	}
	return intensity, nil
}

// to8 maps [0, 1] to [0, 255], clamping out-of-range values.
func to8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 0xff
	default:
		return uint8(v*0xff + 0.5)
	}
}
