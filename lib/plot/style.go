package plot

import (
	"fmt"
	"image/color"
)

// Canvas is the size of a plot in points.
type Canvas struct {
	Width, Height int
}

// Style holds every presentation choice made by the renderers. DefaultStyle
// reproduces the look of the classic Impact-T ROOT macros.
type Style struct {
	BunchCanvas, PhaseCanvas, EnergyCanvas, XYCanvas Canvas

	// Colors are cycled through by bunch: bunch k uses
	// Colors[(k-1) % len(Colors)].
	Colors []color.RGBA

	BunchXTitle, BunchYTitle   string
	EnergyXTitle, EnergyYTitle string

	// EnergyBins is the default number of final-energy histogram bins.
	EnergyBins int
	// StandardEnergyRange and RFQEnergyRange are the default histogram ranges
	// in MeV. Equal bounds mean the range is taken from the data.
	StandardEnergyRange, RFQEnergyRange [2]float64
}

// DefaultStyle returns the default Style.
func DefaultStyle() *Style {
	return &Style{
		BunchCanvas:  Canvas{802, 525},
		PhaseCanvas:  Canvas{802, 825},
		EnergyCanvas: Canvas{802, 525},
		XYCanvas:     Canvas{800, 500},

		Colors: []color.RGBA{
			{R: 0x7d, G: 0x99, B: 0xd1, A: 0xff}, // blue
			{R: 0xf0, G: 0x8c, B: 0x82, A: 0xff}, // salmon
			{R: 0x5b, G: 0xa4, B: 0x5b, A: 0xff}, // green
			{R: 0xd4, G: 0xa0, B: 0x19, A: 0xff}, // mustard
		},

		BunchXTitle:  "z-position (m)",
		BunchYTitle:  "Total number of macro-particles",
		EnergyXTitle: "Final energy (MeV)",
		EnergyYTitle: "Number of macro-particles",

		EnergyBins:          100,
		StandardEnergyRange: [2]float64{0, 0},
		RFQEnergyRange:      [2]float64{0.0, 1.1},
	}
}

// Color returns the color of a 1-indexed bunch.
func (s *Style) Color(bunch int) color.RGBA {
	n := len(s.Colors)
	return s.Colors[((bunch-1)%n+n)%n]
}

// HexColor returns the color of a 1-indexed bunch as a CSS hex string.
func (s *Style) HexColor(bunch int) string {
	c := s.Color(bunch)
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
