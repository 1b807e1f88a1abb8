package frame

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
)

// Channels is the number of interleaved 8-bit samples per pixel.
const Channels = 3

type ColorOrder int

const (
	// BGR is the decoder's native order, the same layout OpenCV uses for 8UC3 mats.
	BGR ColorOrder = iota
	RGB
)

func (o ColorOrder) String() string {
	switch o {
	case BGR:
		return "BGR"
	case RGB:
		return "RGB"
	default:
		return fmt.Sprintf("ColorOrder(%d)", int(o))
	}
}

// Image is a height x width x 3 raster with rows packed back to back.
// It implements image.Image and draw.Image so it can be fed to x/image/draw.
type Image struct {
	Pix    []uint8
	Width  int
	Height int
	Order  ColorOrder
}

func NewImage(width, height int, order ColorOrder) *Image {
	return &Image{
		Pix:    make([]uint8, width*height*Channels),
		Width:  width,
		Height: height,
		Order:  order,
	}
}

func (m *Image) Stride() int {
	return m.Width * Channels
}

// Validate reports whether the pixel buffer matches the declared geometry.
func (m *Image) Validate() error {
	if m == nil {
		return errors.New("nil image")
	}
	if m.Width <= 0 || m.Height <= 0 {
		return fmt.Errorf("empty image %dx%d", m.Width, m.Height)
	}
	if want := m.Width * m.Height * Channels; len(m.Pix) != want {
		return fmt.Errorf("pixel buffer holds %d bytes, want %d for %dx%dx%d",
			len(m.Pix), want, m.Width, m.Height, Channels)
	}
	if m.Order != BGR && m.Order != RGB {
		return fmt.Errorf("unknown color order %s", m.Order)
	}
	return nil
}

func (m *Image) ColorModel() color.Model {
	return color.RGBAModel
}

func (m *Image) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.Width, m.Height)
}

func (m *Image) RGBAt(x, y int) (r, g, b uint8) {
	if !(image.Point{X: x, Y: y}.In(m.Bounds())) {
		return 0, 0, 0
	}
	i := y*m.Stride() + x*Channels
	s := m.Pix[i : i+Channels : i+Channels]
	if m.Order == BGR {
		return s[2], s[1], s[0]
	}
	return s[0], s[1], s[2]
}

func (m *Image) At(x, y int) color.Color {
	r, g, b := m.RGBAt(x, y)
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}

func (m *Image) Set(x, y int, c color.Color) {
	if !(image.Point{X: x, Y: y}.In(m.Bounds())) {
		return
	}
	nc := color.NRGBAModel.Convert(c).(color.NRGBA)
	m.setRGB(y*m.Stride()+x*Channels, nc.R, nc.G, nc.B)
}

func (m *Image) setRGB(i int, r, g, b uint8) {
	s := m.Pix[i : i+Channels : i+Channels]
	if m.Order == BGR {
		s[0], s[1], s[2] = b, g, r
		return
	}
	s[0], s[1], s[2] = r, g, b
}

// Equal reports pixel-identical content in the same layout.
func (m *Image) Equal(o *Image) bool {
	if m == nil || o == nil {
		return m == o
	}
	return m.Width == o.Width && m.Height == o.Height && m.Order == o.Order && bytes.Equal(m.Pix, o.Pix)
}

// Convert returns a copy of the image with channels reordered to order.
func (m *Image) Convert(order ColorOrder) (*Image, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if order != BGR && order != RGB {
		return nil, fmt.Errorf("unknown target color order %s", order)
	}
	out := &Image{
		Pix:    make([]uint8, len(m.Pix)),
		Width:  m.Width,
		Height: m.Height,
		Order:  order,
	}
	if order == m.Order {
		copy(out.Pix, m.Pix)
		return out, nil
	}
	for i := 0; i < len(m.Pix); i += Channels {
		out.Pix[i], out.Pix[i+1], out.Pix[i+2] = m.Pix[i+2], m.Pix[i+1], m.Pix[i]
	}
	return out, nil
}

// Gray converts to single-channel luma using the fixed-point BT.601 weights
// OpenCV applies for COLOR_BGR2GRAY, so results are bit-for-bit reproducible.
func (m *Image) Gray() (*image.Gray, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	const (
		wR    = 4899
		wG    = 9617
		wB    = 1868
		shift = 14
	)
	gray := image.NewGray(m.Bounds())
	bi, ri := 0, 2
	if m.Order == RGB {
		bi, ri = 2, 0
	}
	for p, i := 0, 0; i < len(m.Pix); p, i = p+1, i+Channels {
		y := uint32(m.Pix[i+ri])*wR + uint32(m.Pix[i+1])*wG + uint32(m.Pix[i+bi])*wB
		gray.Pix[p] = uint8((y + 1<<(shift-1)) >> shift)
	}
	return gray, nil
}

// FromImage copies any image.Image into a packed raster of the given order.
// Alpha is dropped, not premultiplied, matching how a color decode ignores it.
func FromImage(src image.Image, order ColorOrder) *Image {
	b := src.Bounds()
	dst := NewImage(b.Dx(), b.Dy(), order)
	i := 0
	switch s := src.(type) {
	case *image.YCbCr:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				yi, ci := s.YOffset(x, y), s.COffset(x, y)
				r, g, bl := color.YCbCrToRGB(s.Y[yi], s.Cb[ci], s.Cr[ci])
				dst.setRGB(i, r, g, bl)
				i += Channels
			}
		}
	case *image.NRGBA:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			row := s.Pix[s.PixOffset(b.Min.X, y):]
			for x := 0; x < b.Dx(); x++ {
				dst.setRGB(i, row[x*4], row[x*4+1], row[x*4+2])
				i += Channels
			}
		}
	case *Image:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				r, g, bl := s.RGBAt(x, y)
				dst.setRGB(i, r, g, bl)
				i += Channels
			}
		}
	default:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				c := color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
				dst.setRGB(i, c.R, c.G, c.B)
				i += Channels
			}
		}
	}
	return dst
}
