package images

import (
	"image"
	"image/color"
	"slices"

	"github.com/disintegration/imaging"
	"github.com/gomlx/exceptions"
)

// Raster is a dense float32 image buffer with an arbitrary number of channels.
//
// Images are read as rasters with values in the range [0, 255], and are transformed (normalized,
// augmented) in place or into new rasters. Masks are rasters with one channel.
//
// The Layout defaults to ChannelsLast (`[height, width, channels]`); ChannelsFirst (`[channels, height, width]`)
// is only used as the final step before converting to tensors.
type Raster struct {
	Height, Width, Channels int
	Layout                  ChannelsAxisConfig
	Pix                     []float32
}

// NewRaster creates a zero-filled raster in the ChannelsLast layout.
func NewRaster(height, width, channels int) *Raster {
	if height < 0 || width < 0 || channels <= 0 {
		exceptions.Panicf("images.NewRaster(height=%d, width=%d, channels=%d): invalid dimensions",
			height, width, channels)
	}
	return &Raster{
		Height:   height,
		Width:    width,
		Channels: channels,
		Layout:   ChannelsLast,
		Pix:      make([]float32, height*width*channels),
	}
}

// Clone returns a deep copy of the raster.
func (r *Raster) Clone() *Raster {
	c := *r
	c.Pix = slices.Clone(r.Pix)
	return &c
}

// Bounds of the raster, with origin at (0, 0).
func (r *Raster) Bounds() image.Rectangle {
	return image.Rect(0, 0, r.Width, r.Height)
}

// Index returns the position in Pix of the given pixel and channel, taking the layout into account.
func (r *Raster) Index(y, x, channel int) int {
	if r.Layout == ChannelsFirst {
		return (channel*r.Height+y)*r.Width + x
	}
	return (y*r.Width+x)*r.Channels + channel
}

// At returns the value at the given pixel and channel.
func (r *Raster) At(y, x, channel int) float32 {
	return r.Pix[r.Index(y, x, channel)]
}

// Set the value at the given pixel and channel.
func (r *Raster) Set(y, x, channel int, value float32) {
	r.Pix[r.Index(y, x, channel)] = value
}

// MustBeChannelsLast panics if the raster is not in the ChannelsLast layout. Spatial transformations
// only work on ChannelsLast rasters.
func (r *Raster) MustBeChannelsLast(op string) {
	if r.Layout != ChannelsLast {
		exceptions.Panicf("%s requires a ChannelsLast raster, got %s -- was it already converted to tensors?",
			op, r.Layout)
	}
}

// SubRaster returns a copy of the region rect of the raster. Pixels of rect that fall outside the raster
// are filled with zeros, so the returned raster always has the size of rect.
func (r *Raster) SubRaster(rect image.Rectangle) *Raster {
	r.MustBeChannelsLast("Raster.SubRaster")
	sub := NewRaster(rect.Dy(), rect.Dx(), r.Channels)
	inside := rect.Intersect(r.Bounds())
	if inside.Empty() {
		return sub
	}
	rowLen := inside.Dx() * r.Channels
	for y := inside.Min.Y; y < inside.Max.Y; y++ {
		src := r.Index(y, inside.Min.X, 0)
		dst := sub.Index(y-rect.Min.Y, inside.Min.X-rect.Min.X, 0)
		copy(sub.Pix[dst:dst+rowLen], r.Pix[src:src+rowLen])
	}
	return sub
}

// ToChannelsFirst returns a copy of the raster transposed to the ChannelsFirst layout.
// If it is already ChannelsFirst, it returns a clone.
func (r *Raster) ToChannelsFirst() *Raster {
	if r.Layout == ChannelsFirst {
		return r.Clone()
	}
	out := *r
	out.Layout = ChannelsFirst
	out.Pix = make([]float32, len(r.Pix))
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			for c := 0; c < r.Channels; c++ {
				out.Pix[out.Index(y, x, c)] = r.Pix[r.Index(y, x, c)]
			}
		}
	}
	return &out
}

// FromImage converts img to a ChannelsLast raster with values in [0, 255].
//
// With channels == 3 it takes the RGB channels (alpha is dropped). With channels == 1 it takes the
// luminance (0.299*R + 0.587*G + 0.114*B), the same conversion used when reading grayscale images.
func FromImage(img image.Image, channels int) *Raster {
	var nrgba *image.NRGBA
	switch channels {
	case 1:
		nrgba = imaging.Grayscale(img)
	case 3:
		nrgba = imaging.Clone(img)
	default:
		exceptions.Panicf("images.FromImage(channels=%d): only 1 or 3 channels are supported", channels)
	}
	size := nrgba.Bounds().Size()
	r := NewRaster(size.Y, size.X, channels)
	pos := 0
	for y := 0; y < size.Y; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+size.X*4]
		for x := 0; x < size.X; x++ {
			for c := 0; c < channels; c++ {
				r.Pix[pos] = float32(row[x*4+c])
				pos++
			}
		}
	}
	return r
}

// ToImage converts the raster back to an image, clamping values to [0, 255].
// Rasters with 1 channel become *image.Gray, with 3 channels *image.NRGBA.
func (r *Raster) ToImage() image.Image {
	toUint8 := func(v float32) uint8 {
		if v <= 0 {
			return 0
		}
		if v >= 255 {
			return 255
		}
		return uint8(v + 0.5)
	}
	switch r.Channels {
	case 1:
		img := image.NewGray(r.Bounds())
		for y := 0; y < r.Height; y++ {
			for x := 0; x < r.Width; x++ {
				img.SetGray(x, y, color.Gray{Y: toUint8(r.At(y, x, 0))})
			}
		}
		return img
	case 3:
		img := image.NewNRGBA(r.Bounds())
		for y := 0; y < r.Height; y++ {
			for x := 0; x < r.Width; x++ {
				img.SetNRGBA(x, y, color.NRGBA{
					R: toUint8(r.At(y, x, 0)),
					G: toUint8(r.At(y, x, 1)),
					B: toUint8(r.At(y, x, 2)),
					A: 255,
				})
			}
		}
		return img
	}
	exceptions.Panicf("Raster.ToImage: only 1 or 3 channels are supported, got %d", r.Channels)
	return nil
}
