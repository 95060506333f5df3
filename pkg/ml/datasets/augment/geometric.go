// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package augment

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/gomlx/segmentation/pkg/core/tensors/images"
)

type flipStage struct {
	probability float64
	vertical    bool
}

// VerticalFlip flips the image and the mask upside down, with probability 0.5 (see WithProbability).
func VerticalFlip(opts ...Option) Stage {
	p := newParams(params{probability: 0.5}, opts)
	return flipStage{probability: p.probability, vertical: true}
}

// HorizontalFlip mirrors the image and the mask left to right, with probability 0.5 (see WithProbability).
func HorizontalFlip(opts ...Option) Stage {
	p := newParams(params{probability: 0.5}, opts)
	return flipStage{probability: p.probability}
}

// Apply implements Stage.
func (s flipStage) Apply(rng *rand.Rand, img, mask *images.Raster) (*images.Raster, *images.Raster) {
	if (img == nil && mask == nil) || !fires(rng, s.probability) {
		return img, mask
	}
	return s.flip(img), s.flip(mask)
}

func (s flipStage) flip(r *images.Raster) *images.Raster {
	if r == nil {
		return nil
	}
	r.MustBeChannelsLast(s.String())
	out := images.NewRaster(r.Height, r.Width, r.Channels)
	rowLen := r.Width * r.Channels
	for y := 0; y < r.Height; y++ {
		if s.vertical {
			src := r.Index(r.Height-1-y, 0, 0)
			copy(out.Pix[y*rowLen:(y+1)*rowLen], r.Pix[src:src+rowLen])
			continue
		}
		for x := 0; x < r.Width; x++ {
			src := r.Index(y, r.Width-1-x, 0)
			dst := out.Index(y, x, 0)
			copy(out.Pix[dst:dst+r.Channels], r.Pix[src:src+r.Channels])
		}
	}
	return out
}

func (s flipStage) String() string {
	if s.vertical {
		return fmt.Sprintf("VerticalFlip(p=%g)", s.probability)
	}
	return fmt.Sprintf("HorizontalFlip(p=%g)", s.probability)
}

type rotate90Stage struct{ probability float64 }

// RandomRotate90 rotates, with probability 0.5 (see WithProbability), the image and the mask counter-clockwise
// by k*90 degrees, with k drawn uniformly from {0, 1, 2, 3}. Rotations by 90 and 270 degrees swap height and width.
func RandomRotate90(opts ...Option) Stage {
	p := newParams(params{probability: 0.5}, opts)
	return rotate90Stage{probability: p.probability}
}

// Apply implements Stage.
func (s rotate90Stage) Apply(rng *rand.Rand, img, mask *images.Raster) (*images.Raster, *images.Raster) {
	if (img == nil && mask == nil) || !fires(rng, s.probability) {
		return img, mask
	}
	k := rng.Intn(4)
	return rotate90(img, k), rotate90(mask, k)
}

// rotate90 rotates r counter-clockwise by k*90 degrees.
func rotate90(r *images.Raster, k int) *images.Raster {
	if r == nil || k%4 == 0 {
		return r
	}
	r.MustBeChannelsLast("RandomRotate90")
	k %= 4
	height, width := r.Height, r.Width
	if k%2 == 1 {
		height, width = width, height
	}
	out := images.NewRaster(height, width, r.Channels)
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			var ny, nx int
			switch k {
			case 1:
				ny, nx = r.Width-1-x, y
			case 2:
				ny, nx = r.Height-1-y, r.Width-1-x
			case 3:
				ny, nx = x, r.Height-1-y
			}
			src, dst := r.Index(y, x, 0), out.Index(ny, nx, 0)
			copy(out.Pix[dst:dst+r.Channels], r.Pix[src:src+r.Channels])
		}
	}
	return out
}

func (s rotate90Stage) String() string { return fmt.Sprintf("RandomRotate90(p=%g)", s.probability) }

type shiftScaleRotateStage struct {
	probability                       float64
	shiftLimit, scaleLimit, rotateDeg float64
}

// ShiftScaleRotate applies, with probability 0.5, a random affine transformation to the image and the mask:
// a rotation around the center by an angle in [-45, 45] degrees, a scaling by a factor in [0.9, 1.1] and a
// shift by up to 6.25% of the image size along each axis.
//
// The image is resampled with bilinear interpolation and the mask with nearest neighbor, so binary masks
// stay binary. Pixels mapped from outside the input are filled by reflecting it at the border, without
// repeating the edge pixel (e.g.: "dcb|abcd|cba").
//
// Use WithProbability, WithShiftLimit, WithScaleLimit and WithRotateLimit to change the defaults.
func ShiftScaleRotate(opts ...Option) Stage {
	p := newParams(params{probability: 0.5, shiftLimit: 0.0625, scaleLimit: 0.1, rotateLimit: 45}, opts)
	return shiftScaleRotateStage{
		probability: p.probability,
		shiftLimit:  p.shiftLimit,
		scaleLimit:  p.scaleLimit,
		rotateDeg:   p.rotateLimit,
	}
}

// Apply implements Stage.
func (s shiftScaleRotateStage) Apply(rng *rand.Rand, img, mask *images.Raster) (*images.Raster, *images.Raster) {
	height, width, ok := referenceSize(img, mask)
	if !ok || !fires(rng, s.probability) {
		return img, mask
	}
	angle := uniform(rng, -s.rotateDeg, s.rotateDeg)
	scale := uniform(rng, 1-s.scaleLimit, 1+s.scaleLimit)
	dx := uniform(rng, -s.shiftLimit, s.shiftLimit)
	dy := uniform(rng, -s.shiftLimit, s.shiftLimit)
	tr := newAffine(angle, scale, dx*float64(width), dy*float64(height), float64(width)/2, float64(height)/2)
	if img != nil {
		img.MustBeChannelsLast(s.String())
		img = tr.warp(img, true)
	}
	if mask != nil {
		mask.MustBeChannelsLast(s.String())
		mask = tr.warp(mask, false)
	}
	return img, mask
}

func (s shiftScaleRotateStage) String() string {
	return fmt.Sprintf("ShiftScaleRotate(shift=%g, scale=%g, rotate=%g, p=%g)",
		s.shiftLimit, s.scaleLimit, s.rotateDeg, s.probability)
}

// affine maps output pixel coordinates to input coordinates: it holds the inverse of the transformation
// that rotates by angle degrees and scales around the center, followed by the shift.
type affine struct {
	a, b, c, d float64 // Inverse of the linear part: [[a, b], [c, d]].
	tx, ty     float64 // Forward translation.
}

func newAffine(angleDeg, scale, shiftX, shiftY, centerX, centerY float64) affine {
	rad := angleDeg * math.Pi / 180
	alpha, beta := scale*math.Cos(rad), scale*math.Sin(rad)
	det := alpha*alpha + beta*beta
	return affine{
		a:  alpha / det,
		b:  -beta / det,
		c:  beta / det,
		d:  alpha / det,
		tx: (1-alpha)*centerX - beta*centerY + shiftX,
		ty: beta*centerX + (1-alpha)*centerY + shiftY,
	}
}

// source returns the input coordinates mapped to the output pixel (x, y).
func (tr affine) source(x, y float64) (sx, sy float64) {
	x, y = x-tr.tx, y-tr.ty
	return tr.a*x + tr.b*y, tr.c*x + tr.d*y
}

func (tr affine) warp(r *images.Raster, bilinear bool) *images.Raster {
	out := images.NewRaster(r.Height, r.Width, r.Channels)
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			sx, sy := tr.source(float64(x), float64(y))
			dst := out.Index(y, x, 0)
			if !bilinear {
				src := r.Index(reflect101(int(math.Floor(sy+0.5)), r.Height), reflect101(int(math.Floor(sx+0.5)), r.Width), 0)
				copy(out.Pix[dst:dst+r.Channels], r.Pix[src:src+r.Channels])
				continue
			}
			x0, y0 := math.Floor(sx), math.Floor(sy)
			fx, fy := float32(sx-x0), float32(sy-y0)
			xa, xb := reflect101(int(x0), r.Width), reflect101(int(x0)+1, r.Width)
			ya, yb := reflect101(int(y0), r.Height), reflect101(int(y0)+1, r.Height)
			for c := 0; c < r.Channels; c++ {
				top := (1-fx)*r.At(ya, xa, c) + fx*r.At(ya, xb, c)
				bottom := (1-fx)*r.At(yb, xa, c) + fx*r.At(yb, xb, c)
				out.Pix[dst+c] = (1-fy)*top + fy*bottom
			}
		}
	}
	return out
}

// reflect101 maps the index i into [0, n) by reflecting at the borders without repeating the border element.
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * (n - 1)
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i
	}
	return i
}
