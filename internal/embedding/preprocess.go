package embedding

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"golang.org/x/image/draw"
)

// ImageConfig describes the pixel layout a vision encoder expects.
type ImageConfig struct {
	Size int
	Mean [3]float32
	Std  [3]float32
}

// SigLIPImageConfig returns the SigLIP preprocessing for a square input of size pixels:
// rescale to [0,1], then normalize each channel with mean 0.5 and std 0.5.
func SigLIPImageConfig(size int) ImageConfig {
	if size <= 0 {
		size = 384
	}
	return ImageConfig{
		Size: size,
		Mean: [3]float32{0.5, 0.5, 0.5},
		Std:  [3]float32{0.5, 0.5, 0.5},
	}
}

// BLIPImageConfig returns the CLIP-style normalization used by BLIP image-text matching.
func BLIPImageConfig(size int) ImageConfig {
	if size <= 0 {
		size = 384
	}
	return ImageConfig{
		Size: size,
		Mean: [3]float32{0.48145466, 0.4578275, 0.40821073},
		Std:  [3]float32{0.26862954, 0.26130258, 0.27577711},
	}
}

// LoadRGB decodes a JPEG or PNG file and converts it to an opaque RGBA image.
func LoadRGB(path string) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	b := src.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("image %s has no pixels", path)
	}
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.Black, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	return dst, nil
}

// Preprocess resizes img to cfg.Size x cfg.Size with bilinear scaling and returns the
// normalized pixels in NCHW order (batch of one).
func Preprocess(img image.Image, cfg ImageConfig) []float32 {
	size := cfg.Size
	resized := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(resized, resized.Bounds(), img, img.Bounds(), draw.Src, nil)

	plane := size * size
	out := make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			off := resized.PixOffset(x, y)
			px := resized.Pix[off : off+3]
			i := y*size + x
			for c := 0; c < 3; c++ {
				v := float32(px[c]) / 255
				out[c*plane+i] = (v - cfg.Mean[c]) / cfg.Std[c]
			}
		}
	}
	return out
}

// LoadPixels is LoadRGB followed by Preprocess.
func LoadPixels(path string, cfg ImageConfig) ([]float32, error) {
	img, err := LoadRGB(path)
	if err != nil {
		return nil, err
	}
	return Preprocess(img, cfg), nil
}
