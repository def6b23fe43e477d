package embeddings

import (
	"context"
	"image"
)

// pixelGrid is the downsampling resolution of the built-in embedder.
const pixelGrid = 8

// PixelEmbedder is a deterministic, dependency-free embedder: it
// downsamples the image to a fixed grid and emits the mean RGB value of
// each cell. It is no substitute for a learned model, but it is stable,
// fast, and good enough for ordering visually distinct images — and for
// running the full pipeline offline.
type PixelEmbedder struct{}

// NewPixelEmbedder creates the built-in pixel embedder.
func NewPixelEmbedder() *PixelEmbedder {
	return &PixelEmbedder{}
}

// Embed produces the grid-of-mean-colors vector. An all-black image
// embeds to the zero vector, which the similarity engine rejects at
// comparison time.
func (p *PixelEmbedder) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return make([]float32, p.Dimensions()), nil
	}

	vec := make([]float32, p.Dimensions())
	for cy := 0; cy < pixelGrid; cy++ {
		for cx := 0; cx < pixelGrid; cx++ {
			x0 := bounds.Min.X + cx*w/pixelGrid
			x1 := bounds.Min.X + (cx+1)*w/pixelGrid
			y0 := bounds.Min.Y + cy*h/pixelGrid
			y1 := bounds.Min.Y + (cy+1)*h/pixelGrid
			if x1 <= x0 {
				x1 = x0 + 1
			}
			if y1 <= y0 {
				y1 = y0 + 1
			}

			var sumR, sumG, sumB, n uint64
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					r, g, b, _ := img.At(x, y).RGBA()
					sumR += uint64(r)
					sumG += uint64(g)
					sumB += uint64(b)
					n++
				}
			}

			base := (cy*pixelGrid + cx) * 3
			vec[base] = float32(sumR) / float32(n) / 0xffff
			vec[base+1] = float32(sumG) / float32(n) / 0xffff
			vec[base+2] = float32(sumB) / float32(n) / 0xffff
		}
	}
	return vec, nil
}

// Dimensions returns the embedding dimension size.
func (p *PixelEmbedder) Dimensions() int {
	return pixelGrid * pixelGrid * 3
}

// Name returns the embedder name.
func (p *PixelEmbedder) Name() string {
	return "pixel"
}
