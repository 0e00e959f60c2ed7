package storyboard

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"time"

	"repair-stack/internal/models"

	_ "golang.org/x/image/webp"
)

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// GridSize is the number of whole w×h cells in a canvas.
func GridSize(canvasW, canvasH, w, h int) int {
	if w <= 0 || h <= 0 {
		return 0
	}
	return (canvasW / w) * (canvasH / h)
}

// CropSprite cuts a sprite sheet into w×h frames, left to right then top to
// bottom. Cell i of n is stamped start + i*(end-start)/n within iv.
func CropSprite(data []byte, w, h int, iv Interval, sprite int) ([]models.StoryboardFrame, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: sprite %d: %v", ErrInvalidSprite, sprite, err)
	}
	bounds := img.Bounds()
	tw, th := bounds.Dx(), bounds.Dy()
	cells := GridSize(tw, th, w, h)
	if cells == 0 {
		return nil, nil
	}

	src, ok := img.(subImager)
	if !ok {
		rgba := image.NewRGBA(image.Rect(0, 0, tw, th))
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
		src, bounds = rgba, rgba.Bounds()
	}

	span := int64(iv.End - iv.Start)
	frames := make([]models.StoryboardFrame, 0, cells)
	i := 0
	for y := 0; y+h <= th; y += h {
		for x := 0; x+w <= tw; x += w {
			cell := src.SubImage(image.Rect(bounds.Min.X+x, bounds.Min.Y+y, bounds.Min.X+x+w, bounds.Min.Y+y+h))
			var buf bytes.Buffer
			if err := png.Encode(&buf, cell); err != nil {
				return nil, fmt.Errorf("encode frame %d of sprite %d: %w", i, sprite, err)
			}
			frames = append(frames, models.StoryboardFrame{
				Start:  iv.Start + time.Duration(span*int64(i)/int64(cells)),
				End:    iv.Start + time.Duration(span*int64(i+1)/int64(cells)),
				Sprite: sprite,
				Index:  i,
				Image:  buf.Bytes(),
			})
			i++
		}
	}
	return frames, nil
}
