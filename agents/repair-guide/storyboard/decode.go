// Package storyboard decodes the MHTML storyboard archives produced by the
// downloader: an HTML page whose figure captions carry the time span of each
// sprite sheet, followed by the sprite sheets themselves.
package storyboard

import (
	"errors"
	"fmt"
	"os"

	"repair-stack/internal/models"
)

var (
	ErrMissingBoundary       = errors.New("storyboard: multipart boundary not found")
	ErrBoundaryMismatch      = errors.New("storyboard: first body line does not match boundary")
	ErrMalformedArchive      = errors.New("storyboard: malformed archive")
	ErrMalformedLabel        = errors.New("storyboard: unreadable caption interval")
	ErrInsufficientIntervals = errors.New("storyboard: fewer caption intervals than sprite images")
	ErrInvalidSprite         = errors.New("storyboard: invalid sprite image")
)

// Decode turns an archive into timed frames: sprites in archive order, cells
// of each sprite in grid order. w and h are the frame size declared by the
// catalog for the storyboard format.
func Decode(data []byte, w, h int) ([]models.StoryboardFrame, error) {
	parts, err := ReadArchive(data)
	if err != nil {
		return nil, err
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: frame size %dx%d", ErrInvalidSprite, w, h)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: no body parts", ErrMalformedArchive)
	}

	intervals, err := ParseIntervals(parts[0].Body)
	if err != nil {
		return nil, err
	}
	sprites := parts[1:]
	if len(intervals) < len(sprites) {
		return nil, fmt.Errorf("%w: %d intervals for %d sprites", ErrInsufficientIntervals, len(intervals), len(sprites))
	}

	var frames []models.StoryboardFrame
	for i, sprite := range sprites {
		cropped, err := CropSprite(sprite.Body, w, h, intervals[i], i)
		if err != nil {
			return nil, err
		}
		frames = append(frames, cropped...)
	}
	return frames, nil
}

func DecodeFile(path string, w, h int) ([]models.StoryboardFrame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: archive not found", ErrMalformedArchive)
		}
		return nil, fmt.Errorf("read storyboard archive: %w", err)
	}
	return Decode(data, w, h)
}

// IsFormatError reports whether err comes from malformed archive content, as
// opposed to an I/O failure.
func IsFormatError(err error) bool {
	for _, target := range []error{
		ErrMissingBoundary, ErrBoundaryMismatch, ErrMalformedArchive,
		ErrMalformedLabel, ErrInsufficientIntervals, ErrInvalidSprite,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
