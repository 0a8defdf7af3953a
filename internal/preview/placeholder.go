package preview

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/HugoSmits86/nativewebp"
)

var (
	placeholderMu    sync.Mutex
	placeholderCache = map[int][]byte{}
)

// Placeholder returns a solid black square WebP image of the given size.
// Encoded images are cached per size; each call gets its own copy.
func Placeholder(size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultResolution
	}

	placeholderMu.Lock()
	defer placeholderMu.Unlock()

	if data, ok := placeholderCache[size]; ok {
		return bytes.Clone(data), nil
	}

	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.NRGBA{A: 0xff}), image.Point{}, draw.Src)

	buf := &bytes.Buffer{}
	if err := nativewebp.Encode(buf, img, nil); err != nil {
		return nil, fmt.Errorf("failed to encode placeholder; %w", err)
	}

	data := buf.Bytes()
	placeholderCache[size] = data
	return bytes.Clone(data), nil
}
