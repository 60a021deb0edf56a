// Package pixel encodes a directive into the dimensions of a transparent
// GIF. Embeds that cannot run the beacon script (image-only snippets, email
// templates) load the pixel and read naturalWidth/naturalHeight.
//
// Width carries the verdict: 1 not a clone, 2 clone with no action, 3
// redirect, 4 replace_links, 5 replace_images. Height is 1 for width 1 and 2,
// otherwise TargetHash(target)+1.
package pixel

import (
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/gif"
	"io"

	"github.com/klirineu/offertrack-web/internal/domain"
)

const ContentType = "image/gif"

var codes = map[domain.ActionType]int{
	domain.ActionNone:          2,
	domain.ActionRedirect:      3,
	domain.ActionReplaceLinks:  4,
	domain.ActionReplaceImages: 5,
}

// TargetHash folds target into 12 bits.
func TargetHash(target string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(target))
	return int(h.Sum32() & 0xfff)
}

// Dimensions returns the image size for d.
func Dimensions(d domain.Directive) (width, height int) {
	if !d.IsClone {
		return 1, 1
	}
	if d.Action == nil {
		return codes[domain.ActionNone], 1
	}
	code, ok := codes[d.Action.Type]
	if !ok || d.Action.Type == domain.ActionNone {
		return codes[domain.ActionNone], 1
	}
	return code, TargetHash(d.Action.Data) + 1
}

// Verdict is what a pixel's dimensions say.
type Verdict struct {
	IsClone    bool
	Action     domain.ActionType
	TargetHash int
}

// Read reverses Dimensions. Unknown widths read as not a clone.
func Read(width, height int) Verdict {
	for t, code := range codes {
		if code != width {
			continue
		}
		v := Verdict{IsClone: true, Action: t}
		if t != domain.ActionNone && height > 0 {
			v.TargetHash = height - 1
		}
		return v
	}
	return Verdict{Action: domain.ActionNone}
}

// Encode writes d as a fully transparent GIF.
func Encode(w io.Writer, d domain.Directive) error {
	width, height := Dimensions(d)
	img := image.NewPaletted(image.Rect(0, 0, width, height), color.Palette{color.Transparent})
	if err := gif.Encode(w, img, nil); err != nil {
		return fmt.Errorf("encode pixel: %w", err)
	}
	return nil
}
