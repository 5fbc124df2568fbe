// internal/img/thumb.go
package img

import (
	"bytes"
	"math"

	"github.com/disintegration/imaging"
)

// jpegQuality is the fixed re-encode quality for derivatives.
const jpegQuality = 80

// DefaultWidth and DefaultHeight are substituted when a source image
// cannot be decoded at all.
const (
	DefaultWidth  = 800
	DefaultHeight = 600
)

// Thumbnail is a derived, bounded-size rendition of an original image.
type Thumbnail struct {
	Data     []byte
	Width    int
	Height   int
	MimeType string

	// Fallback is set when the source could not be decoded and Data is a
	// verbatim copy of the original bytes instead of a re-encoded rendition.
	Fallback bool
}

// Derive decodes src, fits it within boxW x boxH preserving aspect ratio
// (no upscaling), and re-encodes the result as JPEG.
//
// Derive never fails: if the source cannot be decoded or re-encoded, the
// returned Thumbnail carries the original bytes unchanged with Fallback set.
// Ingestion must not be aborted just because thumbnailing did not work out.
func Derive(src []byte, boxW, boxH int, mimeType string) Thumbnail {
	decoded, err := imaging.Decode(bytes.NewReader(src), imaging.AutoOrientation(true))
	if err != nil {
		return fallbackThumbnail(src, mimeType)
	}

	thumb := decoded
	b := decoded.Bounds()
	if b.Dx() > boxW || b.Dy() > boxH {
		w, h := fitDimensions(b.Dx(), b.Dy(), boxW, boxH)
		thumb = imaging.Resize(decoded, w, h, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return fallbackThumbnail(src, mimeType)
	}

	tb := thumb.Bounds()
	return Thumbnail{
		Data:     buf.Bytes(),
		Width:    tb.Dx(),
		Height:   tb.Dy(),
		MimeType: "image/jpeg",
	}
}

// fitDimensions scales (w, h) to fit within (boxW, boxH) keeping the aspect
// ratio. The constrained axis lands exactly on the bound, the other rounds.
func fitDimensions(w, h, boxW, boxH int) (int, int) {
	scaleW := float64(boxW) / float64(w)
	scaleH := float64(boxH) / float64(h)
	if scaleW < scaleH {
		return boxW, int(math.Round(float64(h) * scaleW))
	}
	return int(math.Round(float64(w)*scaleH)), boxH
}

func fallbackThumbnail(src []byte, mimeType string) Thumbnail {
	data := make([]byte, len(src))
	copy(data, src)
	return Thumbnail{
		Data:     data,
		Width:    DefaultWidth,
		Height:   DefaultHeight,
		MimeType: mimeType,
		Fallback: true,
	}
}
