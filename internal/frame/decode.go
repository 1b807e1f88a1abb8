package frame

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	// Registered container formats; the decoder sniffs the magic bytes and never
	// trusts a declared media type.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"proctor-service/internal/domain/proctor"
	"proctor-service/internal/utils"
)

// MaxPixels caps the canvas a frame may declare. Compressed formats can announce
// far more pixels than their payload size suggests.
const MaxPixels = 4096 * 4096

// NewEncodedFrame wraps a request value, splitting off a "data:image..." prefix if present.
func NewEncodedFrame(value string) proctor.EncodedFrame {
	mediaType, payload, _ := utils.SplitDataURL(value)
	return proctor.EncodedFrame{MediaType: mediaType, Payload: payload}
}

// Decode turns an encoded frame into a BGR raster. Failures are *proctor.DecodeError
// with reason "invalid encoding" (base64), "corrupt image" (container/pixels) or
// "image too large" (declared canvas over MaxPixels).
func Decode(raw proctor.EncodedFrame) (*Image, error) {
	data, err := decodeBase64(raw.Payload)
	if err != nil {
		return nil, &proctor.DecodeError{Reason: proctor.ReasonInvalidEncoding, Err: err}
	}

	// the header is checked before any pixel buffer exists
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &proctor.DecodeError{Reason: proctor.ReasonCorruptImage, Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, &proctor.DecodeError{Reason: proctor.ReasonCorruptImage}
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, &proctor.DecodeError{
			Reason: proctor.ReasonImageTooLarge,
			Err:    fmt.Errorf("%dx%d exceeds %d pixels", cfg.Width, cfg.Height, MaxPixels),
		}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &proctor.DecodeError{Reason: proctor.ReasonCorruptImage, Err: err}
	}
	if img.Bounds().Empty() {
		return nil, &proctor.DecodeError{Reason: proctor.ReasonCorruptImage}
	}

	return FromImage(img, BGR), nil
}

func decodeBase64(payload string) ([]byte, error) {
	payload = utils.StripBase64Whitespace(payload)
	data, err := base64.StdEncoding.DecodeString(payload)
	if err == nil {
		return data, nil
	}
	// canvas encoders always pad, but hand-built clients sometimes don't
	if raw, rawErr := base64.RawStdEncoding.DecodeString(payload); rawErr == nil {
		return raw, nil
	}
	return nil, err
}
