package protocol

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"

	// Frame decoders accepted in the img field
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// EncodeImage base64-encodes raw frame bytes for the img field
func EncodeImage(frame []byte) string {
	return base64.StdEncoding.EncodeToString(frame)
}

// DecodeImage decodes the img field and checks that the payload is a readable
// JPEG, PNG or WebP image. The raw bytes are returned unchanged.
func DecodeImage(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("base64: %w", err)
	}
	if _, _, err := ProbeImage(data); err != nil {
		return nil, err
	}
	return data, nil
}

// ProbeImage returns the dimensions and format of an encoded frame without
// decoding the pixel data.
func ProbeImage(frame []byte) (image.Config, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(frame))
	if err != nil {
		return image.Config{}, "", fmt.Errorf("image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return image.Config{}, "", fmt.Errorf("image header: empty %dx%d frame", cfg.Width, cfg.Height)
	}
	return cfg, format, nil
}
