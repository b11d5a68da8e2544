package handlers

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// imageExtension checks that data decodes as a supported image and returns
// the file extension for its format.
func imageExtension(data []byte) (string, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("unsupported image: %w", err)
	}
	switch format {
	case "jpeg":
		return ".jpg", nil
	default:
		return "." + format, nil
	}
}
