package raster

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
)

// Decode decodes any registered image format (PNG, JPEG, GIF, BMP).
func Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// DecodeGrayFile reads an image file and converts it to grayscale.
func DecodeGrayFile(path string) (*image.Gray, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ToGray(img), nil
}

// Encode writes img in the format implied by the file extension of name.
// Unknown extensions are encoded as PNG.
func Encode(w io.Writer, name string, img image.Image) error {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		if err := jpeg.Encode(w, img, &jpeg.Options{Quality: 95}); err != nil {
			return fmt.Errorf("failed to encode jpeg: %w", err)
		}
	default:
		if err := png.Encode(w, img); err != nil {
			return fmt.Errorf("failed to encode png: %w", err)
		}
	}
	return nil
}

// EncodeBytes encodes img into memory, see Encode.
func EncodeBytes(name string, img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, name, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// IsImageFile reports whether the file name has an extension the decoder
// understands.
func IsImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".bmp", ".gif":
		return true
	}
	return false
}
