package scanning

import (
	"bytes"
	"encoding/base64"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// MimeTypeFor infers the image MIME type from the filename extension.
// Anything that isn't a JPEG is sent as PNG.
func MimeTypeFor(filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	switch ext {
	case "jpg", "jpeg":
		return "image/jpeg"
	default:
		return "image/png"
	}
}

// DataURL embeds image bytes in a base64 data URI.
func DataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// formatOf returns the short format name genai expects ("png", "jpeg").
func formatOf(mimeType string) string {
	return strings.TrimPrefix(mimeType, "image/")
}

// pdfToImage renders the first page of a PDF as PNG
func pdfToImage(pdfData []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, errors.Wrap(err, "opening PDF")
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, errors.Wrap(err, "rendering PDF page")
	}
	return encodePNG(img)
}

// heicToImage decodes a HEIC/HEIF photo (common on iPhones) as PNG
func heicToImage(data []byte) ([]byte, error) {
	img, err := heic.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "decoding HEIC/HEIF image")
	}
	return encodePNG(img)
}

// downscale shrinks the image to fit within maxDim x maxDim. It reports
// false when the image already fits and is left untouched.
func downscale(data []byte, maxDim int) ([]byte, bool, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, false, errors.Wrap(err, "reading image dimensions")
	}
	if cfg.Width <= maxDim && cfg.Height <= maxDim {
		return data, false, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, false, errors.Wrap(err, "decoding image")
	}
	resized := imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)

	out, err := encodePNG(resized)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, errors.Wrap(err, "encoding PNG")
	}
	return buf.Bytes(), nil
}

// isPDF checks the extension and the %PDF magic bytes.
func isPDF(filename string, data []byte) bool {
	return strings.EqualFold(filepath.Ext(filename), ".pdf") || bytes.HasPrefix(data, []byte("%PDF-"))
}

// isHEICFormat checks if the image data is in HEIC/HEIF format.
// HEIC files carry an ftyp box at offset 4 with a heic-family brand.
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

// prepareImage returns the bytes to send to the model and their MIME type.
// PDFs (first page only) and HEIC photos are converted to PNG, and when
// maxDim is set oversized images are downscaled. Everything else is sent
// as is with the MIME type inferred from the filename.
func prepareImage(filename string, data []byte, maxDim int) ([]byte, string, error) {
	mimeType := MimeTypeFor(filename)

	switch {
	case isPDF(filename, data):
		out, err := pdfToImage(data)
		if err != nil {
			return nil, "", &ImageError{Filename: filename, Err: errors.Wrap(err, "converting PDF to image")}
		}
		data, mimeType = out, "image/png"
	case isHEICFormat(data):
		out, err := heicToImage(data)
		if err != nil {
			return nil, "", &ImageError{Filename: filename, Err: errors.Wrap(err, "converting HEIC to image")}
		}
		data, mimeType = out, "image/png"
	}

	if maxDim > 0 {
		out, resized, err := downscale(data, maxDim)
		if err != nil {
			return nil, "", &ImageError{Filename: filename, Err: errors.Wrap(err, "resizing image")}
		}
		if resized {
			data, mimeType = out, "image/png"
		}
	}

	return data, mimeType, nil
}
