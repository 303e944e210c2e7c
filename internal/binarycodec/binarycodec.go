// Package binarycodec classifies extension asset paths as binary or text and
// round-trips binary payloads through data URLs, encoding in fixed-size
// chunks.
package binarycodec

import (
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strings"
)

// chunkSize bounds each write into the streaming base64 encoder used by
// BytesToDataURL, so large assets (wasm modules, bundled fonts) are encoded
// piecewise. DataURLToBlob decodes its payload in a single pass.
const chunkSize = 32 * 1024

// binaryExtensions is the fixed allow-list of extensions treated as binary.
var binaryExtensions = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".ico":  "image/x-icon",
	".svg":  "image/svg+xml",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".ttf":   "font/ttf",
	".otf":   "font/otf",
	".eot":   "application/vnd.ms-fontobject",
	".wasm": "application/wasm",
	".pdf":  "application/pdf",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mov":  "video/quicktime",
}

// IsBinary reports whether path's extension is on the binary allow-list.
func IsBinary(path string) bool {
	_, ok := binaryExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// mimeFor returns the MIME type registered for path's extension, or the
// generic octet-stream type when path is empty or unknown.
func mimeFor(path string) string {
	if path == "" {
		return "application/octet-stream"
	}
	if mime, ok := binaryExtensions[strings.ToLower(filepath.Ext(path))]; ok {
		return mime
	}
	return "application/octet-stream"
}

// BytesToDataURL base64-encodes b in ≤32KiB chunks and returns a
// data:<mime>;base64,<payload> URL. path, if given, determines the MIME type.
func BytesToDataURL(b []byte, path string) string {
	mime := mimeFor(path)

	var sb strings.Builder
	sb.Grow(len(b)*4/3 + 32)
	sb.WriteString("data:")
	sb.WriteString(mime)
	sb.WriteString(";base64,")

	// base64.NewEncoder streams a single continuous base64 sequence across
	// writes, so feeding it one ≤32KiB chunk at a time still bounds memory
	// without padding each chunk independently the way encoding and
	// concatenating per-chunk strings would.
	enc := base64.NewEncoder(base64.StdEncoding, &sb)
	for offset := 0; offset < len(b); offset += chunkSize {
		end := offset + chunkSize
		if end > len(b) {
			end = len(b)
		}
		enc.Write(b[offset:end])
	}
	enc.Close()
	return sb.String()
}

// Blob is a byte container with its declared MIME type, standing in for the
// browser Blob the original runtime returns from dataUrlToBlob.
type Blob struct {
	Bytes []byte
	Mime  string
}

// DataURLToBlob strictly parses a data:<mime>;base64,<payload> URL and
// decodes its payload. Any other shape is rejected.
func DataURLToBlob(dataURL string) (Blob, error) {
	const prefix = "data:"
	if !strings.HasPrefix(dataURL, prefix) {
		return Blob{}, fmt.Errorf("binarycodec: not a data URL")
	}
	rest := dataURL[len(prefix):]

	commaIdx := strings.IndexByte(rest, ',')
	if commaIdx < 0 {
		return Blob{}, fmt.Errorf("binarycodec: malformed data URL, missing comma")
	}
	header := rest[:commaIdx]
	payload := rest[commaIdx+1:]

	const base64Suffix = ";base64"
	if !strings.HasSuffix(header, base64Suffix) {
		return Blob{}, fmt.Errorf("binarycodec: only base64-encoded data URLs are supported")
	}
	mime := strings.TrimSuffix(header, base64Suffix)
	if mime == "" {
		mime = "application/octet-stream"
	}

	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Blob{}, fmt.Errorf("binarycodec: invalid base64 payload: %w", err)
	}

	return Blob{Bytes: decoded, Mime: mime}, nil
}
