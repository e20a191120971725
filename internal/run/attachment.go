package run

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/promptforge/internal/apperr"
	"github.com/nikhilbhutani/promptforge/internal/llm"
)

// Attachment is an image decoded from a run input and held in a temporary
// file for the lifetime of the run.
type Attachment struct {
	Variable string
	Path     string
	MimeType string
	Data     []byte
}

// Attachments releases its files exactly once, however many times Release is called.
type Attachments struct {
	items    []*Attachment
	released bool
}

func (a *Attachments) Add(att *Attachment) { a.items = append(a.items, att) }

func (a *Attachments) Len() int { return len(a.items) }

func (a *Attachments) Images() []llm.Image {
	images := make([]llm.Image, len(a.items))
	for i, att := range a.items {
		images[i] = llm.Image{MimeType: att.MimeType, Data: att.Data}
	}
	return images
}

func (a *Attachments) Release() {
	if a.released {
		return
	}
	a.released = true
	for _, att := range a.items {
		if err := os.Remove(att.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to remove attachment", "path", att.Path, "error", err)
		}
	}
}

// materialize decodes a base64 payload, optionally in data URL form, and
// writes it to a new file in dir.
func materialize(dir, variable, payload string, maxBytes int) (*Attachment, error) {
	encoded := payload
	if i := strings.Index(encoded, "base64,"); i >= 0 {
		encoded = encoded[i+len("base64,"):]
	}
	encoded = strings.TrimSpace(encoded)

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(encoded, "="))
	}
	if err != nil {
		return nil, apperr.ValidationCause(apperr.ReasonInvalidImage, err, "variable %q is not valid base64", variable)
	}
	if len(data) == 0 {
		return nil, apperr.Validation(apperr.ReasonInvalidImage, "variable %q is empty", variable)
	}
	if maxBytes > 0 && len(data) > maxBytes {
		return nil, apperr.Validation(apperr.ReasonInvalidImage, "variable %q exceeds %d bytes", variable, maxBytes)
	}

	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return nil, apperr.Validation(apperr.ReasonInvalidImage, "variable %q is not an image (%s)", variable, mime)
	}

	path := filepath.Join(dir, uuid.NewString()+extensionFor(mime))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, fmt.Errorf("write attachment: %w", err)
	}
	return &Attachment{Variable: variable, Path: path, MimeType: mime, Data: data}, nil
}

func extensionFor(mime string) string {
	switch mime {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".img"
	}
}
