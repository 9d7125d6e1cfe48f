package conversation

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const MaxAttachmentSize = 10 << 20

var (
	ErrNotAnImage         = errors.New("attachment is not an image")
	ErrAttachmentTooLarge = errors.New("attachment too large")
)

// Attachment is an image picked by the user, held as a data URL.
type Attachment struct {
	Name    string
	MIME    string
	Size    int
	DataURL string
}

func NewAttachment(name string, data []byte) (Attachment, error) {
	if len(data) > MaxAttachmentSize {
		return Attachment{}, fmt.Errorf("%w: %d bytes", ErrAttachmentTooLarge, len(data))
	}
	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), "image/") {
		return Attachment{}, fmt.Errorf("%w: %s is %s", ErrNotAnImage, name, mime.String())
	}
	return Attachment{
		Name:    name,
		MIME:    mime.String(),
		Size:    len(data),
		DataURL: "data:" + mime.String() + ";base64," + base64.StdEncoding.EncodeToString(data),
	}, nil
}

// LoadAttachment reads an image file from disk.
func LoadAttachment(path string) (Attachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Attachment{}, fmt.Errorf("open attachment: %w", err)
	}
	if info.Size() > MaxAttachmentSize {
		return Attachment{}, fmt.Errorf("%w: %d bytes", ErrAttachmentTooLarge, info.Size())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Attachment{}, fmt.Errorf("read attachment: %w", err)
	}
	return NewAttachment(filepath.Base(path), data)
}

// decodeImage turns one base64 payload from the image endpoint into bytes
// and a data URL. A "data:...;base64," prefix is tolerated.
func decodeImage(payload string) ([]byte, string, string, error) {
	if i := strings.Index(payload, "base64,"); i >= 0 && strings.HasPrefix(payload, "data:") {
		payload = payload[i+len("base64,"):]
	}
	payload = strings.TrimSpace(payload)

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", "", fmt.Errorf("decode image: %w", err)
	}
	if len(data) == 0 {
		return nil, "", "", ErrNoImageData
	}

	mime := mimetype.Detect(data).String()
	if !strings.HasPrefix(mime, "image/") {
		mime = "image/jpeg"
	}
	return data, mime, "data:" + mime + ";base64," + payload, nil
}
