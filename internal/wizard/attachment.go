package wizard

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/citizenintel/portal/internal/model"
	"github.com/citizenintel/portal/internal/textfmt"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

const (
	// MaxFileSize is the largest single attachment accepted.
	MaxFileSize int64 = 20 << 20
	// MaxDraftSize caps the total size of all attachments of one draft.
	MaxDraftSize int64 = 100 << 20
)

var (
	ErrFileTooLarge  = errors.New("attachment exceeds maximum size of 20MB")
	ErrDraftTooLarge = errors.New("attachments exceed the 100MB total allowed per report")
	ErrFilenameEmpty = errors.New("filename must not be empty")
	ErrNoSuchFile    = errors.New("no attachment at that position")
)

// Attachment is one evidence file held in memory until submission.
type Attachment struct {
	ID          string
	Name        string
	ContentType string
	Kind        model.MediaType
	Size        int64
	SHA256      string

	data []byte
}

// HumanSize renders the attachment size for display.
func (a Attachment) HumanSize() string {
	return textfmt.Size(a.Size)
}

// Reader returns a fresh reader over the attachment content.
func (a Attachment) Reader() io.Reader {
	return bytes.NewReader(a.data)
}

// ReadAttachment buffers r as an attachment called name. The content type is
// sniffed from the bytes; the client-declared type is ignored. Only the base
// name of name is kept.
func ReadAttachment(name string, r io.Reader) (Attachment, error) {
	name, err := sanitizeFilename(name)
	if err != nil {
		return Attachment{}, err
	}

	var buf bytes.Buffer
	hasher := sha256.New()
	written, err := io.Copy(&buf, io.TeeReader(io.LimitReader(r, MaxFileSize+1), hasher))
	if err != nil {
		return Attachment{}, fmt.Errorf("reading attachment %s: %w", name, err)
	}
	if written > MaxFileSize {
		return Attachment{}, fmt.Errorf("%w: %s", ErrFileTooLarge, name)
	}

	data := buf.Bytes()
	mt := mimetype.Detect(data)
	if err := checkType(mt); err != nil {
		return Attachment{}, fmt.Errorf("%s: %w", name, err)
	}
	return Attachment{
		ID:          uuid.NewString(),
		Name:        name,
		ContentType: mt.String(),
		Kind:        kindOf(mt.String()),
		Size:        written,
		SHA256:      hex.EncodeToString(hasher.Sum(nil)),
		data:        data,
	}, nil
}

func kindOf(contentType string) model.MediaType {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return model.MediaImage
	case strings.HasPrefix(contentType, "video/"):
		return model.MediaVideo
	case strings.HasPrefix(contentType, "audio/"):
		return model.MediaAudio
	}
	return model.MediaDocument
}
