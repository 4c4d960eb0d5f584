package session

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hemantsingh443/allchat-sub000/internal/config"
	"github.com/hemantsingh443/allchat-sub000/internal/domain/models"
)

// attachment is a decoded file sent with a message.
type attachment struct {
	imageURL *string
	file     *models.FileMeta
	// text is appended to the prompt sent upstream, not stored
	text string
}

// decodeAttachment interprets base64 fileData (optionally a data URL).
// Images become a data URL on the message, text files are inlined into the
// prompt, anything else is recorded as metadata only.
func decodeAttachment(data, mimeType, name string) (attachment, error) {
	if data == "" {
		return attachment{}, nil
	}

	payload := data
	if strings.HasPrefix(data, "data:") {
		header, rest, ok := strings.Cut(data, ",")
		if !ok || !strings.HasSuffix(header, ";base64") {
			return attachment{}, fmt.Errorf("fileData: malformed data URL")
		}
		if mimeType == "" {
			mimeType = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		}
		payload = rest
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return attachment{}, fmt.Errorf("fileData: invalid base64: %w", err)
	}
	if len(raw) > config.MaxFileBytes {
		return attachment{}, fmt.Errorf("fileData: file exceeds %d bytes", config.MaxFileBytes)
	}

	if name == "" {
		name = "attachment"
	}
	att := attachment{file: &models.FileMeta{Name: name, MimeType: mimeType}}

	switch {
	case strings.HasPrefix(mimeType, "image/"):
		url := "data:" + mimeType + ";base64," + payload
		att.imageURL = &url
	case strings.HasPrefix(mimeType, "text/"):
		if !utf8.Valid(raw) {
			return attachment{}, fmt.Errorf("fileData: text file is not valid UTF-8")
		}
		att.text = fmt.Sprintf("\n\n[Attached file: %s]\n%s", name, raw)
	}
	return att, nil
}
