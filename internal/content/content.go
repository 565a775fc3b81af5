// Package content defines the canonical message shape that every detector
// consumes, and the normalizer that maps channel payloads onto it.
package content

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Kind discriminates the media type of a submitted message.
type Kind string

const (
	KindText        Kind = "text"
	KindImage       Kind = "image"
	KindAudio       Kind = "audio"
	KindUnsupported Kind = "unsupported"
)

const (
	MaxTextBytes = 8192 // 8KB, a long forwarded WhatsApp message
	MaxTextChars = 4000
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindText, KindImage, KindAudio, KindUnsupported:
		return true
	}
	return false
}

// Content is the immutable message value handed to detectors.
type Content struct {
	Kind    Kind   `json:"kind"`
	Text    string `json:"text,omitempty"`
	Caption string `json:"caption,omitempty"`
}

// Text builds a text Content.
func Text(text string) Content {
	return Content{Kind: KindText, Text: text}
}

// AnalyzableText returns the portion of the content that rule detectors read:
// the body for text and audio transcripts, the caption for images.
func (c Content) AnalyzableText() string {
	switch c.Kind {
	case KindText, KindAudio:
		if c.Caption != "" && c.Text == "" {
			return c.Caption
		}
		return c.Text
	case KindImage:
		if c.Caption == "" {
			return c.Text
		}
		return c.Caption
	}
	return ""
}

// Supported reports whether detection should run on c.
func (c Content) Supported() bool {
	return c.Kind.Valid() && c.Kind != KindUnsupported
}

// Validate checks size and encoding limits on the textual parts of c.
func (c Content) Validate() error {
	if !c.Kind.Valid() {
		return fmt.Errorf("content: unknown kind %q", c.Kind)
	}
	for _, s := range []string{c.Text, c.Caption} {
		if len(s) > MaxTextBytes {
			return fmt.Errorf("content: text exceeds %d byte limit", MaxTextBytes)
		}
		if utf8.RuneCountInString(s) > MaxTextChars {
			return fmt.Errorf("content: text exceeds %d character limit", MaxTextChars)
		}
		if !utf8.ValidString(s) {
			return fmt.Errorf("content: text contains invalid UTF-8")
		}
	}
	return nil
}

// Payload is the loosely typed message descriptor delivered by a channel
// adapter (WhatsApp webhook, SMS gateway, web chat).
type Payload struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Caption  string `json:"caption,omitempty"`
	MediaURL string `json:"media_url,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// Normalize maps a channel payload onto Content. Message types the pipeline
// cannot analyze (video, sticker, location, blank text) become
// KindUnsupported; Normalize never fails.
func Normalize(p Payload) Content {
	text := strings.TrimSpace(p.Text)
	caption := strings.TrimSpace(p.Caption)

	switch kindOf(p) {
	case KindText:
		if text == "" {
			return Content{Kind: KindUnsupported}
		}
		return Content{Kind: KindText, Text: text}
	case KindImage:
		return Content{Kind: KindImage, Text: text, Caption: caption}
	case KindAudio:
		// Text carries a transcript when the adapter produced one.
		return Content{Kind: KindAudio, Text: text, Caption: caption}
	}
	return Content{Kind: KindUnsupported}
}

func kindOf(p Payload) Kind {
	switch strings.ToLower(strings.TrimSpace(p.Type)) {
	case "text", "chat", "sms", "conversation":
		return KindText
	case "image", "photo":
		return KindImage
	case "audio", "voice", "ptt":
		return KindAudio
	case "video", "sticker", "location", "document", "contacts":
		return KindUnsupported
	case "":
		if p.MimeType == "" && p.MediaURL == "" {
			return KindText
		}
	}

	mime := strings.ToLower(p.MimeType)
	switch {
	case strings.HasPrefix(mime, "image/") && mime != "image/webp":
		return KindImage
	case strings.HasPrefix(mime, "audio/"):
		return KindAudio
	}
	return KindUnsupported
}
