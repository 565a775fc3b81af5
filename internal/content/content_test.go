package content

import (
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		payload Payload
		want    Content
	}{
		{"plain text", Payload{Type: "text", Text: "  hello  "}, Content{Kind: KindText, Text: "hello"}},
		{"untyped text", Payload{Text: "hello"}, Content{Kind: KindText, Text: "hello"}},
		{"sms alias", Payload{Type: "SMS", Text: "hi"}, Content{Kind: KindText, Text: "hi"}},
		{"blank text", Payload{Type: "text", Text: "   "}, Content{Kind: KindUnsupported}},
		{"image with caption", Payload{Type: "image", Caption: "free money"}, Content{Kind: KindImage, Caption: "free money"}},
		{"image by mime", Payload{MimeType: "image/jpeg", MediaURL: "https://x/y.jpg"}, Content{Kind: KindImage}},
		{"voice note", Payload{Type: "ptt"}, Content{Kind: KindAudio}},
		{"audio by mime", Payload{MimeType: "audio/ogg", MediaURL: "https://x/y.ogg"}, Content{Kind: KindAudio}},
		{"video", Payload{Type: "video", Caption: "watch"}, Content{Kind: KindUnsupported}},
		{"sticker", Payload{Type: "sticker", MimeType: "image/png"}, Content{Kind: KindUnsupported}},
		{"webp sticker by mime", Payload{MimeType: "image/webp", MediaURL: "https://x/s.webp"}, Content{Kind: KindUnsupported}},
		{"unknown type", Payload{Type: "poll"}, Content{Kind: KindUnsupported}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.payload)
			if got != tt.want {
				t.Errorf("Normalize(%+v) = %+v, want %+v", tt.payload, got, tt.want)
			}
		})
	}
}

func TestAnalyzableText(t *testing.T) {
	tests := []struct {
		name string
		c    Content
		want string
	}{
		{"text", Content{Kind: KindText, Text: "body"}, "body"},
		{"image caption", Content{Kind: KindImage, Caption: "cap"}, "cap"},
		{"image without caption", Content{Kind: KindImage}, ""},
		{"audio transcript", Content{Kind: KindAudio, Text: "transcript"}, "transcript"},
		{"unsupported", Content{Kind: KindUnsupported, Text: "ignored"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.AnalyzableText(); got != tt.want {
				t.Errorf("AnalyzableText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	if err := Text("ok").Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := (Content{Kind: "video"}).Validate(); err == nil {
		t.Error("expected error for unknown kind")
	}
	if err := Text(strings.Repeat("a", MaxTextBytes+1)).Validate(); err == nil {
		t.Error("expected error for oversized text")
	}
	if err := Text(string([]byte{0xff, 0xfe})).Validate(); err == nil {
		t.Error("expected error for invalid UTF-8")
	}
}

func TestSupported(t *testing.T) {
	if !Text("x").Supported() {
		t.Error("text content should be supported")
	}
	if (Content{Kind: KindUnsupported}).Supported() {
		t.Error("unsupported content should not be supported")
	}
	if (Content{}).Supported() {
		t.Error("zero content should not be supported")
	}
}
