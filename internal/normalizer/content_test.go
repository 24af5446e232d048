package normalizer

import (
	"testing"

	"github.com/omnirelay/omnirelay/internal/protocol"
)

func TestDetectType(t *testing.T) {
	t.Parallel()

	cases := []struct {
		primary, secondary string
		want               protocol.MessageType
	}{
		{"chat", "", protocol.TypeText},
		{"conversation", "", protocol.TypeText},
		{"ptt", "", protocol.TypeAudio},
		{"", "imageMessage", protocol.TypeImage},
		{"weird", "videoMessage", protocol.TypeVideo},
		{"", "", protocol.TypeText},
		{"nonsense", "alsononsense", protocol.TypeText},
		{"stickerMessage", "", protocol.TypeSticker},
		{"vcard", "", protocol.TypeContact},
		{"location", "", protocol.TypeLocation},
	}
	for _, tc := range cases {
		if got := detectType(tc.primary, tc.secondary); got != tc.want {
			t.Fatalf("detectType(%q, %q) = %s, want %s", tc.primary, tc.secondary, got, tc.want)
		}
	}
}

func TestMediaContent_PrefersURLOverInlineData(t *testing.T) {
	t.Parallel()

	content := mediaContent("https://cdn.example/a.ogg", "aGVsbG8=", "audio/ogg; codecs=opus", "", "caption")
	if content.URL != "https://cdn.example/a.ogg" {
		t.Fatalf("url = %q", content.URL)
	}
	if content.Data != nil {
		t.Fatal("inline data should be dropped when a URL exists")
	}
	if content.MimeType != "audio/ogg" {
		t.Fatalf("mime = %q", content.MimeType)
	}
}

func TestMediaContent_DecodesInlineData(t *testing.T) {
	t.Parallel()

	content := mediaContent("", "aGVsbG8=", "", "", "")
	if string(content.Data) != "hello" {
		t.Fatalf("data = %q", content.Data)
	}
}

func TestMediaContent_SynthesizesMimeFromFilename(t *testing.T) {
	t.Parallel()

	content := mediaContent("https://cdn.example/report.pdf", "", "", "report.pdf", "")
	if content.MimeType != "application/pdf" {
		t.Fatalf("mime = %q", content.MimeType)
	}
}
