package feed

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDigestFileMatchesContent(t *testing.T) {
	p := filepath.Join(t.TempDir(), "raw.csv")
	content := []byte("discussionid,score\n1,0.5")
	if err := os.WriteFile(p, content, 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := DigestFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if got != DigestContent(content) {
		t.Fatalf("file digest %q != content digest %q", got, DigestContent(content))
	}
	if len(got) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(got))
	}
}

func TestShortDigest(t *testing.T) {
	full := DigestContent([]byte("x"))
	if s := ShortDigest(full, 12); s != full[:12] {
		t.Fatalf("unexpected short digest %q", s)
	}
	if s := ShortDigest(full, 0); s != full {
		t.Fatalf("expected full digest for hexLen=0, got %q", s)
	}
}
