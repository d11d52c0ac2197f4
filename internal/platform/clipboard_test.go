package platform

import (
	"bytes"
	"strings"
	"testing"
)

func TestOSC52Clipboard_Copy(t *testing.T) {
	var buf bytes.Buffer
	c := NewOSC52Clipboard(&buf)

	if err := c.Copy("Hello LinkedIn"); err != nil {
		t.Fatalf("Copy がエラーを返した: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "\x1b]52;") {
		t.Errorf("OSC 52シーケンスが出力されていない: %q", out)
	}
}

func TestOSC52Clipboard_CopyEmptyText(t *testing.T) {
	var buf bytes.Buffer
	c := NewOSC52Clipboard(&buf)

	if err := c.Copy(""); err != nil {
		t.Fatalf("空文字列のコピーがエラーを返した: %v", err)
	}
}
