// Package platform は端末環境に依存する機能（クリップボード・画像選択）を提供する。
package platform

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/aymanbagabas/go-osc52/v2"
)

// OSC52Clipboard はOSC 52エスケープシーケンスでクリップボードへ書き込む。
// SSH越しのリモート端末でもローカルのクリップボードへ届くため、
// 公開後のLinkedIn貼り付けフローが端末環境を問わず機能する。
type OSC52Clipboard struct {
	mu  sync.Mutex
	out io.Writer
}

// NewOSC52Clipboard はOSC52Clipboardの新しいインスタンスを生成する。
// outがnilの場合は標準エラー出力へ書き込む（標準出力を汚さないため）。
func NewOSC52Clipboard(out io.Writer) *OSC52Clipboard {
	if out == nil {
		out = os.Stderr
	}
	return &OSC52Clipboard{out: out}
}

// Copy はテキストをクリップボードへコピーする。
func (c *OSC52Clipboard) Copy(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := osc52.New(text).WriteTo(c.out); err != nil {
		return fmt.Errorf("クリップボードへの書き込みに失敗しました: %w", err)
	}
	return nil
}
