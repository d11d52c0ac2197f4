package platform

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// PickedImage は選択された画像を表す。
// Dataは呼び出し元がCloseする責任を持つ。
type PickedImage struct {
	Filename string
	LocalURI string
	Data     io.ReadCloser
}

// ImagePicker は添付用画像の選択インターフェース。
type ImagePicker interface {
	Pick(path string) (*PickedImage, error)
}

// FileImagePicker はローカルファイルシステムから画像を選択する。
type FileImagePicker struct{}

// NewFileImagePicker はFileImagePickerの新しいインスタンスを生成する。
func NewFileImagePicker() *FileImagePicker {
	return &FileImagePicker{}
}

// allowedImageExtensions はアップロードを許可する画像拡張子。
var allowedImageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

// Pick は指定パスの画像ファイルを開く。
// 画像以外の拡張子は拒否する。
func (p *FileImagePicker) Pick(path string) (*PickedImage, error) {
	ext := filepath.Ext(path)
	if !allowedImageExtensions[ext] {
		return nil, fmt.Errorf("画像ファイルではありません: %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("画像ファイルを開けませんでした: %w", err)
	}

	return &PickedImage{
		Filename: filepath.Base(path),
		LocalURI: "file://" + path,
		Data:     f,
	}, nil
}
