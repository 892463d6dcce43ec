package artifact

import (
	"path/filepath"
	"strings"
)

const (
	// PreviewMaxRunes 文件名中文本预览的最大字符数。
	PreviewMaxRunes = 50
	// Separator 分隔 ID 和预览。
	Separator = "__"
	// Ext 生成音频的扩展名。
	Ext = ".wav"
)

var previewReplacer = strings.NewReplacer(
	"\r\n", " ",
	"\n", " ",
	"\r", " ",
)

// MakePreview 从请求文本生成可嵌入文件名的预览。
// 换行转空格，取前 50 个字符后去除首尾空白，"__" 反复折叠为 "_"，路径分隔符替换为 "-"。
func MakePreview(text string) string {
	s := previewReplacer.Replace(text)
	if r := []rune(s); len(r) > PreviewMaxRunes {
		s = string(r[:PreviewMaxRunes])
	}
	s = strings.TrimSpace(s)

	// "___" 单次替换后仍会剩下 "__"
	for strings.Contains(s, Separator) {
		s = strings.ReplaceAll(s, Separator, "_")
	}
	s = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == 0 {
			return '-'
		}
		return r
	}, s)
	return s
}

// EncodeFilename 生成 "{id}.wav" 或 "{id}__{preview}.wav"。
func EncodeFilename(id, preview string) string {
	if preview == "" {
		return id + Ext
	}
	return id + Separator + preview + Ext
}

// DecodeFilename 从文件名恢复 ID 和预览，按第一个 "__" 切分。
func DecodeFilename(name string) (id, preview string) {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	id, preview, _ = strings.Cut(stem, Separator)
	return id, preview
}
