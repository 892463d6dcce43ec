package artifact

import (
	"strings"
	"testing"
)

func TestMakePreview(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"普通文本", "Hello world", "Hello world"},
		{"换行转空格", "line1\nline2\r\nline3", "line1 line2 line3"},
		{"去除首尾空白", "   hi  ", "hi"},
		{"只有空白", " \n\t ", ""},
		{"折叠双下划线", "a__b", "a_b"},
		{"折叠多个下划线", "a_____b", "a_b"},
		{"路径分隔符", "a/b\\c", "a-b-c"},
		{"截断到 50 个字符", strings.Repeat("x", 60), strings.Repeat("x", 50)},
		{"中文按字符截断", strings.Repeat("你", 60), strings.Repeat("你", 50)},
		{"先截断再去空白", strings.Repeat(" ", 49) + "ab", "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MakePreview(tt.text); got != tt.want {
				t.Errorf("MakePreview(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestEncodeFilename(t *testing.T) {
	if got := EncodeFilename("abc", ""); got != "abc.wav" {
		t.Errorf("空预览 = %q", got)
	}
	if got := EncodeFilename("abc", "Hello world"); got != "abc__Hello world.wav" {
		t.Errorf("带预览 = %q", got)
	}
}

func TestDecodeFilename(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		wantID      string
		wantPreview string
	}{
		{"无预览", "abc.wav", "abc", ""},
		{"有预览", "abc__Hello world.wav", "abc", "Hello world"},
		{"按第一个分隔符切分", "abc__x__y.wav", "abc", "x__y"},
		{"预览以下划线开头", "abc___x.wav", "abc", "_x"},
		{"预览含点号", "abc__v1.2.wav", "abc", "v1.2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, preview := DecodeFilename(tt.filename)
			if id != tt.wantID || preview != tt.wantPreview {
				t.Errorf("DecodeFilename(%q) = (%q, %q), want (%q, %q)", tt.filename, id, preview, tt.wantID, tt.wantPreview)
			}
		})
	}
}

func TestFilenameRoundTrip(t *testing.T) {
	texts := []string{
		"Hello world",
		"",
		"   ",
		"a__b___c",
		"_leading underscore",
		"trailing underscore_",
		"多行\n中文\n文本",
		strings.Repeat("long text ", 20),
		"path/like\\text",
	}

	for _, text := range texts {
		preview := MakePreview(text)
		if strings.Contains(preview, Separator) {
			t.Errorf("预览不应包含分隔符: %q", preview)
		}
		id, got := DecodeFilename(EncodeFilename("0f8fad5b-d9cb-469f-a165-70867728950e", preview))
		if id != "0f8fad5b-d9cb-469f-a165-70867728950e" || got != preview {
			t.Errorf("往返失败: text=%q preview=%q got=(%q, %q)", text, preview, id, got)
		}
	}
}
