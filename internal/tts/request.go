package tts

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxTextLength 单次请求允许的最大字符数。
const MaxTextLength = 5000

var (
	// ErrTextEmpty 去除首尾空白后文本为空。
	ErrTextEmpty = errors.New("文本不能为空")
	// ErrTextTooLong 文本超过长度上限。
	ErrTextTooLong = errors.New("文本过长")
)

// GenerationRequest 一次合成请求，在边界处校验后交给核心。
type GenerationRequest struct {
	Text          string
	VoiceSampleID string
	Config        GenerationConfig
}

// NewGenerationRequest 使用默认长度上限构造请求。
func NewGenerationRequest(text, voiceSampleID string, cfg GenerationConfig) (GenerationRequest, error) {
	return NewGenerationRequestWithLimit(text, voiceSampleID, cfg, MaxTextLength)
}

// NewGenerationRequestWithLimit 去除文本首尾空白并按字符数（rune）校验长度。
// limit <= 0 或超过 MaxTextLength 时按 MaxTextLength 处理。
func NewGenerationRequestWithLimit(text, voiceSampleID string, cfg GenerationConfig, limit int) (GenerationRequest, error) {
	if limit <= 0 || limit > MaxTextLength {
		limit = MaxTextLength
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return GenerationRequest{}, ErrTextEmpty
	}
	if n := utf8.RuneCountInString(text); n > limit {
		return GenerationRequest{}, fmt.Errorf("%w: %d 个字符，最多 %d", ErrTextTooLong, n, limit)
	}
	if err := cfg.Validate(); err != nil {
		return GenerationRequest{}, err
	}

	return GenerationRequest{
		Text:          text,
		VoiceSampleID: strings.TrimSpace(voiceSampleID),
		Config:        cfg,
	}, nil
}
