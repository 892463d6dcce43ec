package artifact

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iabetor/voicestudio/internal/logger"
)

var (
	// ErrNotFound 文件不存在。
	ErrNotFound = errors.New("文件不存在")
	// ErrNoFile 上传请求没有文件。
	ErrNoFile = errors.New("未上传文件")
	// ErrUnsupportedFormat 参考音频格式不受支持。
	ErrUnsupportedFormat = errors.New("不支持的音频格式")
)

// DefaultHistoryLimit 历史记录默认条数。
const DefaultHistoryLimit = 20

// TimestampLayout 历史记录时间戳格式（本地时间，精确到秒）。
const TimestampLayout = "2006-01-02T15:04:05"

// VoiceExts 允许上传的参考音频扩展名。
var VoiceExts = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".flac": true,
	".ogg":  true,
}

// HistoryItem 一条生成历史，全部信息来自文件名和文件元数据。
type HistoryItem struct {
	ID              string   `json:"id"`
	Filename        string   `json:"filename"`
	TextPreview     string   `json:"text_preview"`
	Timestamp       string   `json:"timestamp"`
	DurationSeconds *float64 `json:"duration_seconds"`

	modTime time.Time
}

// Artifact 一个待生成的音频文件。
type Artifact struct {
	ID       string
	Filename string
	Path     string
}

// VoiceSample 一个已保存的参考音频。
type VoiceSample struct {
	ID       string `json:"voice_id"`
	Filename string `json:"filename"`
}

// Store 管理参考音频目录和生成音频目录。
// 读取操作只做目录扫描，不加锁，文件在扫描期间出现或消失都能容忍。
type Store struct {
	voiceDir     string
	generatedDir string
}

// NewStore 创建存储。
func NewStore(voiceDir, generatedDir string) *Store {
	return &Store{voiceDir: voiceDir, generatedDir: generatedDir}
}

// VoiceDir 返回参考音频目录。
func (s *Store) VoiceDir() string { return s.voiceDir }

// GeneratedDir 返回生成音频目录。
func (s *Store) GeneratedDir() string { return s.generatedDir }

// EnsureDirs 创建参考音频和生成音频目录。
func (s *Store) EnsureDirs() error {
	for _, dir := range []string{s.voiceDir, s.generatedDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建目录 %s 失败: %w", dir, err)
		}
	}
	return nil
}

// NewArtifact 为一次生成分配 ID 和输出路径。
func (s *Store) NewArtifact(text string) Artifact {
	id := uuid.NewString()
	name := EncodeFilename(id, MakePreview(text))
	return Artifact{
		ID:       id,
		Filename: name,
		Path:     filepath.Join(s.generatedDir, name),
	}
}

// ListHistory 按修改时间倒序返回最近的生成记录。limit <= 0 时使用默认值。
// 目录不存在时返回空列表。
func (s *Store) ListHistory(limit int) ([]HistoryItem, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	entries, err := os.ReadDir(s.generatedDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []HistoryItem{}, nil
		}
		return nil, fmt.Errorf("读取生成目录失败: %w", err)
	}

	items := make([]HistoryItem, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || !strings.EqualFold(filepath.Ext(name), Ext) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// 扫描期间被删除
			continue
		}

		id, preview := DecodeFilename(name)
		mt := info.ModTime()
		items = append(items, HistoryItem{
			ID:          id,
			Filename:    name,
			TextPreview: preview,
			Timestamp:   mt.Local().Format(TimestampLayout),
			modTime:     mt,
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].modTime.Equal(items[j].modTime) {
			return items[i].modTime.After(items[j].modTime)
		}
		return items[i].Filename < items[j].Filename
	})

	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// ResolveVoiceSample 按 ID 前缀查找参考音频，返回按文件名排序的第一个匹配。
func (s *Store) ResolveVoiceSample(id string) (string, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", false
	}

	entries, err := os.ReadDir(s.voiceDir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warnf("[artifact] 读取参考音频目录失败: %v", err)
		}
		return "", false
	}

	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		name := e.Name()
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		if strings.HasPrefix(stem, id) {
			return filepath.Join(s.voiceDir, name), true
		}
	}
	return "", false
}

// SaveVoiceSample 保存上传的参考音频为 "{uuid}{ext}"。
// 先写临时文件再重命名，解析器不会看到写了一半的文件。
func (s *Store) SaveVoiceSample(filename string, r io.Reader) (VoiceSample, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return VoiceSample{}, ErrNoFile
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !VoiceExts[ext] {
		return VoiceSample{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	if err := os.MkdirAll(s.voiceDir, 0755); err != nil {
		return VoiceSample{}, fmt.Errorf("创建参考音频目录失败: %w", err)
	}

	sample := VoiceSample{ID: uuid.NewString()}
	sample.Filename = sample.ID + ext
	dest := filepath.Join(s.voiceDir, sample.Filename)
	tmp := filepath.Join(s.voiceDir, "."+sample.Filename+".tmp")

	f, err := os.Create(tmp)
	if err != nil {
		return VoiceSample{}, fmt.Errorf("创建临时文件失败: %w", err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp, dest)
	}
	if err != nil {
		os.Remove(tmp)
		return VoiceSample{}, fmt.Errorf("保存参考音频失败: %w", err)
	}

	logger.Infof("[artifact] 已保存参考音频 %s (%d 字节)", sample.Filename, n)
	return sample, nil
}

// ArtifactPath 返回生成音频的绝对路径，只接受文件名部分。
func (s *Store) ArtifactPath(filename string) (string, error) {
	name := filepath.Base(filepath.Clean("/" + filename))
	if name == "/" || name == "." || name == ".." {
		return "", ErrNotFound
	}
	p := filepath.Join(s.generatedDir, name)
	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return p, nil
}
