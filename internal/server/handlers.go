package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/iabetor/voicestudio/internal/artifact"
	"github.com/iabetor/voicestudio/internal/logger"
	"github.com/iabetor/voicestudio/internal/tts"
)

// 表单字段之外留给 multipart 头部的余量
const formOverhead = 1 << 20

type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warnf("[server] 写入响应失败: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

func (s *Server) handleUploadVoice(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.MaxUploadMB << 20
	r.Body = http.MaxBytesReader(w, r.Body, limit+formOverhead)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("File is too large (max %d MB).", s.cfg.MaxUploadMB))
			return
		}
		writeError(w, http.StatusBadRequest, "No file uploaded.")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded.")
		return
	}
	defer file.Close()

	sample, err := s.svc.UploadVoice(header.Filename, file)
	switch {
	case errors.Is(err, artifact.ErrNoFile):
		writeError(w, http.StatusBadRequest, "No file uploaded.")
	case errors.Is(err, artifact.ErrUnsupportedFormat):
		writeError(w, http.StatusBadRequest, "Unsupported audio format.")
	case err != nil:
		logger.Errorf("[server] 保存参考音频失败: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to save voice sample.")
	default:
		writeJSON(w, http.StatusOK, sample)
	}
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	// 文本最多 5000 字符，每个字符最多 4 字节
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.maxTextLen)*4+formOverhead)
	if err := parseForm(r); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid form data.")
		return
	}

	cfg, err := s.generationConfig(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req, err := s.svc.NewRequest(r.FormValue("text"), r.FormValue("voice_id"), cfg)
	switch {
	case errors.Is(err, tts.ErrTextEmpty):
		writeError(w, http.StatusBadRequest, "Text input is required.")
		return
	case errors.Is(err, tts.ErrTextTooLong):
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Text is too long (max %d characters).", s.maxTextLen))
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.svc.Generate(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, tts.ErrQueueFull), errors.Is(err, tts.ErrExecutorClosed):
		writeError(w, http.StatusServiceUnavailable, "Generation queue is busy, try again later.")
	case errors.Is(err, context.Canceled):
		// 客户端已断开，任务仍会在后台完成
		logger.Infof("[server] 客户端在生成完成前断开")
	default:
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Generation failed: %v", err))
	}
}

// parseForm 同时接受 multipart 和 urlencoded 表单。
func parseForm(r *http.Request) error {
	err := r.ParseMultipartForm(1 << 20)
	if errors.Is(err, http.ErrNotMultipart) {
		return r.ParseForm()
	}
	return err
}

// generationConfig 从表单读取生成参数，缺省值来自配置。
func (s *Server) generationConfig(r *http.Request) (tts.GenerationConfig, error) {
	def := s.svc.Defaults()

	temperature, err := formFloat(r, "temperature", def.Temperature)
	if err != nil {
		return tts.GenerationConfig{}, err
	}
	speed, err := formFloat(r, "speed", def.Speed)
	if err != nil {
		return tts.GenerationConfig{}, err
	}
	emotion := strings.TrimSpace(r.FormValue("emotion"))
	if emotion == "" {
		emotion = def.Emotion
	}

	var seed *int64
	if v := strings.TrimSpace(r.FormValue("seed")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return tts.GenerationConfig{}, fmt.Errorf("Invalid seed: %q", v)
		}
		seed = &n
	}

	cfg, err := tts.NewGenerationConfig(temperature, speed, emotion, def.SampleRate, seed)
	if err != nil {
		return tts.GenerationConfig{}, fmt.Errorf("Invalid generation parameters: %v", err)
	}
	return cfg, nil
}

func formFloat(r *http.Request, key string, def float64) (float64, error) {
	v := strings.TrimSpace(r.FormValue(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("Invalid %s: %q", key, v)
	}
	return f, nil
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	path, err := s.svc.ArtifactPath(r.PathValue("filename"))
	if err != nil {
		writeError(w, http.StatusNotFound, "File not found.")
		return
	}

	f, err := os.Open(path)
	if err != nil {
		writeError(w, http.StatusNotFound, "File not found.")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read file.")
		return
	}

	name := info.Name()
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := s.historySize
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit.")
			return
		}
		limit = n
	}

	items, err := s.svc.History(limit)
	if err != nil {
		logger.Errorf("[server] 读取历史记录失败: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to read history.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Status(r.Context()))
}
