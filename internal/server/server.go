// Package server is the web front end: an upload form, a results page streamed
// while the analysis runs, and a JSON API over the same pipeline.
package server

import (
	"context"
	"embed"
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/forPelevin/accentscan/internal/domain/chunking"
	"github.com/forPelevin/accentscan/internal/domain/report"
	"github.com/forPelevin/accentscan/internal/metrics"
	"github.com/forPelevin/accentscan/internal/pipeline"
	"github.com/forPelevin/accentscan/internal/types"
	"github.com/forPelevin/accentscan/internal/usecase"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	msgNoUpload       = "Please upload a video file before starting analysis."
	msgInvalidChunk   = "Invalid chunk size."
	msgUnsupported    = "Unsupported file type. Upload an mp4, avi or mkv video."
	msgAlreadyRunning = "an analysis is already running"
)

var allowedExts = map[string]bool{".mp4": true, ".avi": true, ".mkv": true}

// RunFunc runs one analysis; pipeline.Run in production.
type RunFunc func(ctx context.Context, cfg pipeline.Config, obs usecase.Observer) (usecase.Result, error)

type Options struct {
	// Base carries tool paths, backend and logger. VideoPath, ChunkSeconds
	// and CSVPath are filled per request.
	Base pipeline.Config
	Run  RunFunc
	Log  logrus.FieldLogger
	// UploadRoot is the parent of per-request upload dirs (default: os.TempDir()).
	UploadRoot string
	// MaxUploadBytes caps the multipart body (default 2 GiB).
	MaxUploadBytes int64
}

type Server struct {
	opts Options
	tmpl *template.Template
	// busy admits one analysis at a time.
	busy *semaphore.Weighted
}

func New(opts Options) (*Server, error) {
	if opts.Run == nil {
		opts.Run = pipeline.Run
	}
	if opts.Log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		opts.Log = l
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 2 << 30
	}
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Server{opts: opts, tmpl: tmpl, busy: semaphore.NewWeighted(1)}, nil
}

// Handler builds the gin engine.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(s.opts.Log))
	r.SetHTMLTemplate(s.tmpl)

	r.GET("/", s.handleIndex)
	r.POST("/analyze", s.handleAnalyzePage)
	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api/v1")
	api.POST("/analyze", s.handleAnalyzeAPI)
	return r
}

type formView struct {
	Warning  string
	Sizes    []int
	Selected int
}

func (s *Server) renderForm(c *gin.Context, status int, warning string, selected int) {
	if !chunking.IsAllowed(selected) {
		selected = chunking.DefaultSeconds
	}
	c.HTML(status, "index.html", formView{Warning: warning, Sizes: chunking.Allowed, Selected: selected})
}

func (s *Server) handleIndex(c *gin.Context) {
	s.renderForm(c, http.StatusOK, "", chunking.DefaultSeconds)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// upload is a validated request: the saved video and the chunk length.
type upload struct {
	dir   string
	video string
	sec   int
}

// errBadRequest carries a message safe to show the user.
type errBadRequest struct {
	status int
	msg    string
}

func (e errBadRequest) Error() string { return e.msg }

func (s *Server) readUpload(c *gin.Context) (upload, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxUploadBytes)

	sec, convErr := strconv.Atoi(strings.TrimSpace(c.DefaultPostForm("chunk", strconv.Itoa(chunking.DefaultSeconds))))
	fh, err := c.FormFile("video")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return upload{sec: sec}, errBadRequest{status: http.StatusBadRequest, msg: msgNoUpload}
		}
		return upload{sec: sec}, errBadRequest{status: http.StatusBadRequest, msg: "read upload: " + err.Error()}
	}
	if convErr != nil || !chunking.IsAllowed(sec) {
		return upload{}, errBadRequest{status: http.StatusBadRequest, msg: msgInvalidChunk}
	}
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !allowedExts[ext] {
		return upload{sec: sec}, errBadRequest{status: http.StatusUnsupportedMediaType, msg: msgUnsupported}
	}

	dir, err := os.MkdirTemp(s.opts.UploadRoot, "accentscan-upload-")
	if err != nil {
		return upload{sec: sec}, fmt.Errorf("create upload dir: %w", err)
	}
	dst := filepath.Join(dir, uploadName(fh))
	if err := c.SaveUploadedFile(fh, dst); err != nil {
		_ = os.RemoveAll(dir)
		return upload{sec: sec}, fmt.Errorf("save upload: %w", err)
	}
	return upload{dir: dir, video: dst, sec: sec}, nil
}

// uploadName keeps a readable stem from the client's file name and makes it
// unique per request.
func uploadName(fh *multipart.FileHeader) string {
	base := filepath.Base(fh.Filename)
	ext := strings.ToLower(filepath.Ext(base))
	stem := pipeline.NormalizeName(strings.TrimSuffix(base, filepath.Ext(base)))
	if stem == "" {
		stem = "video"
	}
	return fmt.Sprintf("%s-%s%s", stem, uuid.NewString()[:8], ext)
}

func (s *Server) config(u upload) pipeline.Config {
	cfg := s.opts.Base
	cfg.VideoPath = u.video
	cfg.ChunkSeconds = u.sec
	cfg.CSVPath = filepath.Join(u.dir, report.Filename)
	cfg.ScratchRoot = u.dir
	return cfg
}

func (s *Server) handleAnalyzePage(c *gin.Context) {
	log := requestLogger(c, s.opts.Log)

	if !s.busy.TryAcquire(1) {
		s.renderForm(c, http.StatusConflict, msgAlreadyRunning, chunking.DefaultSeconds)
		return
	}
	defer s.busy.Release(1)

	u, err := s.readUpload(c)
	if u.dir != "" {
		defer os.RemoveAll(u.dir)
	}
	if err != nil {
		var bad errBadRequest
		if errors.As(err, &bad) {
			s.renderForm(c, http.StatusOK, bad.msg, u.sec)
			return
		}
		log.WithError(err).Error("upload failed")
		s.renderForm(c, http.StatusInternalServerError, "Upload failed.", u.sec)
		return
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Header("X-Content-Type-Options", "nosniff")
	c.Status(http.StatusOK)

	page := &pageObserver{w: c.Writer, tmpl: s.tmpl, log: log}
	if err := page.exec("results_start", nil); err != nil {
		log.WithError(err).Warn("write page")
		return
	}
	if _, err := s.opts.Run(c.Request.Context(), s.config(u), page); err != nil {
		log.WithError(err).Error("analysis failed")
		_ = page.exec("failed", err.Error())
	}
}

// pageObserver streams one card per classification into the response.
type pageObserver struct {
	w    gin.ResponseWriter
	tmpl *template.Template
	log  logrus.FieldLogger
}

type cardView struct {
	Start      int
	Interval   string
	Label      string
	Confidence string
	Audio      template.URL
}

type doneView struct {
	CSV      template.URL
	Filename string
}

func (p *pageObserver) exec(name string, data any) error {
	if err := p.tmpl.ExecuteTemplate(p.w, name, data); err != nil {
		return err
	}
	p.w.Flush()
	return nil
}

func (p *pageObserver) OnStage(usecase.Stage) {}

func (p *pageObserver) OnResult(c types.Classification, ch types.AudioChunk) {
	v := cardView{
		Start:      c.Start,
		Interval:   c.Interval(),
		Label:      c.Label,
		Confidence: report.FormatConfidence(c.Confidence),
	}
	if b, err := os.ReadFile(ch.Path); err == nil && len(b) > 0 {
		v.Audio = dataURI("audio/wav", b)
	} else {
		p.log.WithField("chunk", filepath.Base(ch.Path)).Debug("chunk audio unavailable")
	}
	if err := p.exec("card", v); err != nil {
		p.log.WithError(err).Warn("write card")
	}
}

func (p *pageObserver) OnComplete(res usecase.Result) {
	v := doneView{CSV: dataURI("text/csv", res.CSV), Filename: report.Filename}
	if err := p.exec("done", v); err != nil {
		p.log.WithError(err).Warn("write page")
	}
}

func dataURI(mime string, b []byte) template.URL {
	return template.URL("data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(b))
}

type apiResult struct {
	Interval   string  `json:"interval"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

type apiResponse struct {
	Results []apiResult `json:"results"`
	CSV     string      `json:"csv"`
}

func (s *Server) handleAnalyzeAPI(c *gin.Context) {
	log := requestLogger(c, s.opts.Log)

	if !s.busy.TryAcquire(1) {
		c.JSON(http.StatusConflict, gin.H{"error": msgAlreadyRunning})
		return
	}
	defer s.busy.Release(1)

	u, err := s.readUpload(c)
	if u.dir != "" {
		defer os.RemoveAll(u.dir)
	}
	if err != nil {
		var bad errBadRequest
		if errors.As(err, &bad) {
			c.JSON(bad.status, gin.H{"error": bad.msg})
			return
		}
		log.WithError(err).Error("upload failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}

	started := time.Now()
	res, err := s.opts.Run(c.Request.Context(), s.config(u), nil)
	if err != nil {
		log.WithError(err).Error("analysis failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := apiResponse{Results: make([]apiResult, 0, len(res.Rows)), CSV: string(res.CSV)}
	for _, r := range res.Rows {
		out.Results = append(out.Results, apiResult{
			Interval:   r.CSVInterval(),
			Start:      r.Start,
			End:        r.End,
			Label:      r.Label,
			Confidence: r.Confidence,
		})
	}
	log.WithFields(logrus.Fields{"chunks": len(out.Results), "took_ms": time.Since(started).Milliseconds()}).Info("api analysis complete")
	c.JSON(http.StatusOK, out)
}
