package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/picfort/picfort/internal/config"
)

const (
	nsfwDefaultThreshold = 60
	nsfwDefaultTimeout   = 180 * time.Second
)

// nsfwInspector talks to an nsfwjs-compatible classifier over HTTP. The
// endpoint takes a multipart "image" field and answers with per-category
// probabilities in [0, 1].
type nsfwInspector struct {
	cfg       config.NSFWModerationConf
	threshold float64
	client    *http.Client
	logger    *slog.Logger
}

func newNSFW(cfg config.NSFWModerationConf, log *slog.Logger) (*nsfwInspector, error) {
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("nsfw moderation: missing api_url")
	}
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = nsfwDefaultThreshold
	}
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = nsfwDefaultTimeout
	}
	return &nsfwInspector{
		cfg:       cfg,
		threshold: float64(threshold) / 100,
		client:    &http.Client{Timeout: timeout},
		logger:    log,
	}, nil
}

func (n *nsfwInspector) Name() string { return "nsfw" }

func (n *nsfwInspector) Inspect(ctx context.Context, src Source) (Result, error) {
	f, err := os.Open(src.Path)
	if err != nil {
		return Result{}, fmt.Errorf("nsfw moderation: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", filepath.Base(src.Path))
	if err != nil {
		return Result{}, fmt.Errorf("nsfw moderation: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return Result{}, fmt.Errorf("nsfw moderation: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Result{}, fmt.Errorf("nsfw moderation: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.APIURL, &body)
	if err != nil {
		return Result{}, fmt.Errorf("nsfw moderation: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := n.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("nsfw moderation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusInternalServerError {
			return Result{}, fmt.Errorf("nsfw moderation: classifier rejected the image format")
		}
		return Result{}, fmt.Errorf("nsfw moderation: unexpected status %s", resp.Status)
	}

	var scores struct {
		Hentai float64 `json:"hentai"`
		Porn   float64 `json:"porn"`
		Sexy   float64 `json:"sexy"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&scores); err != nil {
		return Result{}, fmt.Errorf("nsfw moderation: decode response: %w", err)
	}

	flagged := scores.Hentai >= n.threshold || scores.Porn >= n.threshold || scores.Sexy >= n.threshold
	verdict := VerdictPass
	switch {
	case flagged:
		verdict = VerdictBlock
	case scores.Sexy >= n.threshold*0.7:
		verdict = VerdictReview
	}
	label := "safe"
	if flagged {
		label = "unsafe"
	}

	n.logger.Debug("image inspected",
		slog.String("provider", "nsfw"),
		slog.Float64("hentai", scores.Hentai),
		slog.Float64("porn", scores.Porn),
		slog.Float64("sexy", scores.Sexy),
		slog.String("verdict", string(verdict)))
	return Result{Verdict: verdict, Label: label}, nil
}
