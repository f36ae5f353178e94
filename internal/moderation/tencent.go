package moderation

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/profile"
	ims "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/ims/v20201229"

	"github.com/picfort/picfort/internal/config"
)

// Tencent IMS rejects payloads of 10MB and above.
const tencentMaxBytes = 10 << 20

type tencentInspector struct {
	cfg    config.TencentModerationConf
	client *ims.Client
	logger *slog.Logger
}

func newTencent(cfg config.TencentModerationConf, log *slog.Logger) (*tencentInspector, error) {
	if cfg.SecretID == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("tencent moderation: missing credentials")
	}
	cred := common.NewCredential(cfg.SecretID, cfg.SecretKey)
	client, err := ims.NewClient(cred, cfg.Region, profile.NewClientProfile())
	if err != nil {
		return nil, fmt.Errorf("tencent moderation: %w", err)
	}
	return &tencentInspector{cfg: cfg, client: client, logger: log}, nil
}

func (t *tencentInspector) Name() string { return "tencent" }

func (t *tencentInspector) Inspect(ctx context.Context, src Source) (Result, error) {
	if src.SizeBytes >= tencentMaxBytes {
		return Result{}, fmt.Errorf("%w: tencent accepts images under 10MB", ErrLimitExceeded)
	}
	data, err := os.ReadFile(src.Path)
	if err != nil {
		return Result{}, fmt.Errorf("tencent moderation: %w", err)
	}

	req := ims.NewImageModerationRequest()
	req.FileContent = common.StringPtr(base64.StdEncoding.EncodeToString(data))
	req.DataId = common.StringPtr(strconv.FormatInt(time.Now().UnixMilli(), 10))
	if t.cfg.BizType != "" {
		req.BizType = common.StringPtr(t.cfg.BizType)
	}

	resp, err := t.client.ImageModerationWithContext(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("tencent moderation: %w", err)
	}

	suggestion := common.StringValue(resp.Response.Suggestion)
	label := common.StringValue(resp.Response.Label)
	t.logger.Debug("image inspected",
		slog.String("provider", "tencent"),
		slog.String("suggestion", suggestion),
		slog.String("label", label))
	return Result{Verdict: suggestionVerdict(suggestion), Label: label}, nil
}
