package moderation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"

	openapi "github.com/alibabacloud-go/darabonba-openapi/v2/client"
	green "github.com/alibabacloud-go/green-20220302/v2/client"
	"github.com/alibabacloud-go/tea/tea"
	util "github.com/alibabacloud-go/tea-utils/v2/service"
	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/google/uuid"

	"github.com/picfort/picfort/internal/config"
)

// Aliyun Green rejects payloads of 20MB and above, and any side of
// 30000px and above.
const (
	aliyunMaxBytes = 20 << 20
	aliyunMaxDim   = 30000
)

type aliyunInspector struct {
	cfg    config.AliyunModerationConf
	client *green.Client
	logger *slog.Logger
}

func newAliyun(cfg config.AliyunModerationConf, log *slog.Logger) (*aliyunInspector, error) {
	if cfg.AccessKeyID == "" || cfg.AccessKeySecret == "" {
		return nil, fmt.Errorf("aliyun moderation: missing credentials")
	}
	client, err := green.NewClient(&openapi.Config{
		AccessKeyId:     tea.String(cfg.AccessKeyID),
		AccessKeySecret: tea.String(cfg.AccessKeySecret),
		RegionId:        tea.String(cfg.Region),
		Endpoint:        tea.String(fmt.Sprintf("green-cip.%s.aliyuncs.com", cfg.Region)),
	})
	if err != nil {
		return nil, fmt.Errorf("aliyun moderation: %w", err)
	}
	return &aliyunInspector{cfg: cfg, client: client, logger: log}, nil
}

func (a *aliyunInspector) Name() string { return "aliyun" }

// Inspect stages the image in the scan bucket Green hands out via
// DescribeUploadToken, then asks for a verdict on the staged object.
func (a *aliyunInspector) Inspect(ctx context.Context, src Source) (Result, error) {
	if src.SizeBytes >= aliyunMaxBytes {
		return Result{}, fmt.Errorf("%w: aliyun accepts images under 20MB", ErrLimitExceeded)
	}
	if src.Width >= aliyunMaxDim || src.Height >= aliyunMaxDim {
		return Result{}, fmt.Errorf("%w: aliyun accepts images under 30000px per side", ErrLimitExceeded)
	}

	token, err := a.client.DescribeUploadToken()
	if err != nil {
		return Result{}, fmt.Errorf("aliyun moderation: upload token: %w", err)
	}
	data := token.Body.Data

	objectName, err := a.stageObject(data, src.Path)
	if err != nil {
		return Result{}, err
	}

	params, err := json.Marshal(map[string]string{
		"ossBucketName": tea.StringValue(data.BucketName),
		"ossObjectName": objectName,
	})
	if err != nil {
		return Result{}, fmt.Errorf("aliyun moderation: %w", err)
	}
	resp, err := a.client.ImageModerationWithOptions(&green.ImageModerationRequest{
		Service:           tea.String(a.cfg.Service),
		ServiceParameters: tea.String(string(params)),
	}, &util.RuntimeOptions{})
	if err != nil {
		return Result{}, fmt.Errorf("aliyun moderation: %w", err)
	}

	body := resp.Body
	if tea.Int32Value(body.Code) != 200 {
		return Result{}, fmt.Errorf("aliyun moderation: code %d: %s",
			tea.Int32Value(body.Code), tea.StringValue(body.Msg))
	}
	if body.Data == nil || len(body.Data.Result) == 0 || body.Data.Result[0] == nil {
		return Result{}, fmt.Errorf("aliyun moderation: empty result")
	}

	risk := tea.StringValue(body.Data.RiskLevel)
	first := body.Data.Result[0]
	label := tea.StringValue(first.Description)
	if label == "" {
		label = tea.StringValue(first.Label)
	}
	a.logger.Debug("image inspected",
		slog.String("provider", "aliyun"),
		slog.String("risk", risk),
		slog.String("label", label))
	return Result{Verdict: riskVerdict(risk), Label: label}, nil
}

func (a *aliyunInspector) stageObject(data *green.DescribeUploadTokenResponseBodyData, path string) (string, error) {
	client, err := oss.New(tea.StringValue(data.OssInternetEndPoint),
		tea.StringValue(data.AccessKeyId),
		tea.StringValue(data.AccessKeySecret),
		oss.SecurityToken(tea.StringValue(data.SecurityToken)))
	if err != nil {
		return "", fmt.Errorf("aliyun moderation: oss client: %w", err)
	}
	bucket, err := client.Bucket(tea.StringValue(data.BucketName))
	if err != nil {
		return "", fmt.Errorf("aliyun moderation: scan bucket: %w", err)
	}
	objectName := tea.StringValue(data.FileNamePrefix) + uuid.NewString() + filepath.Ext(path)
	if err := bucket.PutObjectFromFile(objectName, path); err != nil {
		return "", fmt.Errorf("aliyun moderation: stage object: %w", err)
	}
	return objectName, nil
}
