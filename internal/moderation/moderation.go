// Package moderation runs uploaded images through an image-safety provider
// and normalizes every provider's answer into a single verdict scale.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/picfort/picfort/internal/config"
)

// Verdict is the normalized safety classification of an image.
type Verdict string

const (
	VerdictPass   Verdict = "Pass"
	VerdictReview Verdict = "Review"
	VerdictBlock  Verdict = "Block"
)

// Result carries the verdict plus the provider's own label for the record.
type Result struct {
	Verdict Verdict
	Label   string
}

// Source describes the local file handed to an inspector. Size and
// dimensions are passed in so inspectors can enforce provider ceilings
// without re-reading the image.
type Source struct {
	Path      string
	SizeBytes int64
	Width     int
	Height    int
}

// ErrLimitExceeded marks an image that a provider refuses by size or
// dimensions. Callers should treat it as a validation failure, not a
// transient provider error.
var ErrLimitExceeded = errors.New("image exceeds moderation provider limit")

// Inspector classifies a single image.
type Inspector interface {
	Name() string
	Inspect(ctx context.Context, src Source) (Result, error)
}

// New builds the inspector selected by cfg.Provider.
func New(cfg config.ModerationConfig, log *slog.Logger) (Inspector, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("service", "moderation"))
	switch cfg.Provider {
	case "tencent":
		return newTencent(cfg.Tencent, log)
	case "aliyun":
		return newAliyun(cfg.Aliyun, log)
	case "nsfw", "nsfwjs":
		return newNSFW(cfg.NSFW, log)
	default:
		return nil, fmt.Errorf("unknown moderation provider %q", cfg.Provider)
	}
}

// riskVerdict maps Aliyun Green risk levels onto the normalized scale.
func riskVerdict(risk string) Verdict {
	switch risk {
	case "high":
		return VerdictBlock
	case "medium":
		return VerdictReview
	default:
		return VerdictPass
	}
}

// suggestionVerdict maps Tencent IMS suggestions onto the normalized scale.
// IMS already speaks Pass/Review/Block; anything unrecognized is treated as
// Review so it never silently passes.
func suggestionVerdict(s string) Verdict {
	switch s {
	case "Pass":
		return VerdictPass
	case "Block":
		return VerdictBlock
	default:
		return VerdictReview
	}
}
