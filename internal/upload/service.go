// Package upload sequences the ingestion pipeline: policy validation, dedup,
// moderation, transform, naming, storage, and metadata recording, with
// cleanup guaranteed on every exit path.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/picfort/picfort/internal/config"
	"github.com/picfort/picfort/internal/hashing"
	"github.com/picfort/picfort/internal/imgproc"
	"github.com/picfort/picfort/internal/iplocate"
	"github.com/picfort/picfort/internal/moderation"
	"github.com/picfort/picfort/internal/naming"
	"github.com/picfort/picfort/internal/storage"
	"github.com/picfort/picfort/internal/storage/adapters/adapterutil"
)

// Store is the persistence surface the orchestrator needs.
type Store interface {
	FindAssetByMD5(ctx context.Context, md5 string) (*Asset, error)
	GetAsset(ctx context.Context, id string) (*Asset, error)
	CreateAssetWithAudit(ctx context.Context, a *Asset, e *AuditEntry) error
	DeleteAsset(ctx context.Context, id string) error
	CountUploadsToday(ctx context.Context, userID *string, ip string) (int, error)
	IsBlocked(ctx context.Context, ip string) (bool, error)
	BlockIP(ctx context.Context, ip string) error
}

// Request is one incoming upload.
type Request struct {
	Body         io.Reader
	OriginalName string
	// ClientMD5 is the optional client-declared hash used as a dedup fast
	// path; the authoritative hash is always computed server-side.
	ClientMD5 string
	// Identity is the caller's subject, empty for guests.
	Identity string
	IP       string
}

// Service is the upload orchestrator. Configuration is passed per call as an
// immutable snapshot, so changes take effect on the next upload, never
// mid-flight.
type Service struct {
	store     Store
	registry  *storage.Registry
	processor *imgproc.Processor
	inspector moderation.Inspector
	locator   iplocate.Locator
	logger    *slog.Logger

	mu   sync.Mutex
	sems map[string]*semEntry
}

// semEntry is one caller's concurrency gate. active counts held slots so the
// entry can be dropped as soon as the last one is released.
type semEntry struct {
	sem    *semaphore.Weighted
	active int
}

// NewService creates the orchestrator. inspector may be nil when moderation
// is disabled; locator may be nil when geolocation is disabled.
func NewService(store Store, registry *storage.Registry, processor *imgproc.Processor,
	inspector moderation.Inspector, locator iplocate.Locator, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if locator == nil {
		locator = iplocate.Noop{}
	}
	return &Service{
		store:     store,
		registry:  registry,
		processor: processor,
		inspector: inspector,
		locator:   locator,
		logger:    log.With(slog.String("service", "upload")),
		sems:      map[string]*semEntry{},
	}
}

// Upload runs the full pipeline and returns the persisted asset. Re-uploading
// byte-identical content returns the existing asset without a new storage
// write.
func (s *Service) Upload(ctx context.Context, cfg *config.Config, req Request) (*Asset, error) {
	policy := cfg.PolicyFor(req.Identity)

	if cfg.Site.URL == "" {
		return nil, configErr("site url is not configured")
	}

	if policy.ConcurrentUploads > 0 {
		release, ok := s.acquireSlot(req.Identity, req.IP, int64(policy.ConcurrentUploads))
		if !ok {
			return nil, policyErr("too many concurrent uploads")
		}
		defer release()
	}

	if cfg.IP.Enabled {
		blocked, err := s.store.IsBlocked(ctx, req.IP)
		if err != nil {
			return nil, fmt.Errorf("upload: %w", err)
		}
		if blocked {
			return nil, policyErr("address is blocked")
		}
	}

	userID := identityRef(req.Identity)
	if policy.DailyLimit > 0 {
		count, err := s.store.CountUploadsToday(ctx, userID, req.IP)
		if err != nil {
			return nil, fmt.Errorf("upload: %w", err)
		}
		if count >= policy.DailyLimit {
			return nil, policyErr("daily upload limit of %d reached", policy.DailyLimit)
		}
	}

	// Client-declared hash lets byte-identical re-uploads skip the spool
	// entirely.
	if req.ClientMD5 != "" {
		existing, err := s.store.FindAssetByMD5(ctx, req.ClientMD5)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, ErrAssetNotFound) {
			return nil, fmt.Errorf("upload: %w", err)
		}
	}

	spool, sums, size, err := s.spool(cfg, policy, req)
	if err != nil {
		return nil, err
	}
	artifacts := []string{spool}
	defer func() { removeIfExists(artifacts...) }()

	info, err := imgproc.Probe(spool)
	if err != nil {
		return nil, validationErr("unreadable or unsupported image")
	}
	if !policy.AllowsFormat(info.Format) {
		return nil, validationErr("format %s is not allowed", info.Format)
	}
	if policy.MinWidth > 0 && info.Width < policy.MinWidth {
		return nil, &Error{
			Kind:    KindValidation,
			Message: fmt.Sprintf("image width %dpx is below the minimum", info.Width),
			Limit:   fmt.Sprintf("min %dpx", policy.MinWidth),
		}
	}
	if policy.MinHeight > 0 && info.Height < policy.MinHeight {
		return nil, &Error{
			Kind:    KindValidation,
			Message: fmt.Sprintf("image height %dpx is below the minimum", info.Height),
			Limit:   fmt.Sprintf("min %dpx", policy.MinHeight),
		}
	}

	// Dedup runs only after the content passed validation, so a duplicate of
	// now-disallowed content is still refused.
	existing, err := s.store.FindAssetByMD5(ctx, sums.MD5)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrAssetNotFound) {
		return nil, fmt.Errorf("upload: %w", err)
	}

	safe, label := "Pass", "Normal"
	if cfg.Moderation.Enabled && s.inspector != nil {
		verdict, err := s.moderate(ctx, cfg, spool, size, info)
		if err != nil {
			return nil, err
		}
		safe = string(verdict.Verdict)
		if verdict.Label != "" {
			label = verdict.Label
		}
	}

	// Animated GIFs keep their container, so the {ext} token must not pick
	// up the conversion target.
	effectiveConvert := policy.ConvertFormat
	if info.Format == "gif" && info.Animated() {
		effectiveConvert = ""
	}
	nctx := naming.NewContext(time.Now(), req.OriginalName, effectiveConvert,
		sums.MD5, sums.SHA1, req.Identity)
	catalogue := naming.Expand(policy.Catalogue, nctx)
	filename := naming.Expand(policy.NamingRule, nctx)
	key := path.Join(catalogue, filename)

	processed := spool + ".out"
	thumbTmp := spool + ".thumb"
	artifacts = append(artifacts, processed, thumbTmp)
	result, err := s.processor.Process(spool, processed, thumbTmp, info, imgproc.Options{
		MaxWidth:      policy.MaxWidth,
		MaxHeight:     policy.MaxHeight,
		ConvertFormat: policy.ConvertFormat,
		QualityOpen:   policy.QualityOpen,
		Quality:       policy.Quality,
		Watermark:     cfg.Watermark,
	})
	if err != nil {
		return nil, validationErr("image processing failed: %v", err)
	}
	finalSize := fileSize(processed)

	adapter, ok := s.registry.Get(storage.Type(policy.StorageType))
	if !ok {
		return nil, configErr("storage backend %q is not configured", policy.StorageType)
	}

	put, err := adapter.Put(ctx, processed, key)
	if err != nil {
		return nil, backendErr(adapter.Type(), err)
	}

	thumbPath := filepath.Join(cfg.Upload.ThumbDir, filename)
	if err := installThumb(thumbTmp, thumbPath); err != nil {
		s.rollbackPut(ctx, adapter, put.Ref)
		return nil, fmt.Errorf("upload: %w", err)
	}

	loc := iplocate.UnknownLocation()
	if cfg.IP.GeoEnabled {
		loc = s.locator.Lookup(req.IP)
	}
	asset := &Asset{
		Name:        req.OriginalName,
		Filename:    filename,
		URL:         put.URL,
		Thumb:       adapterutil.JoinURL(cfg.Site.URL, "thumb/"+filename),
		MD5:         sums.MD5,
		SHA1:        sums.SHA1,
		Safe:        safe,
		Label:       label,
		StorageType: adapter.Type().String(),
		FilePath:    put.Ref,
		UserID:      userID,
		Width:       result.Width,
		Height:      result.Height,
		SizeBytes:   finalSize,
		Format:      result.Format,
		IP:          req.IP,
		Tags:        []string{},
	}
	audit := &AuditEntry{
		UserID:       userID,
		IP:           req.IP,
		Country:      loc.Country,
		Region:       loc.Region,
		Province:     loc.Province,
		City:         loc.City,
		ISP:          loc.ISP,
		OriginalName: req.OriginalName,
		SizeBytes:    finalSize,
		Format:       result.Format,
		Width:        result.Width,
		Height:       result.Height,
		MD5:          sums.MD5,
		SHA1:         sums.SHA1,
		Filename:     filename,
	}

	err = s.store.CreateAssetWithAudit(ctx, asset, audit)
	if errors.Is(err, ErrDuplicateContent) {
		// Lost the dedup race: another writer persisted the same bytes
		// between our pre-check and the insert. Our artifacts are
		// disposable; the winner's record is the asset.
		s.rollbackPut(ctx, adapter, put.Ref)
		removeIfExists(thumbPath)
		winner, ferr := s.store.FindAssetByMD5(ctx, sums.MD5)
		if ferr != nil {
			return nil, fmt.Errorf("upload: reconcile duplicate: %w", ferr)
		}
		return winner, nil
	}
	if err != nil {
		s.rollbackPut(ctx, adapter, put.Ref)
		removeIfExists(thumbPath)
		return nil, fmt.Errorf("upload: %w", err)
	}

	s.logger.Info("upload recorded",
		slog.String("asset_id", asset.ID),
		slog.String("storage", asset.StorageType),
		slog.String("md5", asset.MD5),
		slog.Int64("size", asset.SizeBytes))
	return asset, nil
}

// Delete removes an asset end to end: backend object first, then the local
// thumbnail, then the metadata record. The audit entry cascades with the
// record.
func (s *Service) Delete(ctx context.Context, cfg *config.Config, id string) error {
	asset, err := s.store.GetAsset(ctx, id)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	adapter, ok := s.registry.Get(storage.Type(asset.StorageType))
	if !ok {
		return configErr("storage backend %q is not configured", asset.StorageType)
	}
	if err := adapter.Delete(ctx, asset.FilePath); err != nil {
		return backendErr(adapter.Type(), err)
	}

	removeIfExists(filepath.Join(cfg.Upload.ThumbDir, asset.Filename))

	if err := s.store.DeleteAsset(ctx, id); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	s.logger.Info("asset deleted",
		slog.String("asset_id", id),
		slog.String("storage", asset.StorageType))
	return nil
}

// moderate runs the safety check and evaluates the policy action on the
// verdict. The action is evaluated here, never inside the provider.
func (s *Service) moderate(ctx context.Context, cfg *config.Config, spool string,
	size int64, info imgproc.Info) (moderation.Result, error) {
	res, err := s.inspector.Inspect(ctx, moderation.Source{
		Path:      spool,
		SizeBytes: size,
		Width:     info.Width,
		Height:    info.Height,
	})
	if err != nil {
		if errors.Is(err, moderation.ErrLimitExceeded) {
			return moderation.Result{}, &Error{
				Kind:    KindValidation,
				Message: err.Error(),
				Limit:   s.inspector.Name(),
			}
		}
		return moderation.Result{}, &Error{
			Kind:    KindTransientBackend,
			Message: fmt.Sprintf("moderation provider %s failed", s.inspector.Name()),
			Err:     err,
		}
	}
	if res.Verdict == moderation.VerdictBlock && cfg.Moderation.Action == "reject" {
		return moderation.Result{}, moderationBlockedErr(res.Label)
	}
	return res, nil
}

// spool writes the request body to a temp file in the spool directory,
// hashing in the same pass and enforcing the policy byte limit.
func (s *Service) spool(cfg *config.Config, policy config.UploadPolicy, req Request) (string, hashing.Sums, int64, error) {
	if err := os.MkdirAll(cfg.Upload.SpoolDir, 0o755); err != nil {
		return "", hashing.Sums{}, 0, fmt.Errorf("upload: spool dir: %w", err)
	}
	f, err := os.CreateTemp(cfg.Upload.SpoolDir, "upload-*")
	if err != nil {
		return "", hashing.Sums{}, 0, fmt.Errorf("upload: spool: %w", err)
	}
	spool := f.Name()

	limit := policy.MaxSizeBytes()
	var body io.Reader = req.Body
	if limit > 0 {
		body = io.LimitReader(req.Body, limit+1)
	}
	sums, size, err := hashing.Stream(io.TeeReader(body, f))
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		removeIfExists(spool)
		return "", hashing.Sums{}, 0, fmt.Errorf("upload: spool: %w", err)
	}
	if limit > 0 && size > limit {
		removeIfExists(spool)
		return "", hashing.Sums{}, 0, &Error{
			Kind:    KindValidation,
			Message: fmt.Sprintf("file exceeds the %dMB size limit", policy.MaxSizeMB),
			Limit:   fmt.Sprintf("%dMB", policy.MaxSizeMB),
		}
	}
	return spool, sums, size, nil
}

// rollbackPut removes a stored backend object after a later stage failed.
// Best effort: a leaked object is preferable to masking the original error.
func (s *Service) rollbackPut(ctx context.Context, adapter storage.Adapter, ref string) {
	if err := adapter.Delete(ctx, ref); err != nil {
		s.logger.Warn("orphaned backend object",
			slog.String("backend", adapter.Type().String()),
			slog.String("ref", ref),
			slog.Any("error", err))
	}
}

// acquireSlot reserves a concurrency slot for the caller, keyed by address
// for guests, and returns the release func. Entries are removed once their
// last slot is released so churned guest addresses do not accumulate.
func (s *Service) acquireSlot(identity, ip string, weight int64) (func(), bool) {
	key := identity
	if key == "" {
		key = "ip:" + ip
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sems[key]
	if !ok {
		entry = &semEntry{sem: semaphore.NewWeighted(weight)}
		s.sems[key] = entry
	}
	if !entry.sem.TryAcquire(1) {
		return nil, false
	}
	entry.active++
	release := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		entry.sem.Release(1)
		entry.active--
		if entry.active == 0 {
			delete(s.sems, key)
		}
	}
	return release, true
}

func identityRef(identity string) *string {
	if identity == "" {
		return nil
	}
	return &identity
}

func installThumb(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("install thumbnail: %w", err)
	}
	return nil
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// removeIfExists deletes each path, ignoring already-gone files so
// double-cleanup stays safe.
func removeIfExists(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			slog.Warn("temp artifact not removed", slog.String("path", p), slog.Any("error", err))
		}
	}
}
