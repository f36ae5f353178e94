package upload

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/picfort/picfort/internal/config"
	"github.com/picfort/picfort/internal/imgproc"
	"github.com/picfort/picfort/internal/moderation"
	"github.com/picfort/picfort/internal/storage"
)

type fakeStore struct {
	byMD5     map[string]*Asset
	created   []*Asset
	createErr error
	blocked   bool
	today     int
	blockedIP string
	// missFirstFind makes the next FindAssetByMD5 report a miss, simulating
	// a concurrent writer landing between the pre-check and the insert.
	missFirstFind bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{byMD5: map[string]*Asset{}}
}

func (s *fakeStore) FindAssetByMD5(_ context.Context, md5 string) (*Asset, error) {
	if s.missFirstFind {
		s.missFirstFind = false
		return nil, ErrAssetNotFound
	}
	if a, ok := s.byMD5[md5]; ok {
		return a, nil
	}
	return nil, ErrAssetNotFound
}

func (s *fakeStore) GetAsset(_ context.Context, id string) (*Asset, error) {
	for _, a := range s.byMD5 {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, ErrAssetNotFound
}

func (s *fakeStore) CreateAssetWithAudit(_ context.Context, a *Asset, _ *AuditEntry) error {
	if s.createErr != nil {
		err := s.createErr
		s.createErr = nil
		return err
	}
	if _, ok := s.byMD5[a.MD5]; ok {
		return ErrDuplicateContent
	}
	a.ID = "asset-" + a.MD5[:8]
	s.byMD5[a.MD5] = a
	s.created = append(s.created, a)
	return nil
}

func (s *fakeStore) DeleteAsset(_ context.Context, id string) error {
	for md5, a := range s.byMD5 {
		if a.ID == id {
			delete(s.byMD5, md5)
			return nil
		}
	}
	return ErrAssetNotFound
}

func (s *fakeStore) CountUploadsToday(context.Context, *string, string) (int, error) {
	return s.today, nil
}

func (s *fakeStore) IsBlocked(context.Context, string) (bool, error) {
	return s.blocked, nil
}

func (s *fakeStore) BlockIP(_ context.Context, ip string) error {
	s.blockedIP = ip
	return nil
}

type fakeAdapter struct {
	puts    []string
	deleted []string
	putErr  error
}

func (a *fakeAdapter) Type() storage.Type { return storage.Type("fake") }

func (a *fakeAdapter) Put(_ context.Context, _ string, key string) (storage.PutResult, error) {
	if a.putErr != nil {
		return storage.PutResult{}, a.putErr
	}
	a.puts = append(a.puts, key)
	return storage.PutResult{URL: "https://cdn.example.com/" + key, Ref: key}, nil
}

func (a *fakeAdapter) Delete(_ context.Context, ref string) error {
	a.deleted = append(a.deleted, ref)
	return nil
}

type fakeInspector struct {
	result moderation.Result
	err    error
}

func (i fakeInspector) Name() string { return "fake" }

func (i fakeInspector) Inspect(context.Context, moderation.Source) (moderation.Result, error) {
	return i.result, i.err
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	policy := config.UploadPolicy{
		AllowedFormats: []string{"png", "jpeg", "gif"},
		MaxSizeMB:      5,
		Catalogue:      "images/{Y}",
		NamingRule:     "{md5}.{ext}",
		StorageType:    "fake",
	}
	cfg := &config.Config{}
	cfg.Site.URL = "https://img.example.com"
	cfg.Upload.SpoolDir = filepath.Join(t.TempDir(), "spool")
	cfg.Upload.ThumbDir = filepath.Join(t.TempDir(), "thumb")
	cfg.Policy.Default = policy
	cfg.Policy.Guest = policy
	return cfg
}

func pngBody(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for i := range img.Pix {
		img.Pix[i] = byte(i)
	}
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newTestService(store Store, adapter storage.Adapter, inspector moderation.Inspector) *Service {
	registry := storage.NewRegistry()
	registry.MustRegister(adapter)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store, registry, imgproc.NewProcessor(log), inspector, nil, log)
}

func uploadRequest(body []byte) Request {
	return Request{
		Body:         bytes.NewReader(body),
		OriginalName: "photo.png",
		IP:           "203.0.113.9",
	}
}

func TestUploadStoresAndRecords(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	adapter := &fakeAdapter{}
	svc := newTestService(store, adapter, nil)
	cfg := testConfig(t)

	asset, err := svc.Upload(context.Background(), cfg, uploadRequest(pngBody(t)))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if len(adapter.puts) != 1 {
		t.Fatalf("backend puts = %d, want 1", len(adapter.puts))
	}
	if asset.URL != "https://cdn.example.com/"+adapter.puts[0] {
		t.Errorf("URL = %q", asset.URL)
	}
	if asset.Width != 64 || asset.Height != 48 {
		t.Errorf("dimensions = %dx%d, want 64x48", asset.Width, asset.Height)
	}
	if asset.Safe != "Pass" || asset.Label != "Normal" {
		t.Errorf("safe/label = %q/%q", asset.Safe, asset.Label)
	}
	if asset.FilePath != adapter.puts[0] {
		t.Errorf("FilePath = %q, want %q", asset.FilePath, adapter.puts[0])
	}
	thumb := filepath.Join(cfg.Upload.ThumbDir, asset.Filename)
	if _, err := os.Stat(thumb); err != nil {
		t.Errorf("thumbnail missing: %v", err)
	}
	assertSpoolEmpty(t, cfg.Upload.SpoolDir)
}

func TestUploadReuploadIsIdempotent(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	adapter := &fakeAdapter{}
	svc := newTestService(store, adapter, nil)
	cfg := testConfig(t)
	body := pngBody(t)

	first, err := svc.Upload(context.Background(), cfg, uploadRequest(body))
	if err != nil {
		t.Fatalf("first Upload: %v", err)
	}
	second, err := svc.Upload(context.Background(), cfg, uploadRequest(body))
	if err != nil {
		t.Fatalf("second Upload: %v", err)
	}
	if second.ID != first.ID || second.MD5 != first.MD5 {
		t.Errorf("re-upload returned a different asset: %q vs %q", second.ID, first.ID)
	}
	if len(adapter.puts) != 1 {
		t.Errorf("backend puts = %d, want 1", len(adapter.puts))
	}
}

func TestUploadClientMD5FastPath(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	existing := &Asset{ID: "asset-1", MD5: "d41d8cd98f00b204e9800998ecf8427e"}
	store.byMD5[existing.MD5] = existing
	adapter := &fakeAdapter{}
	svc := newTestService(store, adapter, nil)
	cfg := testConfig(t)

	req := Request{
		Body:         failingReader{}, // must not be read on the fast path
		OriginalName: "photo.png",
		ClientMD5:    existing.MD5,
		IP:           "203.0.113.9",
	}
	asset, err := svc.Upload(context.Background(), cfg, req)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if asset.ID != existing.ID {
		t.Errorf("asset = %q, want %q", asset.ID, existing.ID)
	}
	if len(adapter.puts) != 0 {
		t.Errorf("backend puts = %d, want 0", len(adapter.puts))
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("body read on fast path") }

func TestUploadFailedPutLeavesNoRecord(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	adapter := &fakeAdapter{putErr: errors.New("bucket unavailable")}
	svc := newTestService(store, adapter, nil)
	cfg := testConfig(t)

	_, err := svc.Upload(context.Background(), cfg, uploadRequest(pngBody(t)))
	uerr, ok := AsError(err)
	if !ok || uerr.Kind != KindTransientBackend {
		t.Fatalf("err = %v, want transient backend error", err)
	}
	if uerr.Backend != storage.Type("fake") {
		t.Errorf("Backend = %q", uerr.Backend)
	}
	if len(store.created) != 0 {
		t.Errorf("asset was recorded despite failed put")
	}
	assertSpoolEmpty(t, cfg.Upload.SpoolDir)
}

func TestUploadModerationBlockRejects(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	adapter := &fakeAdapter{}
	inspector := fakeInspector{result: moderation.Result{Verdict: moderation.VerdictBlock, Label: "Porn"}}
	svc := newTestService(store, adapter, inspector)
	cfg := testConfig(t)
	cfg.Moderation.Enabled = true
	cfg.Moderation.Action = "reject"

	_, err := svc.Upload(context.Background(), cfg, uploadRequest(pngBody(t)))
	uerr, ok := AsError(err)
	if !ok || uerr.Kind != KindModerationBlocked {
		t.Fatalf("err = %v, want moderation blocked", err)
	}
	if len(adapter.puts) != 0 {
		t.Errorf("blocked upload reached the backend")
	}
	if len(store.created) != 0 {
		t.Errorf("blocked upload was recorded")
	}
	assertSpoolEmpty(t, cfg.Upload.SpoolDir)
}

func TestUploadModerationMarkProceeds(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	adapter := &fakeAdapter{}
	inspector := fakeInspector{result: moderation.Result{Verdict: moderation.VerdictBlock, Label: "Porn"}}
	svc := newTestService(store, adapter, inspector)
	cfg := testConfig(t)
	cfg.Moderation.Enabled = true
	cfg.Moderation.Action = "mark"

	asset, err := svc.Upload(context.Background(), cfg, uploadRequest(pngBody(t)))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if asset.Safe != "Block" || asset.Label != "Porn" {
		t.Errorf("safe/label = %q/%q, want Block/Porn", asset.Safe, asset.Label)
	}
}

func TestUploadDuplicateInsertReconciles(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	adapter := &fakeAdapter{}
	svc := newTestService(store, adapter, nil)
	cfg := testConfig(t)
	body := pngBody(t)

	winner := &Asset{ID: "asset-winner", MD5: contentMD5(t, body)}
	store.byMD5[winner.MD5] = winner
	// The pre-check misses, so the pipeline runs to the insert, which then
	// collides with the winner's record.
	store.missFirstFind = true

	asset, err := svc.Upload(context.Background(), cfg, Request{
		Body:         bytes.NewReader(body),
		OriginalName: "photo.png",
		IP:           "203.0.113.9",
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if asset.ID != winner.ID {
		t.Errorf("asset = %q, want winner %q", asset.ID, winner.ID)
	}
	if len(adapter.deleted) != 1 {
		t.Errorf("own backend object was not rolled back")
	}
	if len(store.created) != 0 {
		t.Errorf("loser's record was persisted")
	}
}

func contentMD5(t *testing.T, body []byte) string {
	t.Helper()
	sum := md5.Sum(body)
	return hex.EncodeToString(sum[:])
}

func TestUploadValidationPrecedesDedup(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	adapter := &fakeAdapter{}
	svc := newTestService(store, adapter, nil)
	cfg := testConfig(t)
	body := pngBody(t)

	// The content already exists, but the policy no longer allows its
	// format; the duplicate must be refused, not returned.
	store.byMD5[contentMD5(t, body)] = &Asset{ID: "asset-old", MD5: contentMD5(t, body)}
	cfg.Policy.Guest.AllowedFormats = []string{"jpeg"}

	_, err := svc.Upload(context.Background(), cfg, uploadRequest(body))
	uerr, ok := AsError(err)
	if !ok || uerr.Kind != KindValidation {
		t.Fatalf("err = %v, want validation error", err)
	}
	if len(adapter.puts) != 0 {
		t.Errorf("rejected upload reached the backend")
	}
}

func TestConcurrencySlotLimitAndEviction(t *testing.T) {
	t.Parallel()
	svc := newTestService(newFakeStore(), &fakeAdapter{}, nil)

	release, ok := svc.acquireSlot("", "203.0.113.9", 1)
	if !ok {
		t.Fatal("first slot refused")
	}
	if _, ok := svc.acquireSlot("", "203.0.113.9", 1); ok {
		t.Fatal("second slot granted beyond the limit")
	}
	if _, ok := svc.acquireSlot("", "203.0.113.10", 1); !ok {
		t.Fatal("other address refused")
	}

	release()
	svc.mu.Lock()
	_, held := svc.sems["ip:203.0.113.9"]
	svc.mu.Unlock()
	if held {
		t.Error("released entry was not evicted")
	}
}

func TestUploadLeavesNoSemaphoreEntries(t *testing.T) {
	t.Parallel()
	svc := newTestService(newFakeStore(), &fakeAdapter{}, nil)
	cfg := testConfig(t)
	cfg.Policy.Guest.ConcurrentUploads = 2

	if _, err := svc.Upload(context.Background(), cfg, uploadRequest(pngBody(t))); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	svc.mu.Lock()
	n := len(svc.sems)
	svc.mu.Unlock()
	if n != 0 {
		t.Errorf("semaphore entries left = %d, want 0", n)
	}
}

func TestUploadDailyLimit(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.today = 3
	svc := newTestService(store, &fakeAdapter{}, nil)
	cfg := testConfig(t)
	cfg.Policy.Guest.DailyLimit = 3

	_, err := svc.Upload(context.Background(), cfg, uploadRequest(pngBody(t)))
	uerr, ok := AsError(err)
	if !ok || uerr.Kind != KindPolicy {
		t.Fatalf("err = %v, want policy error", err)
	}
}

func TestUploadBlockedAddress(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.blocked = true
	svc := newTestService(store, &fakeAdapter{}, nil)
	cfg := testConfig(t)
	cfg.IP.Enabled = true

	_, err := svc.Upload(context.Background(), cfg, uploadRequest(pngBody(t)))
	uerr, ok := AsError(err)
	if !ok || uerr.Kind != KindPolicy {
		t.Fatalf("err = %v, want policy error", err)
	}
}

func TestUploadSizeLimit(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	svc := newTestService(store, &fakeAdapter{}, nil)
	cfg := testConfig(t)
	cfg.Policy.Guest.MaxSizeMB = 1

	big := bytes.Repeat([]byte{0xab}, 1<<20+1)
	_, err := svc.Upload(context.Background(), cfg, uploadRequest(big))
	uerr, ok := AsError(err)
	if !ok || uerr.Kind != KindValidation {
		t.Fatalf("err = %v, want validation error", err)
	}
	if uerr.Limit == "" {
		t.Errorf("limit not reported")
	}
	assertSpoolEmpty(t, cfg.Upload.SpoolDir)
}

func TestUploadDisallowedFormat(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	svc := newTestService(store, &fakeAdapter{}, nil)
	cfg := testConfig(t)
	cfg.Policy.Guest.AllowedFormats = []string{"jpeg"}

	_, err := svc.Upload(context.Background(), cfg, uploadRequest(pngBody(t)))
	uerr, ok := AsError(err)
	if !ok || uerr.Kind != KindValidation {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestUploadMissingBackendIsConfigError(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	svc := newTestService(store, &fakeAdapter{}, nil)
	cfg := testConfig(t)
	cfg.Policy.Guest.StorageType = "oss"

	_, err := svc.Upload(context.Background(), cfg, uploadRequest(pngBody(t)))
	uerr, ok := AsError(err)
	if !ok || uerr.Kind != KindConfiguration {
		t.Fatalf("err = %v, want configuration error", err)
	}
}

func TestDeleteRemovesEverything(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	adapter := &fakeAdapter{}
	svc := newTestService(store, adapter, nil)
	cfg := testConfig(t)

	asset, err := svc.Upload(context.Background(), cfg, uploadRequest(pngBody(t)))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	thumb := filepath.Join(cfg.Upload.ThumbDir, asset.Filename)

	if err := svc.Delete(context.Background(), cfg, asset.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(adapter.deleted) != 1 || adapter.deleted[0] != asset.FilePath {
		t.Errorf("backend deletes = %v, want [%s]", adapter.deleted, asset.FilePath)
	}
	if _, err := os.Stat(thumb); !os.IsNotExist(err) {
		t.Errorf("thumbnail still present")
	}
	if _, err := store.GetAsset(context.Background(), asset.ID); !errors.Is(err, ErrAssetNotFound) {
		t.Errorf("record still present")
	}
}

func TestDeleteUnknownAsset(t *testing.T) {
	t.Parallel()
	svc := newTestService(newFakeStore(), &fakeAdapter{}, nil)
	err := svc.Delete(context.Background(), testConfig(t), "nope")
	if !errors.Is(err, ErrAssetNotFound) {
		t.Fatalf("err = %v, want ErrAssetNotFound", err)
	}
}

func assertSpoolEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		t.Fatalf("read spool dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("spool dir not empty: %d entries left", len(entries))
	}
}
