package ota

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/stefanposs/webmacs/infrastructure/database"
	"github.com/stefanposs/webmacs/infrastructure/logging"
	"github.com/stefanposs/webmacs/internal/model"
	"github.com/stefanposs/webmacs/internal/store"
)

const downloadTimeout = 30 * time.Second

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// FirmwareStore is the subset of the persistence gateway the state machine
// needs.
type FirmwareStore interface {
	GetFirmwareUpdateByPublicID(ctx context.Context, publicID string) (model.FirmwareUpdate, error)
	TransitionFirmwareUpdate(ctx context.Context, publicID string, to model.FirmwareStatus, fields store.FirmwareTransitionFields) (model.FirmwareUpdate, error)
	ListFirmwareUpdates(ctx context.Context, page database.Page) ([]model.FirmwareUpdate, int, error)
}

// StateMachine drives FirmwareUpdate transitions and the download/verify
// pipeline.
type StateMachine struct {
	store     FirmwareStore
	updateDir string
	client    *http.Client
	logger    *logging.Logger
}

// New constructs a StateMachine. updateDir is where downloaded bundles
// land (UPDATE_DIR).
func New(firmwareStore FirmwareStore, updateDir string, logger *logging.Logger) *StateMachine {
	if logger == nil {
		logger = logging.NewFromEnv("ota")
	}
	return &StateMachine{
		store:     firmwareStore,
		updateDir: updateDir,
		client:    &http.Client{Timeout: downloadTimeout},
		logger:    logger,
	}
}

// Rollback performs the completed -> rolled_back transition (§4.H).
func (s *StateMachine) Rollback(ctx context.Context, publicID string) (model.FirmwareUpdate, error) {
	return s.store.TransitionFirmwareUpdate(ctx, publicID, model.FirmwareRolledBack, store.FirmwareTransitionFields{})
}

// Apply runs the apply-with-download flow (§4.H). When downloadURL is
// empty, the update moves straight from pending to completed (no bundle
// to fetch), matching the pending -> completed transition the table
// allows directly.
func (s *StateMachine) Apply(ctx context.Context, publicID, downloadURL, expectedHash string) (model.FirmwareUpdate, error) {
	current, err := s.store.GetFirmwareUpdateByPublicID(ctx, publicID)
	if err != nil {
		return model.FirmwareUpdate{}, err
	}

	if downloadURL == "" {
		return s.store.TransitionFirmwareUpdate(ctx, publicID, model.FirmwareCompleted, store.FirmwareTransitionFields{
			CompletedOn: timePtr(time.Now().UTC()),
		})
	}

	now := time.Now().UTC()
	if _, err := s.store.TransitionFirmwareUpdate(ctx, publicID, model.FirmwareDownloading, store.FirmwareTransitionFields{
		StartedOn: &now,
	}); err != nil {
		return model.FirmwareUpdate{}, err
	}

	filePath := s.bundlePath(current.Version)
	size, hash, err := s.download(ctx, downloadURL, filePath)
	if err != nil {
		_ = os.Remove(filePath)
		msg := err.Error()
		return s.store.TransitionFirmwareUpdate(ctx, publicID, model.FirmwareFailed, store.FirmwareTransitionFields{ErrorMessage: &msg})
	}

	if _, err := s.store.TransitionFirmwareUpdate(ctx, publicID, model.FirmwareVerifying, store.FirmwareTransitionFields{
		FilePath:       &filePath,
		FileHashSHA256: &hash,
		FileSizeBytes:  &size,
	}); err != nil {
		return model.FirmwareUpdate{}, err
	}

	if expectedHash != "" && !strings.EqualFold(expectedHash, hash) {
		_ = os.Remove(filePath)
		msg := "SHA-256 hash verification failed"
		return s.store.TransitionFirmwareUpdate(ctx, publicID, model.FirmwareFailed, store.FirmwareTransitionFields{ErrorMessage: &msg})
	}

	if _, err := s.store.TransitionFirmwareUpdate(ctx, publicID, model.FirmwareApplying, store.FirmwareTransitionFields{}); err != nil {
		return model.FirmwareUpdate{}, err
	}

	if err := s.reverifyHash(filePath, hash); err != nil {
		msg := err.Error()
		return s.store.TransitionFirmwareUpdate(ctx, publicID, model.FirmwareFailed, store.FirmwareTransitionFields{ErrorMessage: &msg})
	}

	completedOn := time.Now().UTC()
	return s.store.TransitionFirmwareUpdate(ctx, publicID, model.FirmwareCompleted, store.FirmwareTransitionFields{
		CompletedOn: &completedOn,
	})
}

// download streams url to destPath, hashing incrementally, and returns the
// file size and hex-encoded SHA-256 digest.
func (s *StateMachine) download(ctx context.Context, url, destPath string) (int64, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, "", fmt.Errorf("download failed: status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return 0, "", err
	}
	out, err := os.Create(destPath)
	if err != nil {
		return 0, "", err
	}
	defer out.Close()

	hasher := sha256.New()
	size, err := io.Copy(out, io.TeeReader(resp.Body, hasher))
	if err != nil {
		return 0, "", err
	}
	return size, hex.EncodeToString(hasher.Sum(nil)), nil
}

// reverifyHash re-reads the stored file and compares its hash, guarding
// against corruption between verifying and applying (§4.H step 6).
func (s *StateMachine) reverifyHash(filePath, expected string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return err
	}
	actual := hex.EncodeToString(hasher.Sum(nil))
	if !strings.EqualFold(actual, expected) {
		return fmt.Errorf("SHA-256 hash verification failed")
	}
	return nil
}

func (s *StateMachine) bundlePath(version string) string {
	sanitized := unsafeFilenameChars.ReplaceAllString(version, "_")
	return filepath.Join(s.updateDir, fmt.Sprintf("firmware-%s.tar.gz", sanitized))
}

func timePtr(t time.Time) *time.Time { return &t }
