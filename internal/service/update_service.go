package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/crlx1q/antimat/internal/apperr"
	"github.com/crlx1q/antimat/internal/ids"
	"github.com/crlx1q/antimat/internal/models"
	"github.com/crlx1q/antimat/internal/repository"
	"github.com/crlx1q/antimat/internal/storage"
)

const (
	updateListLimit = 50
	releasePrefix   = "releases/"
	uploadPrefix    = "tmp/"
	downloadPath    = "/download/" + models.CurrentReleaseName
)

// ArtifactStore is the part of storage.ObjectStore the release flow uses.
type ArtifactStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (storage.ObjectInfo, error)
	Copy(ctx context.Context, src, dst string) error
	Remove(ctx context.Context, key string) error
	Open(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error)
}

type UpdateService struct {
	updates   *repository.UpdateRepository
	store     ArtifactStore
	maxUpload int64
	baseURL   string
	log       zerolog.Logger
	now       func() time.Time
}

func NewUpdateService(updates *repository.UpdateRepository, store ArtifactStore, maxUpload int64, baseURL string, log zerolog.Logger) *UpdateService {
	return &UpdateService{
		updates:   updates,
		store:     store,
		maxUpload: maxUpload,
		baseURL:   strings.TrimRight(baseURL, "/"),
		log:       log,
		now:       time.Now,
	}
}

type UploadInput struct {
	Version     string
	Title       string
	Description string
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

func releaseKey(version string) string {
	return releasePrefix + version + ".apk"
}

func isAPK(fileName, contentType string) bool {
	if strings.EqualFold(path.Ext(fileName), ".apk") {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(strings.Split(contentType, ";")[0]), models.APKContentType)
}

// Upload stores a new release and points the current download at it. The
// file lands under a temporary key first so a failed upload never replaces
// the current release.
func (s *UpdateService) Upload(ctx context.Context, input UploadInput) (models.Update, error) {
	if input.Body == nil || input.Size <= 0 {
		return models.Update{}, ErrFileRequired
	}
	if s.maxUpload > 0 && input.Size > s.maxUpload {
		return models.Update{}, ErrFileTooLarge.WithMessage("Файл больше %d МБ", s.maxUpload>>20)
	}
	if !isAPK(input.FileName, input.ContentType) {
		return models.Update{}, ErrNotAPK
	}
	version := strings.TrimSpace(input.Version)
	if _, err := ParseVersion(version); err != nil {
		return models.Update{}, err
	}

	exists, err := s.updates.VersionExists(ctx, version)
	if err != nil {
		return models.Update{}, apperr.Internal(err)
	}
	if exists {
		return models.Update{}, ErrVersionExists
	}

	tmp := uploadPrefix + ids.New() + ".apk"
	info, err := s.store.Put(ctx, tmp, input.Body, input.Size, models.APKContentType)
	if err != nil {
		return models.Update{}, apperr.Internal(fmt.Errorf("store upload: %w", err))
	}
	defer func() {
		if err := s.store.Remove(context.WithoutCancel(ctx), tmp); err != nil {
			s.log.Warn().Err(err).Str("key", tmp).Msg("remove temporary upload failed")
		}
	}()

	key := releaseKey(version)
	if err := s.store.Copy(ctx, tmp, key); err != nil {
		return models.Update{}, apperr.Internal(fmt.Errorf("store release: %w", err))
	}

	update, err := s.updates.Create(ctx, models.Update{
		Version:     version,
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		FilePath:    key,
		FileName:    models.CurrentReleaseName,
		FileSize:    info.Size,
		CreatedAt:   s.now().UTC(),
	})
	if err != nil {
		if rmErr := s.store.Remove(ctx, key); rmErr != nil {
			s.log.Warn().Err(rmErr).Str("key", key).Msg("remove orphan release failed")
		}
		if errors.Is(err, repository.ErrVersionExists) {
			return models.Update{}, ErrVersionExists
		}
		return models.Update{}, apperr.Internal(err)
	}

	if err := s.store.Copy(ctx, key, models.CurrentReleaseName); err != nil {
		return models.Update{}, apperr.Internal(fmt.Errorf("point current release: %w", err))
	}

	s.log.Info().Str("version", version).Int64("size", info.Size).Msg("release uploaded")
	return update, nil
}

func (s *UpdateService) List(ctx context.Context) ([]models.Update, error) {
	updates, err := s.updates.List(ctx, updateListLimit)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return updates, nil
}

// Delete removes a release. When it was the current one, the download is
// re-pointed at the previous release, or removed if none is left.
func (s *UpdateService) Delete(ctx context.Context, id primitive.ObjectID) error {
	update, err := s.updates.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUpdateNotFound) {
			return ErrUpdateNotFound
		}
		return apperr.Internal(err)
	}
	latest, err := s.updates.Latest(ctx)
	if err != nil && !errors.Is(err, repository.ErrUpdateNotFound) {
		return apperr.Internal(err)
	}
	wasCurrent := err == nil && latest.ID == update.ID

	if err := s.updates.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrUpdateNotFound) {
			return ErrUpdateNotFound
		}
		return apperr.Internal(err)
	}
	if update.FilePath != "" {
		if err := s.store.Remove(ctx, update.FilePath); err != nil {
			s.log.Warn().Err(err).Str("key", update.FilePath).Msg("remove release artifact failed")
		}
	}

	if wasCurrent {
		if err := s.repoint(ctx); err != nil {
			return apperr.Internal(err)
		}
	}
	s.log.Info().Str("version", update.Version).Bool("was_current", wasCurrent).Msg("release deleted")
	return nil
}

func (s *UpdateService) repoint(ctx context.Context) error {
	previous, err := s.updates.Latest(ctx)
	if errors.Is(err, repository.ErrUpdateNotFound) {
		return s.store.Remove(ctx, models.CurrentReleaseName)
	}
	if err != nil {
		return err
	}
	if err := s.store.Copy(ctx, previous.FilePath, models.CurrentReleaseName); err != nil {
		return fmt.Errorf("point current release at %s: %w", previous.Version, err)
	}
	return nil
}

type CheckResult struct {
	HasUpdate      bool
	CurrentVersion string
	LatestVersion  string
	Title          string
	Description    string
	DownloadURL    string
	FileSize       int64
	FileName       string
}

func (s *UpdateService) Check(ctx context.Context, currentVersion string) (CheckResult, error) {
	currentVersion = strings.TrimSpace(currentVersion)
	if currentVersion == "" {
		return CheckResult{}, ErrVersionRequired.WithMessage("Текущая версия обязательна")
	}
	latest, err := s.updates.Latest(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrUpdateNotFound) {
			return CheckResult{CurrentVersion: currentVersion}, nil
		}
		return CheckResult{}, apperr.Internal(err)
	}

	result := CheckResult{CurrentVersion: currentVersion, LatestVersion: latest.Version}
	if CompareVersions(latest.Version, currentVersion) <= 0 {
		return result, nil
	}

	result.HasUpdate = true
	result.Title = latest.Title
	if result.Title == "" {
		result.Title = "Доступно обновление"
	}
	result.Description = latest.Description
	if result.Description == "" {
		result.Description = "Новая версия приложения доступна для скачивания"
	}
	result.DownloadURL = s.baseURL + downloadPath
	result.FileSize = latest.FileSize
	result.FileName = latest.FileName
	return result, nil
}

// Download opens the current release. The caller closes the reader.
func (s *UpdateService) Download(ctx context.Context) (io.ReadCloser, storage.ObjectInfo, error) {
	rc, info, err := s.store.Open(ctx, models.CurrentReleaseName)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, storage.ObjectInfo{}, ErrNoRelease
		}
		return nil, storage.ObjectInfo{}, apperr.Internal(err)
	}
	return rc, info, nil
}
