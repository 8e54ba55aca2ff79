package ota

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/stefanposs/webmacs/infrastructure/database"
	"github.com/stefanposs/webmacs/infrastructure/logging"
	"github.com/stefanposs/webmacs/internal/model"
)

const releaseIndexTimeout = 8 * time.Second

// CheckResult is the /ota/check response envelope (§6).
type CheckResult struct {
	CurrentVersion  string  `json:"current_version"`
	LatestVersion   string  `json:"latest_version,omitempty"`
	UpdateAvailable bool    `json:"update_available"`
	Source          string  `json:"source,omitempty"` // "local" or "github"
	GithubURL       string  `json:"github_url,omitempty"`
	Changelog       *string `json:"changelog,omitempty"`
}

// ReleaseIndex looks up a repository's latest GitHub release.
type ReleaseIndex struct {
	owner, repo string
	client      *http.Client
	logger      *logging.Logger
}

// NewReleaseIndex constructs a GitHub releases/latest client.
func NewReleaseIndex(owner, repo string, logger *logging.Logger) *ReleaseIndex {
	if logger == nil {
		logger = logging.NewFromEnv("ota")
	}
	return &ReleaseIndex{
		owner:  owner,
		repo:   repo,
		client: &http.Client{Timeout: releaseIndexTimeout},
		logger: logger,
	}
}

type githubRelease struct {
	TagName     string
	DownloadURL string
}

// Latest queries GET https://api.github.com/repos/{owner}/{repo}/releases/latest.
// A request failure or non-200 response is logged and treated as "no
// release available" rather than surfaced as an error, so update
// discovery degrades gracefully when GitHub is unreachable.
func (r *ReleaseIndex) Latest(ctx context.Context) (*githubRelease, error) {
	if r.owner == "" || r.repo == "" {
		return nil, nil
	}
	url := fmt.Sprintf("https://api.github.com/repos/%s/%s/releases/latest", r.owner, r.repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Warn("github release index unreachable")
		return nil, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		r.logger.WithContext(ctx).WithField("status", resp.StatusCode).Warn("github release index returned non-200")
		return nil, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	tag := gjson.GetBytes(body, "tag_name").String()
	assetURL := gjson.GetBytes(body, "assets.0.browser_download_url").String()
	if tag == "" {
		return nil, nil
	}
	return &githubRelease{TagName: normalizeTag(tag), DownloadURL: assetURL}, nil
}

func normalizeTag(tag string) string {
	if len(tag) > 0 && tag[0] == 'v' {
		return tag[1:]
	}
	return tag
}

// Check merges the local firmware table (pending/completed rows newer
// than runningVersion) with the GitHub release index, reporting whichever
// candidate carries the higher version (§4.H update discovery).
func (s *StateMachine) Check(ctx context.Context, runningVersion string, releases *ReleaseIndex) (CheckResult, error) {
	result := CheckResult{CurrentVersion: runningVersion}

	updates, _, err := s.store.ListFirmwareUpdates(ctx, database.Page{Page: 1, PageSize: 100})
	if err != nil {
		return CheckResult{}, err
	}

	best := runningVersion
	for _, u := range updates {
		if u.Status != model.FirmwarePending && u.Status != model.FirmwareCompleted {
			continue
		}
		if Newer(u.Version, runningVersion) && Newer(u.Version, best) {
			best = u.Version
			result.LatestVersion = u.Version
			result.Source = "local"
			result.Changelog = &u.Changelog
		}
	}

	if releases != nil {
		release, err := releases.Latest(ctx)
		if err == nil && release != nil && Newer(release.TagName, best) {
			best = release.TagName
			result.LatestVersion = release.TagName
			result.Source = "github"
			result.GithubURL = release.DownloadURL
			result.Changelog = nil
		}
	}

	result.UpdateAvailable = result.LatestVersion != "" && Newer(result.LatestVersion, runningVersion)
	return result, nil
}
