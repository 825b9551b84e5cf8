// Package update provides self-update functionality using GitHub releases.
package update

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const defaultAPIBase = "https://api.github.com"

// Release describes a GitHub release with the download URL for the current platform.
type Release struct {
	Version string `json:"version"`
	URL     string `json:"url"`
}

// githubRelease is the subset of the GitHub releases API response we use.
type githubRelease struct {
	TagName string        `json:"tag_name"`
	Assets  []githubAsset `json:"assets"`
}

type githubAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// Updater checks for and applies self-updates from GitHub releases.
type Updater struct {
	CurrentVersion string
	RepoOwner      string
	RepoName       string
	// Binary is the asset name prefix, e.g. "smarttodo" or "smarttodod".
	Binary string
	// APIBase overrides the GitHub API root; tests point it at httptest.
	APIBase string
	GOOS    string
	GOARCH  string

	httpClient *http.Client
}

// New returns an Updater for the given smarttodo binary.
func New(currentVersion, binary string) *Updater {
	return &Updater{
		CurrentVersion: currentVersion,
		RepoOwner:      "GoCodeAlone",
		RepoName:       "smarttodo",
		Binary:         binary,
		APIBase:        defaultAPIBase,
		GOOS:           runtime.GOOS,
		GOARCH:         runtime.GOARCH,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
	}
}

// CheckForUpdate queries the GitHub releases API for the latest release.
// Returns nil, nil when already on the latest version or running a dev build.
func (u *Updater) CheckForUpdate(ctx context.Context) (*Release, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/releases/latest",
		strings.TrimRight(u.APIBase, "/"), u.RepoOwner, u.RepoName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", fmt.Sprintf("%s/%s", u.Binary, u.CurrentVersion))

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch latest release: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github API returned %d", resp.StatusCode)
	}

	var rel githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return nil, fmt.Errorf("decode release: %w", err)
	}

	latest := strings.TrimPrefix(rel.TagName, "v")
	current := strings.TrimPrefix(u.CurrentVersion, "v")
	if latest == current || u.CurrentVersion == "dev" {
		return nil, nil
	}

	dlURL := u.assetURL(rel.Assets)
	if dlURL == "" {
		return nil, fmt.Errorf("no %s asset found for %s/%s", u.Binary, u.GOOS, u.GOARCH)
	}
	return &Release{Version: rel.TagName, URL: dlURL}, nil
}

// assetURL finds the download URL for this binary, OS and architecture.
// Asset names look like smarttodo_linux_x86_64.
func (u *Updater) assetURL(assets []githubAsset) string {
	goarch := u.GOARCH
	if goarch == "amd64" {
		goarch = "x86_64"
	}
	prefix := strings.ToLower(u.Binary) + "_"
	for _, a := range assets {
		name := strings.ToLower(a.Name)
		if strings.HasPrefix(name, prefix) && strings.Contains(name, u.GOOS) && strings.Contains(name, goarch) {
			return a.BrowserDownloadURL
		}
	}
	return ""
}

// ApplyUpdate downloads the release binary and replaces the running executable.
func (u *Updater) ApplyUpdate(ctx context.Context, release *Release) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	return u.install(ctx, release, exe)
}

// install downloads release next to target and renames it over target.
func (u *Updater) install(ctx context.Context, release *Release, target string) error {
	// Same directory as the target so the final rename does not cross devices.
	tmpFile, err := os.CreateTemp(filepath.Dir(target), u.Binary+"-update-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		tmpFile.Close()    //nolint:errcheck
		os.Remove(tmpPath) //nolint:errcheck
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, release.URL, nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}
	resp, err := u.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download release: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download returned %d", resp.StatusCode)
	}

	if _, err := io.Copy(tmpFile, resp.Body); err != nil {
		return fmt.Errorf("write download: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o755); err != nil {
		return fmt.Errorf("chmod: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("replace binary: %w", err)
	}
	return nil
}
