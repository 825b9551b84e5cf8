package update

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func newTestUpdater(t *testing.T, current string, handler http.HandlerFunc) *Updater {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	u := New(current, "smarttodo")
	u.APIBase = srv.URL
	u.GOOS, u.GOARCH = "linux", "amd64"
	return u
}

func releaseHandler(t *testing.T, assetBase *string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/GoCodeAlone/smarttodo/releases/latest" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tag_name":"v1.2.0","assets":[
			{"name":"smarttodod_linux_x86_64","browser_download_url":"` + *assetBase + `/smarttodod"},
			{"name":"smarttodo_darwin_arm64","browser_download_url":"` + *assetBase + `/darwin"},
			{"name":"smarttodo_linux_x86_64","browser_download_url":"` + *assetBase + `/linux"}
		]}`))
	}
}

func TestCheckForUpdate(t *testing.T) {
	base := "https://dl.example"
	u := newTestUpdater(t, "v1.1.0", releaseHandler(t, &base))

	rel, err := u.CheckForUpdate(context.Background())
	if err != nil {
		t.Fatalf("CheckForUpdate: %v", err)
	}
	if rel == nil || rel.Version != "v1.2.0" || rel.URL != base+"/linux" {
		t.Errorf("release = %+v", rel)
	}
}

func TestCheckForUpdate_UpToDate(t *testing.T) {
	base := "https://dl.example"
	for _, current := range []string{"1.2.0", "v1.2.0", "dev"} {
		u := newTestUpdater(t, current, releaseHandler(t, &base))
		rel, err := u.CheckForUpdate(context.Background())
		if err != nil || rel != nil {
			t.Errorf("current %s: got %+v, %v; want nil, nil", current, rel, err)
		}
	}
}

func TestCheckForUpdate_NoAsset(t *testing.T) {
	base := "https://dl.example"
	u := newTestUpdater(t, "v1.0.0", releaseHandler(t, &base))
	u.GOOS = "windows"
	if _, err := u.CheckForUpdate(context.Background()); err == nil {
		t.Fatal("expected error when no asset matches")
	}
}

func TestCheckForUpdate_APIError(t *testing.T) {
	u := newTestUpdater(t, "v1.0.0", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	if _, err := u.CheckForUpdate(context.Background()); err == nil {
		t.Fatal("expected error on 403")
	}
}

func TestInstall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("new binary"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	target := filepath.Join(dir, "smarttodo")
	if err := os.WriteFile(target, []byte("old binary"), 0o755); err != nil {
		t.Fatal(err)
	}

	u := New("v1.0.0", "smarttodo")
	if err := u.install(context.Background(), &Release{Version: "v1.1.0", URL: srv.URL}, target); err != nil {
		t.Fatalf("install: %v", err)
	}
	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "new binary" {
		t.Errorf("target = %q", got)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("temp file left behind: %v", entries)
	}
}
