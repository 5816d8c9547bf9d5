package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"whisper-desk/internal/domain"
	"whisper-desk/internal/prereq"
)

const (
	downloadAttempts = 3
	maxRedirects     = 5
	minModelBytes    = 1_000_000

	scriptDownloadTimeout = 45 * time.Minute
	userAgent             = "whisper-desk"
)

// httpDoer abstracts the HTTP client for download tests.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// newDownloadClient builds a client that never follows redirects on its
// own; the manual loop below enforces the redirect-count and
// Location-header contract.
func newDownloadClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// downloadModel fetches the model artifact with up to three attempts:
// attempt 1 is a direct HTTP download, attempts 2-3 fall back to the
// source repository's own download script. Backoff is linear in the
// attempt number. Exhaustion wraps the last cause and reports the count.
func (m *Manager) downloadModel(
	ctx context.Context,
	model domain.WhisperModelOption,
	pathSet domain.PathSet,
	search prereq.SearchContext,
) error {
	var lastErr error
	for attempt := 1; attempt <= downloadAttempts; attempt++ {
		var err error
		if attempt == 1 {
			err = m.directDownload(ctx, model.URL, pathSet.ModelPath)
		} else {
			err = m.scriptDownload(ctx, model, pathSet, search)
		}
		if err == nil {
			return nil
		}

		lastErr = err
		m.logf("model download attempt %d/%d failed: %v", attempt, downloadAttempts, err)
		if attempt < downloadAttempts {
			m.sleep(time.Duration(attempt) * time.Second)
		}
	}

	return &Error{
		Kind:    KindDownload,
		Message: fmt.Sprintf("model download failed after %d attempts", downloadAttempts),
		Err:     lastErr,
	}
}

// directDownload streams the artifact over HTTP(S), following at most
// maxRedirects redirects by hand, and validates a minimum size before
// moving the file into place.
func (m *Manager) directDownload(ctx context.Context, sourceURL, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("prepare destination directory: %w", err)
	}

	tmpPath := dest + ".download"
	if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale temp file: %w", err)
	}

	resp, err := m.fetchFollowingRedirects(ctx, sourceURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create temporary file: %w", err)
	}

	written, copyErr := io.Copy(file, resp.Body)
	closeErr := file.Close()
	if copyErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write destination file: %w", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close destination file: %w", closeErr)
	}

	// Truncated downloads masquerade as success; a real model is far larger.
	if written < minModelBytes {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("downloaded file is %d bytes, below the %d byte minimum", written, minModelBytes)
	}

	if err := os.Remove(dest); err != nil && !errors.Is(err, os.ErrNotExist) {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("remove old destination file: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("move downloaded file into place: %w", err)
	}
	return nil
}

// fetchFollowingRedirects issues the request chain and returns the final
// 200 response with its body open.
func (m *Manager) fetchFollowingRedirects(ctx context.Context, sourceURL string) (*http.Response, error) {
	current := sourceURL
	for redirects := 0; ; redirects++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := m.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request download: %w", err)
		}

		if isRedirect(resp.StatusCode) {
			location := resp.Header.Get("Location")
			_ = resp.Body.Close()
			if redirects >= maxRedirects {
				return nil, fmt.Errorf("too many redirects (limit %d) fetching %s", maxRedirects, sourceURL)
			}
			if location == "" {
				return nil, fmt.Errorf("redirect response %s is missing a Location header", resp.Status)
			}

			next, err := resolveRedirect(current, location)
			if err != nil {
				return nil, err
			}
			current = next
			continue
		}

		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("unexpected HTTP status: %s", resp.Status)
		}
		return resp, nil
	}
}

// scriptDownload invokes the cloned repository's own model download script
// through the scripting interpreter, then verifies the artifact landed.
func (m *Manager) scriptDownload(
	ctx context.Context,
	model domain.WhisperModelOption,
	pathSet domain.PathSet,
	search prereq.SearchContext,
) error {
	engineDir := pathSet.EngineDir
	scriptName := "download-ggml-model.sh"
	interpreter := "sh"
	args := []string{}
	if m.env.OS == "windows" {
		scriptName = "download-ggml-model.cmd"
		interpreter = "cmd"
		args = []string{"/c"}
	}

	scriptPath := filepath.Join(engineDir, "models", scriptName)
	if _, err := os.Stat(scriptPath); err != nil {
		return fmt.Errorf("download script not available at %s (source not cloned): %w", scriptPath, err)
	}
	args = append(args, scriptPath, model.ID, pathSet.ModelsDir)

	result, err := m.runner.Run(ctx, command{
		Name:    interpreter,
		Args:    args,
		Dir:     engineDir,
		Env:     search.Environ(m.environ()),
		Timeout: scriptDownloadTimeout,
	})
	if err != nil {
		return fmt.Errorf("download script failed (exit %d): %w", result.ExitCode, err)
	}

	info, err := os.Stat(pathSet.ModelPath)
	if err != nil {
		return fmt.Errorf("download script completed but model is missing at %s: %w", pathSet.ModelPath, err)
	}
	if info.Size() < minModelBytes {
		return fmt.Errorf("download script produced a %d byte file, below the %d byte minimum", info.Size(), minModelBytes)
	}
	return nil
}

// isRedirect reports whether a status code carries a Location follow-up.
func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently,
		http.StatusFound,
		http.StatusSeeOther,
		http.StatusTemporaryRedirect,
		http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}

// resolveRedirect resolves a possibly relative Location header.
func resolveRedirect(current, location string) (string, error) {
	base, err := url.Parse(current)
	if err != nil {
		return "", fmt.Errorf("parse current URL: %w", err)
	}
	ref, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("parse redirect location %q: %w", location, err)
	}
	return base.ResolveReference(ref).String(), nil
}
