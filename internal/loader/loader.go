// Package loader reads content from a local path or an http(s) URL.
package loader

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// Load returns the content behind pathOrURL. Anything starting with "http" is
// fetched over HTTP; everything else is read from disk.
func Load(pathOrURL string) (string, error) {
	if strings.HasPrefix(pathOrURL, "http") {
		return loadHTTP(pathOrURL)
	}

	data, err := os.ReadFile(pathOrURL)
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", pathOrURL, err)
	}
	return string(data), nil
}

func loadHTTP(url string) (string, error) {
	resp, err := http.Get(url)
	if err != nil {
		return "", fmt.Errorf("failed to load url %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("failed to load url %s: %s", url, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response from %s: %w", url, err)
	}
	return string(body), nil
}
