package resource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const zstdExt = ".zst"

var decoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))

func decompress(data []byte) ([]byte, error) {
	return decoder.DecodeAll(data, nil)
}

// DirLoader reads resources from a directory. A key is served from
// "<root>/<key>" or, failing that, from the zstd-compressed "<root>/<key>.zst".
type DirLoader struct {
	Root string
}

func (l DirLoader) Load(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !fs.ValidPath(key) {
		return nil, fmt.Errorf("%w: invalid key %q", ErrNotFound, key)
	}
	path := filepath.Join(l.Root, filepath.FromSlash(key))

	data, err := os.ReadFile(path)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	data, err = os.ReadFile(path + zstdExt)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	return decompress(data)
}

// HTTPLoader fetches resources from BaseURL + key. Keys ending in ".zst"
// are decompressed.
type HTTPLoader struct {
	BaseURL string
	Client  *http.Client
}

func (l HTTPLoader) Load(ctx context.Context, key string) ([]byte, error) {
	u, err := url.JoinPath(l.BaseURL, key)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, u)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("seedtiles: fetching %s: %s", u, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(key, zstdExt) {
		return decompress(data)
	}
	return data, nil
}
