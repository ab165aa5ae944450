// Package download fetches and caches the agent binary.
//
// Releases are published as gzip-compressed tarballs named
// "<name>-<version>-<triple>.tgz" under a base URL. The binary inside is
// extracted to "<dir>/<name>-<version>-<triple>/<binary>" and reused on
// later runs.
package download

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
)

const (
	DefaultName       = "scout_apm_core"
	DefaultBinaryName = "core-agent"

	maxBinarySize = 256 << 20
)

var (
	// ErrChecksumMismatch means the archive's SHA-256 differs from the expected value
	ErrChecksumMismatch = errors.New("agent archive checksum mismatch")
	// ErrBinaryNotFound means the archive holds no file with the binary's name
	ErrBinaryNotFound = errors.New("agent binary not found in archive")
	// ErrUnsupportedPlatform means no release triple exists for this OS/arch
	ErrUnsupportedPlatform = errors.New("no agent build for this platform")
)

// Options configures a Resolver
type Options struct {
	BaseURL    string
	Version    string
	Triple     string
	Dir        string
	SHA256     string
	Name       string
	BinaryName string
	RetryMax   int
	Logger     *zap.Logger
}

// Resolver locates the agent binary, downloading it when not cached
type Resolver struct {
	opts   Options
	client *retryablehttp.Client
	logger *zap.Logger

	mu sync.Mutex
}

// New creates a resolver. An empty triple is derived from the running platform.
func New(opts Options) (*Resolver, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	if opts.BinaryName == "" {
		opts.BinaryName = DefaultBinaryName
	}
	if opts.RetryMax < 0 {
		opts.RetryMax = 0
	}
	if opts.Triple == "" {
		triple, err := DefaultTriple()
		if err != nil {
			return nil, err
		}
		opts.Triple = triple
	}
	if opts.Dir == "" {
		opts.Dir = filepath.Join(os.TempDir(), "tracekit-agent")
	}

	client := retryablehttp.NewClient()
	client.RetryMax = opts.RetryMax
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = leveledLogger{opts.Logger.Sugar()}

	return &Resolver{opts: opts, client: client, logger: opts.Logger}, nil
}

// ArchiveName is the release name without extension
func (r *Resolver) ArchiveName() string {
	return fmt.Sprintf("%s-%s-%s", r.opts.Name, r.opts.Version, r.opts.Triple)
}

// URL is the release download URL
func (r *Resolver) URL() string {
	return strings.TrimSuffix(r.opts.BaseURL, "/") + "/" + r.ArchiveName() + ".tgz"
}

// BinaryPath is where the extracted binary lives
func (r *Resolver) BinaryPath() string {
	return filepath.Join(r.opts.Dir, r.ArchiveName(), r.opts.BinaryName)
}

// Cached reports whether an executable binary is already present
func (r *Resolver) Cached() bool {
	info, err := os.Stat(r.BinaryPath())
	return err == nil && info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0
}

// Resolve returns the binary path, downloading and extracting on a cache miss
func (r *Resolver) Resolve(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Cached() {
		return r.BinaryPath(), nil
	}

	dest := r.BinaryPath()
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create agent dir: %w", err)
	}

	archive, err := r.fetch(ctx)
	if err != nil {
		return "", err
	}
	defer os.Remove(archive)

	if err := r.extract(archive, dest); err != nil {
		return "", err
	}

	r.logger.Info("agent binary installed", zap.String("path", dest), zap.String("version", r.opts.Version))
	return dest, nil
}

// fetch downloads the archive to a temporary file, verifying the checksum
func (r *Resolver) fetch(ctx context.Context) (string, error) {
	url := r.URL()
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build download request: %w", err)
	}

	r.logger.Info("downloading agent", zap.String("url", url))
	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download agent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download agent: %s returned %s", url, resp.Status)
	}

	tmp, err := os.CreateTemp(r.opts.Dir, "download-*.tgz")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	sum := sha256.New()
	_, err = io.Copy(io.MultiWriter(tmp, sum), resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("download agent: %w", err)
	}

	if want := strings.ToLower(strings.TrimSpace(r.opts.SHA256)); want != "" {
		if got := hex.EncodeToString(sum.Sum(nil)); got != want {
			os.Remove(tmp.Name())
			return "", fmt.Errorf("%w: got %s, want %s", ErrChecksumMismatch, got, want)
		}
	}
	return tmp.Name(), nil
}

// extract copies the binary out of the tarball. Only the entry's base name is
// compared, so archive paths never influence where it is written.
func (r *Resolver) extract(archive, dest string) error {
	f, err := os.Open(archive)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("open agent archive: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: %s", ErrBinaryNotFound, r.opts.BinaryName)
		}
		if err != nil {
			return fmt.Errorf("read agent archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg || path.Base(hdr.Name) != r.opts.BinaryName {
			continue
		}
		return writeExecutable(dest, io.LimitReader(tr, maxBinarySize))
	}
}

func writeExecutable(dest string, src io.Reader) error {
	tmp := dest + ".partial"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return fmt.Errorf("write agent binary: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("write agent binary: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write agent binary: %w", err)
	}
	return os.Rename(tmp, dest)
}

// DefaultTriple maps the running platform to a release triple
func DefaultTriple() (string, error) {
	var arch string
	switch runtime.GOARCH {
	case "amd64":
		arch = "x86_64"
	case "arm64":
		arch = "aarch64"
	case "386":
		arch = "i686"
	default:
		return "", fmt.Errorf("%w: %s/%s", ErrUnsupportedPlatform, runtime.GOOS, runtime.GOARCH)
	}

	switch runtime.GOOS {
	case "linux":
		return arch + "-unknown-linux-gnu", nil
	case "darwin":
		return arch + "-apple-darwin", nil
	default:
		return "", fmt.Errorf("%w: %s/%s", ErrUnsupportedPlatform, runtime.GOOS, runtime.GOARCH)
	}
}

// leveledLogger adapts zap to retryablehttp's logger
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
