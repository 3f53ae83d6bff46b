package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"xsync-go/internal/chunkcache"
	"xsync-go/internal/config"
	"xsync-go/internal/encryption"
	"xsync-go/internal/fs"
	"xsync-go/internal/hasher"
	"xsync-go/internal/remote"
	"xsync-go/internal/transform"
	"xsync-go/internal/xsync"
)

// PassphraseFunc supplies the key file passphrase when encryption is on.
type PassphraseFunc func() (string, error)

// ClientApp is the application layer between the xsync CLI and
// SyncService. It constructs all dependencies from config and exposes
// operations that accept raw paths.
type ClientApp struct {
	cfg     *config.Config
	remote  *remote.Client
	service *xsync.SyncService
	logger  xsync.Logger
	logFile *os.File
}

// NewClientApp wires a ClientApp. It needs a saved login token; see Login.
// The caller must call Close when done.
func NewClientApp(cfg *config.Config, passphrase PassphraseFunc) (*ClientApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", xsync.ErrConfiguration, err)
	}
	alg, err := hasher.Parse(cfg.HashAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", xsync.ErrConfiguration, err)
	}
	pipeline, err := buildPipeline(cfg.Transform, passphrase)
	if err != nil {
		return nil, err
	}
	token, err := remote.LoadToken(cfg.CacheDir)
	if err != nil {
		return nil, err
	}
	rc, err := newRemote(cfg, token)
	if err != nil {
		return nil, err
	}

	osfs := afero.NewOsFs()
	root, err := fs.Open(osfs, cfg.RootDir, cfg.IgnoreFile, cfg.CacheDir, cfg.LogDir)
	if err != nil {
		return nil, err
	}
	cache, err := chunkcache.New(osfs, cfg.CacheDir)
	if err != nil {
		return nil, err
	}

	l, logFile, err := newLogger(LogOptions{Dir: cfg.LogDir, Name: "xsync", FileLevel: slog.LevelInfo, StderrLevel: slog.LevelWarn})
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: l}

	svc := xsync.NewSyncService(root, rc, cache, logger, xsync.SyncConfig{
		Algorithm:         alg,
		ExpectedChunkSize: cfg.ExpectedChunkSize,
		Pipeline:          pipeline,
	})
	logger.Debug("client ready", "root", cfg.RootDir, "server", cfg.ServerURL, "pipeline", pipeline.String())

	return &ClientApp{cfg: cfg, remote: rc, service: svc, logger: logger, logFile: logFile}, nil
}

func newRemote(cfg *config.Config, token string) (*remote.Client, error) {
	return remote.New(remote.Options{
		ServerURL:  cfg.ServerURL,
		Token:      token,
		UploadRate: cfg.Transfer.UploadRate,
		Timeout:    cfg.Transfer.Timeout.Std(),
	})
}

// buildPipeline assembles the configured transform stages. Encryption
// requires the key file and its passphrase.
func buildPipeline(cfg config.TransformConfig, passphrase PassphraseFunc) (*transform.Pipeline, error) {
	var cipher *transform.Cipher
	if cfg.Encrypt {
		kf := encryption.NewKeyFile(cfg.KeyPath)
		if !kf.IsConfigured() {
			return nil, fmt.Errorf("%w: encryption is enabled but %s does not exist; run `xsync key init`", xsync.ErrConfiguration, cfg.KeyPath)
		}
		if passphrase == nil {
			return nil, fmt.Errorf("%w: encryption needs a passphrase", xsync.ErrConfiguration)
		}
		pw, err := passphrase()
		if err != nil {
			return nil, fmt.Errorf("reading passphrase: %w", err)
		}
		if cipher, err = kf.Unlock(pw); err != nil {
			return nil, err
		}
	}
	compression := ""
	if cfg.Compress {
		compression = cfg.Compression
		if compression == "" {
			compression = "zstd"
		}
	}
	p, err := transform.Build(cipher, compression)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", xsync.ErrConfiguration, err)
	}
	return p, nil
}

// Register creates an account and saves its token.
func Register(ctx context.Context, cfg *config.Config, email, password string) error {
	return authenticate(ctx, cfg, email, password, (*remote.Client).Register)
}

// Login saves a fresh token for an existing account.
func Login(ctx context.Context, cfg *config.Config, email, password string) error {
	return authenticate(ctx, cfg, email, password, (*remote.Client).Login)
}

func authenticate(ctx context.Context, cfg *config.Config, email, password string,
	call func(*remote.Client, context.Context, string, string) (string, error)) error {
	rc, err := newRemote(cfg, "")
	if err != nil {
		return err
	}
	token, err := call(rc, ctx, email, password)
	if err != nil {
		return err
	}
	return remote.SaveToken(cfg.CacheDir, token)
}

// InitKey creates the encryption key file at the configured path.
func InitKey(cfg *config.Config, passphrase string) (string, error) {
	if passphrase == "" {
		return "", fmt.Errorf("%w: empty passphrase", xsync.ErrValidation)
	}
	kf := encryption.NewKeyFile(cfg.Transform.KeyPath)
	if err := kf.Setup(passphrase); err != nil {
		return "", err
	}
	return kf.Path(), nil
}

// Sync syncs a file, or every file under a directory.
func (a *ClientApp) Sync(ctx context.Context, rawPath string, recursive bool) ([]xsync.Result, error) {
	rawPath, err := absPath(rawPath, a.cfg.RootDir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(rawPath)
	if err == nil && info.IsDir() {
		return a.service.SyncDir(ctx, rawPath, recursive)
	}
	res, err := a.service.Sync(ctx, rawPath)
	return []xsync.Result{res}, err
}

func (a *ClientApp) Status(ctx context.Context, rawPath string) (*xsync.FileStatus, error) {
	p, err := absPath(rawPath, a.cfg.RootDir)
	if err != nil {
		return nil, err
	}
	return a.service.Status(ctx, p)
}

func (a *ClientApp) Delete(ctx context.Context, rawPath string) (bool, error) {
	p, err := absPath(rawPath, a.cfg.RootDir)
	if err != nil {
		return false, err
	}
	return a.service.Delete(ctx, p)
}

// absPath resolves command-line paths against the working directory. An
// empty path means the sync root.
func absPath(raw, root string) (string, error) {
	if raw == "" {
		return root, nil
	}
	p, err := filepath.Abs(raw)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	return p, nil
}

// Close releases the log file.
func (a *ClientApp) Close() error {
	if a.logFile != nil {
		return a.logFile.Close()
	}
	return nil
}
