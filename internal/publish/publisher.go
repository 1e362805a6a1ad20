package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"

	"npprobes/internal/config"
	"npprobes/internal/fileutil"
	"npprobes/internal/logging"
	"npprobes/internal/services"
)

// checksumKey is the object metadata entry holding the source file's SHA-256.
const checksumKey = "sha256"

// Publisher uploads a session's artifacts under <prefix>/<session id>/.
type Publisher struct {
	store  Store
	prefix string
	logger *slog.Logger
}

// Open builds the publisher selected by cfg.Publish. It returns nil when
// publishing is disabled.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Publisher, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Publish.Driver {
	case config.PublishNone, "":
		return nil, nil
	case config.PublishFS:
		store, err = NewFilesystem(cfg.Publish.Root)
	case config.PublishS3:
		store, err = NewS3(ctx, S3Config{
			Region:          cfg.Publish.Region,
			Bucket:          cfg.Publish.Bucket,
			Endpoint:        cfg.Publish.Endpoint,
			AccessKeyID:     cfg.Publish.AccessKeyID,
			SecretAccessKey: cfg.Publish.SecretAccessKey,
			PathStyle:       cfg.Publish.PathStyle,
		})
	default:
		return nil, services.Wrap(services.ErrConfiguration, "publish", "open",
			fmt.Sprintf("unknown driver %q", cfg.Publish.Driver), nil)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "publish", "open", cfg.Publish.Driver, err)
	}
	return NewPublisher(store, cfg.Publish.Prefix, logger), nil
}

// NewPublisher wraps an existing store.
func NewPublisher(store Store, prefix string, logger *slog.Logger) *Publisher {
	return &Publisher{store: store, prefix: prefix, logger: logging.NewComponentLogger(logger, "publish")}
}

// Key returns the object key for a session artifact.
func (p *Publisher) Key(sessionID, file string) string {
	return path.Join(p.prefix, sessionID, filepath.Base(file))
}

// Publish uploads files for a session. Objects whose stored checksum already
// matches the local file are left alone.
func (p *Publisher) Publish(ctx context.Context, sessionID string, files []string) ([]Info, error) {
	logger := logging.WithContext(ctx, p.logger)
	infos := make([]Info, 0, len(files))
	for _, file := range files {
		sum, size, err := fileutil.SHA256File(file)
		if err != nil {
			return infos, fmt.Errorf("checksum %s: %w", filepath.Base(file), err)
		}
		key := p.Key(sessionID, file)

		existing, err := p.store.Head(ctx, key)
		switch {
		case err == nil && existing.Metadata[checksumKey] == sum && existing.Size == size:
			logger.Debug("artifact unchanged", logging.String("key", key))
			infos = append(infos, existing)
			continue
		case err != nil && !errors.Is(err, ErrNotFound):
			return infos, fmt.Errorf("inspect %s: %w", key, err)
		}

		f, err := os.Open(file)
		if err != nil {
			return infos, err
		}
		info, err := p.store.Put(ctx, key, f, PutOptions{
			ContentType: contentType(file),
			Metadata:    map[string]string{checksumKey: sum},
		})
		_ = f.Close()
		if err != nil {
			return infos, fmt.Errorf("upload %s: %w", key, err)
		}
		logger.Info("artifact published",
			logging.String("driver", p.store.Driver()),
			logging.String("key", key),
			logging.Int64("size_bytes", size),
		)
		infos = append(infos, info)
	}
	return infos, nil
}

func contentType(file string) string {
	switch filepath.Ext(file) {
	case ".sqlite":
		return "application/vnd.sqlite3"
	case ".nwb":
		return "application/x-hdf5"
	}
	if ct := mime.TypeByExtension(filepath.Ext(file)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
