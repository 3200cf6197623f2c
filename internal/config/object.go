package config

import (
	"bytes"
	"context"
	"time"

	"github.com/koustreak/sphinxql/internal/filestore"
	"github.com/koustreak/sphinxql/internal/logger"
)

// LoadObject reads the YAML config document stored at bucket/key, so a fleet
// of processes can share one profile file.
func LoadObject(ctx context.Context, src filestore.Source, bucket, key string) (*Config, error) {
	cfg, _, err := loadObject(ctx, src, bucket, key)
	return cfg, err
}

func loadObject(ctx context.Context, src filestore.Source, bucket, key string) (*Config, string, error) {
	doc, err := src.Fetch(ctx, bucket, key)
	if err != nil {
		return nil, "", err
	}
	cfg, err := Parse(bytes.NewReader(doc.Body))
	if err != nil {
		return nil, "", err
	}
	return cfg, doc.Version, nil
}

// WatchObject is the object-store counterpart of Watch: it checks the
// version of bucket/key every interval and calls onChange with the parsed
// document whenever it moves. Failed checks and invalid documents are logged
// and skipped. It blocks until ctx is done.
func WatchObject(ctx context.Context, src filestore.Source, bucket, key string, every time.Duration, log *logger.Logger, onChange func(*Config)) {
	fields := map[string]interface{}{"bucket": bucket, "key": key}

	seen, err := src.Version(ctx, bucket, key)
	if err != nil {
		log.WarnWith("config object version check failed", err, fields)
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		v, err := src.Version(ctx, bucket, key)
		if err != nil {
			log.WarnWith("config object version check failed", err, fields)
			continue
		}
		if v == seen {
			continue
		}

		cfg, version, err := loadObject(ctx, src, bucket, key)
		if err != nil {
			log.ErrorWith("config object reload failed", err, fields)
			continue
		}
		seen = version
		log.InfoWith("config object reloaded", map[string]interface{}{
			"bucket":   bucket,
			"key":      key,
			"version":  version,
			"profiles": len(cfg.profiles),
		})
		onChange(cfg)
	}
}
