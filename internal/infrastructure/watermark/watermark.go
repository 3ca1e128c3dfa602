// Package watermark stores the per-user, per-device "last seen" timestamp of
// each listing chat. Keys look like lastSeen/<uid>/<device>/<listing>.
package watermark

import (
	"fmt"

	"unitrade/internal/domain/repository"
	"unitrade/pkg/config"
)

const keyPrefix = "lastSeen"

func key(uid, deviceID, listingID string) string {
	return keyPrefix + "/" + uid + "/" + deviceID + "/" + listingID
}

// New opens the store selected by WATERMARK_DRIVER.
func New(cfg config.WatermarkConfig) (repository.WatermarkStore, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "badger":
		return OpenBadgerStore(BadgerOptions{Path: cfg.BadgerPath})
	case "redis":
		return NewRedisStore(RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	default:
		return nil, fmt.Errorf("unknown watermark driver %q", cfg.Driver)
	}
}
