package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
	"github.com/qiaomu-learn/qiaomu/pkg/logger"
)

// SchemaVersion is stamped into every saved document.
const SchemaVersion = "1.0.0"

// Envelope wraps a stored document with provenance. A version mismatch on
// load is a warning, not a failure: the payload is merged onto the
// caller's defaults so fields added since the save simply keep their
// default values.
type Envelope struct {
	Data    json.RawMessage `json:"data"`
	SavedAt time.Time       `json:"saved_at"`
	Version string          `json:"version"`
}

// SaveJSON marshals value into an envelope and writes it under key.
func SaveJSON(ctx context.Context, store KeyValueStore, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return shared.WrapError("storage", "Save", shared.ErrInvalidFormat, "marshal document", err)
	}
	env := Envelope{
		Data:    data,
		SavedAt: time.Now().UTC(),
		Version: SchemaVersion,
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return shared.WrapError("storage", "Save", shared.ErrInvalidFormat, "marshal envelope", err)
	}
	if err := store.Set(ctx, key, raw); err != nil {
		return shared.WrapError("storage", "Save", shared.ErrStorage, "write key "+key, err)
	}
	return nil
}

// LoadJSON reads the envelope under key and unmarshals its payload into
// out. The caller passes out pre-filled with defaults: merging is just
// JSON unmarshal on top of them, so missing fields keep their defaults
// and unknown fields are dropped. Returns false when the key is absent.
func LoadJSON(ctx context.Context, store KeyValueStore, key string, out any, log *logger.Logger) (bool, error) {
	raw, err := store.Get(ctx, key)
	if err != nil {
		if shared.IsNotFound(err) {
			return false, nil
		}
		return false, shared.WrapError("storage", "Load", shared.ErrStorage, "read key "+key, err)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return false, shared.WrapError("storage", "Load", shared.ErrInvalidFormat, "decode envelope for "+key, err)
	}

	if env.Version != SchemaVersion && log != nil {
		log.Warn("stored document has a different schema version, merging onto defaults",
			logger.StorageKey(key),
			logger.String("stored_version", env.Version),
			logger.String("current_version", SchemaVersion),
		)
	}

	if err := json.Unmarshal(env.Data, out); err != nil {
		return false, shared.WrapError("storage", "Load", shared.ErrInvalidFormat, "decode document for "+key, err)
	}
	return true, nil
}
