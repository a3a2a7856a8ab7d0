package pipeline

import (
	"context"
	"errors"

	"github.com/dunamismax/augflow/internal/storage"
)

type ObjectStoreFetcher struct {
	Storage *storage.Client
}

func (f ObjectStoreFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if f.Storage == nil {
		return nil, errors.New("storage client is required")
	}
	return f.Storage.ReadObject(ctx, req.ShardKey)
}

type ObjectStoreEmitter struct {
	Storage *storage.Client
}

func (e ObjectStoreEmitter) EmitShard(ctx context.Context, req Request, data []byte) (string, error) {
	if e.Storage == nil {
		return "", errors.New("storage client is required")
	}

	key := storage.AugmentedShardKey(req.JobID)
	if err := e.Storage.WriteObject(ctx, key, data, storage.ShardContentType); err != nil {
		return "", err
	}
	return key, nil
}

func (e ObjectStoreEmitter) EmitPreview(ctx context.Context, req Request, data []byte, format string) (string, error) {
	if e.Storage == nil {
		return "", errors.New("storage client is required")
	}

	key := storage.PreviewKey(req.JobID, format)
	if err := e.Storage.WriteObject(ctx, key, data, storage.PreviewContentType(format)); err != nil {
		return "", err
	}
	return key, nil
}
