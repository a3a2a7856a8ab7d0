package storage

import "strings"

// Object key layout inside the bucket. Input shards are uploaded by
// clients through presigned URLs; the worker writes augmented shards
// and preview sheets next to them.
const (
	incomingPrefix  = "shards/incoming/"
	augmentedPrefix = "shards/augmented/"
	previewPrefix   = "previews/"

	// ShardContentType is used for uploaded and generated shards.
	ShardContentType = "application/octet-stream"
)

// IncomingShardKey is where a job expects its source shard.
func IncomingShardKey(jobID string) string {
	return incomingPrefix + jobID + ".bin"
}

// AugmentedShardKey is where a job's output shard lands.
func AugmentedShardKey(jobID string) string {
	return augmentedPrefix + jobID + ".bin"
}

// PreviewKey is where a job's contact sheet lands, named by the
// encoded format.
func PreviewKey(jobID, format string) string {
	return previewPrefix + jobID + "." + previewExtension(format)
}

// PreviewContentType maps a preview format to its MIME type.
func PreviewContentType(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "jpeg", "jpg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	default:
		return "image/png"
	}
}

func previewExtension(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "jpeg", "jpg":
		return "jpg"
	case "webp":
		return "webp"
	default:
		return "png"
	}
}
