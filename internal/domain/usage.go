package domain

import "time"

type UsageLog struct {
	UserID         string
	JobID          string
	RecordsRead    int64
	RecordsWritten int64
	BytesWritten   int64
	ComputeTimeMS  int64
	CreatedAt      time.Time
}
