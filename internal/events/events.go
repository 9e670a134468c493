// Package events decodes storage write notifications. Both AWS S3 and MinIO
// deliver the same Records envelope; MinIO prefixes event names with "s3:".
package events

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7/pkg/notification"

	"github.com/dharsanguruparan/TextDrop/internal/model"
)

const objectCreated = "ObjectCreated:"

type envelope struct {
	Records []notification.Event `json:"Records"`
}

// Decode parses a notification body and returns one event per object-created
// record. Other record types are skipped. A body without records, such as
// the S3 test event, yields no events and no error.
func Decode(body []byte) ([]model.ObjectEvent, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}
	out := make([]model.ObjectEvent, 0, len(env.Records))
	for _, rec := range env.Records {
		if !IsObjectCreated(rec.EventName) {
			continue
		}
		ev := FromRecord(rec)
		if ev.Bucket == "" || ev.Key == "" {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// IsObjectCreated reports whether name is an object-created event name.
func IsObjectCreated(name string) bool {
	return strings.HasPrefix(strings.TrimPrefix(name, "s3:"), objectCreated)
}

// FromRecord converts one record. Keys arrive URL-encoded with '+' for
// spaces.
func FromRecord(rec notification.Event) model.ObjectEvent {
	key := rec.S3.Object.Key
	if decoded, err := url.QueryUnescape(key); err == nil {
		key = decoded
	}
	return model.ObjectEvent{Bucket: rec.S3.Bucket.Name, Key: key}
}
