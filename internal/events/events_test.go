package events

import (
	"testing"

	"github.com/minio/minio-go/v7/pkg/notification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/TextDrop/internal/model"
)

const s3Body = `{
  "Records": [
    {
      "eventVersion": "2.1",
      "eventSource": "aws:s3",
      "eventName": "ObjectCreated:Put",
      "s3": {"bucket": {"name": "raw"}, "object": {"key": "incoming/my+report%281%29.pdf", "size": 10}}
    },
    {
      "eventName": "ObjectRemoved:Delete",
      "s3": {"bucket": {"name": "raw"}, "object": {"key": "incoming/old.pdf"}}
    }
  ]
}`

const minioBody = `{
  "EventName": "s3:ObjectCreated:Put",
  "Key": "raw/processed/report.pdf.csv",
  "Records": [
    {
      "eventName": "s3:ObjectCreated:CompleteMultipartUpload",
      "s3": {"bucket": {"name": "raw"}, "object": {"key": "processed/report.pdf.csv"}}
    }
  ]
}`

func TestDecodeS3(t *testing.T) {
	evs, err := Decode([]byte(s3Body))
	require.NoError(t, err)
	assert.Equal(t, []model.ObjectEvent{{Bucket: "raw", Key: "incoming/my report(1).pdf"}}, evs)
}

func TestDecodeMinIO(t *testing.T) {
	evs, err := Decode([]byte(minioBody))
	require.NoError(t, err)
	assert.Equal(t, []model.ObjectEvent{{Bucket: "raw", Key: "processed/report.pdf.csv"}}, evs)
}

func TestDecodeTestEvent(t *testing.T) {
	evs, err := Decode([]byte(`{"Service":"Amazon S3","Event":"s3:TestEvent","Bucket":"raw"}`))
	require.NoError(t, err)
	assert.Empty(t, evs)
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode([]byte(`{"Records": [`))
	assert.Error(t, err)
}

func TestIsObjectCreated(t *testing.T) {
	assert.True(t, IsObjectCreated("ObjectCreated:Put"))
	assert.True(t, IsObjectCreated("s3:ObjectCreated:Copy"))
	assert.False(t, IsObjectCreated("s3:ObjectRemoved:Delete"))
	assert.False(t, IsObjectCreated(""))
}

func TestFromRecordDecodesKey(t *testing.T) {
	var rec notification.Event
	rec.S3.Bucket.Name = "raw"
	rec.S3.Object.Key = "incoming/my+scan%281%29.png"

	assert.Equal(t, model.ObjectEvent{Bucket: "raw", Key: "incoming/my scan(1).png"}, FromRecord(rec))
}
