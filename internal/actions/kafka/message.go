package kafka

import (
	"fmt"
	"time"

	"github.com/tidwall/sjson"

	"github.com/dropwatch/dropwatch/internal/domain"
)

// MessageType is the "type" field of every published message.
const MessageType = "log"

// BuildMessage renders the JSON value published for ev.
func BuildMessage(ev domain.FileEvent) ([]byte, error) {
	fields := []struct {
		path  string
		value any
	}{
		{"type", MessageType},
		{"id", ev.ID},
		{"file_path", ev.Path},
		{"file_content", ev.Text()},
		{"file_metadata.size", ev.File.Size},
		{"file_metadata.modified", ev.File.ModifiedUnix()},
		{"machine_metadata.hostname", ev.Machine.Hostname},
		{"machine_metadata.ip", ev.Machine.IP},
		{"machine_metadata.os", ev.Machine.OS},
		{"machine_metadata.platform", ev.Machine.Platform},
		{"machine_metadata.kernel_version", ev.Machine.KernelVersion},
		{"digest", ev.Digest},
		{"detected_at", ev.DetectedAt.UTC().Format(time.RFC3339Nano)},
	}

	doc := []byte(`{}`)
	for _, f := range fields {
		var err error
		doc, err = sjson.SetBytes(doc, f.path, f.value)
		if err != nil {
			return nil, fmt.Errorf("set %s: %w", f.path, err)
		}
	}
	return doc, nil
}

// Receipt renders the delivery receipt written next to a published file.
func Receipt(topic string, partition int32, offset int64) []byte {
	return fmt.Appendf(nil, "Topic: %s\nPartition: %d\nOffset: %d\n", topic, partition, offset)
}
