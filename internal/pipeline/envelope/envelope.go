// Package envelope defines the wire format of one broker write: a JSON array
// of payload entries, each carrying its partition key and properties, with
// the whole serialized array optionally compressed. The producer flushes one
// envelope per batch; the consumer unwraps it back into individual payloads.
package envelope

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"

	errspkg "github.com/drblury/riskwire/internal/pipeline/errors"
	"github.com/drblury/riskwire/internal/pipeline/metadata"
)

var jsonConfig = sonic.ConfigStd

// Entry is one payload within a batch envelope. Payload holds the codec's
// JSON bytes untouched, so the envelope stays human-diffable when
// uncompressed.
type Entry struct {
	PartitionKey string            `json:"partition_key"`
	Properties   metadata.Metadata `json:"properties,omitempty"`
	Payload      json.RawMessage   `json:"payload"`
}

// Encode serializes the entries and applies whole-envelope compression.
func Encode(entries []Entry, c Compression) ([]byte, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("riskwire: cannot encode an empty envelope")
	}

	raw, err := jsonConfig.Marshal(entries)
	if err != nil {
		return nil, err
	}
	return compress(raw, c)
}

// Decode reverses Encode. expectCount is the batch count declared in the
// broker message metadata; a mismatch means the envelope was corrupted or
// truncated and yields a *MalformedPayloadError, as do undecompressable or
// unparseable bytes. Pass a negative expectCount to skip the count check.
func Decode(data []byte, c Compression, expectCount int) ([]Entry, error) {
	raw, err := decompress(data, c)
	if err != nil {
		return nil, &errspkg.MalformedPayloadError{Err: err}
	}

	var entries []Entry
	if err := jsonConfig.Unmarshal(raw, &entries); err != nil {
		return nil, &errspkg.MalformedPayloadError{Err: err}
	}

	if expectCount >= 0 && len(entries) != expectCount {
		return nil, &errspkg.MalformedPayloadError{
			Err: fmt.Errorf("envelope declares %d payloads but contains %d", expectCount, len(entries)),
		}
	}

	return entries, nil
}
