package types

import (
	"encoding/json"
	"fmt"
)

// Blob is an opaque, versioned, self-describing snapshot produced by Backup
// and consumed by Restore. Safe to persist to disk or send over a socket.
type Blob []byte

type blobEnvelope struct {
	Kind    string          `json:"kind"`
	Version int             `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// NewBlob wraps a payload with a kind and version tag.
func NewBlob(kind string, version int, payload interface{}) (Blob, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	bs, err := json.Marshal(blobEnvelope{Kind: kind, Version: version, Data: data})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", kind, err)
	}
	return Blob(bs), nil
}

// Open decodes the payload into out after checking the kind and version tag.
// A mismatch returns IncompatibleRestoreError and leaves out untouched.
func (b Blob) Open(kind string, version int, out interface{}) error {
	var env blobEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return fmt.Errorf("unmarshal blob envelope: %w", err)
	}
	if env.Kind != kind || env.Version != version {
		return &IncompatibleRestoreError{
			WantKind:    kind,
			GotKind:     env.Kind,
			WantVersion: version,
			GotVersion:  env.Version,
		}
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("unmarshal %s payload: %w", kind, err)
	}
	return nil
}

// Kind reports the kind tag without decoding the payload.
func (b Blob) Kind() (string, error) {
	var env blobEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return "", fmt.Errorf("unmarshal blob envelope: %w", err)
	}
	return env.Kind, nil
}

// Checkpointable is the uniform state-transfer contract shared by parameters,
// remote memories and environment runs. Backup before transport, Restore
// exactly once on the receiving side before first use.
type Checkpointable interface {
	Backup() (Blob, error)
	Restore(Blob) error
}
