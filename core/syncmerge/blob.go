package syncmerge

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"io"

	"github.com/ulikunitz/xz"
	"github.com/zeebo/blake3"

	"github.com/FocuswithJustin/Lectern/core/errors"
)

// blobFormat identifies a sync blob envelope.
const blobFormat = "lectern-sync"

// blobEnvelope wraps a compressed snapshot for transport. The checksum covers
// the compressed payload so corruption is detected before decompression.
type blobEnvelope struct {
	Format   string `json:"format"`
	Version  int    `json:"version"`
	Checksum string `json:"checksum"`
	Payload  []byte `json:"payload"`
}

// EncodeSnapshot serializes a snapshot into a checksummed, xz-compressed
// transport blob.
func EncodeSnapshot(s Snapshot) ([]byte, error) {
	s.Version = SnapshotVersion
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "encoding snapshot")
	}

	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, errors.Wrap(err, "compressing snapshot")
	}
	if _, err := w.Write(raw); err != nil {
		return nil, errors.Wrap(err, "compressing snapshot")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "compressing snapshot")
	}

	sum := blake3.Sum256(buf.Bytes())
	env := blobEnvelope{
		Format:   blobFormat,
		Version:  SnapshotVersion,
		Checksum: hex.EncodeToString(sum[:]),
		Payload:  buf.Bytes(),
	}
	return json.Marshal(env)
}

// DecodeSnapshot parses and verifies a transport blob. A checksum mismatch or
// unknown format fails before any payload is interpreted; a snapshot version
// newer than this build is rejected rather than half-read.
func DecodeSnapshot(blob []byte) (Snapshot, error) {
	var env blobEnvelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return Snapshot{}, errors.NewSync("decode", false, errors.Wrap(err, "not a sync blob"))
	}
	if env.Format != blobFormat {
		return Snapshot{}, errors.NewSync("decode", false, errors.Wrapf(errors.ErrInvalidInput, "unknown blob format %q", env.Format))
	}
	if env.Version > SnapshotVersion {
		return Snapshot{}, errors.NewSync("decode", false, errors.Wrapf(errors.ErrInvalidInput, "snapshot version %d is newer than supported", env.Version))
	}

	sum := blake3.Sum256(env.Payload)
	if hex.EncodeToString(sum[:]) != env.Checksum {
		return Snapshot{}, errors.NewSync("decode", false, errors.Wrap(errors.ErrInvalidInput, "checksum mismatch"))
	}

	r, err := xz.NewReader(bytes.NewReader(env.Payload))
	if err != nil {
		return Snapshot{}, errors.NewSync("decode", false, errors.Wrap(err, "decompressing snapshot"))
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return Snapshot{}, errors.NewSync("decode", false, errors.Wrap(err, "decompressing snapshot"))
	}

	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return Snapshot{}, errors.NewSync("decode", false, errors.Wrap(err, "decoding snapshot"))
	}
	return s, nil
}
