package snapshot

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	markerPlain      byte = 0
	markerCompressed byte = 1
)

// MsgPackCodec encodes with MessagePack and gzips payloads above a threshold.
// The first byte of the output marks whether the rest is compressed.
type MsgPackCodec struct {
	UseCompression       bool
	CompressionThreshold int
}

// NewMsgPackCodec creates a codec that compresses payloads of 1KB or more.
func NewMsgPackCodec() *MsgPackCodec {
	return &MsgPackCodec{
		UseCompression:       true,
		CompressionThreshold: 1024,
	}
}

// Marshal implements Codec.
func (c *MsgPackCodec) Marshal(v any) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, err
	}

	if c.UseCompression && len(data) >= c.CompressionThreshold {
		compressed, err := gzipBytes(data)
		if err == nil {
			return append([]byte{markerCompressed}, compressed...), nil
		}
	}
	return append([]byte{markerPlain}, data...), nil
}

// Unmarshal implements Codec.
func (c *MsgPackCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return ErrInvalidData
	}

	payload := data[1:]
	switch data[0] {
	case markerPlain:
	case markerCompressed:
		raw, err := gunzipBytes(payload)
		if err != nil {
			return err
		}
		payload = raw
	default:
		return ErrInvalidData
	}
	return msgpack.Unmarshal(payload, v)
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzipBytes(data []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	return io.ReadAll(gz)
}

// JSONCodec encodes snapshots as JSON. Handy for file stores that people read.
type JSONCodec struct {
	Pretty bool
}

// Marshal implements Codec.
func (c JSONCodec) Marshal(v any) ([]byte, error) {
	if c.Pretty {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}

// Unmarshal implements Codec.
func (c JSONCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return ErrInvalidData
	}
	return json.Unmarshal(data, v)
}
