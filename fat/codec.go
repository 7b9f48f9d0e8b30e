package fat

import (
	"encoding/binary"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec selects how a volume's directory payload is compressed on the
// medium. The codec is recorded in the boot sector so any backend can
// load a volume written by another.
type Codec uint8

const (
	CodecNone Codec = 0
	CodecLZ4  Codec = 1
	CodecZstd Codec = 2
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecLZ4:
		return "lz4"
	case CodecZstd:
		return "zstd"
	}
	return "unknown"
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// payload header: [uncompressed uint32][stored uint32]; stored == 0
// means the data follows uncompressed.
const payloadHeaderSize = 8

func encodePayload(data []byte, codec Codec) ([]byte, error) {
	var packed []byte
	switch codec {
	case CodecLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, Fatal(err)
		}
		packed = buf[:n]
	case CodecZstd:
		enc := getZstdEncoder()
		packed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	}

	if len(packed) == 0 || len(packed) >= len(data) {
		out := make([]byte, payloadHeaderSize+len(data))
		binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
		copy(out[payloadHeaderSize:], data)
		return out, nil
	}
	out := make([]byte, payloadHeaderSize+len(packed))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(packed)))
	copy(out[payloadHeaderSize:], packed)
	return out, nil
}

func decodePayload(raw []byte, codec Codec) ([]byte, error) {
	if len(raw) < payloadHeaderSize {
		return nil, Fatalf("payload too small for header")
	}
	size := binary.LittleEndian.Uint32(raw[0:])
	stored := binary.LittleEndian.Uint32(raw[4:])
	body := raw[payloadHeaderSize:]

	if stored == 0 {
		if uint32(len(body)) < size {
			return nil, Fatalf("payload truncated: %d < %d", len(body), size)
		}
		return body[:size], nil
	}
	if uint32(len(body)) < stored {
		return nil, Fatalf("compressed payload truncated: %d < %d", len(body), stored)
	}
	body = body[:stored]

	switch codec {
	case CodecLZ4:
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(body, out)
		if err != nil {
			return nil, Fatal(err)
		}
		if uint32(n) != size {
			return nil, Fatalf("decompressed size mismatch")
		}
		return out, nil
	case CodecZstd:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(body, make([]byte, 0, size))
		if err != nil {
			return nil, Fatal(err)
		}
		if uint32(len(out)) != size {
			return nil, Fatalf("decompressed size mismatch")
		}
		return out, nil
	}
	return nil, Fatalf("unknown payload codec %d", codec)
}
