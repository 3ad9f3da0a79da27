package docstore

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

func encodeRecord(record any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	defer msgpack.PutEncoder(enc)

	enc.Reset(&buf)
	enc.UseCompactInts(true)
	if err := enc.Encode(record); err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeRecord(raw []byte, record any) error {
	dec := msgpack.GetDecoder()
	defer msgpack.PutDecoder(dec)

	dec.Reset(bytes.NewReader(raw))
	if err := dec.Decode(record); err != nil {
		return fmt.Errorf("failed to decode record: %w", err)
	}
	return nil
}
