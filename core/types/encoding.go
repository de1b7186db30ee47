package types

import (
	"encoding/binary"
	"fmt"

	"github.com/hyperledger/iroha-sub011/common"
)

// encoder builds the canonical, deterministic byte encoding used for
// hashing (§3) and for the wire format's per-message payload (§6: "a
// canonical binary encoding of the corresponding structure"). It is
// intentionally minimal — length-prefixed fields in a fixed order — rather
// than a general-purpose codec: identity hashing only needs to be stable
// and collision-resistant for distinct inputs, not self-describing.
type encoder struct {
	buf []byte
}

func newEncoder() *encoder { return &encoder{buf: make([]byte, 0, 256)} }

func (e *encoder) writeUvarint(v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	e.buf = append(e.buf, tmp[:n]...)
}

func (e *encoder) writeInt64(v int64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(v))
	e.buf = append(e.buf, tmp[:]...)
}

func (e *encoder) writeUint64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
}

func (e *encoder) writeBytes(b []byte) {
	e.writeUvarint(uint64(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *encoder) writeString(s string) {
	e.writeBytes([]byte(s))
}

func (e *encoder) bytes() []byte { return e.buf }

// decoder reads back what encoder writes, in the same field order. Callers
// must decode fields in exactly the order they were encoded — this is a
// positional format, not self-describing.
type decoder struct {
	buf []byte
	pos int
}

func newDecoder(b []byte) *decoder { return &decoder{buf: b} }

func (d *decoder) readUvarint() (uint64, error) {
	v, n := binary.Uvarint(d.buf[d.pos:])
	if n <= 0 {
		return 0, fmt.Errorf("types: malformed varint at offset %d", d.pos)
	}
	d.pos += n
	return v, nil
}

func (d *decoder) readInt64() (int64, error) {
	if d.pos+8 > len(d.buf) {
		return 0, fmt.Errorf("types: truncated int64 at offset %d", d.pos)
	}
	v := int64(binary.LittleEndian.Uint64(d.buf[d.pos:]))
	d.pos += 8
	return v, nil
}

func (d *decoder) readUint64() (uint64, error) {
	if d.pos+8 > len(d.buf) {
		return 0, fmt.Errorf("types: truncated uint64 at offset %d", d.pos)
	}
	v := binary.LittleEndian.Uint64(d.buf[d.pos:])
	d.pos += 8
	return v, nil
}

func (d *decoder) readBytes() ([]byte, error) {
	n, err := d.readUvarint()
	if err != nil {
		return nil, err
	}
	if d.pos+int(n) > len(d.buf) {
		return nil, fmt.Errorf("types: truncated byte slice at offset %d", d.pos)
	}
	out := make([]byte, n)
	copy(out, d.buf[d.pos:d.pos+int(n)])
	d.pos += int(n)
	return out, nil
}

func (d *decoder) readString() (string, error) {
	b, err := d.readBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *decoder) readHash() (common.Hash, error) {
	if d.pos+common.HashLength > len(d.buf) {
		return common.Hash{}, fmt.Errorf("types: truncated hash at offset %d", d.pos)
	}
	h := common.BytesToHash(d.buf[d.pos : d.pos+common.HashLength])
	d.pos += common.HashLength
	return h, nil
}

func (d *decoder) done() bool { return d.pos >= len(d.buf) }
