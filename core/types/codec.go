package types

import (
	"fmt"
)

// EncodeTransaction serializes a full transaction, signatures included, for
// storage inside a block frame or for gossip (§4.4, §6).
func EncodeTransaction(tx *Transaction) []byte {
	e := newEncoder()
	payload := tx.Payload.Encode()
	e.writeBytes(payload)
	e.writeUvarint(uint64(len(tx.Signatures)))
	for _, s := range tx.Signatures {
		e.buf = append(e.buf, s.PublicKey.Bytes()...)
		e.buf = append(e.buf, s.Sig.Bytes()...)
	}
	return e.bytes()
}

func DecodeTransaction(b []byte) (*Transaction, error) {
	d := newDecoder(b)
	payloadBytes, err := d.readBytes()
	if err != nil {
		return nil, err
	}
	payload, err := decodePayload(payloadBytes)
	if err != nil {
		return nil, err
	}
	n, err := d.readUvarint()
	if err != nil {
		return nil, err
	}
	sigs := make([]Signature, n)
	for i := range sigs {
		if d.pos+32+64 > len(d.buf) {
			return nil, fmt.Errorf("types: truncated signature at index %d", i)
		}
		copy(sigs[i].PublicKey[:], d.buf[d.pos:d.pos+32])
		d.pos += 32
		copy(sigs[i].Sig[:], d.buf[d.pos:d.pos+64])
		d.pos += 64
	}
	return &Transaction{Payload: payload, Signatures: sigs}, nil
}

func decodePayload(b []byte) (Payload, error) {
	d := newDecoder(b)
	var p Payload
	var err error
	if p.ChainID, err = d.readString(); err != nil {
		return p, err
	}
	if p.Authority.Name, err = d.readString(); err != nil {
		return p, err
	}
	if p.Authority.Domain, err = d.readString(); err != nil {
		return p, err
	}
	n, err := d.readUvarint()
	if err != nil {
		return p, err
	}
	p.Instructions = make([]Instruction, n)
	for i := range p.Instructions {
		if p.Instructions[i].Kind, err = d.readString(); err != nil {
			return p, err
		}
		if p.Instructions[i].Payload, err = d.readBytes(); err != nil {
			return p, err
		}
	}
	if p.WASM, err = d.readBytes(); err != nil {
		return p, err
	}
	if p.CreationTimeMs, err = d.readInt64(); err != nil {
		return p, err
	}
	if p.TTLMs, err = d.readInt64(); err != nil {
		return p, err
	}
	nonce, err := d.readUvarint()
	if err != nil {
		return p, err
	}
	p.Nonce = nonce
	mn, err := d.readUvarint()
	if err != nil {
		return p, err
	}
	if mn > 0 {
		p.Metadata = make(map[string]string, mn)
		for i := uint64(0); i < mn; i++ {
			k, err := d.readString()
			if err != nil {
				return p, err
			}
			v, err := d.readString()
			if err != nil {
				return p, err
			}
			p.Metadata[k] = v
		}
	}
	return p, nil
}

func decodeHeader(d *decoder) (BlockHeader, error) {
	var h BlockHeader
	var err error
	if h.Height, err = d.readUint64(); err != nil {
		return h, err
	}
	if h.PrevBlockHash, err = d.readHash(); err != nil {
		return h, err
	}
	if h.TransactionsMerkleRoot, err = d.readHash(); err != nil {
		return h, err
	}
	if h.RejectedMerkleRoot, err = d.readHash(); err != nil {
		return h, err
	}
	if h.CreationTimeMs, err = d.readInt64(); err != nil {
		return h, err
	}
	if h.ViewChangeIndex, err = d.readUint64(); err != nil {
		return h, err
	}
	ms, err := d.readInt64()
	if err != nil {
		return h, err
	}
	h.ConsensusEstimationMs = ms
	return h, nil
}

// EncodeBlock serializes a full block — header, verdict-annotated
// transactions, and signature set — for Kura's segment frames (§4.1) and
// for the SumeragiBlock/BlockSync wire messages (§6).
func EncodeBlock(b *Block) []byte {
	e := newEncoder()
	e.buf = append(e.buf, b.Header.Encode()...)
	e.writeUvarint(uint64(len(b.Transactions)))
	for _, twv := range b.Transactions {
		e.writeBytes(EncodeTransaction(&twv.Transaction))
		e.writeUvarint(uint64(twv.Verdict.Kind))
		e.writeString(twv.Verdict.Reason)
	}
	e.writeUvarint(uint64(len(b.Signatures)))
	for _, s := range b.Signatures {
		e.buf = append(e.buf, s.PublicKey.Bytes()...)
		e.buf = append(e.buf, s.Sig.Bytes()...)
	}
	return e.bytes()
}

func DecodeBlock(raw []byte) (*Block, error) {
	d := newDecoder(raw)
	header, err := decodeHeader(d)
	if err != nil {
		return nil, fmt.Errorf("types: decoding block header: %w", err)
	}
	n, err := d.readUvarint()
	if err != nil {
		return nil, err
	}
	txs := make([]TransactionWithVerdict, n)
	for i := range txs {
		txBytes, err := d.readBytes()
		if err != nil {
			return nil, err
		}
		tx, err := DecodeTransaction(txBytes)
		if err != nil {
			return nil, fmt.Errorf("types: decoding transaction %d: %w", i, err)
		}
		kind, err := d.readUvarint()
		if err != nil {
			return nil, err
		}
		reason, err := d.readString()
		if err != nil {
			return nil, err
		}
		txs[i] = TransactionWithVerdict{Transaction: *tx, Verdict: Verdict{Kind: VerdictKind(kind), Reason: reason}}
	}
	sn, err := d.readUvarint()
	if err != nil {
		return nil, err
	}
	sigs := make([]Signature, sn)
	for i := range sigs {
		if d.pos+32+64 > len(d.buf) {
			return nil, fmt.Errorf("types: truncated block signature at index %d", i)
		}
		copy(sigs[i].PublicKey[:], d.buf[d.pos:d.pos+32])
		d.pos += 32
		copy(sigs[i].Sig[:], d.buf[d.pos:d.pos+64])
		d.pos += 64
	}
	return &Block{Header: header, Transactions: txs, Signatures: sigs}, nil
}
