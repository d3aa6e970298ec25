package storage

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/annel0/portalnet/internal/chain"
	"github.com/klauspost/compress/zstd"
)

// zstdMagic - сигнатура кадра zstd
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// recordCodec кодирует записи цепочек в JSON, при необходимости сжимая zstd
type recordCodec struct {
	compress bool
	encoder  *zstd.Encoder
	decoder  *zstd.Decoder
}

func newRecordCodec(compress bool) (*recordCodec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания zstd decoder: %w", err)
	}
	return &recordCodec{compress: compress, encoder: enc, decoder: dec}, nil
}

func (c *recordCodec) encode(rec chain.ChainRecord) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации цепочки %d: %w", rec.ID, err)
	}
	if !c.compress {
		return data, nil
	}
	return c.encoder.EncodeAll(data, make([]byte, 0, len(data))), nil
}

// decode принимает как сжатые, так и несжатые записи
func (c *recordCodec) decode(data []byte) (chain.ChainRecord, error) {
	var rec chain.ChainRecord
	if bytes.HasPrefix(data, zstdMagic) {
		plain, err := c.decoder.DecodeAll(data, nil)
		if err != nil {
			return rec, fmt.Errorf("ошибка распаковки записи: %w", err)
		}
		data = plain
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("ошибка десериализации записи: %w", err)
	}
	return rec, nil
}

func (c *recordCodec) close() {
	c.encoder.Close()
	c.decoder.Close()
}
