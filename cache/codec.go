package cache

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ceyewan/dealflow/xerrors"
)

const (
	codecJSON    = "json"
	codecMsgpack = "msgpack"
)

// codec 值与字节之间的编解码
type codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, dest any) error
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)         { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, dest any) error { return json.Unmarshal(data, dest) }

// msgpackCodec 使用 json tag，保证与 json 编码下的字段名一致
type msgpackCodec struct{}

func (msgpackCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (msgpackCodec) Unmarshal(data []byte, dest any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(dest)
}

func newCodec(name string) (codec, error) {
	switch name {
	case codecJSON:
		return jsonCodec{}, nil
	case codecMsgpack:
		return msgpackCodec{}, nil
	default:
		return nil, xerrors.NewConfiguration("cache.codec", fmt.Sprintf("unsupported codec %q", name))
	}
}
