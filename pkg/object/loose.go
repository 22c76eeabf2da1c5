package object

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/klauspost/compress/zlib"
)

// EncodeLoose returns the on-disk form of a loose object: the
// "type size\0body" envelope, zlib-compressed as a single stream.
func EncodeLoose(objType ObjectType, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, zlib.BestSpeed)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(AppendPrefix(nil, objType, int64(len(data)))); err != nil {
		_ = zw.Close()
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		_ = zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeLoose inflates a loose object and splits its envelope. It rejects
// unknown types, malformed headers, and a declared size that disagrees with
// the payload.
func DecodeLoose(raw []byte) (ObjectType, []byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return "", nil, fmt.Errorf("%w: zlib header: %v", ErrCorruptObject, err)
	}
	defer zr.Close()

	inflated, err := io.ReadAll(zr)
	if err != nil {
		return "", nil, fmt.Errorf("%w: inflate: %v", ErrCorruptObject, err)
	}
	return parseEnvelope(inflated)
}

func parseEnvelope(inflated []byte) (ObjectType, []byte, error) {
	nul := bytes.IndexByte(inflated, 0)
	if nul < 0 {
		return "", nil, fmt.Errorf("%w: missing header terminator", ErrCorruptObject)
	}
	header := inflated[:nul]
	sp := bytes.IndexByte(header, ' ')
	if sp < 0 {
		return "", nil, fmt.Errorf("%w: malformed header %q", ErrCorruptObject, header)
	}
	objType, err := ParseObjectType(string(header[:sp]))
	if err != nil {
		return "", nil, err
	}
	size, err := strconv.ParseInt(string(header[sp+1:]), 10, 64)
	if err != nil || size < 0 {
		return "", nil, fmt.Errorf("%w: malformed size in header %q", ErrCorruptObject, header)
	}
	body := inflated[nul+1:]
	if int64(len(body)) != size {
		return "", nil, fmt.Errorf("%w: header declares %d bytes, payload has %d", ErrCorruptObject, size, len(body))
	}
	return objType, body, nil
}
