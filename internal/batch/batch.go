// Package batch holds the write request data model and the partitioner that
// turns one request's document list into deletions and additions.
package batch

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/Aman-CERP/searchgate/internal/errors"
)

// RawDocument is one document entry as received, before classification.
type RawDocument map[string]any

// WriteBatchItem is one decoded write request targeting a single index.
type WriteBatchItem struct {
	IndexName string        `json:"indexName"`
	Documents []RawDocument `json:"documents"`
}

// DocumentOp is a classified document entry: a Deletion or an Addition.
type DocumentOp interface {
	isDocumentOp()
}

// Deletion removes every document whose identity field equals IdentityValue.
type Deletion struct {
	IdentityValue string
}

// Addition adds one document with the given string fields.
type Addition struct {
	Fields map[string]string
}

func (Deletion) isDocumentOp() {}
func (Addition) isDocumentOp() {}

// DecodeItem decodes one WriteBatchItem, as carried by a single queue entry.
func DecodeItem(data []byte) (WriteBatchItem, error) {
	var item WriteBatchItem
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&item); err != nil {
		return WriteBatchItem{}, errors.ValidationError("invalid write request", err)
	}
	if dec.More() {
		return WriteBatchItem{}, errors.ValidationError("invalid write request",
			fmt.Errorf("trailing data after write request"))
	}
	return item, nil
}

// DecodeBatch reads either a JSON array of WriteBatchItems or a stream of
// WriteBatchItem objects (one per line or simply concatenated).
func DecodeBatch(r io.Reader) ([]WriteBatchItem, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, errors.ValidationError("failed to read write batch", err)
	}

	dec := json.NewDecoder(br)
	dec.UseNumber()

	if first == '[' {
		var items []WriteBatchItem
		if err := dec.Decode(&items); err != nil {
			return nil, errors.ValidationError("invalid write batch", err)
		}
		return items, nil
	}

	var items []WriteBatchItem
	for n := 1; dec.More(); n++ {
		var item WriteBatchItem
		if err := dec.Decode(&item); err != nil {
			return nil, errors.ValidationError("invalid write batch", err).
				WithDetail("entry", fmt.Sprint(n))
		}
		items = append(items, item)
	}
	return items, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.Peek(1)
		if err != nil {
			return 0, err
		}
		switch b[0] {
		case ' ', '\t', '\r', '\n':
			_, _ = br.ReadByte()
		default:
			return b[0], nil
		}
	}
}
