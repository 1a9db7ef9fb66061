package batch

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Default field names.
const (
	DefaultIdentityField = "uuid"
	DefaultDeletedField  = "deleted"
)

// Partitioner classifies document entries.
//
// An entry whose deleted field is the JSON boolean true and whose identity
// field is present and non-null is a Deletion. Every other entry is an
// Addition built from its non-null fields. Null values, empty keys and nil
// entries are malformed and dropped.
type Partitioner struct {
	IdentityField string
	DeletedField  string
}

// NewPartitioner returns a Partitioner, filling empty names with defaults.
func NewPartitioner(identityField, deletedField string) Partitioner {
	if identityField == "" {
		identityField = DefaultIdentityField
	}
	if deletedField == "" {
		deletedField = DefaultDeletedField
	}
	return Partitioner{IdentityField: identityField, DeletedField: deletedField}
}

// Result is the partitioned form of one document list.
type Result struct {
	// Deletions holds identity values in input order. Duplicates are kept.
	Deletions []string
	// Additions holds documents in input order.
	Additions []Addition
	// Malformed counts dropped fields and entries.
	Malformed int
}

// Classify resolves each entry to a DocumentOp, in input order.
// The returned count is the number of malformed fields or entries dropped.
func (p Partitioner) Classify(docs []RawDocument) ([]DocumentOp, int) {
	ops := make([]DocumentOp, 0, len(docs))
	malformed := 0
	for _, doc := range docs {
		if doc == nil {
			malformed++
			continue
		}
		if id, ok := p.deletionIdentity(doc); ok {
			ops = append(ops, Deletion{IdentityValue: id})
			continue
		}

		fields := make(map[string]string, len(doc))
		for k, v := range doc {
			if k == "" || v == nil {
				malformed++
				continue
			}
			fields[k] = Stringify(v)
		}
		ops = append(ops, Addition{Fields: fields})
	}
	return ops, malformed
}

// Partition splits docs into deletion terms and addition documents.
func (p Partitioner) Partition(docs []RawDocument) Result {
	ops, malformed := p.Classify(docs)
	res := Result{Malformed: malformed}
	for _, op := range ops {
		switch op := op.(type) {
		case Deletion:
			res.Deletions = append(res.Deletions, op.IdentityValue)
		case Addition:
			res.Additions = append(res.Additions, op)
		}
	}
	return res
}

func (p Partitioner) deletionIdentity(doc RawDocument) (string, bool) {
	deleted, ok := doc[p.DeletedField].(bool)
	if !ok || !deleted {
		return "", false
	}
	id, ok := doc[p.IdentityField]
	if !ok || id == nil {
		return "", false
	}
	return Stringify(id), true
}

// Stringify renders a decoded JSON value as a field string.
// Scalars use their literal text; arrays and objects are re-encoded as JSON.
func Stringify(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}
