package bucketpolicy

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// JSON renders the document as compact JSON, as PutBucketPolicy expects
func (d Document) JSON() (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(d); err != nil {
		return "", fmt.Errorf("failed to marshal bucket policy: %w", err)
	}
	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}
