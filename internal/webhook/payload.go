package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Payload is an insertion-ordered JSON object. The dispatcher signs the
// exact bytes this produces, so key order must be stable regardless of Go
// map iteration order.
type Payload struct {
	keys   []string
	values map[string]interface{}
}

// NewPayload builds the base webhook payload: type, time, and any extra
// keys in the order supplied.
func NewPayload(eventType string, extra ...KV) *Payload {
	p := &Payload{values: make(map[string]interface{})}
	p.set("type", eventType)
	p.set("time", time.Now().UTC().Format(time.RFC3339))
	for _, kv := range extra {
		p.set(kv.Key, kv.Value)
	}
	return p
}

// KV is one ordered key/value pair for payload construction.
type KV struct {
	Key   string
	Value interface{}
}

func (p *Payload) set(key string, value interface{}) {
	if _, exists := p.values[key]; !exists {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

// MarshalJSON renders the payload's keys in insertion order.
func (p *Payload) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')
		valBytes, err := json.Marshal(p.values[key])
		if err != nil {
			return nil, err
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Bytes renders the stable JSON encoding used both as the HTTP request
// body and as the message signed for X-Webhook-Signature.
func (p *Payload) Bytes() ([]byte, error) {
	return json.Marshal(p)
}

// Sign computes the X-Webhook-Signature value for a payload delivered at
// timestamp, keyed with secret (§4.D).
func Sign(secret string, timestamp int64, payload []byte) string {
	message := fmt.Sprintf("%d.%s", timestamp, payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// TimestampHeader renders the X-Webhook-Timestamp header value.
func TimestampHeader(timestamp int64) string {
	return strconv.FormatInt(timestamp, 10)
}
