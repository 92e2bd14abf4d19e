// Package rpc implements the inter-node RPC surface named in spec.md §6 —
// AddNode, RemoveNode, Heartbeat, AppendEntry forwarding, PullSchema,
// CheckStatus and Exile — as a code-first gRPC service (no protoc step)
// using a JSON wire codec over the real grpc-go transport, the way the
// teacher's generated proto.WarrenAPI service rides the same transport with
// a protobuf codec. There is no CheckAlive RPC.
package rpc

import "encoding/json"

const codecName = "json"

// jsonCodec implements grpc/encoding.Codec so unary calls on this service
// marshal with encoding/json instead of protobuf.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}
func (jsonCodec) Name() string { return codecName }
