// Package rpc defines the Connect surface of the service: procedure names,
// request and response messages, handler constructors and clients.
//
// Messages are plain Go structs carried by a JSON codec registered under
// Connect's "json" codec name, so any Connect client speaking
// application/json can call the service.
package rpc

import (
	"encoding/json"

	"connectrpc.com/connect"
)

// jsonCodec marshals plain structs with encoding/json.
type jsonCodec struct {
	name string
}

func (c jsonCodec) Name() string { return c.name }

func (jsonCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, msg)
}

var (
	codecJSON        = jsonCodec{name: "json"}
	codecJSONCharset = jsonCodec{name: "json; charset=utf-8"}
)

func handlerOptions(opts []connect.HandlerOption) []connect.HandlerOption {
	return append([]connect.HandlerOption{
		connect.WithCodec(codecJSON),
		connect.WithCodec(codecJSONCharset),
	}, opts...)
}

func clientOptions(opts []connect.ClientOption) []connect.ClientOption {
	return append([]connect.ClientOption{connect.WithCodec(codecJSON)}, opts...)
}
