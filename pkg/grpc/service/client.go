package service

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client calls the descent service over a client connection
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient creates a client using cc
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Lookup asks the service to walk to the leaf for key
func (c *Client) Lookup(ctx context.Context, key []byte, opts ...grpc.CallOption) (LookupReply, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, lookupMethod, wrapperspb.Bytes(key), out, opts...); err != nil {
		return LookupReply{}, err
	}
	return DecodeLookupReply(out)
}

// Get asks the service for the value stored under key
func (c *Client) Get(ctx context.Context, key []byte, opts ...grpc.CallOption) ([]byte, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, getMethod, wrapperspb.Bytes(key), out, opts...); err != nil {
		return nil, err
	}
	return out.GetValue(), nil
}
