// Package service exposes tree lookups over gRPC.
//
// The service has no generated stubs. Requests and replies use protobuf
// well-known types, and the service descriptor is written out by hand.
package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/KevoDB/wtdescent/pkg/common/log"
	"github.com/KevoDB/wtdescent/pkg/descent"
	"github.com/KevoDB/wtdescent/pkg/telemetry"
	"github.com/KevoDB/wtdescent/pkg/treefile"
	"github.com/KevoDB/wtdescent/pkg/walker"
)

// ServiceName is the full gRPC service name
const ServiceName = "wtdescent.Descent"

const (
	lookupMethod = "/" + ServiceName + "/Lookup"
	getMethod    = "/" + ServiceName + "/Get"
)

// DescentServer is the server side of the descent service
type DescentServer interface {
	// Lookup walks to the leaf for the key and describes the walk
	Lookup(ctx context.Context, req *wrapperspb.BytesValue) (*structpb.Struct, error)
	// Get returns the value stored under the key
	Get(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
}

// DescentServiceDesc describes the descent service for grpc.Server
var DescentServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DescentServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Lookup", Handler: lookupHandler},
		{MethodName: "Get", Handler: getHandler},
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterDescentServer registers srv with s
func RegisterDescentServer(s grpc.ServiceRegistrar, srv DescentServer) {
	s.RegisterService(&DescentServiceDesc, srv)
}

func lookupHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DescentServer).Lookup(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: lookupMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DescentServer).Lookup(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func getHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DescentServer).Get(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DescentServer).Get(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// DescentService implements DescentServer on a Walker
type DescentService struct {
	walker *walker.Walker
	logger log.Logger
	tel    telemetry.Telemetry
}

var _ DescentServer = (*DescentService)(nil)

// NewDescentService creates a service answering lookups with w. A nil logger
// or telemetry falls back to the defaults.
func NewDescentService(w *walker.Walker, logger log.Logger, tel telemetry.Telemetry) *DescentService {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	if tel == nil {
		tel = telemetry.NewNoop()
	}
	return &DescentService{
		walker: w,
		logger: logger.WithField("component", telemetry.ComponentService),
		tel:    tel,
	}
}

// Lookup walks to the leaf for the key
func (s *DescentService) Lookup(ctx context.Context, req *wrapperspb.BytesValue) (*structpb.Struct, error) {
	if err := validateKey(req); err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := s.walker.Lookup(ctx, req.GetValue())
	s.record(ctx, telemetry.OpTypeLookup, start, err)
	if err != nil {
		return nil, toStatus(err)
	}
	return EncodeLookupReply(ReplyFromResult(res)), nil
}

// Get returns the value stored under the key
func (s *DescentService) Get(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	if err := validateKey(req); err != nil {
		return nil, err
	}

	start := time.Now()
	value, err := s.walker.Get(ctx, req.GetValue())
	s.record(ctx, telemetry.OpTypeGet, start, err)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bytes(value), nil
}

func (s *DescentService) record(ctx context.Context, op string, start time.Time, err error) {
	result := telemetry.StatusSuccess
	if err != nil {
		result = telemetry.StatusError
		if errors.Is(err, treefile.ErrNotFound) {
			result = telemetry.StatusNotFound
		} else {
			s.logger.Warn("%s failed: %v", op, err)
		}
	}
	telemetry.RecordDuration(ctx, s.tel, "wtdescent.service.request.duration", start,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentService),
		attribute.String(telemetry.AttrOperationType, op),
		attribute.String(telemetry.AttrStatus, result),
	)
}

func validateKey(req *wrapperspb.BytesValue) error {
	if req == nil || len(req.GetValue()) == 0 {
		return status.Error(codes.InvalidArgument, "key is required")
	}
	return nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, treefile.ErrNotFound), errors.Is(err, walker.ErrNoChild):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, descent.ErrDepthExhausted):
		return status.Error(codes.OutOfRange, err.Error())
	case errors.Is(err, descent.ErrInvalidEncoding),
		errors.Is(err, treefile.ErrChecksumMismatch),
		errors.Is(err, treefile.ErrBadAddress):
		return status.Error(codes.DataLoss, err.Error())
	case errors.Is(err, descent.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
