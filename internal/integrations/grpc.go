package integrations

import (
	"context"

	"github.com/GriffinCanCode/tracekit/internal/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// Tag names set by the gRPC integrations
const (
	TagRPCMethod = "rpc.method"
	TagRPCCode   = "rpc.code"
)

// UnaryServerInterceptor records each unary call as a request
func UnaryServerInterceptor(t Instrumenter) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, r, done := t.StartRequest(ctx, "gRPC/"+info.FullMethod)
		defer done()
		r.AddTag(TagRPCMethod, info.FullMethod)

		resp, err := handler(ctx, req)
		tagStatus(r, err)
		return resp, err
	}
}

// StreamServerInterceptor records each streaming call as a request
func StreamServerInterceptor(t Instrumenter) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, r, done := t.StartRequest(ss.Context(), "gRPC/"+info.FullMethod)
		defer done()
		r.AddContext(trace.T(TagRPCMethod, info.FullMethod), trace.T("rpc.streaming", true))

		err := handler(srv, &scopedServerStream{ServerStream: ss, ctx: ctx})
		tagStatus(r, err)
		return err
	}
}

// scopedServerStream carries the request's context to stream handlers
type scopedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *scopedServerStream) Context() context.Context {
	return s.ctx
}

// UnaryClientInterceptor records each outgoing unary call as a span
func UnaryClientInterceptor(t Instrumenter) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		return instrument(ctx, t, "gRPC/Client"+method, func(ctx context.Context, span *trace.Span) error {
			addTag(span, TagRPCMethod, method)
			err := invoker(ctx, method, req, reply, cc, opts...)
			addTag(span, TagRPCCode, status.Code(err).String())
			return err
		})
	}
}

func tagStatus(u trace.Unit, err error) {
	u.AddTag(TagRPCCode, status.Code(err).String())
	if err != nil {
		u.AddTag(trace.TagError, err.Error())
	}
}
