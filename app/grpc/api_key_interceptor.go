package grpc

import (
	"context"
	"errors"
	"strings"

	"github.com/vibast-solutions/ms-go-accounts/app/entity"
	"github.com/vibast-solutions/ms-go-accounts/app/service"

	"github.com/sirupsen/logrus"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const metadataAPIKey = "x-api-key"

type callerServiceKey struct{}

func APIKeyUnaryInterceptor(authService service.InternalAuthService) gogrpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *gogrpc.UnaryServerInfo, handler gogrpc.UnaryHandler) (any, error) {
		key, err := validateIncomingAPIKey(ctx, authService)
		if err != nil {
			return nil, err
		}

		return handler(context.WithValue(ctx, callerServiceKey{}, key.ServiceName), req)
	}
}

func APIKeyStreamInterceptor(authService service.InternalAuthService) gogrpc.StreamServerInterceptor {
	return func(srv any, ss gogrpc.ServerStream, _ *gogrpc.StreamServerInfo, handler gogrpc.StreamHandler) error {
		key, err := validateIncomingAPIKey(ss.Context(), authService)
		if err != nil {
			return err
		}

		ctx := context.WithValue(ss.Context(), callerServiceKey{}, key.ServiceName)
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

// CallerServiceFromContext returns the service name bound to the api key of
// the current call, or "" outside an authenticated call.
func CallerServiceFromContext(ctx context.Context) string {
	name, _ := ctx.Value(callerServiceKey{}).(string)
	return name
}

func validateIncomingAPIKey(ctx context.Context, authService service.InternalAuthService) (*entity.InternalAPIKey, error) {
	apiKey := incomingAPIKeyFromMetadata(ctx)
	if apiKey == "" {
		return nil, status.Error(codes.Unauthenticated, "unauthorized")
	}

	key, err := authService.ValidateInternalAPIKey(ctx, apiKey)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInternalAPIKey) {
			return nil, status.Error(codes.Unauthenticated, "unauthorized")
		}
		logrus.WithError(err).Error("API key validation failed (grpc)")
		return nil, status.Error(codes.Internal, "internal server error")
	}

	return key, nil
}

func incomingAPIKeyFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(metadataAPIKey)
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

type wrappedServerStream struct {
	gogrpc.ServerStream
	ctx context.Context
}

func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
