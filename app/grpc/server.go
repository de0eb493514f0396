package grpc

import (
	"context"
	"errors"
	"strings"

	"github.com/vibast-solutions/ms-go-accounts/app/service"

	"github.com/sirupsen/logrus"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	AccountServiceName = "accounts.v1.AccountService"

	validateSessionMethod = "/" + AccountServiceName + "/ValidateSession"
	revokeSessionMethod   = "/" + AccountServiceName + "/RevokeSession"
)

// AccountServiceServer is the internal session API other services call.
// Messages are protobuf well-known types so no generated code is needed:
// requests carry the session token as a StringValue, ValidateSession answers
// with a Struct holding "valid" and, when valid, the account fields.
type AccountServiceServer interface {
	ValidateSession(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error)
	RevokeSession(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error)
}

var AccountServiceDesc = gogrpc.ServiceDesc{
	ServiceName: AccountServiceName,
	HandlerType: (*AccountServiceServer)(nil),
	Methods: []gogrpc.MethodDesc{
		{MethodName: "ValidateSession", Handler: validateSessionHandler},
		{MethodName: "RevokeSession", Handler: revokeSessionHandler},
	},
	Streams:  []gogrpc.StreamDesc{},
	Metadata: "accounts/v1/account_service",
}

func RegisterAccountServiceServer(s gogrpc.ServiceRegistrar, srv AccountServiceServer) {
	s.RegisterService(&AccountServiceDesc, srv)
}

func validateSessionHandler(srv any, ctx context.Context, dec func(any) error, interceptor gogrpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AccountServiceServer).ValidateSession(ctx, in)
	}
	info := &gogrpc.UnaryServerInfo{Server: srv, FullMethod: validateSessionMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AccountServiceServer).ValidateSession(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func revokeSessionHandler(srv any, ctx context.Context, dec func(any) error, interceptor gogrpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AccountServiceServer).RevokeSession(ctx, in)
	}
	info := &gogrpc.UnaryServerInfo{Server: srv, FullMethod: revokeSessionMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AccountServiceServer).RevokeSession(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// AccountServiceClient calls AccountServiceServer over a client connection.
type AccountServiceClient struct {
	cc gogrpc.ClientConnInterface
}

func NewAccountServiceClient(cc gogrpc.ClientConnInterface) *AccountServiceClient {
	return &AccountServiceClient{cc: cc}
}

func (c *AccountServiceClient) ValidateSession(ctx context.Context, in *wrapperspb.StringValue, opts ...gogrpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, validateSessionMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AccountServiceClient) RevokeSession(ctx context.Context, in *wrapperspb.StringValue, opts ...gogrpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, revokeSessionMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type AccountServer struct {
	authService service.AccountAuthService
}

func NewAccountServer(authService service.AccountAuthService) *AccountServer {
	return &AccountServer{authService: authService}
}

func (s *AccountServer) ValidateSession(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	token := strings.TrimSpace(req.GetValue())
	if token == "" {
		return nil, status.Error(codes.InvalidArgument, "session token is required")
	}

	auth, err := s.authService.Authenticate(ctx, token)
	if err != nil {
		if errors.Is(err, service.ErrSessionInvalid) {
			logrus.WithField("caller", CallerServiceFromContext(ctx)).Debug("Session rejected (grpc)")
			return structpb.NewStruct(map[string]any{"valid": false})
		}
		logrus.WithError(err).WithField("caller", CallerServiceFromContext(ctx)).Error("Session validation failed (grpc)")
		return nil, status.Error(codes.Internal, "internal server error")
	}

	return structpb.NewStruct(map[string]any{
		"valid": true,
		"account": map[string]any{
			"id":     auth.Account.ID,
			"name":   auth.Account.Name,
			"email":  auth.Account.Email,
			"status": string(auth.Account.Status),
		},
	})
}

func (s *AccountServer) RevokeSession(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	token := strings.TrimSpace(req.GetValue())
	if token == "" {
		return nil, status.Error(codes.InvalidArgument, "session token is required")
	}

	if err := s.authService.Logout(ctx, token); err != nil {
		if errors.Is(err, service.ErrFeatureDisabled) {
			return nil, status.Error(codes.Unimplemented, "logout is disabled")
		}
		logrus.WithError(err).WithField("caller", CallerServiceFromContext(ctx)).Error("Session revoke failed (grpc)")
		return nil, status.Error(codes.Internal, "internal server error")
	}

	logrus.WithField("caller", CallerServiceFromContext(ctx)).Info("Session revoked (grpc)")
	return &emptypb.Empty{}, nil
}
