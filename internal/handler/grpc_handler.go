package handler

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pesio-ai/be-proc-approvals/internal/platform/auth"
	"github.com/pesio-ai/be-proc-approvals/internal/platform/errors"
	"github.com/pesio-ai/be-proc-approvals/internal/platform/logger"
	"github.com/pesio-ai/be-proc-approvals/internal/platform/middleware"
	"github.com/pesio-ai/be-proc-approvals/internal/repository"
	"github.com/pesio-ai/be-proc-approvals/internal/service"
)

// ApprovalServiceName is the fully qualified gRPC service name.
const ApprovalServiceName = "procurement.approvals.v1.ApprovalService"

// ApprovalServiceServer is the server API of ApprovalService. Every method
// takes and returns a JSON-shaped google.protobuf.Struct.
type ApprovalServiceServer interface {
	CreateApprovalRequest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	HandleAdminRequestApproval(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	ProcessAction(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	GetApprovalDetails(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	GetApprovalRequest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	ListApprovalRequests(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

func unaryMethod(name string, call func(ApprovalServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ApprovalServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ApprovalServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(ApprovalServiceServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

// ApprovalServiceDesc describes ApprovalService for grpc.Server.RegisterService.
var ApprovalServiceDesc = grpc.ServiceDesc{
	ServiceName: ApprovalServiceName,
	HandlerType: (*ApprovalServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("CreateApprovalRequest", ApprovalServiceServer.CreateApprovalRequest),
		unaryMethod("HandleAdminRequestApproval", ApprovalServiceServer.HandleAdminRequestApproval),
		unaryMethod("ProcessAction", ApprovalServiceServer.ProcessAction),
		unaryMethod("GetApprovalDetails", ApprovalServiceServer.GetApprovalDetails),
		unaryMethod("GetApprovalRequest", ApprovalServiceServer.GetApprovalRequest),
		unaryMethod("ListApprovalRequests", ApprovalServiceServer.ListApprovalRequests),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "procurement/approvals/v1/approvals.proto",
}

// RegisterApprovalServiceServer registers srv on s.
func RegisterApprovalServiceServer(s grpc.ServiceRegistrar, srv ApprovalServiceServer) {
	s.RegisterService(&ApprovalServiceDesc, srv)
}

// GRPCHandler implements the ApprovalService gRPC interface
type GRPCHandler struct {
	evaluator *service.WorkflowEvaluator
	processor *service.ActionProcessor
	history   *service.HistoryReader
	log       *logger.Logger
}

// NewGRPCHandler creates a new gRPC handler
func NewGRPCHandler(
	evaluator *service.WorkflowEvaluator,
	processor *service.ActionProcessor,
	history *service.HistoryReader,
	log *logger.Logger,
) *GRPCHandler {
	return &GRPCHandler{
		evaluator: evaluator,
		processor: processor,
		history:   history,
		log:       log.Component("grpc"),
	}
}

func grpcPrincipal(ctx context.Context) auth.Principal {
	p, _ := auth.FromContext(ctx)
	return p
}

// CreateApprovalRequest records an approval request for an entity
func (h *GRPCHandler) CreateApprovalRequest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var body createApprovalBody
	if err := fromStruct(in, &body); err != nil {
		return nil, err
	}

	h.log.Info().
		Str("entity_type", body.EntityType).
		Str("entity_id", body.EntityID).
		Msg("gRPC CreateApprovalRequest called")

	result, err := h.evaluator.CreateApprovalRequest(ctx, grpcPrincipal(ctx), service.CreateApprovalInput{
		EntityType: repository.EntityType(body.EntityType),
		EntityID:   body.EntityID,
		Title:      body.Title,
		Status:     repository.Status(body.Status),
		ApproverID: body.ApproverID,
	})
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(result)
}

// HandleAdminRequestApproval submits an entity on behalf of an admin
func (h *GRPCHandler) HandleAdminRequestApproval(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var body adminSubmitBody
	if err := fromStruct(in, &body); err != nil {
		return nil, err
	}

	result, err := h.evaluator.HandleAdminRequestApproval(ctx, grpcPrincipal(ctx), service.AdminSubmitInput{
		EntityType:       repository.EntityType(body.EntityType),
		EntityID:         body.EntityID,
		Title:            body.Title,
		AssignedApprover: body.AssignedApprover,
	})
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(result)
}

// ProcessAction applies approve, reject or more_info to a pending request
func (h *GRPCHandler) ProcessAction(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var body actionBody
	if err := fromStruct(in, &body); err != nil {
		return nil, err
	}

	h.log.Info().
		Str("approval_id", body.ID).
		Str("action", body.Action).
		Msg("gRPC ProcessAction called")

	updated, err := h.processor.ProcessAction(ctx, grpcPrincipal(ctx), body.ID, repository.Action(body.Action), body.Comments)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(updated)
}

type entityRefBody struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
}

// GetApprovalDetails returns the approval timeline of an entity
func (h *GRPCHandler) GetApprovalDetails(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var body entityRefBody
	if err := fromStruct(in, &body); err != nil {
		return nil, err
	}

	events := h.history.GetApprovalDetails(ctx, repository.EntityType(body.EntityType), body.EntityID)
	return toStruct(map[string]any{"history": orEmpty(events)})
}

// GetApprovalRequest retrieves one approval request by id
func (h *GRPCHandler) GetApprovalRequest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var body struct {
		ID string `json:"id"`
	}
	if err := fromStruct(in, &body); err != nil {
		return nil, err
	}
	if body.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}

	req, err := h.evaluator.GetApprovalRequest(ctx, body.ID)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(req)
}

type listBody struct {
	EntityType  string `json:"entity_type"`
	EntityID    string `json:"entity_id"`
	Status      string `json:"status"`
	RequesterID string `json:"requester_id"`
	ApproverID  string `json:"approver_id"`
}

// ListApprovalRequests lists approval requests matching the given filters
func (h *GRPCHandler) ListApprovalRequests(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var body listBody
	if err := fromStruct(in, &body); err != nil {
		return nil, err
	}

	var filter repository.ApprovalFilter
	if body.EntityType != "" {
		et := repository.EntityType(body.EntityType)
		filter.EntityType = &et
	}
	if body.Status != "" {
		st := repository.Status(body.Status)
		filter.Status = &st
	}
	filter.EntityID = queryPtr(body.EntityID)
	filter.RequesterID = queryPtr(body.RequesterID)
	filter.ApproverID = queryPtr(body.ApproverID)

	requests, err := h.evaluator.GetApprovalRequests(ctx, filter)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(map[string]any{
		"requests": orEmpty(requests),
		"total":    len(requests),
	})
}

// ── Conversion ────────────────────────────────────────────────────────────────

func fromStruct(in *structpb.Struct, dst any) error {
	data, err := protojson.Marshal(in)
	if err != nil {
		return status.Error(codes.InvalidArgument, "invalid request payload")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request payload: %v", err)
	}
	return nil
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}

// mapErrorToGRPC maps application errors to gRPC status errors
func mapErrorToGRPC(err error) error {
	if err == nil {
		return nil
	}

	errMsg := err.Error()
	switch errors.CodeOf(err) {
	case errors.ErrCodeNotFound:
		return status.Error(codes.NotFound, errMsg)
	case errors.ErrCodeValidation:
		return status.Error(codes.InvalidArgument, errMsg)
	case errors.ErrCodeAlreadyProcessed:
		return status.Error(codes.FailedPrecondition, errMsg)
	case errors.ErrCodeConflict:
		return status.Error(codes.AlreadyExists, errMsg)
	case errors.ErrCodeCascadeFailed:
		return status.Error(codes.Aborted, errMsg)
	case errors.ErrCodeUnauthorized:
		return status.Error(codes.Unauthenticated, errMsg)
	case errors.ErrCodeForbidden:
		return status.Error(codes.PermissionDenied, errMsg)
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

// ── Interceptors ──────────────────────────────────────────────────────────────

// AuthInterceptor authenticates every call from the "authorization" metadata
// key. A nil verifier trusts the x-user-id and x-user-roles keys instead.
func AuthInterceptor(verifier middleware.Verifier) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)

		var principal auth.Principal
		if verifier == nil {
			principal.UserID = firstValue(md, "x-user-id")
			for _, role := range strings.Split(firstValue(md, "x-user-roles"), ",") {
				if role = strings.TrimSpace(role); role != "" {
					principal.Roles = append(principal.Roles, role)
				}
			}
		} else {
			p, err := verifier.VerifyHeader(firstValue(md, "authorization"))
			if err != nil {
				return nil, status.Error(codes.Unauthenticated, err.Error())
			}
			principal = p
		}

		if principal.UserID == "" {
			return nil, status.Error(codes.Unauthenticated, "authentication required")
		}
		return handler(auth.WithPrincipal(ctx, principal), req)
	}
}

// LoggingInterceptor logs method, status code and duration of every call.
func LoggingInterceptor(log *logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		event := log.Info()
		if err != nil {
			event = log.Warn().Err(err)
		}
		event.
			Str("method", info.FullMethod).
			Str("code", status.Code(err).String()).
			Dur("duration", time.Since(start)).
			Msg("gRPC request")
		return resp, err
	}
}

func firstValue(md metadata.MD, key string) string {
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}
