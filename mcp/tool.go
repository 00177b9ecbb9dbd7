package mcp

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viant/jsonrpc"
	"github.com/viant/mcp-protocol/schema"
	protoserver "github.com/viant/mcp-protocol/server"

	"github.com/viant/outlook-node/graph"
)

//go:embed tools/outlookExecute.md
var outlookExecuteDesc string

//go:embed tools/outlookListCategories.md
var outlookListCategoriesDesc string

func registerTools(base *protoserver.DefaultHandler, h *Handler) error {
	svc := h.service
	ops := h.ops

	// Non-blocking OOB launch via the server-side /outlook/auth/start page.
	startOOB := func(ctx context.Context, alias, tenant string) {
		if ops == nil || !ops.Implements(schema.MethodElicitationCreate) {
			return
		}
		baseURL := strings.TrimRight(svc.BaseURL(), "/")
		url := fmt.Sprintf("%s/outlook/auth/start?alias=%s&tenant=%s", baseURL, alias, tenant)
		go func() {
			ctx2, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_, _ = ops.Elicit(ctx2, &jsonrpc.TypedRequest[*schema.ElicitRequest]{Request: &schema.ElicitRequest{
				Params: schema.ElicitRequestParams{ElicitationId: uuid.New().String(), Message: "Sign in to Outlook", Mode: string(schema.ElicitRequestParamsModeUrl), Url: url},
			}})
		}()
	}

	// Batch execute
	if err := protoserver.RegisterTool[*ExecuteInput, *ExecuteOutput](base.Registry, "outlookExecute", outlookExecuteDesc, func(ctx context.Context, in *ExecuteInput) (*schema.CallToolResult, *jsonrpc.Error) {
		if in.Account.Alias == "" {
			return buildErrorResult("account.alias is required")
		}
		if in.Account.TenantID == "" {
			in.Account.TenantID = svc.TenantID()
		}
		if svc.GraphManager().NeedsInteractive(ctx, in.Account.Alias, in.Account.TenantID, graph.DefaultScopes()) {
			startOOB(ctx, in.Account.Alias, in.Account.TenantID)
		}
		out, err := svc.Execute(ctx, in, graph.DefaultScopes(), nil)
		if err != nil {
			return buildErrorResult(err.Error())
		}
		return buildSuccessResult(svc, out)
	}); err != nil {
		return err
	}

	// Master categories
	if err := protoserver.RegisterTool[*ListCategoriesInput, *ListCategoriesOutput](base.Registry, "outlookListCategories", outlookListCategoriesDesc, func(ctx context.Context, in *ListCategoriesInput) (*schema.CallToolResult, *jsonrpc.Error) {
		if in.Account.Alias == "" {
			return buildErrorResult("account.alias is required")
		}
		if in.Account.TenantID == "" {
			in.Account.TenantID = svc.TenantID()
		}
		if svc.GraphManager().NeedsInteractive(ctx, in.Account.Alias, in.Account.TenantID, graph.DefaultScopes()) {
			startOOB(ctx, in.Account.Alias, in.Account.TenantID)
		}
		out, err := svc.ListCategories(ctx, in, graph.DefaultScopes(), nil)
		if err != nil {
			return buildErrorResult(err.Error())
		}
		return buildSuccessResult(svc, out)
	}); err != nil {
		return err
	}

	return nil
}

func buildErrorResult(message string) (*schema.CallToolResult, *jsonrpc.Error) {
	return nil, jsonrpc.NewError(jsonrpc.InvalidParams, message, nil)
}

func buildSuccessResult(service *Service, payload any) (*schema.CallToolResult, *jsonrpc.Error) {
	if service.UseTextField() {
		b, _ := json.Marshal(payload)
		return &schema.CallToolResult{Content: []schema.CallToolResultContentElem{{Type: "text", Text: string(b)}}}, nil
	}
	return &schema.CallToolResult{StructuredContent: map[string]any{"result": payload}}, nil
}
