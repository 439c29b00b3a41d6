package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/schemahub/registry-mcp-go/mcp"
	"github.com/schemahub/registry-mcp-go/mcpserver"
	"github.com/schemahub/registry-mcp-go/registry"
)

type listSchemasArgs struct{}

type listSchemasPagedArgs struct {
	Page     int `json:"page" jsonschema:"description=Page number starting at 1"`
	PageSize int `json:"page_size,omitempty" jsonschema:"description=Schemas per page; omit for the registry default"`
}

type getSchemaArgs struct {
	ID          string `json:"id,omitempty" jsonschema:"description=Opaque schema id"`
	VersionName string `json:"version_name,omitempty" jsonschema:"description=Composite version key in name@version form"`
}

type createSchemaArgs struct {
	Name        string `json:"name" jsonschema:"description=Schema name"`
	Version     string `json:"version" jsonschema:"description=Version label for this revision"`
	Content     string `json:"content" jsonschema:"description=Schema document"`
	ContentType string `json:"content_type,omitempty" jsonschema:"description=Document format such as avro or json-schema"`
	Description string `json:"description,omitempty" jsonschema:"description=Human-readable summary"`
}

type updateSchemaArgs struct {
	ID          string `json:"id" jsonschema:"description=Opaque schema id"`
	Content     string `json:"content" jsonschema:"description=Replacement schema document"`
	Description string `json:"description,omitempty" jsonschema:"description=Replacement summary"`
}

type deleteSchemaArgs struct {
	ID string `json:"id" jsonschema:"description=Opaque schema id"`
}

type schemaExistsArgs struct {
	ID string `json:"id" jsonschema:"description=Opaque schema id"`
}

type validateSchemaArgs struct {
	Content     string `json:"content" jsonschema:"description=Schema document to check"`
	ContentType string `json:"content_type,omitempty" jsonschema:"description=Document format such as avro or json-schema"`
}

type checkBreakingArgs struct {
	ID      string `json:"id" jsonschema:"description=Opaque id of the stored schema to compare against"`
	Content string `json:"content" jsonschema:"description=Proposed replacement document"`
}

// newToolSet builds the tool catalog backed by one registry client. Every
// tool maps onto a single registry call; not-found and API errors come
// back as error results rather than protocol errors so the model can see
// and react to them.
func newToolSet(client *registry.Client) *mcpserver.ToolSet {
	return mcpserver.NewToolSet(
		mcpserver.NewTool("list_schemas",
			"List every schema in the registry.",
			func(ctx context.Context, _ listSchemasArgs) (*mcp.CallToolResult, error) {
				schemas, err := client.List(ctx)
				if err != nil {
					return registryError("list schemas", err), nil
				}
				return mcpserver.StructuredResult(map[string]any{"schemas": schemas})
			}),

		mcpserver.NewTool("list_schemas_paged",
			"List schemas one page at a time.",
			func(ctx context.Context, args listSchemasPagedArgs) (*mcp.CallToolResult, error) {
				if args.Page < 1 {
					return mcpserver.Errorf("page must be at least 1"), nil
				}
				page, err := client.ListPage(ctx, args.Page, args.PageSize)
				if err != nil {
					return registryError("list schemas", err), nil
				}
				return mcpserver.StructuredResult(page)
			}),

		mcpserver.NewTool("get_schema",
			"Fetch one schema by id or by version_name (name@version).",
			func(ctx context.Context, args getSchemaArgs) (*mcp.CallToolResult, error) {
				var (
					s   *registry.Schema
					err error
				)
				switch {
				case args.ID != "":
					s, err = client.Get(ctx, args.ID)
				case args.VersionName != "":
					s, err = client.GetVersion(ctx, args.VersionName)
				default:
					return mcpserver.Errorf("either id or version_name is required"), nil
				}
				if err != nil {
					return registryError("get schema", err), nil
				}
				return mcpserver.StructuredResult(s)
			}),

		mcpserver.NewTool("create_schema",
			"Register a new schema revision.",
			func(ctx context.Context, args createSchemaArgs) (*mcp.CallToolResult, error) {
				created, err := client.Create(ctx, &registry.Schema{
					Name:        args.Name,
					Version:     args.Version,
					Content:     args.Content,
					ContentType: args.ContentType,
					Description: args.Description,
				})
				if err != nil {
					return registryError("create schema", err), nil
				}
				return mcpserver.StructuredResult(created)
			}),

		mcpserver.NewTool("update_schema",
			"Replace the document of a stored schema.",
			func(ctx context.Context, args updateSchemaArgs) (*mcp.CallToolResult, error) {
				updated, err := client.Update(ctx, args.ID, &registry.Schema{
					Content:     args.Content,
					Description: args.Description,
				})
				if err != nil {
					return registryError("update schema", err), nil
				}
				return mcpserver.StructuredResult(updated)
			}),

		mcpserver.NewTool("delete_schema",
			"Delete a schema by id.",
			func(ctx context.Context, args deleteSchemaArgs) (*mcp.CallToolResult, error) {
				if err := client.Delete(ctx, args.ID); err != nil {
					return registryError("delete schema", err), nil
				}
				return mcpserver.TextResult(fmt.Sprintf("deleted schema %s", args.ID)), nil
			}),

		mcpserver.NewTool("schema_exists",
			"Check whether a schema id is registered.",
			func(ctx context.Context, args schemaExistsArgs) (*mcp.CallToolResult, error) {
				ok, err := client.Exists(ctx, args.ID)
				if err != nil {
					return registryError("check schema", err), nil
				}
				return mcpserver.StructuredResult(map[string]any{"id": args.ID, "exists": ok})
			}),

		mcpserver.NewTool("validate_schema",
			"Check that a schema document parses under its content type.",
			func(ctx context.Context, args validateSchemaArgs) (*mcp.CallToolResult, error) {
				res, err := client.Validate(ctx, args.Content, args.ContentType)
				if err != nil {
					return registryError("validate schema", err), nil
				}
				return mcpserver.StructuredResult(res)
			}),

		mcpserver.NewTool("check_breaking_changes",
			"Compare a proposed document against a stored schema and report incompatibilities.",
			func(ctx context.Context, args checkBreakingArgs) (*mcp.CallToolResult, error) {
				rep, err := client.CheckBreaking(ctx, args.ID, args.Content)
				if err != nil {
					return registryError("check breaking changes", err), nil
				}
				return mcpserver.StructuredResult(rep)
			}),
	)
}

// registryError turns a client failure into a tool error result with a
// message the model can act on.
func registryError(op string, err error) *mcp.CallToolResult {
	if errors.Is(err, registry.ErrNotFound) {
		return mcpserver.Errorf("%s: schema not found", op)
	}
	var apiErr *registry.APIError
	if errors.As(err, &apiErr) {
		return mcpserver.Errorf("%s: %v", op, apiErr)
	}
	return mcpserver.Errorf("%s: %v", op, err)
}
