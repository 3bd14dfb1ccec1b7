// Package assistant exposes the shared-secret reminder surface as MCP tools
// over stdio, so an AI assistant can create, list and bulk-edit reminders.
package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/inaciog/reminders-app/internal/client"
	"github.com/inaciog/reminders-app/internal/model"
	"github.com/inaciog/reminders-app/internal/repository"
	"github.com/inaciog/reminders-app/internal/views"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Backend is the slice of the HTTP client the tools need. A *client.Client
// built with client.WithSecret satisfies it.
type Backend interface {
	CreateReminder(ctx context.Context, in client.NewReminder) (model.Reminder, error)
	ListReminders(ctx context.Context, opts client.ListOptions) ([]client.Reminder, error)
	Stats(ctx context.Context) (repository.Stats, error)
	Bulk(ctx context.Context, action repository.BulkAction, ids []string, folderID string) (int, error)
}

const (
	ToolCreate = "create_reminder"
	ToolList   = "list_reminders"
	ToolStats  = "reminder_stats"
	ToolBulk   = "bulk_reminders"

	defaultLimit = 25
	maxLimit     = 100
)

const instructions = `Reminders keeps the user's to-do items in folders with due dates, ` +
	`priorities, #tags, subtasks and daily/weekly/monthly recurrence. Use ` +
	`create_reminder when the user asks to be reminded of something, ` +
	`list_reminders to see what is due (folder "today" for today's items), ` +
	`bulk_reminders to complete, reopen, move or delete items by id, and ` +
	`reminder_stats for a summary.`

// NewServer builds the MCP server with every reminder tool registered.
func NewServer(b Backend, version string) *server.MCPServer {
	srv := server.NewMCPServer(
		"reminders",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions(instructions),
	)
	registerTools(srv, b)
	return srv
}

// Serve runs the MCP server on stdin/stdout until the client disconnects.
func Serve(b Backend, version string) error {
	return server.ServeStdio(NewServer(b, version))
}

func registerTools(srv *server.MCPServer, b Backend) {
	srv.AddTool(
		mcp.NewTool(ToolCreate,
			mcp.WithDescription("Create a reminder. #tags in the title or notes are indexed automatically."),
			mcp.WithTitleAnnotation("Create Reminder"),
			mcp.WithReadOnlyHintAnnotation(false),
			mcp.WithDestructiveHintAnnotation(false),
			mcp.WithString("title",
				mcp.Required(),
				mcp.Description("What to be reminded of"),
			),
			mcp.WithString("notes",
				mcp.Description("Free-form notes"),
			),
			mcp.WithString("folder",
				mcp.Description("Folder id; defaults to inbox"),
			),
			mcp.WithString("due",
				mcp.Description("Due date: RFC 3339, YYYY-MM-DDTHH:MM or YYYY-MM-DD in local time, or epoch milliseconds"),
			),
			mcp.WithString("priority",
				mcp.Description("high, normal (default) or low"),
				mcp.Enum("high", "normal", "low"),
			),
			mcp.WithString("recurring",
				mcp.Description("none (default), daily, weekly or monthly"),
				mcp.Enum("none", "daily", "weekly", "monthly"),
			),
			mcp.WithArray("subtasks",
				mcp.Description("Subtask titles"),
				mcp.Items(map[string]any{"type": "string"}),
			),
		),
		handleCreate(b),
	)

	srv.AddTool(
		mcp.NewTool(ToolList,
			mcp.WithDescription("List reminders. Folder may be a folder id or one of the smart folders today, scheduled, all and completed."),
			mcp.WithTitleAnnotation("List Reminders"),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithDestructiveHintAnnotation(false),
			mcp.WithIdempotentHintAnnotation(true),
			mcp.WithString("folder",
				mcp.Description("Folder id or smart folder"),
			),
			mcp.WithBoolean("completed",
				mcp.Description("Only completed (true) or only open (false) reminders"),
			),
			mcp.WithString("tag",
				mcp.Description("Only reminders carrying this #tag"),
			),
			mcp.WithString("search",
				mcp.Description("Case-insensitive text search over title and notes"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Max results (default: 25, max: 100)"),
			),
		),
		handleList(b),
	)

	srv.AddTool(
		mcp.NewTool(ToolStats,
			mcp.WithDescription("Summary counts: total, pending, completed, due today, overdue, high priority, recurring."),
			mcp.WithTitleAnnotation("Reminder Stats"),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithIdempotentHintAnnotation(true),
		),
		handleStats(b),
	)

	srv.AddTool(
		mcp.NewTool(ToolBulk,
			mcp.WithDescription("Apply one action to several reminders by id."),
			mcp.WithTitleAnnotation("Bulk Edit Reminders"),
			mcp.WithReadOnlyHintAnnotation(false),
			mcp.WithDestructiveHintAnnotation(true),
			mcp.WithString("action",
				mcp.Required(),
				mcp.Description("complete, uncomplete, delete or move"),
				mcp.Enum("complete", "uncomplete", "delete", "move"),
			),
			mcp.WithArray("ids",
				mcp.Required(),
				mcp.Description("Reminder ids"),
				mcp.Items(map[string]any{"type": "string"}),
			),
			mcp.WithString("folder",
				mcp.Description("Target folder id for move"),
			),
		),
		handleBulk(b),
	)
}

func handleCreate(b Backend) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		title := strings.TrimSpace(stringArg(req, "title"))
		if title == "" {
			return mcp.NewToolResultError("title is required"), nil
		}
		in := client.NewReminder{
			Title:    title,
			Notes:    stringArg(req, "notes"),
			FolderID: stringArg(req, "folder"),
			Subtasks: stringsArg(req, "subtasks"),
		}
		if raw := stringArg(req, "due"); raw != "" {
			due, err := model.ParseTimestamp(raw)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("invalid due date %q", raw)), nil
			}
			in.DueDate = &due
		}
		priority, err := model.ParsePriority(stringArg(req, "priority"))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		in.Priority = priority
		if raw := strings.ToLower(stringArg(req, "recurring")); raw != "" && raw != "none" {
			rec, err := model.ParseRecurrence(raw)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			in.Recurring = rec
		}

		rem, err := b.CreateReminder(ctx, in)
		if err != nil {
			return mcp.NewToolResultError("Failed to create reminder: " + err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Reminder created: %q (id %s)\n%s",
			rem.Title, rem.ID, views.RenderRow(views.RowFrom(rem, false), 1, false, false))), nil
	}
}

func handleList(b Backend) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		opts := client.ListOptions{
			Folder: stringArg(req, "folder"),
			Tag:    stringArg(req, "tag"),
			Search: stringArg(req, "search"),
		}
		if v, ok := req.GetArguments()["completed"].(bool); ok {
			opts.Completed = &v
		}
		limit := intArg(req, "limit", defaultLimit)
		if limit <= 0 {
			limit = defaultLimit
		}
		if limit > maxLimit {
			limit = maxLimit
		}

		items, err := b.ListReminders(ctx, opts)
		if err != nil {
			return mcp.NewToolResultError("Failed to list reminders: " + err.Error()), nil
		}
		if len(items) == 0 {
			return mcp.NewToolResultText("No reminders found."), nil
		}

		var out strings.Builder
		fmt.Fprintf(&out, "Found %d reminders:\n", len(items))
		for i, item := range items {
			if i == limit {
				fmt.Fprintf(&out, "... and %d more\n", len(items)-limit)
				break
			}
			fmt.Fprintf(&out, "%s  [id %s]\n", views.RenderRow(views.RowFrom(item.Reminder, item.Overdue), i+1, false, false), item.ID)
		}
		return mcp.NewToolResultText(strings.TrimSuffix(out.String(), "\n")), nil
	}
}

func handleStats(b Backend) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		st, err := b.Stats(ctx)
		if err != nil {
			return mcp.NewToolResultError("Failed to get stats: " + err.Error()), nil
		}
		return mcp.NewToolResultText(views.RenderStats(views.StatsData{
			Total:        st.Total,
			Completed:    st.Completed,
			Pending:      st.Pending,
			DueToday:     st.DueToday,
			Overdue:      st.Overdue,
			HighPriority: st.HighPriority,
			Recurring:    st.Recurring,
			Tags:         st.Tags,
			ByFolder:     st.ByFolder,
		})), nil
	}
}

func handleBulk(b Backend) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		action := repository.BulkAction(stringArg(req, "action"))
		if !action.IsValid() {
			return mcp.NewToolResultError(fmt.Sprintf("unknown action %q", action)), nil
		}
		ids := stringsArg(req, "ids")
		if len(ids) == 0 {
			return mcp.NewToolResultError("ids must not be empty"), nil
		}
		folder := stringArg(req, "folder")
		if action == repository.BulkMove && folder == "" {
			return mcp.NewToolResultError("folder is required for move"), nil
		}

		n, err := b.Bulk(ctx, action, ids, folder)
		if err != nil {
			return mcp.NewToolResultError("Failed to apply " + string(action) + ": " + err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("%s: %d of %d reminders updated", action, n, len(ids))), nil
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func stringArg(req mcp.CallToolRequest, key string) string {
	v, _ := req.GetArguments()[key].(string)
	return strings.TrimSpace(v)
}

func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// stringsArg accepts a JSON array of strings or a single comma-separated
// string.
func stringsArg(req mcp.CallToolRequest, key string) []string {
	var out []string
	switch v := req.GetArguments()[key].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case []string:
		for _, s := range v {
			if strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case string:
		for _, s := range strings.Split(v, ",") {
			if strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	}
	return out
}
