package admin

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/taskboard/internal/domain"
	"github.com/btouchard/taskboard/internal/notify"
	"github.com/btouchard/taskboard/internal/store"
)

const maxAnnouncementLength = 1000

// ListUsers returns a handler listing users with their presence.
func ListUsers(dir Directory, presence Presence) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()

		filter := store.UserFilter{Limit: 50}
		if role, ok := args["role"].(string); ok && role != "" {
			r, err := domain.ParseRole(role)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			filter.Role = r
		}
		if name, ok := args["username"].(string); ok {
			filter.Username = name
		}
		if limit, ok := args["limit"].(float64); ok && limit > 0 {
			filter.Limit = int(limit)
		}

		users, err := dir.ListUsers(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("listing users: %w", err)
		}
		if len(users) == 0 {
			return mcp.NewToolResultText("No users found matching the given filters."), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Users (%d found)\n\n", len(users))
		for _, u := range users {
			fmt.Fprintf(&sb, "#%d %s <%s> [%s]", u.ID, u.Username, u.Email, u.Role)
			if n := presence.Count(u.ID); n > 0 {
				fmt.Fprintf(&sb, " online (%d)", n)
			}
			sb.WriteString("\n")
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

// ListTasks returns a handler listing tasks with optional filters.
func ListTasks(dir Directory) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()

		filter := store.TaskFilter{Limit: 20}
		if status, ok := args["status"].(string); ok && status != "" {
			st, err := domain.ParseStatus(status)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			filter.Status = st
		}
		if name, ok := args["name"].(string); ok {
			filter.NameContains = name
		}
		if creator, ok := args["creator"].(string); ok {
			filter.CreatorUsername = creator
		}
		if executor, ok := args["executor"].(string); ok {
			filter.ExecutorUsername = executor
		}
		if limit, ok := args["limit"].(float64); ok && limit > 0 {
			filter.Limit = int(limit)
		}

		tasks, err := dir.ListTasks(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("listing tasks: %w", err)
		}
		if len(tasks) == 0 {
			return mcp.NewToolResultText("No tasks found matching the given filters."), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Tasks (%d found)\n\n", len(tasks))
		for _, t := range tasks {
			writeTaskLine(&sb, &t)
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

// GetTask returns a handler describing a single task.
func GetTask(dir Directory) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, ok := req.GetArguments()["task_id"].(float64)
		if !ok || id < 1 {
			return mcp.NewToolResultError("task_id is required"), nil
		}

		t, err := dir.GetTask(ctx, int64(id))
		if errors.Is(err, domain.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("task %d not found", int64(id))), nil
		}
		if err != nil {
			return nil, fmt.Errorf("getting task: %w", err)
		}

		var sb strings.Builder
		writeTaskLine(&sb, t)
		if t.Description != "" {
			fmt.Fprintf(&sb, "  Description: %s\n", t.Description)
		}
		fmt.Fprintf(&sb, "  Created: %s\n", t.CreatedAt.Format("2006-01-02 15:04"))
		if t.Deadline != nil {
			fmt.Fprintf(&sb, "  Deadline: %s\n", t.Deadline.Format("2006-01-02 15:04"))
		}
		if len(t.Executors) == 0 {
			sb.WriteString("  Executors: none\n")
		}
		for _, e := range t.Executors {
			if e.User != nil {
				fmt.Fprintf(&sb, "  Executor: #%d %s <%s>\n", e.UserID, e.User.Username, e.User.Email)
			} else {
				fmt.Fprintf(&sb, "  Executor: #%d\n", e.UserID)
			}
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

// OnlineUsers returns a handler listing connected users.
func OnlineUsers(presence Presence) server.ToolHandlerFunc {
	return func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		online := presence.Online()
		if len(online) == 0 {
			return mcp.NewToolResultText("Nobody is connected."), nil
		}
		slices.Sort(online)

		var sb strings.Builder
		fmt.Fprintf(&sb, "Online users (%d)\n\n", len(online))
		for _, id := range online {
			fmt.Fprintf(&sb, "#%d: %d channel(s)\n", id, presence.Count(id))
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

// BroadcastMessage returns a handler that pushes an announcement to every
// user.
func BroadcastMessage(dir Directory, notifier notify.Notifier) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		msg, _ := req.GetArguments()["message"].(string)
		msg = strings.TrimSpace(msg)
		if msg == "" {
			return mcp.NewToolResultError("message is required"), nil
		}
		if len(msg) > maxAnnouncementLength {
			return mcp.NewToolResultError(fmt.Sprintf("message exceeds %d bytes", maxAnnouncementLength)), nil
		}

		ids, err := dir.UserIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolving recipients: %w", err)
		}
		notifier.Notify(ctx, notify.NewEvent(notify.Announcement, "%s", msg), ids...)

		return mcp.NewToolResultText(fmt.Sprintf("Announcement sent to %d user(s).", len(ids))), nil
	}
}

func writeTaskLine(sb *strings.Builder, t *domain.Task) {
	fmt.Fprintf(sb, "%s #%d %s [%s]", statusIcon(t.Status), t.ID, t.Name, t.Status)
	if t.Urgency {
		sb.WriteString(" urgent")
	}
	if t.Creator != nil {
		fmt.Fprintf(sb, " by %s", t.Creator.Username)
	}
	fmt.Fprintf(sb, " | executors: %d\n", len(t.Executors))
}

func statusIcon(s domain.Status) string {
	switch s {
	case domain.StatusCreated:
		return "⏳"
	case domain.StatusAtWork:
		return "🔄"
	case domain.StatusOnCheck:
		return "🔍"
	case domain.StatusFrozen:
		return "🧊"
	case domain.StatusCancel:
		return "🚫"
	case domain.StatusFinished:
		return "✅"
	default:
		return "❓"
	}
}
