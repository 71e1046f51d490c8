package admin

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RegisterTools adds every admin tool to s.
func RegisterTools(s *server.MCPServer, deps *Deps) {
	s.AddTool(
		mcp.NewTool("list_users",
			mcp.WithDescription("List registered users, optionally filtered by role."),
			mcp.WithString("role",
				mcp.Description("Only users with this role"),
				mcp.Enum("admin", "manager", "user"),
			),
			mcp.WithString("username",
				mcp.Description("Exact username"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of users (default: 50)"),
			),
		),
		ListUsers(deps.Directory, deps.Presence),
	)

	s.AddTool(
		mcp.NewTool("list_tasks",
			mcp.WithDescription("List tasks, newest first, with optional filters."),
			mcp.WithString("status",
				mcp.Description("Only tasks in this status"),
				mcp.Enum("created", "at work", "on check", "frozen", "cancel", "finished"),
			),
			mcp.WithString("name",
				mcp.Description("Case-insensitive substring of the task name"),
			),
			mcp.WithString("creator",
				mcp.Description("Username of the creating manager"),
			),
			mcp.WithString("executor",
				mcp.Description("Username of an executor"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of tasks (default: 20)"),
			),
		),
		ListTasks(deps.Directory),
	)

	s.AddTool(
		mcp.NewTool("get_task",
			mcp.WithDescription("Show one task with its creator and executors."),
			mcp.WithNumber("task_id",
				mcp.Required(),
				mcp.Description("Numeric task id"),
			),
		),
		GetTask(deps.Directory),
	)

	s.AddTool(
		mcp.NewTool("online_users",
			mcp.WithDescription("List users with at least one open push channel."),
		),
		OnlineUsers(deps.Presence),
	)

	s.AddTool(
		mcp.NewTool("broadcast_message",
			mcp.WithDescription("Push an announcement to every user's open push channels."),
			mcp.WithString("message",
				mcp.Required(),
				mcp.Description("Announcement text"),
			),
		),
		BroadcastMessage(deps.Directory, deps.Notifier),
	)
}
