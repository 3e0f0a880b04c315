package main

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	serveradapter "github.com/hylla/nexus/internal/adapters/server"
	servercommon "github.com/hylla/nexus/internal/adapters/server/common"
	"github.com/hylla/nexus/internal/app"
	"github.com/hylla/nexus/internal/board"
	"github.com/hylla/nexus/internal/domain"
	"github.com/hylla/nexus/internal/tui"
)

// actorFlags binds the caller identity flags shared by mutating commands.
type actorFlags struct {
	id   string
	role string
}

func (f *actorFlags) bind(cmd *cobra.Command, defaultRole string) {
	cmd.Flags().StringVar(&f.id, "actor", "", "calling user id")
	cmd.Flags().StringVar(&f.role, "role", defaultRole, "calling user role (lead|member)")
}

func (f actorFlags) actor() (domain.Actor, error) {
	actor, err := domain.NewActor(f.id, domain.Role(f.role))
	if err != nil {
		return domain.Actor{}, fmt.Errorf("--actor/--role: %w", err)
	}
	return actor, nil
}

func serveCmd(env cliEnv, opts *rootOptions) *cobra.Command {
	var httpBind, apiEndpoint, mcpEndpoint string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and MCP endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, env, opts, func(ctx context.Context, rt *runtime) error {
				cfg := serveradapter.Config{
					HTTPBind:      firstNonEmpty(httpBind, rt.cfg.Server.HTTPBind),
					APIEndpoint:   firstNonEmpty(apiEndpoint, rt.cfg.Server.APIEndpoint),
					MCPEndpoint:   firstNonEmpty(mcpEndpoint, rt.cfg.Server.MCPEndpoint),
					ServerName:    appName,
					ServerVersion: version,
				}
				rt.logger.Info("serve command configured",
					"http_bind", cfg.HTTPBind,
					"api_endpoint", cfg.APIEndpoint,
					"mcp_endpoint", cfg.MCPEndpoint,
				)
				adapter := servercommon.NewAppServiceAdapter(rt.service)
				err := serveCommandRunner(ctx, cfg, serveradapter.Dependencies{
					Tasks:         adapter,
					Projects:      adapter,
					Notifications: adapter,
				})
				if err != nil {
					rt.logger.Error("serve command failed", "err", err)
					return fmt.Errorf("run serve command: %w", err)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&httpBind, "http", "", "HTTP listen address (default from config)")
	cmd.Flags().StringVar(&apiEndpoint, "api-endpoint", "", "HTTP API base path (default from config)")
	cmd.Flags().StringVar(&mcpEndpoint, "mcp-endpoint", "", "MCP endpoint path (default from config)")
	return cmd
}

func boardCmd(env cliEnv, opts *rootOptions) *cobra.Command {
	var serverURL, projectID, actorID, actorRole string
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Open the terminal task board",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := resolvePaths(env, opts)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(opts, paths)
			if err != nil {
				return err
			}
			projectID = firstNonEmpty(projectID, cfg.Board.ProjectID)
			if projectID == "" {
				return fmt.Errorf("board: --project is required")
			}
			actor, err := actorFlags{
				id:   firstNonEmpty(actorID, cfg.Board.ActorID),
				role: firstNonEmpty(actorRole, cfg.Board.ActorRole),
			}.actor()
			if err != nil {
				return err
			}
			tuiOpts := []tui.Option{
				tui.WithKeyConfig(tui.KeyConfig{
					MoveTaskLeft:  cfg.Keys.MoveTaskLeft,
					MoveTaskRight: cfg.Keys.MoveTaskRight,
					BlockTask:     cfg.Keys.BlockTask,
					EditReason:    cfg.Keys.EditReason,
					CopyID:        cfg.Keys.CopyID,
				}),
			}

			if url := firstNonEmpty(serverURL, cfg.Board.ServerURL); url != "" {
				logger, err := newRuntimeLogger(env.stderr, filepath.Dir(paths.LogPath), opts.devMode, cfg.Logging, env.now)
				if err != nil {
					return err
				}
				defer func() { _ = logger.Close() }()
				logger.Info("board connecting to server", "server_url", url, "project_id", projectID, "actor_id", actor.ID)
				client := board.NewClient(url, actor, &http.Client{Timeout: 10 * time.Second})
				return runBoard(logger, tui.NewModel(client, projectID, append(tuiOpts, tui.WithProjectName(projectID))...))
			}

			return withRuntime(cmd, env, opts, func(ctx context.Context, rt *runtime) error {
				project, err := rt.repo.GetProject(ctx, projectID)
				if err != nil {
					return fmt.Errorf("load project %q: %w", projectID, err)
				}
				transport := board.NewLocalTransport(rt.service, actor)
				return runBoard(rt.logger, tui.NewModel(transport, project.ID, append(tuiOpts, tui.WithProjectName(project.Name))...))
			})
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "", "server base URL; empty drives the local database")
	cmd.Flags().StringVar(&projectID, "project", "", "project id to display")
	cmd.Flags().StringVar(&actorID, "actor", "", "user id the board acts as")
	cmd.Flags().StringVar(&actorRole, "role", "", "role the board acts as (lead|member)")
	return cmd
}

// runBoard runs the TUI with console logging muted so log lines do not tear the frame.
func runBoard(logger *runtimeLogger, m tui.Model) error {
	defer m.Close()
	logger.Info("starting tui program loop")
	logger.SetConsoleEnabled(false)
	_, err := programFactory(m).Run()
	logger.SetConsoleEnabled(true)
	if err != nil {
		logger.Error("tui program terminated with error", "err", err)
		return fmt.Errorf("run tui program: %w", err)
	}
	logger.Info("command flow complete", "command", "board")
	return nil
}

func pathsCmd(env cliEnv, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print resolved config, database, and log paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := resolvePaths(env, opts)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "config\t%s\n", paths.ConfigPath)
			fmt.Fprintf(w, "data\t%s\n", paths.DataDir)
			fmt.Fprintf(w, "db\t%s\n", paths.DBPath)
			fmt.Fprintf(w, "log\t%s\n", paths.LogPath)
			return w.Flush()
		},
	}
}

func projectCmd(env cliEnv, opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects and memberships",
	}

	var create actorFlags
	var name, description string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project led by the calling lead",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			actor, err := create.actor()
			if err != nil {
				return err
			}
			return withRuntime(cmd, env, opts, func(ctx context.Context, rt *runtime) error {
				project, err := rt.service.CreateProject(ctx, app.CreateProjectInput{
					Actor:       actor,
					Name:        name,
					Description: description,
				})
				if err != nil {
					return fmt.Errorf("create project: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), project.ID)
				return nil
			})
		},
	}
	create.bind(createCmd, string(domain.RoleLead))
	createCmd.Flags().StringVar(&name, "name", "", "project name")
	createCmd.Flags().StringVar(&description, "description", "", "project description")

	var add actorFlags
	var userID, memberRole string
	addCmd := &cobra.Command{
		Use:   "add-member <project-id>",
		Short: "Add a member or lead to a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := add.actor()
			if err != nil {
				return err
			}
			role, err := domain.ParseRole(memberRole)
			if err != nil {
				return fmt.Errorf("--member-role: %w", err)
			}
			return withRuntime(cmd, env, opts, func(ctx context.Context, rt *runtime) error {
				m, err := rt.service.AddProjectMember(ctx, app.AddProjectMemberInput{
					Actor:     actor,
					ProjectID: args[0],
					UserID:    userID,
					Role:      role,
				})
				if err != nil {
					return fmt.Errorf("add project member: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", m.ProjectID, m.UserID, m.Role)
				return nil
			})
		},
	}
	add.bind(addCmd, string(domain.RoleLead))
	addCmd.Flags().StringVar(&userID, "user", "", "user id to add")
	addCmd.Flags().StringVar(&memberRole, "member-role", string(domain.RoleMember), "role granted (lead|member)")

	cmd.AddCommand(createCmd, addCmd)
	return cmd
}

func taskCmd(env cliEnv, opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Create, list, move, and soft-delete tasks",
	}
	cmd.AddCommand(
		taskCreateCmd(env, opts),
		taskListCmd(env, opts),
		taskStatusCmd(env, opts),
		taskReasonsCmd(env, opts),
		taskLifecycleCmd(env, opts, "delete", "Soft-delete a task"),
		taskLifecycleCmd(env, opts, "restore", "Restore a soft-deleted task"),
	)
	return cmd
}

func taskCreateCmd(env cliEnv, opts *rootOptions) *cobra.Command {
	var who actorFlags
	var projectID, title, description, assignee, status string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task in a project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			actor, err := who.actor()
			if err != nil {
				return err
			}
			var initial domain.Status
			if strings.TrimSpace(status) != "" {
				if initial, err = domain.ParseStatus(status); err != nil {
					return fmt.Errorf("--status: %w", err)
				}
			}
			return withRuntime(cmd, env, opts, func(ctx context.Context, rt *runtime) error {
				task, err := rt.service.CreateTask(ctx, app.CreateTaskInput{
					Actor:       actor,
					ProjectID:   projectID,
					Title:       title,
					Description: description,
					AssigneeID:  assignee,
					Status:      initial,
				})
				if err != nil {
					return fmt.Errorf("create task: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), task.ID)
				return nil
			})
		},
	}
	who.bind(cmd, string(domain.RoleLead))
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&description, "description", "", "task description")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assigned user id")
	cmd.Flags().StringVar(&status, "status", "", "initial status (default TODO)")
	return cmd
}

func taskListCmd(env cliEnv, opts *rootOptions) *cobra.Command {
	var projectID string
	var includeDeleted bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks in a project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, env, opts, func(ctx context.Context, rt *runtime) error {
				tasks, err := rt.service.ListTasks(ctx, app.ListTasksInput{
					ProjectID:      projectID,
					IncludeDeleted: includeDeleted,
				})
				if err != nil {
					return fmt.Errorf("list tasks: %w", err)
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tSTATUS\tASSIGNEE\tTITLE")
				for _, t := range tasks {
					title := t.Title
					if t.IsDeleted() {
						title += " (deleted)"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.ID, t.Status, t.AssigneeID, title)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().BoolVar(&includeDeleted, "all", false, "include soft-deleted tasks")
	return cmd
}

func taskStatusCmd(env cliEnv, opts *rootOptions) *cobra.Command {
	var who actorFlags
	var reason string
	cmd := &cobra.Command{
		Use:   "status <task-id> <status>",
		Short: "Move a task to a new status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := who.actor()
			if err != nil {
				return err
			}
			status, err := domain.ParseStatus(args[1])
			if err != nil {
				return err
			}
			return withRuntime(cmd, env, opts, func(ctx context.Context, rt *runtime) error {
				res, err := rt.service.TransitionTaskStatus(ctx, app.TransitionInput{
					Actor:  actor,
					TaskID: args[0],
					Status: status,
					Reason: reason,
				})
				if err != nil {
					return fmt.Errorf("transition task: %w", err)
				}
				if !res.Ok() {
					return fmt.Errorf("%w: %s: %s", domain.ErrTransitionRejected, res.Code, res.Message)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", res.Task.ID, res.Task.Status)
				return nil
			})
		},
	}
	who.bind(cmd, string(domain.RoleMember))
	cmd.Flags().StringVar(&reason, "reason", "", "block reason, required when moving to BLOCKED")
	return cmd
}

func taskReasonsCmd(env cliEnv, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reasons <task-id>",
		Short: "List block reasons recorded on a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, env, opts, func(ctx context.Context, rt *runtime) error {
				comments, err := rt.service.ListBlockReasons(ctx, args[0])
				if err != nil {
					return fmt.Errorf("list block reasons: %w", err)
				}
				for _, c := range comments {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", c.CreatedAt.UTC().Format(time.RFC3339), c.AuthorID, c.Body)
				}
				return nil
			})
		},
	}
}

func taskLifecycleCmd(env cliEnv, opts *rootOptions, verb, short string) *cobra.Command {
	var who actorFlags
	cmd := &cobra.Command{
		Use:   verb + " <task-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := who.actor()
			if err != nil {
				return err
			}
			return withRuntime(cmd, env, opts, func(ctx context.Context, rt *runtime) error {
				op := rt.service.DeleteTask
				if verb == "restore" {
					op = rt.service.RestoreTask
				}
				task, err := op(ctx, actor, args[0])
				if err != nil {
					return fmt.Errorf("%s task: %w", verb, err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), task.ID)
				return nil
			})
		},
	}
	who.bind(cmd, string(domain.RoleLead))
	return cmd
}

func notificationsCmd(env cliEnv, opts *rootOptions) *cobra.Command {
	var recipient string
	var limit int
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "List the newest notifications for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, env, opts, func(ctx context.Context, rt *runtime) error {
				items, err := rt.service.ListNotifications(ctx, recipient, limit)
				if err != nil {
					return fmt.Errorf("list notifications: %w", err)
				}
				for _, n := range items {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", n.CreatedAt.UTC().Format(time.RFC3339), n.TaskID, n.Message)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&recipient, "user", "", "recipient user id")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum notifications to list")
	return cmd
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
