package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fmwatch/fmwatch/internal/events"
	"github.com/fmwatch/fmwatch/internal/models"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect and control background tasks",
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the server's background tasks",
	RunE:  runTasksList,
}

var tasksWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow task progress live",
	Long: `Watch keeps the task list current from the server's push stream with a
periodic pull as backstop, and prompts for a decision whenever a task blocks
on a file-name conflict. Runs until interrupted.`,
	RunE: runTasksWatch,
}

var (
	watchPolicy   string
	watchRemember bool
)

func init() {
	rootCmd.AddCommand(tasksCmd)
	tasksCmd.AddCommand(tasksListCmd)
	tasksCmd.AddCommand(tasksWatchCmd)

	tasksWatchCmd.Flags().StringVar(&watchPolicy, "on-conflict", "",
		"Resolve conflicts automatically: abort, skip, rename, or overwrite")
	tasksWatchCmd.Flags().BoolVar(&watchRemember, "remember", false,
		"Apply the automatic conflict policy to the rest of each task")

	for _, def := range []struct {
		use, short string
		action     func(context.Context, string) error
	}{
		{"suspend <task-id>", "Pause a running task", func(ctx context.Context, id string) error {
			return apiClient.Tasks.Suspend(ctx, id)
		}},
		{"resume <task-id>", "Continue a suspended task", func(ctx context.Context, id string) error {
			return apiClient.Tasks.Resume(ctx, id)
		}},
		{"cancel <task-id>", "Stop a task", func(ctx context.Context, id string) error {
			return apiClient.Tasks.Cancel(ctx, id)
		}},
		{"delete <task-id>", "Remove a finished task from the list", func(ctx context.Context, id string) error {
			return apiClient.Tasks.Delete(ctx, id)
		}},
	} {
		action := def.action
		name := strings.Fields(def.use)[0]
		tasksCmd.AddCommand(&cobra.Command{
			Use:   def.use,
			Short: def.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := context.Background()
				if err := ensureSession(ctx); err != nil {
					return err
				}
				if err := action(ctx, args[0]); err != nil {
					return err
				}
				if jsonOutput {
					printJSON(map[string]interface{}{"success": true, "task": args[0]})
				} else {
					printSuccess("%s requested for task %s", name, args[0])
				}
				return nil
			},
		})
	}

	tasksCmd.AddCommand(resolveCmd)
	resolveCmd.Flags().BoolVar(&resolveRemember, "remember", false,
		"Apply the same policy to later conflicts in this task")

	rootCmd.AddCommand(copyCmd)
	rootCmd.AddCommand(moveCmd)
}

var resolveRemember bool

var resolveCmd = &cobra.Command{
	Use:   "resolve <task-id> <policy>",
	Short: "Answer a pending file-name conflict",
	Long:  `Resolve submits a decision for a task blocked on a conflict. Policies: abort, skip, rename, overwrite.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		if err := ensureSession(ctx); err != nil {
			return err
		}

		policy := models.ConflictPolicy(args[1])
		err := apiClient.Conflicts.Resolve(ctx, args[0], policy, resolveRemember)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(map[string]interface{}{"success": true, "task": args[0], "policy": policy})
		} else {
			printSuccess("Conflict on task %s resolved with %s", args[0], policy)
		}
		return nil
	},
}

var copyCmd = &cobra.Command{
	Use:   "copy <source-dir> <target-dir> <file>...",
	Short: "Start a server-side bulk copy",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCopyMove(true, args)
	},
}

var moveCmd = &cobra.Command{
	Use:   "move <source-dir> <target-dir> <file>...",
	Short: "Start a server-side bulk move",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCopyMove(false, args)
	},
}

func runCopyMove(isCopy bool, args []string) error {
	ctx := context.Background()
	if err := ensureSession(ctx); err != nil {
		return err
	}

	source, target, files := args[0], args[1], args[2:]
	var err error
	if isCopy {
		err = apiClient.Tasks.Copy(ctx, source, target, files)
	} else {
		err = apiClient.Tasks.Move(ctx, source, target, files)
	}
	if err != nil {
		return err
	}

	verb := "Move"
	if isCopy {
		verb = "Copy"
	}
	if jsonOutput {
		printJSON(map[string]interface{}{
			"success": true,
			"source":  source,
			"target":  target,
			"files":   files,
		})
	} else {
		printSuccess("%s of %d file(s) requested; track it with: fmwatch tasks watch", verb, len(files))
	}
	return nil
}

func runTasksList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	if err := ensureSession(ctx); err != nil {
		return err
	}
	if err := apiClient.Refresh(ctx); err != nil {
		return fmt.Errorf("query tasks: %w", err)
	}

	tasks := apiClient.Store.Tasks()
	if jsonOutput {
		printJSON(tasks)
		return nil
	}
	if len(tasks) == 0 {
		printInfo("No background tasks.")
		return nil
	}
	renderTasks(tasks)
	return nil
}

func runTasksWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ensureSession(ctx); err != nil {
		return err
	}

	var auto models.ConflictPolicy
	if watchPolicy != "" {
		auto = models.ConflictPolicy(watchPolicy)
		if !auto.Valid() {
			return fmt.Errorf("invalid conflict policy %q", watchPolicy)
		}
	}

	ch, cancel := apiClient.Events().Subscribe()
	defer cancel()

	apiClient.Start(ctx)
	if err := apiClient.Refresh(ctx); err != nil {
		printError("initial query failed: %v", err)
	}

	// Re-render at most once per interval; pushes can arrive in bursts.
	render := time.NewTicker(time.Second)
	defer render.Stop()
	dirty := true

	for {
		select {
		case <-ctx.Done():
			printInfo("Stopped.")
			return nil

		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			switch ev := ev.(type) {
			case events.TasksChangedEvent, events.TaskRemovedEvent:
				dirty = true
			case events.ConflictPromptEvent:
				if auto != "" {
					if err := apiClient.Conflicts.Resolve(ctx, ev.TaskID, auto, watchRemember); err != nil {
						printError("auto-resolve failed: %v", err)
					}
					continue
				}
				if err := promptConflict(ctx, ev); err != nil {
					printError("%v", err)
				}
			}

		case <-render.C:
			if !dirty {
				continue
			}
			dirty = false
			tasks := apiClient.Store.Tasks()
			if jsonOutput {
				printJSON(tasks)
			} else {
				fmt.Println()
				renderTasks(tasks)
			}
		}
	}
}

// promptConflict asks on the terminal which policy to apply.
func promptConflict(ctx context.Context, ev events.ConflictPromptEvent) error {
	info := ev.Info
	fmt.Println()
	color.Yellow("Conflict in task %s:", ev.TaskID)
	if info.SrcFile.Name != "" {
		printInfo("  source: %s (%s)", info.SrcFile.Name, formatBytes(info.SrcFile.Size))
	}
	if info.DstFile.Name != "" {
		printInfo("  target: %s (%s)", info.DstFile.Name, formatBytes(info.DstFile.Size))
	}
	fmt.Fprint(os.Stderr, "Policy [abort/skip/rename/overwrite] (add ! to remember, e.g. skip!): ")

	var answer string
	if _, err := fmt.Fscanln(os.Stdin, &answer); err != nil {
		return fmt.Errorf("read policy: %w", err)
	}
	remember := strings.HasSuffix(answer, "!")
	policy := models.ConflictPolicy(strings.TrimSuffix(answer, "!"))
	return apiClient.Conflicts.Resolve(ctx, ev.TaskID, policy, remember)
}

func renderTasks(tasks []models.Task) {
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tPROGRESS\tFILES\tCURRENT")
	for _, t := range tasks {
		kind := t.Type
		if kind == "" {
			if t.IsCopy {
				kind = "copy"
			} else {
				kind = "move"
			}
		}
		current := t.CurrentFile
		if t.ConflictInfo != nil && t.ConflictInfo.NeedConfirm {
			current = "awaiting conflict decision"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%3d%%\t%d/%d\t%s\n",
			shortID(t.ID), kind, colorStatus(t.Status), t.Progress,
			t.CopiedFiles, t.TotalFiles, current)
	}
	w.Flush()
}

func colorStatus(status models.TaskStatus) string {
	switch status {
	case models.StatusRunning:
		return color.GreenString(string(status))
	case models.StatusSuspended, models.StatusPending, models.StatusStarting:
		return color.YellowString(string(status))
	case models.StatusFailed:
		return color.RedString(string(status))
	case models.StatusCancelled:
		return color.HiBlackString(string(status))
	default:
		return string(status)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
