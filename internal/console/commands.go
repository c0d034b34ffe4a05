package console

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/term"

	"warren"
	"warren/watch"
)

// CommandContext holds the state available to command handlers.
type CommandContext struct {
	Store    *warren.Store
	Session  *Session
	Terminal *term.Terminal
	Args     []string
}

// CommandHandler processes a console command. Returns true if the session
// should be closed (e.g., /quit). The caller (runTerminal) closes the
// session afterwards; handlers must NOT call Session.Close directly.
type CommandHandler func(ctx CommandContext) bool

// Command describes a registered console command.
type Command struct {
	Usage   string // full usage for help (e.g., "/watch <bucket> [key]"); defaults to command name
	Help    string
	Handler CommandHandler
}

// CommandRegistrar is the interface for registering commands before the server starts.
type CommandRegistrar interface {
	Register(name string, cmd Command)
	RegisterBuiltins()
}

// CommandRegistry maps command names to handlers and produces dynamic help.
// It is safe for concurrent use; Dispatch and HelpText may be called from
// multiple goroutines (e.g., concurrent SSH sessions).
// Once frozen (via Freeze), no new commands can be registered.
type CommandRegistry struct {
	mu       sync.RWMutex
	commands map[string]Command
	order    []string // insertion order for stable help output
	frozen   bool
}

// NewCommandRegistry creates an empty registry.
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		commands: make(map[string]Command),
	}
}

// Register adds a command to the registry. The name should include the leading
// slash (e.g., "/quit"). Registering the same name twice overwrites the previous entry.
// Panics if cmd.Handler is nil or if the registry is frozen.
func (r *CommandRegistry) Register(name string, cmd Command) {
	if cmd.Handler == nil {
		panic("console: Register called with nil handler for " + name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		panic("console: Register called on frozen registry for " + name)
	}
	if _, exists := r.commands[name]; !exists {
		r.order = append(r.order, name)
	}
	r.commands[name] = cmd
}

// Freeze prevents further command registration. This is called automatically
// when the server starts listening. Calling Register on a frozen registry panics.
func (r *CommandRegistry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Dispatch parses a command line and calls the matching handler.
// Returns true if the session should be closed.
func (r *CommandRegistry) Dispatch(line string, session *Session, terminal *term.Terminal, store *warren.Store) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	name := parts[0]
	args := parts[1:]

	r.mu.RLock()
	cmd, ok := r.commands[name]
	r.mu.RUnlock()

	if !ok {
		_, _ = fmt.Fprintf(terminal, "Unknown command: %s (try /help)\r\n", name)
		return false
	}

	return cmd.Handler(CommandContext{
		Store:    store,
		Session:  session,
		Terminal: terminal,
		Args:     args,
	})
}

// HelpText returns a formatted help string listing all registered commands
// in registration order.
func (r *CommandRegistry) HelpText() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, name := range r.order {
		cmd := r.commands[name]
		display := name
		if cmd.Usage != "" {
			display = cmd.Usage
		}
		_, _ = fmt.Fprintf(&b, "  %-30s %s\n", display, cmd.Help)
	}
	return b.String()
}

// watchLabel names a subscription for the session's bookkeeping: the
// bucket alone for whole-bucket watches, bucket/key for single keys.
func watchLabel(args []string) string {
	if len(args) > 1 {
		return args[0] + "/" + args[1]
	}
	return args[0]
}

// RegisterBuiltins registers the default console commands:
// /watch, /unwatch, /watches, /quit, and /help.
func (r *CommandRegistry) RegisterBuiltins() {
	r.Register("/watch", Command{
		Usage: "/watch <bucket> [key]",
		Help:  "stream change events for a bucket or one key",
		Handler: func(ctx CommandContext) bool {
			if len(ctx.Args) == 0 {
				_, _ = fmt.Fprintln(ctx.Terminal, "Usage: /watch <bucket> [key]")
				return false
			}
			label := watchLabel(ctx.Args)
			var w *watch.Watcher
			if len(ctx.Args) > 1 {
				w = ctx.Store.WatchKey(ctx.Session.Context(), ctx.Args[0], ctx.Args[1])
			} else {
				w = ctx.Store.WatchAll(ctx.Session.Context(), ctx.Args[0])
			}
			if !ctx.Session.AddWatch(label, w) {
				w.Close()
				_, _ = fmt.Fprintf(ctx.Terminal, "Already watching %s\r\n", label)
				return false
			}
			_, _ = fmt.Fprintf(ctx.Terminal, "Watching %s\r\n", label)
			return false
		},
	})

	r.Register("/unwatch", Command{
		Usage: "/unwatch <bucket> [key]",
		Help:  "stop a /watch started earlier",
		Handler: func(ctx CommandContext) bool {
			if len(ctx.Args) == 0 {
				_, _ = fmt.Fprintln(ctx.Terminal, "Usage: /unwatch <bucket> [key]")
				return false
			}
			label := watchLabel(ctx.Args)
			if !ctx.Session.RemoveWatch(label) {
				_, _ = fmt.Fprintf(ctx.Terminal, "Not watching %s\r\n", label)
				return false
			}
			_, _ = fmt.Fprintf(ctx.Terminal, "Stopped watching %s\r\n", label)
			return false
		},
	})

	r.Register("/watches", Command{
		Help: "list this session's active watches",
		Handler: func(ctx CommandContext) bool {
			labels := ctx.Session.Watches()
			if len(labels) == 0 {
				_, _ = fmt.Fprintln(ctx.Terminal, "No active watches")
				return false
			}
			_, _ = fmt.Fprintf(ctx.Terminal, "Watches (%d): %s\r\n", len(labels), strings.Join(labels, ", "))
			return false
		},
	})

	r.Register("/quit", Command{
		Help: "disconnect",
		Handler: func(ctx CommandContext) bool {
			_, _ = fmt.Fprintln(ctx.Terminal, "Goodbye.")
			return true
		},
	})

	r.Register("/help", Command{
		Help: "show this help",
		Handler: func(ctx CommandContext) bool {
			_, _ = fmt.Fprint(ctx.Terminal, r.HelpText())
			return false
		},
	})
}
