package console

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/google/shlex"

	"github.com/ardnew/soundbox/pkg"
)

// Exit statuses.
const (
	StatusOK    = 0
	StatusError = 1
)

// Executor runs one console line and writes its output to w.
type Executor interface {
	Execute(w io.Writer, line string) (status int, err error)
}

// Command is a console command.
type Command struct {
	Name    string
	Aliases []string
	Usage   string
	Help    string

	// Run executes the command with args (args[0] is the invoked name).
	Run func(w io.Writer, args []string) int
}

// Registry is an [Executor] over a set of named commands.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]*Command
	aliases  map[string]string
}

var _ Executor = (*Registry)(nil)

// NewRegistry returns a registry holding only the help command.
func NewRegistry() *Registry {
	r := &Registry{
		commands: make(map[string]*Command),
		aliases:  make(map[string]string),
	}
	_ = r.Register(Command{
		Name:    "help",
		Aliases: []string{"?"},
		Usage:   "help [command]",
		Help:    "List commands or describe one",
		Run:     r.help,
	})
	return r
}

// Register adds cmd. Names and aliases must be unique.
func (r *Registry) Register(cmd Command) error {
	if cmd.Name == "" || cmd.Run == nil {
		return fmt.Errorf("command %q: %w", cmd.Name, pkg.ErrInvalidParameter)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range append([]string{cmd.Name}, cmd.Aliases...) {
		if r.resolve(name) != nil {
			return fmt.Errorf("command %q already registered: %w", name, pkg.ErrInvalidParameter)
		}
	}
	c := cmd
	r.commands[cmd.Name] = &c
	for _, a := range cmd.Aliases {
		r.aliases[a] = cmd.Name
	}
	return nil
}

// resolve finds a command by name or alias. Caller holds r.mu.
func (r *Registry) resolve(name string) *Command {
	if c, ok := r.commands[name]; ok {
		return c
	}
	if target, ok := r.aliases[name]; ok {
		return r.commands[target]
	}
	return nil
}

// Lookup returns the command registered under name or alias.
func (r *Registry) Lookup(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c := r.resolve(name); c != nil {
		return *c, true
	}
	return Command{}, false
}

// Commands returns all commands sorted by name.
func (r *Registry) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Command, 0, len(r.commands))
	for _, c := range r.commands {
		out = append(out, *c)
	}
	slices.SortFunc(out, func(a, b Command) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Execute tokenizes line and runs the named command.
func (r *Registry) Execute(w io.Writer, line string) (int, error) {
	args, err := shlex.Split(line)
	if err != nil {
		fmt.Fprintf(w, "parse error: %v\r\n", err)
		return StatusError, fmt.Errorf("console line %q: %w", line, err)
	}
	if len(args) == 0 {
		return StatusOK, pkg.ErrEmptyLine
	}

	cmd, ok := r.Lookup(args[0])
	if !ok {
		fmt.Fprintf(w, "%s: command not found\r\n", args[0])
		return StatusError, fmt.Errorf("%q: %w", args[0], pkg.ErrUnknownCommand)
	}
	return cmd.Run(w, args), nil
}

func (r *Registry) help(w io.Writer, args []string) int {
	if len(args) > 1 {
		cmd, ok := r.Lookup(args[1])
		if !ok {
			fmt.Fprintf(w, "%s: command not found\r\n", args[1])
			return StatusError
		}
		fmt.Fprintf(w, "usage: %s\r\n  %s\r\n", usage(cmd), cmd.Help)
		if len(cmd.Aliases) > 0 {
			fmt.Fprintf(w, "  aliases: %s\r\n", strings.Join(cmd.Aliases, ", "))
		}
		return StatusOK
	}
	for _, cmd := range r.Commands() {
		fmt.Fprintf(w, "  %-24s %s\r\n", usage(cmd), cmd.Help)
	}
	return StatusOK
}

func usage(cmd Command) string {
	if cmd.Usage != "" {
		return cmd.Usage
	}
	return cmd.Name
}
