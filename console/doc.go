// Package console bridges the CDC-ACM serial interface to a line-oriented
// command executor.
//
// A [Bridge] reads one buffer of received bytes per data event, strips the
// line terminator and hands the line to an [Executor]. Output of the command
// is written back to the serial port. A line split across two data events is
// executed as two partial lines; the bridge does not reassemble.
//
// The bridge also latches the port state from DTR edges and notifies a
// [Listener] when a terminal attaches or detaches:
//
//	reg := console.NewRegistry()
//	reg.Register(console.Command{Name: "ls", Run: list})
//	bridge := console.NewBridge(port, reg, listener)
//
// [Registry] is the stock executor: shell-style tokenization, aliases and a
// built-in help command.
package console
