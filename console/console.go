// Package console is the interactive control surface: a line-oriented
// command parser and dispatcher built directly on network.Scheduler's
// public admin API. Unlike the teacher's ospfc/commands radix-tree
// engine, commands here are a small fixed set, so dispatch is a plain
// switch on the first token and its alias.
package console

import (
	"bufio"
	"bytes"
	"flag"
	"fmt"
	"io"
	"net/netip"
	"sort"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/hakeris1010/ODMRP-Sim/network"
)

// Console dispatches parsed command lines against a Scheduler and
// writes human-readable results to out.
type Console struct {
	sched   *network.Scheduler
	out     io.Writer
	running bool
}

// New returns a Console bound to sched, writing output to out.
func New(sched *network.Scheduler, out io.Writer) *Console {
	return &Console{sched: sched, out: out, running: true}
}

// Running reports whether exit/e has been issued.
func (c *Console) Running() bool { return c.running }

// Dispatch parses and executes a single command line. A blank line is
// a no-op. Parse and execution errors are returned rather than
// written to out, so callers (tests, Run) can choose how to surface
// them.
func (c *Console) Dispatch(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "add", "a":
		return c.cmdAdd(args)
	case "remove":
		return c.cmdRemove(args)
	case "connect", "c":
		return c.cmdConnect(args)
	case "query", "q":
		return c.cmdQuery(args)
	case "list", "l":
		return c.cmdList(args)
	case "send", "s":
		return c.cmdSend(args)
	case "route", "ro":
		return c.cmdRoute(args)
	case "help", "h":
		return c.cmdHelp(args)
	case "exit", "e":
		c.running = false
		return nil
	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
}

type addrListFlag []netip.Addr

func (l *addrListFlag) String() string {
	ss := make([]string, len(*l))
	for i, a := range *l {
		ss[i] = a.String()
	}
	return strings.Join(ss, ",")
}

func (l *addrListFlag) Set(s string) error {
	a, err := netip.ParseAddr(s)
	if err != nil {
		return err
	}
	*l = append(*l, a)
	return nil
}

func (c *Console) cmdAdd(args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var ip, ms string
	var mg, neighbors addrListFlag
	fs.StringVar(&ip, "ip", "", "node address")
	fs.StringVar(&ms, "ms", "", "multicast source group")
	fs.Var(&mg, "mg", "multicast group to join (repeatable)")
	fs.Var(&neighbors, "n", "neighbor to connect to (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if ip == "" {
		return fmt.Errorf("add: -ip is required")
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return fmt.Errorf("add: %w", err)
	}

	spec := network.NodeSpec{IP: addr, MulticastGroups: mg, Neighbors: neighbors}
	if ms != "" {
		src, err := netip.ParseAddr(ms)
		if err != nil {
			return fmt.Errorf("add: -ms: %w", err)
		}
		spec.MulticastSource = src
	}

	if _, err := c.sched.AddNode(spec); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "added %s\n", addr)
	return nil
}

func (c *Console) cmdRemove(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("remove: usage: remove IP")
	}
	addr, err := netip.ParseAddr(args[0])
	if err != nil {
		return fmt.Errorf("remove: %w", err)
	}
	if err := c.sched.RemoveNode(addr); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "removed %s\n", addr)
	return nil
}

func (c *Console) cmdConnect(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("connect: usage: connect NODE_IP PEER_IP...")
	}
	node, err := netip.ParseAddr(args[0])
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	for _, peerStr := range args[1:] {
		peer, err := netip.ParseAddr(peerStr)
		if err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		if err := c.sched.Connect(node, peer); err != nil {
			return err
		}
	}
	fmt.Fprintf(c.out, "connected %s to %s\n", node, strings.Join(args[1:], ", "))
	return nil
}

func (c *Console) cmdQuery(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("query: usage: query IP")
	}
	addr, err := netip.ParseAddr(args[0])
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	node, ok := c.sched.Node(addr)
	if !ok {
		return fmt.Errorf("query: no such node %s", addr)
	}

	fmt.Fprintf(c.out, "node %s (ready=%v down=%v)\n", addr, node.Ready(), node.Down())
	fmt.Fprintf(c.out, "  neighbors: %s\n", joinAddrs(node.Neighbors()))
	fmt.Fprintf(c.out, "  multicast groups: %s\n", joinAddrs(node.MulticastGroups()))
	fmt.Fprintf(c.out, "  multicast receivers: %s\n", joinAddrs(node.MulticastReceivers()))

	fmt.Fprintln(c.out, "  routes:")
	for _, e := range node.Routes() {
		fmt.Fprintf(c.out, "    %s via %s (cost %d)\n", e.Destination, e.NextHop, e.Cost)
	}
	fmt.Fprintln(c.out, "  forwarding groups:")
	for _, g := range node.ForwardingGroups() {
		fmt.Fprintf(c.out, "    %s\n", g)
	}
	return nil
}

func (c *Console) cmdList(args []string) error {
	lines, err := tabulate(c.sched.Nodes(), []string{"IP", "NEIGHBORS"}, func(n *network.Node) []string {
		return []string{n.IP().String(), joinAddrs(n.Neighbors())}
	})
	if err != nil {
		return err
	}
	for _, line := range lines {
		fmt.Fprintln(c.out, line)
	}
	return nil
}

// tabulate lays out items as a header, a separator, and one row per
// item, column widths aligned by text/tabwriter.
func tabulate[T any](items []T, headers []string, f func(T) []string) ([]string, error) {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 3, ' ', 0)

	fmt.Fprintln(w, strings.Join(headers, "\t"))

	separators := make([]string, len(headers))
	for i, h := range headers {
		separators[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(w, strings.Join(separators, "\t"))

	for i, item := range items {
		row := f(item)
		if len(row) != len(headers) {
			return nil, fmt.Errorf("tabulate: row %d has %d columns, want %d", i, len(row), len(headers))
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}

	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("tabulate: %w", err)
	}

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	return lines, nil
}

func (c *Console) cmdSend(args []string) error {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	verbose := fs.Bool("v", false, "mark the packet verbose")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) < 2 {
		return fmt.Errorf("send: usage: send [-v] SRC DST [payload...]")
	}

	src, err := netip.ParseAddr(rest[0])
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	dst, err := netip.ParseAddr(rest[1])
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	payload := []byte(strings.Join(rest[2:], " "))

	if err := c.sched.SendPacket(src, dst, payload, *verbose); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "sent %d bytes from %s to %s\n", len(payload), src, dst)
	return nil
}

func (c *Console) cmdRoute(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("route: usage: route SRC DST")
	}
	src, err := netip.ParseAddr(args[0])
	if err != nil {
		return fmt.Errorf("route: %w", err)
	}
	dst, err := netip.ParseAddr(args[1])
	if err != nil {
		return fmt.Errorf("route: %w", err)
	}

	node, ok := c.sched.Node(src)
	if !ok {
		return fmt.Errorf("route: no such node %s", src)
	}

	for _, e := range node.Routes() {
		if e.Destination == dst {
			fmt.Fprintf(c.out, "%s -> %s via %s (cost %d)\n", src, dst, e.NextHop, e.Cost)
			return nil
		}
	}
	fmt.Fprintf(c.out, "%s has no route to %s\n", src, dst)
	return nil
}

var helpText = []string{
	"add/a -ip IP [-ms IP] [-mg IP]... [-n IP]...   create a node",
	"remove IP                                      remove a node",
	"connect/c NODE_IP PEER_IP...                   add symmetric neighbor links",
	"query/q IP                                     dump a node's state",
	"list/l                                         list every node",
	"send/s [-v] SRC DST [payload...]               originate an IP packet",
	"route/ro SRC DST                               look up a next-hop route",
	"help/h                                         show this text",
	"exit/e                                         leave the console",
}

func (c *Console) cmdHelp(_ []string) error {
	for _, line := range helpText {
		fmt.Fprintln(c.out, line)
	}
	return nil
}

func joinAddrs(addrs []netip.Addr) string {
	if len(addrs) == 0 {
		return "-"
	}
	sorted := append([]netip.Addr(nil), addrs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].String() < sorted[j].String() })
	ss := make([]string, len(sorted))
	for i, a := range sorted {
		ss[i] = a.String()
	}
	return strings.Join(ss, ", ")
}

// Run drives the interactive loop against rw (typically stdin/stdout
// wrapped by the caller in raw mode, per golang.org/x/term), printing a
// prompt, dispatching each line, and reporting errors without exiting.
// It returns when exit/e is issued or rw reaches EOF.
func Run(c *Console, rw io.ReadWriter) error {
	t := term.NewTerminal(rw, "odmrp> ")
	for c.Running() {
		line, err := t.ReadLine()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := c.Dispatch(line); err != nil {
			fmt.Fprintf(t, "%% %v\n", err)
		}
	}
	return nil
}

// RunScanner is a non-raw-mode fallback for environments without a
// real terminal (tests, piped input): it reads newline-delimited
// commands from r and writes output and errors, without prompts, to c's
// configured out.
func RunScanner(c *Console, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for c.Running() && scanner.Scan() {
		if err := c.Dispatch(scanner.Text()); err != nil {
			fmt.Fprintf(c.out, "%% %v\n", err)
		}
	}
	return scanner.Err()
}
