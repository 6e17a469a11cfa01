// Package interactive provides the interactive command loop for
// meshwire-node. The socket and session are single-goroutine, so one
// pump goroutine owns them; the readline loop submits commands to it
// as closures and waits for each to finish.
package interactive

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"

	"github.com/meshwire-protocol/meshwire-go/pkg/discovery"
	"github.com/meshwire-protocol/meshwire-go/pkg/lobby"
	"github.com/meshwire-protocol/meshwire-go/pkg/persistent"
	"github.com/meshwire-protocol/meshwire-go/pkg/wire"
)

// Options configures the interactive node.
type Options struct {
	// Advertise announces the node over mDNS once it is bound.
	Advertise bool

	// ProtocolLog is the switchable sink behind the socket's protocol
	// logger. The log command retargets it at runtime. Nil disables
	// the command.
	ProtocolLog *SwitchableLogger
}

// Node handles interactive mode for a meshwire node.
type Node struct {
	sess *lobby.Session
	opts Options
	rl   *readline.Instance

	adv     *discovery.Advertiser
	browser *discovery.Browser

	cmds chan func()
	wg   sync.WaitGroup
}

// New creates an interactive handler around sess.
func New(sess *lobby.Session, opts Options) (*Node, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "meshwire> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	return &Node{
		sess:    sess,
		opts:    opts,
		rl:      rl,
		adv:     discovery.NewAdvertiser(discovery.AdvertiserConfig{}),
		browser: discovery.NewBrowser(discovery.BrowserConfig{}),
		cmds:    make(chan func()),
	}, nil
}

// Stdout returns a writer that coordinates output with the prompt.
func (n *Node) Stdout() io.Writer {
	return n.rl.Stdout()
}

// Start launches the pump goroutine. If the socket is already bound
// it also announces the node over mDNS when configured to.
func (n *Node) Start(ctx context.Context) {
	if sock := n.sess.Socket(); sock.Bound() {
		n.maybeAdvertise(sock)
	}

	n.wg.Add(1)
	go n.pumpLoop(ctx)
}

// Stop waits for the pump goroutine, withdraws any mDNS announcement,
// and closes the socket. Call after cancelling the context passed to
// Start.
func (n *Node) Stop() {
	n.wg.Wait()
	n.adv.Stop()
	n.sess.Socket().Close()
	n.rl.Close()
}

func (n *Node) pumpLoop(ctx context.Context) {
	defer n.wg.Done()

	ticker := time.NewTicker(n.sess.TickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-n.cmds:
			fn()
		case <-ticker.C:
			for _, ev := range n.sess.Pump() {
				n.printEvent(ev)
			}
		}
	}
}

// do runs fn on the pump goroutine and waits for it to finish.
func (n *Node) do(ctx context.Context, fn func()) {
	done := make(chan struct{})
	select {
	case n.cmds <- func() { fn(); close(done) }:
		<-done
	case <-ctx.Done():
	}
}

func (n *Node) printEvent(ev lobby.Event) {
	w := n.rl.Stdout()
	switch ev.Kind {
	case lobby.EventPeerJoined:
		if name, ok := n.sess.Socket().PeerName(ev.Peer); ok && name != "" {
			fmt.Fprintf(w, "<< peer joined: %s (%s)\n", ev.Peer.Short(), name)
		} else {
			fmt.Fprintf(w, "<< peer joined: %s\n", ev.Peer.Short())
		}
	case lobby.EventPeerLeft:
		fmt.Fprintf(w, "<< peer left: %s\n", ev.Peer.Short())
	case lobby.EventReadyChanged:
		state := "not ready"
		if ev.Ready {
			state = "ready"
		}
		fmt.Fprintf(w, "<< %s is %s\n", ev.Peer.Short(), state)
	case lobby.EventStartScheduled:
		fmt.Fprintf(w, "<< start scheduled: run %s in %d ticks\n", ev.Run.Short(), ev.Ticks)
	case lobby.EventStarted:
		fmt.Fprintf(w, "<< started: run %s\n", ev.Run.Short())
	case lobby.EventMessage:
		fmt.Fprintf(w, "<< %s: %s\n", ev.Peer.Short(), ev.Payload)
	case lobby.EventDeliveryFailed:
		fmt.Fprintf(w, "<< delivery failed: peer %s seq %d\n", ev.Peer.Short(), ev.Seq)
	}
}

// Run starts the interactive command loop. It returns when the
// context is cancelled or the user exits, calling cancel on the way
// out so the rest of the process can shut down.
func (n *Node) Run(ctx context.Context, cancel context.CancelFunc) {
	n.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := n.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(n.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			n.printHelp()
		case "host":
			n.cmdHost(ctx, args)
		case "join", "j":
			n.cmdJoin(ctx, args)
		case "discover", "d":
			n.cmdDiscover(ctx, args)
		case "peers", "ls":
			n.cmdPeers(ctx)
		case "send":
			n.cmdSend(ctx, args)
		case "broadcast", "b":
			n.cmdBroadcast(ctx, args)
		case "ready":
			n.cmdReady(ctx, args)
		case "rtt":
			n.cmdRTT(ctx)
		case "whoami", "id":
			n.cmdWhoami(ctx)
		case "log":
			n.cmdLog(args)
		case "quit", "exit", "q":
			fmt.Fprintln(n.rl.Stdout(), "Exiting...")
			cancel()
			return
		default:
			fmt.Fprintf(n.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (n *Node) cmdHost(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(n.rl.Stdout(), "Usage: host <port>")
		return
	}
	port, err := strconv.ParseUint(args[0], 10, 16)
	if err != nil {
		fmt.Fprintf(n.rl.Stdout(), "Invalid port: %v\n", err)
		return
	}

	n.do(ctx, func() {
		sock := n.sess.Socket()
		if err := sock.Host(uint16(port)); err != nil {
			fmt.Fprintf(n.rl.Stdout(), "Host failed: %v\n", err)
			return
		}
		fmt.Fprintf(n.rl.Stdout(), "Hosting on %s as %s\n", sock.LocalAddr(), sock.LocalID().Short())
		n.maybeAdvertise(sock)
	})
}

func (n *Node) cmdJoin(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(n.rl.Stdout(), "Usage: join <host:port>")
		return
	}
	addr := args[0]

	n.do(ctx, func() {
		sock := n.sess.Socket()
		wasBound := sock.Bound()
		handle, err := sock.Join(addr)
		if err != nil {
			fmt.Fprintf(n.rl.Stdout(), "Join failed: %v\n", err)
			return
		}
		fmt.Fprintf(n.rl.Stdout(), "Joining %s...\n", handle.Addr())
		if !wasBound {
			n.maybeAdvertise(sock)
		}
	})
}

// cmdDiscover browses mDNS from the readline goroutine. The browser
// is independent of the socket, so no pump handoff is needed.
func (n *Node) cmdDiscover(ctx context.Context, args []string) {
	timeout := 3 * time.Second
	if len(args) == 1 {
		secs, err := strconv.Atoi(args[0])
		if err != nil || secs <= 0 {
			fmt.Fprintln(n.rl.Stdout(), "Usage: discover [seconds]")
			return
		}
		timeout = time.Duration(secs) * time.Second
	}

	fmt.Fprintf(n.rl.Stdout(), "Browsing for %s...\n", timeout)
	nodes, err := n.browser.FindNodes(ctx, timeout)
	if err != nil {
		fmt.Fprintf(n.rl.Stdout(), "Discovery error: %v\n", err)
		return
	}
	if len(nodes) == 0 {
		fmt.Fprintln(n.rl.Stdout(), "No nodes found")
		return
	}

	fmt.Fprintf(n.rl.Stdout(), "Found %d node(s):\n", len(nodes))
	for i, node := range nodes {
		endpoint := "?"
		if len(node.Addrs) > 0 {
			endpoint = net.JoinHostPort(node.Addrs[0], strconv.Itoa(int(node.Port)))
		}
		fmt.Fprintf(n.rl.Stdout(), "  %d. %s [%s] %s\n", i+1, node.Instance, node.ID.Short(), endpoint)
	}
}

func (n *Node) cmdPeers(ctx context.Context) {
	n.do(ctx, func() {
		sock := n.sess.Socket()
		peers := sock.Peers()
		if len(peers) == 0 {
			fmt.Fprintln(n.rl.Stdout(), "No connected peers")
			return
		}

		leader := n.sess.Leader()
		fmt.Fprintf(n.rl.Stdout(), "Connected peers (%d):\n", len(peers))
		for _, id := range peers {
			name, _ := sock.PeerName(id)
			addr, _ := sock.PeerAddr(id)
			line := fmt.Sprintf("  %s  %-16s %s", id.Short(), name, addr)
			if rtt, ok := sock.RTT(id); ok {
				line += fmt.Sprintf("  rtt %s", rtt.Round(time.Millisecond))
			}
			if n.sess.PeerReady(id) {
				line += "  ready"
			}
			if id == leader {
				line += "  leader"
			}
			fmt.Fprintln(n.rl.Stdout(), line)
		}
	})
}

func (n *Node) cmdSend(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(n.rl.Stdout(), "Usage: send <peer> <text>")
		return
	}
	target := args[0]
	text := strings.Join(args[1:], " ")

	n.do(ctx, func() {
		id, err := n.resolvePeer(target)
		if err != nil {
			fmt.Fprintf(n.rl.Stdout(), "%v\n", err)
			return
		}
		if err := n.sess.Send(id, []byte(text)); err != nil {
			fmt.Fprintf(n.rl.Stdout(), "Send failed: %v\n", err)
		}
	})
}

func (n *Node) cmdBroadcast(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(n.rl.Stdout(), "Usage: broadcast <text>")
		return
	}
	text := strings.Join(args, " ")

	n.do(ctx, func() {
		count := n.sess.Broadcast([]byte(text))
		fmt.Fprintf(n.rl.Stdout(), "Sent to %d peer(s)\n", count)
	})
}

func (n *Node) cmdReady(ctx context.Context, args []string) {
	ready := true
	if len(args) == 1 {
		switch strings.ToLower(args[0]) {
		case "on", "true", "yes":
			ready = true
		case "off", "false", "no":
			ready = false
		default:
			fmt.Fprintln(n.rl.Stdout(), "Usage: ready [on|off]")
			return
		}
	}

	n.do(ctx, func() {
		n.sess.SetReady(ready)
		fmt.Fprintf(n.rl.Stdout(), "Ready: %v\n", ready)
	})
}

func (n *Node) cmdRTT(ctx context.Context) {
	n.do(ctx, func() {
		sock := n.sess.Socket()
		peers := sock.Peers()
		if len(peers) == 0 {
			fmt.Fprintln(n.rl.Stdout(), "No connected peers")
			return
		}
		for _, id := range peers {
			if rtt, ok := sock.RTT(id); ok {
				fmt.Fprintf(n.rl.Stdout(), "  %s  %s\n", id.Short(), rtt)
			} else {
				fmt.Fprintf(n.rl.Stdout(), "  %s  (no sample yet)\n", id.Short())
			}
		}
	})
}

func (n *Node) cmdWhoami(ctx context.Context) {
	n.do(ctx, func() {
		sock := n.sess.Socket()
		fmt.Fprintf(n.rl.Stdout(), "ID:    %s\n", sock.LocalID())
		if sock.Name() != "" {
			fmt.Fprintf(n.rl.Stdout(), "Name:  %s\n", sock.Name())
		}
		if sock.Bound() {
			fmt.Fprintf(n.rl.Stdout(), "Addr:  %s\n", sock.LocalAddr())
		} else {
			fmt.Fprintln(n.rl.Stdout(), "Addr:  (not bound)")
		}
		if len(sock.Peers()) > 0 && n.sess.IsLeader() {
			fmt.Fprintln(n.rl.Stdout(), "Role:  leader")
		}
		if run, ok := n.sess.Run(); ok {
			fmt.Fprintf(n.rl.Stdout(), "Run:   %s\n", run)
		}
	})
}

func (n *Node) cmdLog(args []string) {
	if n.opts.ProtocolLog == nil {
		fmt.Fprintln(n.rl.Stdout(), "Protocol logging is not available")
		return
	}
	if len(args) != 1 {
		fmt.Fprintf(n.rl.Stdout(), "Usage: log <file.mwlog|off>  (current: %s)\n", n.opts.ProtocolLog.Path())
		return
	}

	if strings.ToLower(args[0]) == "off" {
		n.opts.ProtocolLog.Disable()
		fmt.Fprintln(n.rl.Stdout(), "Protocol logging off")
		return
	}
	if err := n.opts.ProtocolLog.SwitchTo(args[0]); err != nil {
		fmt.Fprintf(n.rl.Stdout(), "Failed to open log: %v\n", err)
		return
	}
	fmt.Fprintf(n.rl.Stdout(), "Protocol events now logged to %s\n", args[0])
}

// resolvePeer matches a connected peer by id prefix or exact name.
// Runs on the pump goroutine.
func (n *Node) resolvePeer(arg string) (wire.PeerID, error) {
	sock := n.sess.Socket()
	lowered := strings.ToLower(arg)
	for _, id := range sock.Peers() {
		if strings.HasPrefix(id.String(), lowered) {
			return id, nil
		}
		if name, ok := sock.PeerName(id); ok && name == arg {
			return id, nil
		}
	}
	return wire.ZeroPeerID, fmt.Errorf("no connected peer matches %q", arg)
}

func (n *Node) maybeAdvertise(sock *persistent.Socket) {
	if !n.opts.Advertise {
		return
	}
	addr := sock.LocalAddr()
	if err := n.adv.Register(sock.LocalID(), sock.Name(), addr.Port()); err != nil {
		fmt.Fprintf(n.rl.Stdout(), "mDNS registration failed: %v\n", err)
		return
	}
	fmt.Fprintln(n.rl.Stdout(), "Advertising over mDNS")
}

func (n *Node) printHelp() {
	fmt.Fprintln(n.rl.Stdout(), `
meshwire node commands:
  Connectivity:
    host <port>          - Bind and listen for peers
    join <host:port>     - Connect to a node (binds an ephemeral port if needed)
    discover [seconds]   - Browse for nodes over mDNS
    peers                - List connected peers

  Messaging:
    send <peer> <text>   - Send text to one peer (id prefix or name)
    broadcast <text>     - Send text to every connected peer
    ready [on|off]       - Flag readiness; the leader schedules a
                           start once everyone is ready

  Inspection:
    rtt                  - Show smoothed round-trip times
    whoami               - Show local identity
    log <file|off>       - Write protocol events to a .mwlog file

  General:
    help                 - Show this help
    quit                 - Exit`)
}
