package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/firefly-protocol/firefly-go/pkg/protocol"
)

const helpText = `
Firefly Node Commands:
  Connections:
    open <addr>             - Connect to a peer and open a channel
    channel <n>             - Open another channel on the connection of channel n
    list                    - List channels
    disconnect <n>          - Close the connection of channel n

  Data:
    send <n> <text>         - Send text on channel n
    important <n> <text>    - Send text reliably on channel n
    ping <n> [text]         - Send "ping [text]"; the peer answers with pong
    close <n>               - Close channel n

  General:
    status                  - Show port status
    help                    - Show this help
    quit                    - Exit node`

// execute runs one shell command line. It returns true when the shell
// should exit.
func (n *node) execute(ctx context.Context, line string, w io.Writer) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	var err error
	switch cmd {
	case "help", "?":
		fmt.Fprintln(w, helpText)

	case "open", "o":
		err = n.cmdOpen(args, w)

	case "channel", "ch":
		err = n.cmdChannel(ctx, args, w)

	case "list", "ls", "l":
		err = n.cmdList(ctx, w)

	case "disconnect", "dc":
		err = n.cmdDisconnect(ctx, args)

	case "send", "s":
		err = n.cmdSend(ctx, args, false)

	case "important", "imp":
		err = n.cmdSend(ctx, args, true)

	case "ping", "p":
		err = n.cmdPing(ctx, args)

	case "close", "c":
		err = n.cmdClose(ctx, args)

	case "status":
		n.cmdStatus(w)

	case "quit", "exit", "q":
		fmt.Fprintln(w, "Exiting...")
		return true

	default:
		fmt.Fprintf(w, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}

	if err != nil {
		fmt.Fprintf(w, "Error: %v\n", err)
	}
	return false
}

func (n *node) cmdOpen(args []string, w io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: open <addr>")
	}
	id, err := n.connect(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Opening channel %d to %s\n", id, args[0])
	return nil
}

func (n *node) cmdChannel(ctx context.Context, args []string, w io.Writer) error {
	index, err := channelIndex(args, 1)
	if err != nil {
		return fmt.Errorf("usage: channel <n>")
	}
	var id protocol.ChannelID
	err = n.withChannel(ctx, index, func(ch *protocol.Channel) error {
		var err error
		id, err = ch.Connection().OpenChannel()
		return err
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Opening channel %d\n", id)
	return nil
}

func (n *node) cmdList(ctx context.Context, w io.Writer) error {
	infos, err := n.snapshot(ctx)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Fprintln(w, "No channels")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tREMOTE\tCHAN\tPEER CHAN\tSTATE\tDIRECTION\tSEQNO\tPENDING")
	for i, info := range infos {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%s\t%s\t%d\t%d\n",
			i+1, info.Remote, info.LocalID, info.RemoteID, info.State, info.Direction, info.Seqno, info.Pending)
	}
	return tw.Flush()
}

func (n *node) cmdDisconnect(ctx context.Context, args []string) error {
	index, err := channelIndex(args, 1)
	if err != nil {
		return fmt.Errorf("usage: disconnect <n>")
	}
	return n.withChannel(ctx, index, func(ch *protocol.Channel) error {
		return ch.Connection().Close()
	})
}

func (n *node) cmdSend(ctx context.Context, args []string, important bool) error {
	index, err := channelIndex(args, 2)
	if err != nil {
		return fmt.Errorf("usage: send|important <n> <text>")
	}
	payload := []byte(strings.Join(args[1:], " "))
	return n.withChannel(ctx, index, func(ch *protocol.Channel) error {
		if important {
			return ch.SendImportant(payload)
		}
		return ch.Send(payload)
	})
}

func (n *node) cmdPing(ctx context.Context, args []string) error {
	index, err := channelIndex(args, 1)
	if err != nil {
		return fmt.Errorf("usage: ping <n> [text]")
	}
	payload := []byte(strings.TrimSpace("ping " + strings.Join(args[1:], " ")))
	return n.withChannel(ctx, index, func(ch *protocol.Channel) error {
		return ch.SendImportant(payload)
	})
}

func (n *node) cmdClose(ctx context.Context, args []string) error {
	index, err := channelIndex(args, 1)
	if err != nil {
		return fmt.Errorf("usage: close <n>")
	}
	return n.withChannel(ctx, index, func(ch *protocol.Channel) error {
		return ch.Close()
	})
}

func (n *node) cmdStatus(w io.Writer) {
	fmt.Fprintf(w, "Node:        %s (%s)\n", n.cfg.Name, n.id)
	fmt.Fprintf(w, "Listening:   %s\n", n.port.LocalAddr())
	fmt.Fprintf(w, "Connections: %d\n", len(n.port.Connections()))
	fmt.Fprintf(w, "Unacked:     %d\n", n.port.PendingResends())
	fmt.Fprintf(w, "Queued:      %d\n", n.q.Len())
}

// channelIndex parses args[0] as a channel number and checks that at
// least want arguments are present.
func channelIndex(args []string, want int) (int, error) {
	if len(args) < want {
		return 0, fmt.Errorf("missing arguments")
	}
	return strconv.Atoi(args[0])
}
