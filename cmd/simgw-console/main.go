// Command simgw-console is an interactive client for the gateway command server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"sim-gateway-go/internal/pkg/console"
	"sim-gateway-go/internal/pkg/server"

	"github.com/chzyer/readline"
)

func main() {
	addr := flag.String("addr", "localhost:4201", "Gateway command server address")
	order := flag.String("order", "BIG", "Response length byte order (BIG or LITTLE)")
	flag.Parse()

	if err := run(*addr, *order); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(addr, orderName string) error {
	order, err := server.ParseByteOrder(orderName)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	client, err := console.Dial(ctx, addr, order)
	cancel()
	if err != nil {
		return err
	}
	defer client.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "simgw> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	recvErr := make(chan error, 1)
	go func() {
		recvErr <- client.Receive(func(text string) {
			fmt.Fprintln(rl.Stdout(), text)
		})
		fmt.Fprintln(rl.Stdout(), "Connection closed")
		_ = rl.Close()
	}()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			// EOF: leave politely so the server logs a clean quit
			_ = client.Send("quit")
			break
		}
		if err := client.Send(strings.TrimRight(line, "\r\n")); err != nil {
			return err
		}
	}

	select {
	case err := <-recvErr:
		return err
	case <-time.After(time.Second):
		return nil
	}
}
