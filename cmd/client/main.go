package main

import (
	"chordkv/internal/client"
	"chordkv/internal/domain"
	"chordkv/internal/logger"
	"chordkv/internal/server"
	"chordkv/internal/storage"
	"chordkv/internal/transport"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"github.com/peterh/liner"
)

// cliExchanger is the minimal transport.ExchangeServer the CLI runs so
// that a remote node can deliver an asynchronous GET result back to
// it. Every other envelope type is rejected: the CLI never receives
// ring-control traffic.
type cliExchanger struct {
	pending *storage.PendingRequests
}

func (c *cliExchanger) Exchange(_ context.Context, in *transport.Envelope) (*transport.Envelope, error) {
	if in.Type != transport.TypeResult {
		return &transport.Envelope{Error: "chordkv client: unexpected envelope type " + string(in.Type)}, nil
	}
	c.pending.Resolve(in)
	return &transport.Envelope{Type: transport.TypeResult}, nil
}

func main() {
	addr := flag.String("addr", "127.0.0.1:4000", "address of a node already in the ring (entry point)")
	listen := flag.String("listen", "127.0.0.1:0", "local address the CLI listens on for asynchronous GET results")
	bits := flag.Int("bits", 160, "identifier space size in bits, must match the ring's configuration")
	timeout := flag.Duration("timeout", 5*time.Second, "request timeout")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)

	lgr := &logger.NopLogger{}

	space, err := domain.NewSpace(*bits, *bits, 1)
	if err != nil {
		log.Fatalf("invalid identifier space: %v", err)
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		log.Fatalf("failed to start local callback listener: %v", err)
	}
	defer func() { _ = lis.Close() }()

	pending := storage.NewPendingRequests(lgr)
	exchanger := &cliExchanger{pending: pending}
	srv, err := server.New(lis, exchanger, nil)
	if err != nil {
		log.Fatalf("failed to start local callback server: %v", err)
	}
	go func() { _ = srv.Start() }()
	defer srv.Stop()

	self := &domain.Node{ID: space.NewIdFromString(lis.Addr().String()), Addr: lis.Addr().String()}

	cp := client.New(lgr, *timeout)
	defer cp.CloseAll()

	currentAddr := *addr
	fmt.Printf("chordkv interactive client. Connected to %s\n", currentAddr)
	fmt.Println("Available commands: put/get/delete/lookup/rt/use/exit")

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		input, err := line.Prompt(fmt.Sprintf("chordkv[%s]> ", currentAddr))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				fmt.Println("Aborted")
				continue
			}
			break
		}
		line.AppendHistory(input)

		args := strings.Fields(strings.TrimSpace(input))
		if len(args) == 0 {
			continue
		}
		cmd := args[0]

		ctx, cancel := context.WithTimeout(context.Background(), *timeout)

		switch cmd {
		case "put":
			if len(args) < 3 {
				fmt.Println("Usage: put <key> <value>")
				cancel()
				continue
			}
			key, value := args[1], args[2]
			start := time.Now()
			err := runPut(ctx, cp, space, currentAddr, key, value)
			delay := time.Since(start)
			if err != nil {
				fmt.Printf("Put failed (%v) | latency=%s\n", err, delay)
			} else {
				fmt.Printf("Put succeeded (key=%s, value=%s) | latency=%s\n", key, value, delay)
			}

		case "get":
			if len(args) < 2 {
				fmt.Println("Usage: get <key>")
				cancel()
				continue
			}
			key := args[1]
			start := time.Now()
			val, err := runGet(ctx, cp, pending, space, self, currentAddr, key)
			delay := time.Since(start)
			if err != nil {
				fmt.Printf("Get failed: %v | latency=%s\n", err, delay)
			} else {
				fmt.Printf("Get succeeded (key=%s, value=%s) | latency=%s\n", key, val, delay)
			}

		case "delete":
			if len(args) < 2 {
				fmt.Println("Usage: delete <key>")
				cancel()
				continue
			}
			key := args[1]
			start := time.Now()
			err := runDelete(ctx, cp, space, currentAddr, key)
			delay := time.Since(start)
			if err != nil {
				fmt.Printf("Delete failed: %v | latency=%s\n", err, delay)
			} else {
				fmt.Printf("Delete succeeded (key=%s) | latency=%s\n", key, delay)
			}

		case "lookup":
			if len(args) < 2 {
				fmt.Println("Usage: lookup <key>")
				cancel()
				continue
			}
			target := space.NewIdFromString(args[1])
			start := time.Now()
			owner, err := resolveOwner(ctx, cp, currentAddr, target)
			delay := time.Since(start)
			if err != nil {
				fmt.Printf("Lookup failed: %v | latency=%s\n", err, delay)
			} else {
				fmt.Printf("Lookup result: successor=%s (%s) | latency=%s\n", owner.ID.ToHexString(true), owner.Addr, delay)
			}

		case "rt":
			pred, err := cp.GetPredecessor(ctx, currentAddr)
			if err != nil {
				fmt.Printf("GetPredecessor failed: %v\n", err)
			} else {
				fmt.Printf("Predecessor: %s (%s)\n", pred.ID.ToHexString(true), pred.Addr)
			}
			succs, err := cp.GetSuccessorList(ctx, currentAddr)
			if err != nil {
				fmt.Printf("GetSuccessorList failed: %v\n", err)
			} else {
				fmt.Println("Successors:")
				for i, s := range succs {
					fmt.Printf("  [%d] %s (%s)\n", i, s.ID.ToHexString(true), s.Addr)
				}
			}

		case "use":
			if len(args) < 2 {
				fmt.Println("Usage: use <addr>")
				cancel()
				continue
			}
			currentAddr = args[1]
			fmt.Printf("Switched connection to %s\n", currentAddr)

		case "exit", "quit":
			fmt.Println("Bye!")
			cancel()
			return

		default:
			fmt.Printf("Unknown command: %s\n", cmd)
		}

		cancel()
	}
}

// resolveOwner walks FindSuccessor hops against entryAddr until the
// node responsible for target answers directly.
func resolveOwner(ctx context.Context, cp *client.Pool, entryAddr string, target domain.ID) (*domain.Node, error) {
	addr := entryAddr
	for hops := 0; hops < 64; hops++ {
		node, done, err := cp.FindSuccessor(ctx, target, addr)
		if err != nil {
			return nil, err
		}
		if done {
			return node, nil
		}
		addr = node.Addr
	}
	return nil, fmt.Errorf("chordkv client: lookup did not converge after 64 hops")
}

func runPut(ctx context.Context, cp *client.Pool, space domain.Space, entryAddr, key, value string) error {
	id := space.NewIdFromString(key)
	owner, err := resolveOwner(ctx, cp, entryAddr, id)
	if err != nil {
		return err
	}
	return cp.Put(ctx, domain.Resource{Key: id, RawKey: key, Value: value, Timestamp: time.Now()}, owner.Addr)
}

func runDelete(ctx context.Context, cp *client.Pool, space domain.Space, entryAddr, key string) error {
	id := space.NewIdFromString(key)
	owner, err := resolveOwner(ctx, cp, entryAddr, id)
	if err != nil {
		return err
	}
	return cp.Delete(ctx, id, owner.Addr)
}

func runGet(ctx context.Context, cp *client.Pool, pending *storage.PendingRequests, space domain.Space, self *domain.Node, entryAddr, key string) (string, error) {
	id := space.NewIdFromString(key)
	owner, err := resolveOwner(ctx, cp, entryAddr, id)
	if err != nil {
		return "", err
	}

	requestID := fmt.Sprintf("%s-%d", id.ToHexString(true), time.Now().UnixNano())
	waitCh := pending.Register(requestID, 5*time.Second)
	defer pending.Forget(requestID)

	if err := cp.GetAsync(ctx, id, self, requestID, owner.Addr); err != nil {
		return "", err
	}

	select {
	case env, ok := <-waitCh:
		if !ok {
			return "", fmt.Errorf("chordkv client: request expired before a result arrived")
		}
		if env.Error != "" {
			return "", errors.New(env.Error)
		}
		value, _ := env.Data["value"].(string)
		return value, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
