package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"aiobridge/aio"
)

// shell is the interactive loop. Async callbacks run between commands, on the shell's goroutine.
type shell struct {
	engine  *aio.Engine
	out     io.Writer
	handles map[aio.PinID]*aio.PinHandle
}

func newShell(e *aio.Engine, out io.Writer) *shell {
	return &shell{engine: e, out: out, handles: make(map[aio.PinID]*aio.PinHandle)}
}

func (s *shell) run(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(s.out, "Enter commands (type 'help' for available commands, 'quit' to exit):")
	scanner := bufio.NewScanner(in)

	for {
		fmt.Fprint(s.out, "> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			s.engine.RunPending()
			continue
		}
		if !s.exec(ctx, strings.Fields(line)) {
			s.releaseAll()
			return nil
		}
		s.engine.RunPending()
	}
	s.releaseAll()
	return scanner.Err()
}

// exec runs one command and reports whether the loop should continue.
func (s *shell) exec(ctx context.Context, parts []string) bool {
	cmd := parts[0]
	switch cmd {
	case "quit", "exit", "q":
		fmt.Fprintln(s.out, "Goodbye!")
		return false
	case "help", "?":
		s.printHelp()
		return true
	case "pins":
		for pin := aio.A0; pin <= aio.A4; pin++ {
			if h, ok := s.handles[pin]; ok {
				fmt.Fprintf(s.out, "  %s\n", h)
			}
		}
		return true
	case "run":
		fmt.Fprintf(s.out, "ran %d callbacks\n", s.engine.RunPending())
		return true
	}

	if len(parts) < 2 {
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for available commands)\n", cmd)
		return true
	}
	pin, err := aio.ParsePin(parts[1])
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return true
	}

	switch cmd {
	case "open":
		opts := aio.OpenOptions{Device: aio.Uint32(0), Pin: aio.Uint32(uint32(pin))}
		if len(parts) > 2 {
			opts.Name = parts[2]
		}
		h, err := s.engine.Open(ctx, opts)
		if err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
			return true
		}
		if old, ok := s.handles[pin]; ok {
			old.Release()
		}
		s.handles[pin] = h
		fmt.Fprintf(s.out, "opened %s\n", h)
	case "read":
		h, ok := s.handle(pin)
		if !ok {
			return true
		}
		v, err := h.Read(ctx)
		if err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
			return true
		}
		fmt.Fprintf(s.out, "%s = %g\n", h, v)
	case "async":
		h, ok := s.handle(pin)
		if !ok {
			return true
		}
		err := h.ReadAsync(func(_ aio.PinID, v float64) {
			fmt.Fprintf(s.out, "async %s = %g\n", h, v)
		})
		if err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
		}
	case "abort", "close":
		h, ok := s.handle(pin)
		if !ok {
			return true
		}
		if cmd == "abort" {
			err = h.Abort()
		} else {
			err = h.Close()
		}
		if err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
		}
	case "release":
		h, ok := s.handle(pin)
		if !ok {
			return true
		}
		h.Release()
		delete(s.handles, pin)
		fmt.Fprintf(s.out, "released %s\n", h)
	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for available commands)\n", cmd)
	}
	return true
}

func (s *shell) handle(pin aio.PinID) (*aio.PinHandle, bool) {
	h, ok := s.handles[pin]
	if !ok {
		fmt.Fprintf(s.out, "Error: %s is not open\n", pin)
	}
	return h, ok
}

func (s *shell) releaseAll() {
	for pin, h := range s.handles {
		h.Release()
		delete(s.handles, pin)
	}
}

func (s *shell) printHelp() {
	fmt.Fprintln(s.out, "\nAvailable commands:")
	fmt.Fprintln(s.out, "  open PIN [NAME] - Open a pin (A0..A4 or channel number)")
	fmt.Fprintln(s.out, "  read PIN        - Blocking read")
	fmt.Fprintln(s.out, "  async PIN       - Request a reading delivered to a callback")
	fmt.Fprintln(s.out, "  run             - Run queued callbacks now")
	fmt.Fprintln(s.out, "  abort PIN       - Abort (no-op)")
	fmt.Fprintln(s.out, "  close PIN       - Close (no-op)")
	fmt.Fprintln(s.out, "  release PIN     - Drop the pin's subscription and handle")
	fmt.Fprintln(s.out, "  pins            - List open pins")
	fmt.Fprintln(s.out, "  quit/exit/q     - Exit the program")
	fmt.Fprintln(s.out)
}
