package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/KevoDB/wtdescent/pkg/descent"
	"github.com/KevoDB/wtdescent/pkg/page"
	"github.com/KevoDB/wtdescent/pkg/treefile"
	"github.com/KevoDB/wtdescent/pkg/walker"
)

// Command completer for readline
var completer = readline.NewPrefixCompleter(
	readline.PcItem(".help"),
	readline.PcItem(".open"),
	readline.PcItem(".close"),
	readline.PcItem(".exit"),
	readline.PcItem(".stats"),
	readline.PcItem(".dump"),
	readline.PcItem(".trace"),
	readline.PcItem(".visits"),
	readline.PcItem("GET"),
	readline.PcItem("LOOKUP"),
)

const helpText = `
wtdescent - walk row-store B-tree files from root to leaf.

Usage:
  wtdescent [options] [tree_file]   - Start with an optional tree file
  wtdescent gen -out FILE -keys N   - Build a sample tree file

Options:
  -server                 - Run the descent service, exposing a gRPC API
  -address string         - Address to listen on in server mode
  -verify                 - Verify page checksums on read

Commands (interactive mode only):
  .help                   - Show this help message
  .open PATH              - Open a tree file at PATH
  .close                  - Close the current tree file
  .exit                   - Exit the program
  .stats                  - Show walk statistics
  .dump OFFSET SIZE       - Hex dump the page at OFFSET with SIZE bytes
  .trace FILE             - Save the pages read by the last lookup to FILE
  .visits                 - Show the most recent page visits

  GET key                 - Retrieve a value by key
  LOOKUP key              - Show the walk to the leaf for key
`

var errExit = errors.New("exit")

// runInteractive starts the interactive shell
func runInteractive(a *app) {
	fmt.Printf("wtdescent version %s\n", version)
	fmt.Println("Enter .help for usage hints.")

	historyFile := filepath.Join(os.TempDir(), ".wtdescent_history")
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "wtdescent> ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing readline: %s\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	for {
		if a.path != "" {
			rl.SetPrompt(fmt.Sprintf("wtdescent:%s> ", a.path))
		} else {
			rl.SetPrompt("wtdescent> ")
		}

		line, readErr := rl.Readline()
		if readErr != nil {
			if readErr == readline.ErrInterrupt {
				if len(line) == 0 {
					break
				}
				continue
			} else if readErr == io.EOF {
				fmt.Println("Goodbye!")
				break
			}
			fmt.Fprintf(os.Stderr, "Error reading input: %s\n", readErr)
			continue
		}

		if err := execute(context.Background(), a, line, os.Stdout); err != nil {
			if errors.Is(err, errExit) {
				fmt.Println("Goodbye!")
				return
			}
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
	}
}

// execute runs one shell command, writing its output to out
func execute(ctx context.Context, a *app, line string, out io.Writer) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}
	cmd := strings.ToUpper(parts[0])

	if strings.HasPrefix(cmd, ".") {
		switch strings.ToLower(cmd) {
		case ".help":
			fmt.Fprint(out, helpText)
			return nil
		case ".open":
			if len(parts) < 2 {
				return fmt.Errorf("missing path argument")
			}
			if err := a.open(parts[1]); err != nil {
				return err
			}
			d := a.file.Descriptor()
			fmt.Fprintf(out, "Tree file opened at %s (%d entries, depth %d, root %s)\n", parts[1], d.Entries, d.Depth, a.walker.Root())
			return nil
		case ".close":
			if a.file == nil {
				fmt.Fprintln(out, "No tree file open")
				return nil
			}
			path := a.path
			if err := a.closeFile(); err != nil {
				return err
			}
			fmt.Fprintf(out, "Tree file %s closed\n", path)
			return nil
		case ".exit":
			return errExit
		case ".stats":
			printStats(a, out)
			return nil
		case ".dump":
			return dumpPage(ctx, a, parts[1:], out)
		case ".trace":
			return saveTrace(a, parts[1:], out)
		case ".visits":
			printVisits(a, out)
			return nil
		default:
			return fmt.Errorf("unknown command %s", parts[0])
		}
	}

	if a.walker == nil {
		return fmt.Errorf("no tree file open, use .open PATH")
	}

	switch cmd {
	case "GET":
		if len(parts) != 2 {
			return fmt.Errorf("usage: GET key")
		}
		res, err := a.walker.Lookup(ctx, []byte(parts[1]))
		if res != nil && res.Trace != nil {
			a.lastTrace = res.Trace
		}
		if err != nil {
			return err
		}
		value, err := res.Find()
		if errors.Is(err, treefile.ErrNotFound) {
			fmt.Fprintln(out, "Key not found")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\n", value)
		return nil

	case "LOOKUP":
		if len(parts) != 2 {
			return fmt.Errorf("usage: LOOKUP key")
		}
		res, err := a.walker.Lookup(ctx, []byte(parts[1]))
		if res != nil && res.Trace != nil {
			a.lastTrace = res.Trace
		}
		// An empty subtree is a finished walk, not a failed one.
		if errors.Is(err, walker.ErrNoChild) {
			fmt.Fprintln(out, "Key not found")
			err = nil
		}
		st := descent.StatusOf(err)
		if res != nil {
			printResult(res, out)
			if res.Exhausted {
				st = descent.StatusDepthExhausted
			}
		}
		fmt.Fprintf(out, "Status: %s\n", st)
		return err

	default:
		return fmt.Errorf("unknown command %s", parts[0])
	}
}

func printResult(res *walker.Result, out io.Writer) {
	fmt.Fprintf(out, "Pages visited: %d\n", res.Pages)
	fmt.Fprintf(out, "Depth: %d\n", res.Depth)
	fmt.Fprintf(out, "Path: %v\n", res.Path)
	switch {
	case res.Exhausted:
		fmt.Fprintf(out, "Depth exhausted, pending child: offset %d, size %d\n", res.Pending.Offset, res.Pending.Size)
	case res.Leaf != nil:
		fmt.Fprintf(out, "Leaf: offset %d, size %d\n", res.LeafOffset, res.LeafSize)
	}
}

func printStats(a *app, out io.Writer) {
	s := a.stats.GetStats()
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		switch v := s[k].(type) {
		case int64:
			if strings.HasPrefix(k, "last_") && v > 0 {
				fmt.Fprintf(out, "  %s: %s\n", k, time.Unix(0, v).Format(time.RFC3339))
				continue
			}
			fmt.Fprintf(out, "  %s: %d\n", k, v)
		default:
			fmt.Fprintf(out, "  %s: %v\n", k, v)
		}
	}
	fmt.Fprintf(out, "  visits_recorded: %d\n", a.visits.Total())
}

func parseUint(s, name string) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, s)
	}
	return v, nil
}

func dumpPage(ctx context.Context, a *app, args []string, out io.Writer) error {
	if a.file == nil {
		return fmt.Errorf("no tree file open, use .open PATH")
	}
	if len(args) != 2 {
		return fmt.Errorf("usage: .dump OFFSET SIZE")
	}
	offset, err := parseUint(args[0], "offset")
	if err != nil {
		return err
	}
	size, err := parseUint(args[1], "size")
	if err != nil {
		return err
	}

	img, err := a.file.ReadPage(ctx, offset, size)
	if err != nil {
		return err
	}
	return page.Dump(out, img)
}

func saveTrace(a *app, args []string, out io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: .trace FILE")
	}
	if a.lastTrace == nil {
		return fmt.Errorf("no lookup to trace yet")
	}

	f, err := os.Create(args[0])
	if err != nil {
		return fmt.Errorf("failed to create trace file: %w", err)
	}
	if err := a.lastTrace.Encode(f, a.codec); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	fmt.Fprintf(out, "Saved %d pages to %s (%s)\n", len(a.lastTrace.Entries), args[0], a.codec)
	return nil
}

func printVisits(a *app, out io.Writer) {
	visits := a.visits.Snapshot()
	if len(visits) == 0 {
		fmt.Fprintln(out, "No visits recorded")
		return
	}
	for _, v := range visits {
		fmt.Fprintf(out, "  #%d depth=%d %s offset=%d size=%d fingerprint=%016x\n",
			v.Seq, v.Depth, v.Type, v.Offset, v.Size, v.Fingerprint)
	}
}
