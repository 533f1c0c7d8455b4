package main

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/KevoDB/wtdescent/pkg/treefile"
)

// runGen builds a sample tree file of sequential keys
func runGen(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("gen", flag.ContinueOnError)
	path := fs.String("out", "", "Tree file to write")
	keys := fs.Int("keys", 10000, "Number of keys")
	width := fs.Int("key-width", 16, "Zero-padded key width")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return fmt.Errorf("gen requires -out FILE")
	}
	if *keys < 0 {
		return fmt.Errorf("invalid key count %d", *keys)
	}

	start := time.Now()
	w, err := treefile.NewWriter(*path)
	if err != nil {
		return err
	}
	for i := 0; i < *keys; i++ {
		key := []byte(fmt.Sprintf("key%0*d", *width, i))
		value := []byte(fmt.Sprintf("value-%d", i))
		if err := w.Add(key, value); err != nil {
			w.Abort()
			return err
		}
	}
	desc, err := w.Finish()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Wrote %d keys to %s: depth %d, root %s (%s)\n",
		desc.Entries, *path, desc.Depth, desc.Root(), time.Since(start).Round(time.Millisecond))
	return nil
}
