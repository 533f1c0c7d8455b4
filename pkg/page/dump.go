package page

import (
	"encoding/hex"
	"fmt"
	"io"
)

// Dump writes a canonical hex+ASCII dump of img to w, framed by start and end
// markers.
func Dump(w io.Writer, img []byte) error {
	if _, err := fmt.Fprintln(w, "=== page dump start ==="); err != nil {
		return err
	}
	if h, err := ParseHeader(img); err == nil {
		if _, err := fmt.Fprintf(w, "type=%s entries=%d mem_size=%d disk_size=%d checksum=0x%08x\n",
			h.Type, h.Entries, h.MemSize, h.DiskSize, h.Checksum); err != nil {
			return err
		}
	}

	d := hex.Dumper(w)
	if _, err := d.Write(img); err != nil {
		return err
	}
	if err := d.Close(); err != nil {
		return err
	}

	_, err := fmt.Fprintln(w, "=== page dump end ===")
	return err
}
