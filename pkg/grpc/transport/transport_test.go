package transport

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/KevoDB/wtdescent/pkg/grpc/service"
	"github.com/KevoDB/wtdescent/pkg/treefile"
	"github.com/KevoDB/wtdescent/pkg/walker"
)

func TestServerAndDial(t *testing.T) {
	pairs := make([]treefile.Pair, 100)
	for i := range pairs {
		pairs[i] = treefile.Pair{
			Key:   []byte(fmt.Sprintf("key-%03d", i)),
			Value: []byte(fmt.Sprintf("value-%d", i)),
		}
	}
	f, err := treefile.BuildBuffer(pairs)
	if err != nil {
		t.Fatalf("failed to build tree: %v", err)
	}

	srv := NewServer("bufnet", service.NewDescentService(walker.New(f), nil, nil), DefaultOptions(), nil)
	listener := bufconn.Listen(1024 * 1024)
	if err := srv.StartOn(listener); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	defer srv.Stop(context.Background())

	if err := srv.StartOn(bufconn.Listen(1024)); err == nil {
		t.Error("expected second start to fail")
	}
	if srv.Addr() == nil {
		t.Error("expected a listening address")
	}

	client, conn, err := Dial("passthrough:///bufnet", DefaultOptions(),
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return listener.Dial()
		}),
	)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	value, err := client.Get(ctx, pairs[7].Key)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !bytes.Equal(value, pairs[7].Value) {
		t.Errorf("expected %q, got %q", pairs[7].Value, value)
	}

	reply, err := client.Lookup(ctx, pairs[99].Key)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if reply.Pages != 1 || reply.LeafSize == 0 {
		t.Errorf("expected a single-leaf walk, got %+v", reply)
	}

	if err := srv.Stop(context.Background()); err != nil {
		t.Errorf("stop failed: %v", err)
	}
	if srv.Addr() != nil {
		t.Error("expected no address after stop")
	}
}

func TestTLSConfigErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadServerTLSConfig("", "", ""); err == nil {
		t.Error("expected error without a key pair")
	}
	if _, err := LoadServerTLSConfig(filepath.Join(dir, "cert.pem"), filepath.Join(dir, "key.pem"), ""); err == nil {
		t.Error("expected error for missing key pair files")
	}

	badCA := filepath.Join(dir, "ca.pem")
	if err := os.WriteFile(badCA, []byte("not a certificate"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	if _, err := LoadClientTLSConfig("", "", badCA, false); err == nil {
		t.Error("expected error for an unparsable CA")
	}

	cfg, err := LoadClientTLSConfig("", "", "", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.InsecureSkipVerify {
		t.Error("expected skip verify to be set")
	}
}

func TestDialTLSErrors(t *testing.T) {
	opts := DefaultOptions()
	opts.TLSEnabled = true
	opts.CAFile = filepath.Join(t.TempDir(), "missing.pem")
	if _, _, err := Dial("localhost:1", opts); err == nil {
		t.Error("expected error for a missing CA file")
	}
}
