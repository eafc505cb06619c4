package ipc

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shortSocketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "veda")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "s.sock")
}

func TestServer_RoundTrip(t *testing.T) {
	h := newFakeHost("Veda-1", "Veda-2")
	router := NewRouter(h, nil)
	path := shortSocketPath(t)

	srv := NewServer(path, HandlerFunc(router.Route), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, srv.Start(ctx))
	defer srv.Close()

	client := NewClient(path)

	reply, err := client.Send(ctx, ListInstances{SessionID: "s"})
	require.NoError(t, err)
	assert.True(t, reply.OK)
	assert.Len(t, reply.Instances, 2)

	reply, err = client.Send(ctx, CloseInstance{SessionID: "s", InstanceName: "Veda-2", TargetInstanceID: strptr(uuid.NewString())})
	require.NoError(t, err)
	assert.True(t, reply.OK, reply.Error)
	assert.Len(t, h.views, 1)
}

func TestServer_RejectsBadLines(t *testing.T) {
	path := shortSocketPath(t)
	srv := NewServer(path, HandlerFunc(func(ctx context.Context, cmd Command) Reply {
		t.Fatalf("handler should not be called for %T", cmd)
		return Reply{}
	}), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, srv.Start(ctx))
	defer srv.Close()

	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("{\"type\":\"reboot\"}\n"))
	require.NoError(t, err)

	buf := make([]byte, 512)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), `"ok":false`)
	assert.Contains(t, string(buf[:n]), "unknown type")
}

func TestServer_CloseRemovesSocket(t *testing.T) {
	path := shortSocketPath(t)
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o600))

	srv := NewServer(path, HandlerFunc(func(context.Context, Command) Reply { return Reply{OK: true} }), nil)
	require.NoError(t, srv.Start(context.Background()))

	_, err := os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, srv.Close())
	require.NoError(t, srv.Close())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestServer_CloseWithConnectingClients(t *testing.T) {
	path := shortSocketPath(t)
	srv := NewServer(path, HandlerFunc(func(context.Context, Command) Reply { return Reply{OK: true} }), nil)
	require.NoError(t, srv.Start(context.Background()))

	// Idle connections block in their read loop until Close closes them.
	for i := 0; i < 3; i++ {
		conn, err := net.Dial("unix", path)
		require.NoError(t, err)
		defer conn.Close()
	}

	stop := make(chan struct{})
	dialerDone := make(chan struct{})
	go func() {
		defer close(dialerDone)
		for {
			select {
			case <-stop:
				return
			default:
			}
			conn, err := net.Dial("unix", path)
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	closed := make(chan error, 1)
	go func() { closed <- srv.Close() }()

	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return while clients were connecting")
	}
	close(stop)
	<-dialerDone
}

func TestClient_NoServer(t *testing.T) {
	_, err := NewClient(filepath.Join(t.TempDir(), "missing.sock")).Send(context.Background(), ListInstances{})
	assert.Error(t, err)
}

func TestSocketPath(t *testing.T) {
	assert.Equal(t, filepath.Join(os.TempDir(), "veda-abc.sock"), SocketPath("abc"))
}
