package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	nhooyr "nhooyr.io/websocket"

	"github.com/omochice/wsterm/internal/relay"
	"github.com/omochice/wsterm/internal/version"
)

func runCmd(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	chdir(t, t.TempDir())
	t.Setenv("HOME", t.TempDir())

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Version(t *testing.T) {
	code, stdout, stderr := runCmd(t, "", "--version")

	assert.Equal(t, 0, code)
	assert.Equal(t, version.String()+"\n", stdout)
	assert.Empty(t, stderr)
}

func TestRun_UsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "no arguments", args: nil, want: "the following arguments are required: <uri>"},
		{name: "version and uri", args: []string{"--version", "ws://localhost:1"}, want: "not allowed with argument --version"},
		{name: "two uris", args: []string{"ws://a", "ws://b"}, want: "unrecognized arguments"},
		{name: "unknown flag", args: []string{"--nope"}, want: "unknown flag"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, stdout, stderr := runCmd(t, "", tt.args...)

			assert.Equal(t, 2, code)
			assert.Empty(t, stdout)
			assert.Contains(t, stderr, tt.want)
			assert.Contains(t, stderr, "Usage:")
		})
	}
}

func TestRun_ConnectFailure(t *testing.T) {
	code, stdout, stderr := runCmd(t, "", "ws://127.0.0.1:1")

	assert.Equal(t, 1, code)
	assert.Empty(t, stdout)
	assert.True(t, strings.HasPrefix(stderr, "Failed to connect to ws://127.0.0.1:1: "), stderr)
	assert.True(t, strings.HasSuffix(stderr, ".\n"), stderr)
}

func TestRun_InvalidHeader(t *testing.T) {
	code, _, stderr := runCmd(t, "", "--header", "no-colon", "ws://127.0.0.1:1")

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "invalid header")
}

func TestRun_SessionWithEchoingPeer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := nhooyr.Accept(w, r, nil)
		if err != nil {
			t.Errorf("failed to accept: %v", err)
			return
		}
		defer c.CloseNow()

		ctx := r.Context()
		if err := c.Write(ctx, nhooyr.MessageText, []byte("welcome")); err != nil {
			return
		}
		for {
			typ, data, err := c.Read(ctx)
			if err != nil {
				return
			}
			if err := c.Write(ctx, typ, data); err != nil {
				return
			}
		}
	}))
	defer server.Close()
	uri := "ws" + strings.TrimPrefix(server.URL, "http")

	code, stdout, stderr := runCmd(t, "", uri)

	require.Equal(t, 0, code, stderr)
	lines := strings.Split(strings.TrimSuffix(stdout, "\n"), "\n")
	require.NotEmpty(t, lines)
	assert.Equal(t, "Connected to "+uri+".", lines[0])
	// Messages still queued when the close completes may print after the
	// status line in plain mode.
	assert.Contains(t, lines, "< welcome")
	assert.Contains(t, lines, "Connection closed: 1000.")
}

func TestRun_SessionThroughRelay(t *testing.T) {
	srv := relay.New("127.0.0.1:0", zerolog.Nop())
	require.NoError(t, srv.Listen())
	go srv.Serve()
	defer srv.Stop()

	uri := "ws://" + srv.Addr() + "/"
	peer, _, err := websocket.DefaultDialer.Dial(uri, nil)
	require.NoError(t, err)
	defer peer.Close()
	require.Eventually(t, func() bool { return srv.PeerCount() == 1 }, time.Second, 10*time.Millisecond)

	code, stdout, stderr := runCmd(t, "hello\nworld\n", "--close-timeout", "2s", uri)

	require.Equal(t, 0, code, stderr)
	assert.True(t, strings.HasPrefix(stdout, "Connected to "+uri+".\n"), stdout)
	assert.True(t, strings.HasSuffix(stdout, "Connection closed: 1000.\n"), stdout)

	require.NoError(t, peer.SetReadDeadline(time.Now().Add(2*time.Second)))
	for _, want := range []string{"hello", "world"} {
		kind, data, err := peer.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.TextMessage, kind)
		assert.Equal(t, want, string(data))
	}
}

// chdir changes the working directory for the duration of the test
// (equivalent to testing.T.Chdir, which needs Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
