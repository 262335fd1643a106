package suite

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/studiowebux/benchkit/internal/echo"
	"github.com/studiowebux/benchkit/internal/workload"
	"golang.org/x/sync/errgroup"
)

const (
	handshakeTimeout = 10 * time.Second
	closeTimeout     = 5 * time.Second
)

type netState struct {
	httpURL string
	wsURL   string
	client  *http.Client
	params  workload.Params

	// upload body, built once in Setup
	body        []byte
	contentType string
	fileSize    int64
}

func netSetup(_ context.Context, env workload.Env) (workload.State, error) {
	srv, err := workload.ResourceAs[*echo.Server](env, FixtureEchoServer)
	if err != nil {
		return nil, err
	}
	addr := srv.Addr()
	if addr == "" {
		return nil, fmt.Errorf("echo server is not running")
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 128

	return &netState{
		httpURL: "http://" + addr,
		wsURL:   "ws://" + addr + "/echo",
		client:  &http.Client{Transport: transport},
		params:  env.Params,
	}, nil
}

func netTeardown(_ context.Context, state workload.State) error {
	state.(*netState).client.CloseIdleConnections()
	return nil
}

// dialEcho opens a WebSocket to the echo endpoint. A positive writeBuffer
// caps the payload of each outgoing frame.
func dialEcho(ctx context.Context, url string, writeBuffer int) (*websocket.Conn, error) {
	dialer := &websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
		WriteBufferSize:  writeBuffer,
	}

	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("connection failed: %w", err)
	}
	return conn, nil
}

// closeEcho performs the closing handshake and checks the server echoed 1000
func closeEcho(conn *websocket.Conn) error {
	defer conn.Close()

	deadline := time.Now().Add(closeTimeout)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		return fmt.Errorf("send close: %w", err)
	}

	conn.SetReadDeadline(deadline)
	for {
		if _, _, err := conn.NextReader(); err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				if ce.Code != websocket.CloseNormalClosure {
					return fmt.Errorf("server closed with %d, want %d", ce.Code, websocket.CloseNormalClosure)
				}
				return nil
			}
			return fmt.Errorf("await close: %w", err)
		}
	}
}

// exchange sends one message and checks the echo matches it
func exchange(conn *websocket.Conn, messageType int, payload []byte) error {
	if err := conn.WriteMessage(messageType, payload); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return expectEcho(conn, messageType, payload)
}

func expectEcho(conn *websocket.Conn, messageType int, payload []byte) error {
	gotType, got, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("receive: %w", err)
	}
	if gotType != messageType {
		return fmt.Errorf("echo has message type %d, want %d", gotType, messageType)
	}
	if !bytes.Equal(got, payload) {
		return fmt.Errorf("echo of %d bytes differs from the %d sent", len(got), len(payload))
	}
	return nil
}

// echoCount is the number of messages per ws.echo iteration for a payload size
func echoCount(size int) int {
	switch {
	case size <= 1024:
		return 100
	case size <= 4096:
		return 50
	default:
		return 10
	}
}

func payloadFor(messageType, size int) []byte {
	if messageType == websocket.TextMessage {
		return bytes.Repeat([]byte("a"), size)
	}
	return randomBytes(size)
}

func networkWorkloads() []workload.Descriptor {
	fixtures := []string{FixtureEchoServer}

	return []workload.Descriptor{
		{
			Name:        "http.noop-burst",
			Description: "Concurrent GET /noop requests",
			Axes:        []workload.Axis{{Name: "requests", Values: []any{100}}},
			Fixtures:    fixtures,
			Setup:       netSetup,
			Run: func(ctx context.Context, state workload.State) error {
				s := state.(*netState)
				g, ctx := errgroup.WithContext(ctx)
				for i := 0; i < s.params.Int("requests", 100); i++ {
					g.Go(func() error {
						return noop(ctx, s.client, s.httpURL+"/noop")
					})
				}
				return g.Wait()
			},
			Teardown: netTeardown,
		},
		{
			Name:        "http.upload",
			Description: "Multipart upload streamed to the server",
			Axes:        []workload.Axis{{Name: "size", Values: []any{10 << 20}}},
			Fixtures:    fixtures,
			Setup: func(ctx context.Context, env workload.Env) (workload.State, error) {
				state, err := netSetup(ctx, env)
				if err != nil {
					return nil, err
				}
				s := state.(*netState)
				s.fileSize = int64(env.Params.Int("size", 10<<20))
				s.body, s.contentType, err = multipartBody(randomBytes(int(s.fileSize)))
				if err != nil {
					return nil, err
				}
				return s, nil
			},
			Run: func(ctx context.Context, state workload.State) error {
				s := state.(*netState)
				return upload(ctx, s.client, s.httpURL+"/upload", s.body, s.contentType, s.fileSize)
			},
			Teardown: netTeardown,
		},
		{
			Name:        "ws.echo",
			Description: "Sequential echoes over one WebSocket connection",
			Axes: []workload.Axis{
				{Name: "size", Values: []any{256, 1024, 4096, 65536}},
				{Name: "type", Values: []any{"binary", "text"}},
			},
			Fixtures: fixtures,
			Setup:    netSetup,
			Run: func(ctx context.Context, state workload.State) error {
				s := state.(*netState)
				size := s.params.Int("size", 256)
				messageType := websocket.BinaryMessage
				if s.params.String("type", "binary") == "text" {
					messageType = websocket.TextMessage
				}
				payload := payloadFor(messageType, size)

				conn, err := dialEcho(ctx, s.wsURL, 0)
				if err != nil {
					return err
				}
				for i := 0; i < s.params.Int("count", echoCount(size)); i++ {
					if err := exchange(conn, messageType, payload); err != nil {
						conn.Close()
						return fmt.Errorf("message %d: %w", i, err)
					}
				}
				return closeEcho(conn)
			},
			Teardown: netTeardown,
		},
		{
			Name:        "ws.fragmented",
			Description: "Messages sent as two 128-byte fragments and echoed whole",
			Axes:        []workload.Axis{{Name: "messages", Values: []any{50}}},
			Fixtures:    fixtures,
			Setup:       netSetup,
			Run: func(ctx context.Context, state workload.State) error {
				s := state.(*netState)
				payload := randomBytes(256)

				conn, err := dialEcho(ctx, s.wsURL, 128)
				if err != nil {
					return err
				}
				for i := 0; i < s.params.Int("messages", 50); i++ {
					if err := sendFragmented(conn, payload); err != nil {
						conn.Close()
						return fmt.Errorf("message %d: %w", i, err)
					}
					if err := expectEcho(conn, websocket.BinaryMessage, payload); err != nil {
						conn.Close()
						return fmt.Errorf("message %d: %w", i, err)
					}
				}
				return closeEcho(conn)
			},
			Teardown: netTeardown,
		},
		{
			Name:        "ws.connect-close",
			Description: "Open a WebSocket and complete the closing handshake",
			Axes:        []workload.Axis{{Name: "connections", Values: []any{10}}},
			Fixtures:    fixtures,
			Setup:       netSetup,
			Run: func(ctx context.Context, state workload.State) error {
				s := state.(*netState)
				for i := 0; i < s.params.Int("connections", 10); i++ {
					conn, err := dialEcho(ctx, s.wsURL, 0)
					if err != nil {
						return err
					}
					if err := closeEcho(conn); err != nil {
						return err
					}
				}
				return nil
			},
			Teardown: netTeardown,
		},
		{
			Name:        "ws.concurrent",
			Description: "Concurrent clients each exchanging echoes",
			Axes: []workload.Axis{
				{Name: "clients", Values: []any{10}},
				{Name: "messages", Values: []any{10}},
			},
			Fixtures: fixtures,
			Setup:    netSetup,
			Run: func(ctx context.Context, state workload.State) error {
				s := state.(*netState)
				messages := s.params.Int("messages", 10)
				payload := randomBytes(1024)

				g, ctx := errgroup.WithContext(ctx)
				for c := 0; c < s.params.Int("clients", 10); c++ {
					g.Go(func() error {
						conn, err := dialEcho(ctx, s.wsURL, 0)
						if err != nil {
							return err
						}
						for i := 0; i < messages; i++ {
							if err := exchange(conn, websocket.BinaryMessage, payload); err != nil {
								conn.Close()
								return fmt.Errorf("client %d message %d: %w", c, i, err)
							}
						}
						return closeEcho(conn)
					})
				}
				return g.Wait()
			},
			Teardown: netTeardown,
		},
	}
}

// sendFragmented writes payload through a streaming writer so the connection
// splits it at its write buffer size
func sendFragmented(conn *websocket.Conn, payload []byte) error {
	w, err := conn.NextWriter(websocket.BinaryMessage)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		w.Close()
		return fmt.Errorf("send: %w", err)
	}
	return w.Close()
}

func noop(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET /noop: HTTP %d", resp.StatusCode)
	}
	return nil
}

func multipartBody(file []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", "payload.bin")
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(file); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

func upload(ctx context.Context, client *http.Client, url string, body []byte, contentType string, want int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("POST /upload: HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(b))
	}

	var result echo.UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode upload result: %w", err)
	}
	if result.Size != want {
		return fmt.Errorf("server counted %d bytes, want %d", result.Size, want)
	}
	return nil
}
