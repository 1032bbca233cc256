package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eak1mov/go-seedtiles/backend"
	"github.com/eak1mov/go-seedtiles/biome"
	"github.com/eak1mov/go-seedtiles/internal/backendtest"
	"github.com/eak1mov/go-seedtiles/pool"
	"github.com/eak1mov/go-seedtiles/raster"
	"github.com/eak1mov/go-seedtiles/scheduler"
)

type fixture struct {
	sched *scheduler.Scheduler
	hub   *Hub
	http  *httptest.Server
}

func setup(t *testing.T, f *backendtest.Factory, opts ...Option) *fixture {
	t.Helper()
	hub := NewHub(nil)
	p := pool.New(f.New, pool.WithSize(2))
	sched := scheduler.New(p, backend.Params{Seed: 1}, scheduler.WithRedraw(hub.Broadcast))
	t.Cleanup(sched.Dispose)
	sched.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = sched.WaitReady(ctx)

	srv, err := New(sched, hub, opts...)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &fixture{sched: sched, hub: hub, http: ts}
}

func (f *fixture) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(f.http.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func (f *fixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) Outbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg Outbound
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestTile(t *testing.T) {
	t.Parallel()
	f := setup(t, &backendtest.Factory{})

	resp, body := f.get(t, "/tiles/0/-1/2")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, "0", resp.Header.Get("X-Seedtiles-Version"))

	img, format, err := raster.Decode(body)
	require.NoError(t, err)
	assert.Equal(t, raster.FormatPNG, format)
	assert.Equal(t, 256, img.Bounds().Dx())
}

func TestTileBMP(t *testing.T) {
	t.Parallel()
	f := setup(t, &backendtest.Factory{}, WithFormat(raster.FormatBMP))

	resp, body := f.get(t, "/tiles/1/0/0")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/bmp", resp.Header.Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(body, []byte("BM")))
}

func TestTileErrors(t *testing.T) {
	t.Parallel()
	f := setup(t, &backendtest.Factory{})

	resp, _ := f.get(t, "/tiles/a/0/0")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = f.get(t, "/tiles/99/0/0")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTilePoolFailed(t *testing.T) {
	t.Parallel()
	f := setup(t, &backendtest.Factory{FailCreate: func(int) bool { return true }})

	resp, _ := f.get(t, "/tiles/0/0/0")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestStatus(t *testing.T) {
	t.Parallel()
	f := setup(t, &backendtest.Factory{})

	resp, body := f.get(t, "/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st StatusResponse
	require.NoError(t, json.Unmarshal(body, &st))
	assert.True(t, st.Ready)
	assert.Equal(t, 2, st.Members)
	assert.Equal(t, int64(1), st.Seed)
	assert.Equal(t, "minecraft:overworld", st.Dimension)
}

func TestEvents(t *testing.T) {
	t.Parallel()
	f := setup(t, &backendtest.Factory{})
	conn := f.dial(t)

	hello := read(t, conn)
	require.Equal(t, TypeHello, hello.Type)
	_, err := uuid.Parse(hello.Session)
	assert.NoError(t, err)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "relief", "enabled": true}))
	assert.Equal(t, Outbound{Type: TypeRedraw, Epoch: 1}, read(t, conn))
	assert.True(t, f.sched.View().Relief)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "y", "level": -30}))
	assert.Equal(t, Outbound{Type: TypeRedraw, Epoch: 2}, read(t, conn))
	assert.Equal(t, -30, f.sched.View().YLevel)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "view"}))
	assert.Equal(t, Outbound{Type: TypeRedraw, Epoch: 3}, read(t, conn))

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "config", "seed": "77", "dimension": "minecraft:the_end"}))
	assert.Equal(t, Outbound{Type: TypeRedraw, Epoch: 4, Version: 1}, read(t, conn))
	params := f.sched.Params()
	assert.Equal(t, int64(77), params.Seed)
	assert.Equal(t, backend.End, params.Dimension)
}

func TestEventsDisplayToggles(t *testing.T) {
	t.Parallel()
	f := setup(t, &backendtest.Factory{})
	conn := f.dial(t)
	require.Equal(t, TypeHello, read(t, conn).Type)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "highlight", "biomes": []string{"minecraft:desert", "jungle"}}))
	assert.Equal(t, Outbound{Type: TypeRedraw, Epoch: 1}, read(t, conn))
	view := f.sched.View()
	assert.Equal(t, []biome.ID{biome.Desert, biome.Jungle}, view.Highlight.IDs())

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "water", "enabled": true}))
	assert.Equal(t, Outbound{Type: TypeRedraw, Epoch: 2}, read(t, conn))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "contours", "interval": 8}))
	assert.Equal(t, Outbound{Type: TypeRedraw, Epoch: 3}, read(t, conn))

	_, body := f.get(t, "/status")
	var st StatusResponse
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, []string{"minecraft:desert", "minecraft:jungle"}, st.Highlight)
	assert.True(t, st.Water)
	assert.Equal(t, 8.0, st.Contours)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "highlight", "biomes": []string{}}))
	assert.Equal(t, Outbound{Type: TypeRedraw, Epoch: 4}, read(t, conn))
	assert.True(t, f.sched.View().Highlight.Empty())
}

func TestEventsRejectInvalid(t *testing.T) {
	t.Parallel()
	f := setup(t, &backendtest.Factory{})
	conn := f.dial(t)
	require.Equal(t, TypeHello, read(t, conn).Type)

	for _, msg := range []string{
		`not json`,
		`{"type":"y"}`,
		`{"type":"y","level":1000}`,
		`{"type":"relief","enabled":"yes"}`,
		`{"type":"teleport"}`,
		`{"type":"config","version":"latest"}`,
		`{"type":"config","dimension":"minecraft:moon"}`,
		`{"type":"highlight","biomes":["minecraft:moon_craters"]}`,
		`{"type":"highlight"}`,
		`{"type":"water","enabled":1}`,
		`{"type":"contours","interval":-4}`,
	} {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
		got := read(t, conn)
		assert.Equal(t, TypeError, got.Type, msg)
		assert.NotEmpty(t, got.Message, msg)
	}
	assert.Equal(t, uint64(0), f.sched.Status().Epoch)
}

func TestHubBroadcast(t *testing.T) {
	t.Parallel()
	hub := NewHub(nil)
	id, out := hub.join()
	assert.Equal(t, 1, hub.Sessions())

	for range sessionQueue + 3 {
		hub.Broadcast(scheduler.Redraw{Epoch: 5, Version: 2})
	}
	assert.Len(t, out, sessionQueue)
	var msg Outbound
	require.NoError(t, json.Unmarshal(<-out, &msg))
	assert.Equal(t, Outbound{Type: TypeRedraw, Epoch: 5, Version: 2}, msg)

	hub.leave(id)
	assert.Zero(t, hub.Sessions())
}
