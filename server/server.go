// Package server exposes a scheduler over HTTP: tiles are fetched with GET
// requests and view or configuration changes arrive over a websocket that
// also carries redraw notifications back.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/eak1mov/go-seedtiles/backend"
	"github.com/eak1mov/go-seedtiles/biome"
	"github.com/eak1mov/go-seedtiles/pool"
	"github.com/eak1mov/go-seedtiles/raster"
	"github.com/eak1mov/go-seedtiles/scheduler"
	"github.com/eak1mov/go-seedtiles/tile"
)

// DefaultTileTimeout bounds how long a tile request waits for its task.
const DefaultTileTimeout = 20 * time.Second

const (
	writeWait = 5 * time.Second
	readWait  = 60 * time.Second
)

// Scheduler is the part of *scheduler.Scheduler the server drives.
type Scheduler interface {
	Submit(c tile.Coord) *scheduler.Task
	Status() scheduler.Status
	Invalidate()
	SetRelief(enabled bool)
	SetYLevel(y int)
	SetHighlight(ids biome.Set)
	SetWater(enabled bool)
	SetContourInterval(blocks float64)
	UpdateConfig(ctx context.Context, u backend.Update) error
}

type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

func WithFormat(f raster.Format) Option {
	return func(s *Server) { s.format = f }
}

func WithTileTimeout(d time.Duration) Option {
	return func(s *Server) { s.tileTimeout = d }
}

type Server struct {
	sched       Scheduler
	hub         *Hub
	logger      *slog.Logger
	format      raster.Format
	tileTimeout time.Duration
	schema      *jsonschema.Schema
	upgrader    websocket.Upgrader
}

func New(sched Scheduler, hub *Hub, opts ...Option) (*Server, error) {
	schema, err := compileInbound()
	if err != nil {
		return nil, err
	}
	s := &Server{
		sched:       sched,
		hub:         hub,
		logger:      slog.New(slog.DiscardHandler),
		format:      raster.FormatPNG,
		tileTimeout: DefaultTileTimeout,
		schema:      schema,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 4 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /tiles/{z}/{x}/{y}", s.handleTile)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /events", s.handleEvents)
	return mux
}

func parseCoord(r *http.Request) (tile.Coord, error) {
	var c tile.Coord
	for _, f := range []struct {
		name string
		dst  *int
	}{{"z", &c.Z}, {"x", &c.X}, {"y", &c.Y}} {
		v, err := strconv.Atoi(r.PathValue(f.name))
		if err != nil {
			return c, err
		}
		*f.dst = v
	}
	return c, nil
}

func (s *Server) handleTile(w http.ResponseWriter, r *http.Request) {
	c, err := parseCoord(r)
	if err != nil {
		http.Error(w, "bad tile coordinate", http.StatusBadRequest)
		return
	}

	task := s.sched.Submit(c)
	ctx, cancel := context.WithTimeout(r.Context(), s.tileTimeout)
	defer cancel()
	img, err := task.Wait(ctx)
	if err != nil {
		http.Error(w, "tile timed out", http.StatusGatewayTimeout)
		return
	}
	if img == nil {
		switch err := task.Err(); {
		case errors.Is(err, tile.ErrInvalidCoord):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, pool.ErrInitFailed), errors.Is(err, scheduler.ErrDisposed):
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
		return
	}

	data, err := s.format.Bytes(img)
	if err != nil {
		s.logger.Error("seedtiles: tile encoding failed", "tile", c, "error", err)
		http.Error(w, "encoding failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", s.format.ContentType())
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Seedtiles-Version", strconv.FormatUint(task.Version, 10))
	w.Header().Set("X-Seedtiles-Epoch", strconv.FormatUint(task.Epoch, 10))
	_, _ = w.Write(data)
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Ready       bool     `json:"ready"`
	Failed      bool     `json:"failed"`
	Members     int      `json:"members"`
	Busy        int      `json:"busy"`
	Queued      int      `json:"queued"`
	InFlight    int      `json:"inflight"`
	Epoch       uint64   `json:"epoch"`
	Version     uint64   `json:"version"`
	Relief      bool     `json:"relief"`
	YLevel      int      `json:"y_level"`
	Highlight   []string `json:"highlight,omitempty"`
	Water       bool     `json:"water"`
	Contours    float64  `json:"contour_interval"`
	Seed        int64    `json:"seed"`
	GameVersion string   `json:"game_version"`
	Dimension   string   `json:"dimension"`
	LargeBiomes bool     `json:"large_biomes"`
	Clients     int      `json:"clients"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.sched.Status()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(StatusResponse{
		Ready:       st.Ready,
		Failed:      st.Failed,
		Members:     st.Members,
		Busy:        st.Busy,
		Queued:      st.Queued,
		InFlight:    st.InFlight,
		Epoch:       st.Epoch,
		Version:     st.Version,
		Relief:      st.View.Relief,
		YLevel:      st.View.YLevel,
		Highlight:   biomeNames(st.View.Highlight),
		Water:       st.View.Water,
		Contours:    st.View.ContourInterval,
		Seed:        st.Params.Seed,
		GameVersion: st.Params.Version.String(),
		Dimension:   st.Params.Dimension.String(),
		LargeBiomes: st.Params.LargeBiomes,
		Clients:     s.hub.Sessions(),
	})
}

func biomeNames(set biome.Set) []string {
	var names []string
	for _, id := range set.IDs() {
		names = append(names, id.String())
	}
	return names
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	id, out := s.hub.join()
	defer s.hub.leave(id)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case b := <-out:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					cancel()
					return
				}
			}
		}
	}()
	s.hub.send(id, Outbound{Type: TypeHello, Session: id})

	for {
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}
		in, err := decodeInbound(s.schema, msg)
		if err != nil {
			s.hub.send(id, Outbound{Type: TypeError, Message: err.Error()})
			continue
		}
		s.apply(ctx, id, in)
	}

	cancel()
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
	select {
	case <-writerDone:
	case <-time.After(500 * time.Millisecond):
	}
}

func (s *Server) apply(ctx context.Context, session string, in Inbound) {
	switch in.Type {
	case TypeView:
		s.sched.Invalidate()
	case TypeRelief:
		s.sched.SetRelief(*in.Enabled)
	case TypeY:
		s.sched.SetYLevel(*in.Level)
	case TypeHighlight:
		set, err := in.Highlight()
		if err != nil {
			s.hub.send(session, Outbound{Type: TypeError, Message: err.Error()})
			return
		}
		s.sched.SetHighlight(set)
	case TypeWater:
		s.sched.SetWater(*in.Enabled)
	case TypeContours:
		s.sched.SetContourInterval(*in.Interval)
	case TypeConfig:
		u, err := in.Update()
		if err != nil {
			s.hub.send(session, Outbound{Type: TypeError, Message: err.Error()})
			return
		}
		// Reconfiguration waits for the backends; keep reading meanwhile.
		go func() {
			err := s.sched.UpdateConfig(ctx, u)
			switch {
			case errors.Is(err, context.Canceled):
				// Session closed; the update carries on without it.
			case err != nil:
				s.logger.Warn("seedtiles: configuration update failed", "session", session, "error", err)
				s.hub.send(session, Outbound{Type: TypeError, Message: err.Error()})
			}
		}()
	}
}
