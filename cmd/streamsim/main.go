// streamsim serves a synthetic motor fault stream for local soak
// testing of monitord. It answers client heartbeats and emits
// diagnostic frames at a configurable rate across a fleet of fake
// vehicles.
//
// Usage: go run ./cmd/streamsim --addr :8090 --rate 20 --vehicles 8
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

var faultKinds = []string{
	"bearing",
	"insulation",
	"rotor_bar",
	"eccentricity",
	"demagnetization",
	"unbalance",
}

type simConfig struct {
	rate       float64
	vehicles   int
	junkRatio  float64
	spectral   bool
	timeSeries int
}

func main() {
	addr := flag.String("addr", ":8090", "listen address")
	path := flag.String("path", "/stream", "WebSocket endpoint path")
	rate := flag.Float64("rate", 10, "diagnostic frames per second")
	vehicles := flag.Int("vehicles", 5, "number of simulated vehicles")
	junkRatio := flag.Float64("junk", 0, "fraction of malformed frames (0..1)")
	spectral := flag.Bool("spectral", false, "attach frequency spectrum payloads")
	timeSeries := flag.Int("timeseries", 0, "samples of raw time series per frame (0 disables)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	cfg := simConfig{
		rate:       *rate,
		vehicles:   *vehicles,
		junkRatio:  *junkRatio,
		spectral:   *spectral,
		timeSeries: *timeSeries,
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	var sessions atomic.Int64

	http.HandleFunc(*path, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("upgrade failed", "error", err)
			return
		}
		id := sessions.Add(1)
		logger.Info("client connected", "session", id, "remote", r.RemoteAddr)
		serveStream(conn, cfg, logger.With("session", id))
		logger.Info("client disconnected", "session", id)
	})

	logger.Info("streamsim listening",
		"addr", *addr,
		"path", *path,
		"rate", *rate,
		"vehicles", *vehicles,
	)
	if err := http.ListenAndServe(*addr, nil); err != nil {
		logger.Error("listen failed", "error", err)
		os.Exit(1)
	}
}

// serveStream runs one client session: heartbeat responder on the read
// side, frame generator on the write side. Returns when the client
// goes away.
func serveStream(conn *websocket.Conn, cfg simConfig, logger *slog.Logger) {
	defer conn.Close()

	done := make(chan struct{})
	acks := make(chan struct{}, 8)

	// Read side: answer heartbeats, detect the close.
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(data, &frame); err != nil {
				continue
			}
			if frame.Type == "heartbeat" {
				select {
				case acks <- struct{}{}:
				default:
				}
			}
		}
	}()

	interval := time.Duration(float64(time.Second) / cfg.rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var sent int64
	for {
		select {
		case <-done:
			return
		case <-acks:
			ack, _ := json.Marshal(map[string]any{"type": "heartbeat_response"})
			if err := conn.WriteMessage(websocket.TextMessage, ack); err != nil {
				return
			}
		case <-ticker.C:
			var payload []byte
			if cfg.junkRatio > 0 && rand.Float64() < cfg.junkRatio {
				payload = junkFrame()
			} else {
				payload = diagnosticFrame(cfg)
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
			sent++
			if sent%1000 == 0 {
				logger.Debug("frames sent", "count", sent)
			}
		}
	}
}

// diagnosticFrame builds one synthetic fault sample.
func diagnosticFrame(cfg simConfig) []byte {
	fault := faultKinds[rand.Intn(len(faultKinds))]
	frame := map[string]any{
		"vehicle_id": fmt.Sprintf("VH-%03d", rand.Intn(cfg.vehicles)+1),
		"fault_type": fault,
		"timestamp":  time.Now().UnixMilli(),
		"score":      rand.Float64(),
		"features": map[string]float64{
			"amplitude":   rand.Float64(),
			"phase_shift": rand.Float64() * 360,
			"temperature": 40 + rand.Float64()*60,
			"rpm":         900 + rand.Float64()*2400,
		},
	}

	if cfg.timeSeries > 0 {
		series := make([]float64, cfg.timeSeries)
		for i := range series {
			series[i] = rand.NormFloat64()
		}
		frame["time_series"] = series
	}
	if cfg.spectral {
		spectrum := make([]float64, 64)
		for i := range spectrum {
			spectrum[i] = rand.Float64() / float64(i+1)
		}
		frame["frequency_spectrum"] = spectrum
	}

	data, _ := json.Marshal(frame)
	return data
}

// junkFrame produces a frame the codec must reject, for exercising the
// drop counters.
func junkFrame() []byte {
	switch rand.Intn(3) {
	case 0:
		return []byte(`{"fault_type": "phlogiston", "vehicle_id": "VH-001", "timestamp": 1}`)
	case 1:
		return []byte(`{"vehicle_id": "VH-001"}`)
	default:
		return []byte(`{not json`)
	}
}
