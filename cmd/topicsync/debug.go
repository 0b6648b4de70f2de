package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vango-dev/topicsync/pkg/client"
	"github.com/vango-dev/topicsync/pkg/topicsync"
)

// topicInfo is the JSON view of a topic.
type topicInfo struct {
	Name        string         `json:"name"`
	Kind        topicsync.Kind `json:"kind"`
	Initialized bool           `json:"initialized"`
	Value       any            `json:"value,omitempty"`
}

// previewInfo is the JSON view of a change waiting for the server.
type previewInfo struct {
	ActionID string               `json:"action_id"`
	Change   topicsync.ChangeDict `json:"change"`
}

// newDebugRouter serves the client's topics, its preview queue and its
// metrics.
//
//	GET /topics           every topic with its value
//	GET /topics/{name}    one topic
//	PUT /topics/{name}    replace the value with the JSON body
//	GET /previews         unconfirmed changes, oldest first
//	GET /metrics          Prometheus metrics
func newDebugRouter(c *client.Client, reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()

	r.Get("/topics", func(w http.ResponseWriter, req *http.Request) {
		out := []topicInfo{}
		err := c.Do(req.Context(), func(m *topicsync.StateManager) error {
			for _, name := range m.Topics() {
				t, _ := m.Topic(name)
				out = append(out, describeTopic(t))
			}
			return nil
		})
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Get("/topics/{name}", func(w http.ResponseWriter, req *http.Request) {
		name := chi.URLParam(req, "name")
		var (
			out   topicInfo
			found bool
		)
		err := c.Do(req.Context(), func(m *topicsync.StateManager) error {
			t, ok := m.Topic(name)
			if ok {
				out, found = describeTopic(t), true
			}
			return nil
		})
		switch {
		case err != nil:
			writeError(w, http.StatusServiceUnavailable, err)
		case !found:
			http.Error(w, "unknown topic", http.StatusNotFound)
		default:
			writeJSON(w, http.StatusOK, out)
		}
	})

	r.Put("/topics/{name}", func(w http.ResponseWriter, req *http.Request) {
		name := chi.URLParam(req, "name")
		var v any
		if err := json.NewDecoder(req.Body).Decode(&v); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		err := c.Do(req.Context(), func(m *topicsync.StateManager) error {
			t, ok := m.Topic(name)
			if !ok {
				return topicsync.ErrUnknownTopic
			}
			return m.Record(func() error { return t.SetAny(v) })
		})
		if err != nil {
			status := http.StatusUnprocessableEntity
			if errors.Is(err, topicsync.ErrUnknownTopic) {
				status = http.StatusNotFound
			}
			writeError(w, status, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/previews", func(w http.ResponseWriter, req *http.Request) {
		out := []previewInfo{}
		err := c.Do(req.Context(), func(m *topicsync.StateManager) error {
			for _, p := range m.Previews() {
				out = append(out, previewInfo{ActionID: p.ActionID, Change: p.Change.Serialize()})
			}
			return nil
		})
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return r
}

func describeTopic(t topicsync.Topic) topicInfo {
	ti := topicInfo{Name: t.Name(), Kind: t.Kind(), Initialized: t.Initialized()}
	if t.Initialized() && t.Kind() != topicsync.KindEvent {
		ti.Value = t.GetAny()
	}
	return ti
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
