package app

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // the monitor is served on the local network only
	},
}

// NewWebHandler returns the HTTP API for m:
//
//	GET  /api/posture                      current Status
//	POST /api/lifecycle/{foreground|background}
//	GET  /ws/posture                       Status on connect and on every verdict change
func NewWebHandler(m *Monitor) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/posture", postureHandler(m)).Methods(http.MethodGet)
	r.HandleFunc("/api/lifecycle/{event:foreground|background}", lifecycleHandler(m)).Methods(http.MethodPost)
	r.HandleFunc("/ws/posture", postureWSHandler(m)).Methods(http.MethodGet)

	return handlers.LoggingHandler(os.Stdout, r)
}

func postureHandler(m *Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(m.Status()); err != nil {
			log.Printf("web: json encode error: %v", err)
		}
	}
}

func lifecycleHandler(m *Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch mux.Vars(r)["event"] {
		case "foreground":
			m.Gate.OnForeground()
		case "background":
			m.Gate.OnBackground()
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(m.Status()); err != nil {
			log.Printf("web: json encode error: %v", err)
		}
	}
}

func postureWSHandler(m *Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("web: websocket upgrade error: %v", err)
			return
		}
		defer conn.Close()

		changes, cancel := m.Classifier.Subscribe()
		defer cancel()

		// the client never sends; reading only detects the close
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
						log.Printf("web: websocket error: %v", err)
					}
					return
				}
			}
		}()

		if err := writeStatus(conn, m.Status()); err != nil {
			return
		}
		for {
			select {
			case <-closed:
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
				if err := writeStatus(conn, m.Status()); err != nil {
					return
				}
			}
		}
	}
}

func writeStatus(conn *websocket.Conn, s Status) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	if err := conn.WriteJSON(s); err != nil {
		log.Printf("web: websocket write error: %v", err)
		return err
	}
	return nil
}
