package web

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"deadreckon/internal/failsafe"
)

// FeedFrame is one tick of the live feed pushed to WebSocket clients.
type FeedFrame struct {
	Stage        string            `json:"stage"`
	Degraded     bool              `json:"degraded"`
	Armed        bool              `json:"armed"`
	RollDeg      float64           `json:"roll_deg"`
	PitchDeg     float64           `json:"pitch_deg"`
	YawDeg       float64           `json:"yaw_deg"`
	AltAboveHome float64           `json:"alt_above_home_m"`
	Command      *failsafe.Command `json:"command,omitempty"`
	AtUTC        string            `json:"at_utc"`
}

// Feed fans tick frames out to WebSocket subscribers. It keeps the most
// recent frame so new clients get an immediate sample, and drops frames on
// slow clients rather than stalling the publisher.
type Feed struct {
	mu       sync.RWMutex
	subs     map[int]chan FeedFrame
	nextID   int
	last     FeedFrame
	haveLast bool
}

func NewFeed() *Feed {
	return &Feed{subs: make(map[int]chan FeedFrame)}
}

// Publish delivers a frame to every subscriber without blocking.
func (f *Feed) Publish(frame FeedFrame) {
	if f == nil {
		return
	}
	if frame.AtUTC == "" {
		frame.AtUTC = time.Now().UTC().Format(time.RFC3339Nano)
	}
	f.mu.Lock()
	f.last = frame
	f.haveLast = true
	subs := make([]chan FeedFrame, 0, len(f.subs))
	for _, ch := range f.subs {
		subs = append(subs, ch)
	}
	f.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- frame:
		default:
		}
	}
}

func (f *Feed) subscribe() (int, <-chan FeedFrame) {
	ch := make(chan FeedFrame, 4)
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = ch
	last := f.last
	have := f.haveLast
	f.mu.Unlock()
	if have {
		ch <- last
	}
	return id, ch
}

// unsubscribe drops the subscriber but deliberately leaves its channel
// open: Publish sends outside the lock, and a send on a closed channel
// would panic the tick loop. An unreferenced open channel is just garbage.
func (f *Feed) unsubscribe(id int) {
	f.mu.Lock()
	delete(f.subs, id)
	f.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API is a local ground-station surface; origin checks add nothing.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades to WebSocket and streams frames as JSON messages until
// the client goes away.
func (f *Feed) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("feed upgrade err=%v", err)
			return
		}
		defer conn.Close()

		id, ch := f.subscribe()
		defer f.unsubscribe(id)

		// Reader goroutine: surface client disconnects.
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-gone:
				return
			case frame := <-ch:
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteJSON(frame); err != nil {
					return
				}
			}
		}
	})
}
