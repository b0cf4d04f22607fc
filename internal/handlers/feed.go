// internal/handlers/feed.go
package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"

	"github.com/ladderworks/challenge-api/internal/processor"
)

// feedBuffer is the per-subscriber event backlog; a subscriber that falls
// further behind starts losing events rather than stalling commits.
const feedBuffer = 16

// FeedHub broadcasts committed rating updates to websocket subscribers on
// /feed. It implements processor.Publisher.
type FeedHub struct {
	mu   sync.Mutex
	subs map[chan processor.RatingUpdateEvent]struct{}
	log  *logrus.Logger
}

// NewFeedHub builds an empty hub.
func NewFeedHub(logger *logrus.Logger) *FeedHub {
	if logger == nil {
		logger = logrus.New()
	}
	return &FeedHub{
		subs: make(map[chan processor.RatingUpdateEvent]struct{}),
		log:  logger,
	}
}

// PublishRatingUpdate fans the event out without blocking the committing
// request.
func (h *FeedHub) PublishRatingUpdate(ev processor.RatingUpdateEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.log.Warn("feed subscriber lagging, dropping event")
		}
	}
}

func (h *FeedHub) subscribe() chan processor.RatingUpdateEvent {
	ch := make(chan processor.RatingUpdateEvent, feedBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *FeedHub) unsubscribe(ch chan processor.RatingUpdateEvent) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

// FeedHandler upgrades GET /feed to a websocket and streams rating-update
// events until the client disconnects.
func (a *API) FeedHandler(w http.ResponseWriter, r *http.Request) {
	if a.Feed == nil {
		http.Error(w, "feed not enabled", http.StatusNotFound)
		return
	}

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"}, // Adjust for production security.
	})
	if err != nil {
		a.Logger.Warnf("websocket accept error: %v", err)
		return
	}
	defer c.Close(websocket.StatusInternalError, "handler exit")

	a.Logger.WithField("remote", r.RemoteAddr).Info("feed subscriber connected")

	// The client never sends application data; CloseRead gives us a
	// context that ends when the connection does.
	ctx := c.CloseRead(r.Context())

	ch := a.Feed.subscribe()
	defer a.Feed.unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			c.Close(websocket.StatusNormalClosure, "bye")
			return
		case ev := <-ch:
			writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := wsjson.Write(writeCtx, c, ev)
			cancel()
			if err != nil {
				a.Logger.WithField("remote", r.RemoteAddr).Infof("feed subscriber dropped: %v", err)
				return
			}
		}
	}
}
