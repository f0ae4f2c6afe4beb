package middleware

import (
	"net/http"
)

type queued struct {
	w    http.ResponseWriter
	r    *http.Request
	next http.Handler
	done chan struct{}
}

// Limiter bounds concurrent request handling. Requests beyond the
// inflight cap wait in a fixed-size queue; a full queue sheds load
// with 503 instead of piling up goroutines.
type Limiter struct {
	queue    chan queued
	inflight chan struct{}
}

func NewLimiter(queueSize, maxInflight int) *Limiter {
	l := &Limiter{
		queue:    make(chan queued, queueSize),
		inflight: make(chan struct{}, maxInflight),
	}

	go l.dispatch()

	return l
}

func (l *Limiter) dispatch() {
	for q := range l.queue {
		l.inflight <- struct{}{}

		go func(q queued) {
			defer func() {
				<-l.inflight
				close(q.done)
			}()

			q.next.ServeHTTP(q.w, q.r)
		}(q)
	}
}

func (l *Limiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := queued{
			w:    w,
			r:    r,
			next: next,
			done: make(chan struct{}),
		}

		select {
		case l.queue <- q:
			// Once enqueued a worker owns the ResponseWriter, so wait
			// for it even if the request context is cancelled; the
			// handler sees the cancellation through r.Context().
			<-q.done
		default:
			http.Error(w, "server busy", http.StatusServiceUnavailable)
			return
		}
	})
}
