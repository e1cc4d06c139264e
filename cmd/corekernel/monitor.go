/*
Copyright 2024 The Corekernel Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/gokernel/corekernel/pkg/thread"
)

// monitorHub fans thread.Event out to every connected -monitor
// websocket client. It subscribes to the kernel's Events channel
// rather than polling kernel state from this goroutine: fields like
// Kernel.current are only safe to touch from whichever goroutine
// currently holds the kernel's single active-thread token, which this
// HTTP-serving goroutine never does.
type monitorHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func newMonitorHub() *monitorHub {
	return &monitorHub{clients: make(map[*websocket.Conn]struct{})}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

func (h *monitorHub) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("monitor: upgrade: %v", err)
		return
	}
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()

	// Drain and discard anything the client sends; its only purpose is
	// to receive broadcasts. Exit (and deregister) once the connection
	// drops.
	go func() {
		defer func() {
			h.mu.Lock()
			delete(h.clients, conn)
			h.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *monitorHub) broadcast(e thread.Event) {
	buf, err := json.Marshal(e)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, buf); err != nil {
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

// serveMonitor starts an HTTP server exposing a single "/events"
// websocket endpoint at addr, forwarding every event the kernel emits
// to every connected client until events is closed (when the kernel
// halts).
func serveMonitor(addr string, events <-chan thread.Event) {
	hub := newMonitorHub()
	mux := http.NewServeMux()
	mux.HandleFunc("/events", hub.handle)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("monitor: %v", err)
		}
	}()

	for e := range events {
		hub.broadcast(e)
	}
	srv.Close()
}
