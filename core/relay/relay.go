// Package relay serves voice sessions over websockets. Each connection gets
// its own orchestrator; inbound frames carry client audio and interrupt
// requests, outbound frames mirror the session events a client acts on.
package relay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	orchestration "github.com/volleyhq/volley-core/core"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	// writeWait bounds a single write to the client, pings included.
	writeWait = 10 * time.Second
	// pongWait is how long the read side survives without a pong.
	pongWait = 60 * time.Second
	// pingPeriod spaces keepalive pings. Must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxInboundBytes caps a single inbound frame. Audio arrives base64
	// encoded inside JSON, so frames run a third larger than the raw audio.
	maxInboundBytes = 1 << 20

	// protocolErrorBacklog bounds protocol error reports waiting for the
	// write loop. Reports beyond it are dropped, the connection stays up.
	protocolErrorBacklog = 8

	readBufferSize  = 65536
	writeBufferSize = 65536
)

var staleEventsDiscarded, _ = meter.Int64Counter(
	"relay.stale_events_discarded",
	metric.WithDescription("Outbound events discarded because their turn was interrupted"),
)

// Server upgrades HTTP requests to websocket voice sessions. One orchestrator
// is created per connection and closed when the connection goes away.
type Server struct {
	newSession func() *orchestration.Orchestrator
	upgrader   websocket.Upgrader
}

// NewServer creates a session server. newSession is called once per accepted
// connection and must return a freshly configured orchestrator.
func NewServer(newSession func() *orchestration.Orchestrator) *Server {
	return &Server{
		newSession: newSession,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readBufferSize,
			WriteBufferSize: writeBufferSize,
			// Origin checks belong to the proxy in front of this server.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("failed to upgrade session socket", "error", err)
		return
	}

	sess := s.newSession()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ctx, span := tracer.Start(ctx, "relay session",
		trace.WithAttributes(attribute.String("session.id", sess.ID())),
	)
	defer span.End()

	if err := sess.Orchestrate(ctx); err != nil {
		logger.Error("failed to start session", "session_id", sess.ID(), "error", err)
		payload, _ := json.Marshal(errorMessage{
			Type:         messageTypeError,
			Error:        string(orchestration.FaultConnection),
			ErrorMessage: "failed to start the session",
		})
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteMessage(websocket.TextMessage, payload)
		conn.Close()
		sess.Close()
		return
	}

	logger.Info("session connected", "session_id", sess.ID())

	// The write loop owns every write on the connection. Protocol errors
	// found by the read loop are delivered through this channel.
	protocolErrors := make(chan errorMessage, protocolErrorBacklog)

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		s.writeLoop(conn, sess, protocolErrors)
	}()

	s.readLoop(conn, sess, protocolErrors)

	// The client is gone or unreadable. Closing the session finishes the
	// outbound stream, which winds down the write loop and the socket.
	sess.Close()
	<-writeDone

	logger.Info("session disconnected", "session_id", sess.ID())
}

// readLoop decodes inbound messages until the connection fails. Malformed
// messages are reported back to the client without ending the session.
func (s *Server) readLoop(conn *websocket.Conn, sess *orchestration.Orchestrator, protocolErrors chan<- errorMessage) {
	conn.SetReadLimit(maxInboundBytes)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("session socket closed unexpectedly", "session_id", sess.ID(), "error", err)
			}
			return
		}

		var message inboundMessage
		if err := json.Unmarshal(payload, &message); err != nil {
			reportProtocolError(protocolErrors, "malformed message")
			continue
		}

		switch message.Type {
		case messageTypeAudioInput:
			frame, err := base64.StdEncoding.DecodeString(message.Content)
			if err != nil {
				reportProtocolError(protocolErrors, "audio content is not valid base64")
				continue
			}
			sess.PushAudio(frame)
		case messageTypeInterrupt:
			sess.RequestInterrupt()
		default:
			reportProtocolError(protocolErrors, fmt.Sprintf("unknown message type %q", message.Type))
		}
	}
}

// writeLoop forwards outbound session events to the client and keeps the
// connection alive with pings. It returns when the outbound stream closes or
// a write fails, closing the connection either way so the read loop unblocks.
func (s *Server) writeLoop(conn *websocket.Conn, sess *orchestration.Orchestrator, protocolErrors <-chan errorMessage) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer conn.Close()

	for {
		select {
		case event, ok := <-sess.Outbound():
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if sess.IsStale(event) {
				staleEventsDiscarded.Add(context.Background(), 1)
				continue
			}

			payload, ok := encodeEvent(event)
			if !ok {
				continue
			}

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Debug("failed to write to session socket", "session_id", sess.ID(), "error", err)
				return
			}
		case report := <-protocolErrors:
			payload, err := json.Marshal(report)
			if err != nil {
				continue
			}

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Debug("failed to write to session socket", "session_id", sess.ID(), "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// reportProtocolError queues a protocol error for delivery without blocking
// the read loop.
func reportProtocolError(protocolErrors chan<- errorMessage, description string) {
	report := errorMessage{
		Type:         messageTypeError,
		Error:        string(orchestration.FaultProtocol),
		ErrorMessage: description,
	}

	select {
	case protocolErrors <- report:
	default:
		logger.Debug("dropped protocol error report", "description", description)
	}
}
