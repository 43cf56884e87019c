package main

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Server wires the store, the hub and the per-session machinery behind the
// WebSocket endpoint.
type Server struct {
	cfg         Config
	store       *Store
	hub         *Hub
	locks       *sessionLocks
	idempotency *idempotencyCache
	telemetry   *telemetryCounters
	transcriber Transcriber
	scenes      SceneBuilder
	upgrader    websocket.Upgrader
}

func newServer(cfg Config, store *Store, hub *Hub, telemetry *telemetryCounters) *Server {
	return &Server{
		cfg:         cfg,
		store:       store,
		hub:         hub,
		locks:       newSessionLocks(),
		idempotency: newIdempotencyCache(cfg.IdempotencyTTL, cfg.IdempotencyMax),
		telemetry:   telemetry,
		scenes:      offlineSceneBuilder{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// handleWS upgrades the connection, runs the auth handshake, and then serves
// frames until the client goes away. A read timeout is not an error: it is
// the chance to advance the simulation between client messages.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	sub, ok := s.handshake(conn)
	if !ok {
		conn.Close()
		return
	}
	defer func() {
		s.hub.Unregister(sub)
		conn.Close()
	}()

	if sub.sessionUID != "" {
		s.sendSessionState(sub, sub.sessionUID)
	}

	limiter := newRateLimiter(s.cfg.CommandRateLimit, s.cfg.CommandRateWindow)
	for {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReceiveTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				// No client traffic, run the tick for the watched session.
				if sub.sessionUID != "" {
					s.idleTick(sub.sessionUID)
				}
				continue
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.sendError(sub, errValidation("Malformed frame: %v", err), "")
			continue
		}

		switch msg.Type {
		case "ping":
			s.sendJSON(sub, PongMessage{Type: "pong", ServerTime: serverTime(time.Now())})
		case "subscribe_session":
			s.handleSubscribe(sub, msg.SessionID)
		case "command":
			s.handleCommand(sub, limiter, &msg, len(raw))
		default:
			s.sendError(sub, errValidation("Unknown frame type %q", msg.Type), "")
		}
	}
}

// handshake reads the first frame, which must authenticate the connection.
// The access token is the opaque token issued by the account service, which
// this deployment resolves directly to the user record.
func (s *Server) handshake(conn *websocket.Conn) (*subscriber, bool) {
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return nil, false
	}

	fail := func(detail string) (*subscriber, bool) {
		frame, _ := json.Marshal(AuthErrorMessage{Type: "auth_error", Detail: detail})
		conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
		conn.WriteMessage(websocket.TextMessage, frame)
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, detail))
		return nil, false
	}

	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Type != "auth" {
		return fail("First frame must be auth")
	}
	if msg.AccessToken == "" {
		return fail("accessToken is required")
	}
	user, err := s.store.UserByUID(msg.AccessToken)
	if err != nil {
		return fail("Auth session is not active")
	}
	roles := user.UserRoles()
	if len(roles) == 0 {
		return fail("Account has no roles")
	}

	sessionUID := msg.SessionID
	if sessionUID != "" {
		if _, err := s.store.SessionByUID(sessionUID); err != nil {
			return fail("Session not found")
		}
		if err := assertSessionScope(roles, sessionUID, sessionUID); err != nil {
			return fail("Session is outside your scope")
		}
	}

	sub := s.hub.Register(conn, user.UID, sessionUID)
	s.sendJSON(sub, AuthOKMessage{
		Type:       "auth_ok",
		UserID:     user.UID,
		SessionID:  sessionUID,
		Roles:      roles,
		ServerTime: serverTime(time.Now()),
	})
	logger.Info().Str("user", user.UID).Str("session", sessionUID).Msg("client authenticated")
	return sub, true
}

func (s *Server) handleSubscribe(sub *subscriber, sessionUID string) {
	if sessionUID == "" {
		s.sendError(sub, errValidation("sessionId is required"), "")
		return
	}
	user, err := s.store.UserByUID(sub.userUID)
	if err != nil {
		s.sendError(sub, err, "")
		return
	}
	if _, err := s.store.SessionByUID(sessionUID); err != nil {
		s.sendError(sub, err, "")
		return
	}
	if err := assertSessionScope(user.UserRoles(), sub.sessionUID, sessionUID); err != nil {
		s.sendError(sub, err, "")
		return
	}
	s.hub.SwitchSession(sub, sessionUID)
	s.sendJSON(sub, SubscribedMessage{Type: "subscribed", SessionID: sessionUID})
	s.sendSessionState(sub, sessionUID)
}

// handleCommand runs the full pipeline: envelope validation, rate limiting,
// idempotency, locking, authorization, catch-up tick, apply, commit, ack,
// broadcast.
func (s *Server) handleCommand(sub *subscriber, limiter *rateLimiter, msg *ClientMessage, frameBytes int) {
	now := time.Now()
	if msg.CommandID == "" || len(msg.CommandID) > maxCommandIDLength {
		s.sendError(sub, errValidation("commandId must be 1..%d characters", maxCommandIDLength), msg.CommandID)
		return
	}
	if msg.Name == "" || len(msg.Name) > maxCommandNameLength {
		s.sendError(sub, errValidation("name must be 1..%d characters", maxCommandNameLength), msg.CommandID)
		return
	}
	if frameBytes > maxPayloadBytes {
		s.sendError(sub, errValidation("Command payload exceeds %d bytes", maxPayloadBytes), msg.CommandID)
		return
	}
	if !limiter.Allow(now) {
		s.sendError(sub, errRateLimited(1), msg.CommandID)
		return
	}

	sessionUID := msg.SessionID
	if sessionUID == "" {
		sessionUID = sub.sessionUID
	}
	if sessionUID == "" {
		s.sendError(sub, errValidation("sessionId is required"), msg.CommandID)
		return
	}

	if ack, hit := s.idempotency.Get(sub.userUID, sessionUID, msg.CommandID, now); hit {
		ack.Status = "duplicate"
		ack.ServerTime = serverTime(now)
		s.telemetry.RecordCommand("duplicate")
		s.sendJSON(sub, ack)
		return
	}

	unlock := s.locks.Lock(sessionUID)
	ack, skipEcho, err := s.applyCommand(sub, msg, sessionUID, now)
	unlock()

	if err != nil {
		s.telemetry.RecordCommand("rejected")
		s.sendError(sub, err, msg.CommandID)
		return
	}
	s.telemetry.RecordCommand("applied")
	s.idempotency.Put(sub.userUID, sessionUID, msg.CommandID, ack, now)
	s.sendJSON(sub, ack)

	// State fan-out: everyone watching the session, minus the sender, who
	// already got an echo unless the command opted out.
	if frame := s.marshalSessionState(sessionUID); frame != nil {
		if !skipEcho {
			sub.send(frame, s.cfg.WriteWait)
		}
		s.hub.Broadcast(sessionUID, frame, sub.id)
	}
}

// applyCommand holds the session lock and performs authorization, the
// catch-up tick, the handler itself, and the commit. The whole unit runs in
// one database transaction so a failing handler also rolls back the rows the
// catch-up tick wrote.
func (s *Server) applyCommand(sub *subscriber, msg *ClientMessage, sessionUID string, now time.Time) (AckMessage, bool, error) {
	var skipEcho bool
	err := s.store.Transaction(func(store *Store) error {
		user, err := store.UserByUID(sub.userUID)
		if err != nil {
			return err
		}
		roles := user.UserRoles()
		spec, err := authorizeCommand(msg.Name, roles)
		if err != nil {
			return err
		}
		if err := assertSessionScope(roles, sub.sessionUID, sessionUID); err != nil {
			return err
		}

		session, err := store.SessionByUID(sessionUID)
		if err != nil {
			return err
		}
		snap, err := store.CurrentSnapshot(sessionUID)
		if err != nil {
			return err
		}
		data, err := decodeSnapshotData(snap.SnapshotData)
		if err != nil {
			return err
		}

		tickStart := time.Now()
		advanced, err := runLessonTick(store, s.cfg, session, snap, data, now)
		if err != nil {
			return err
		}
		if advanced {
			s.telemetry.RecordTick(time.Since(tickStart))
		}

		ctx := &commandContext{
			store:       store,
			cfg:         s.cfg,
			user:        user,
			roles:       roles,
			session:     session,
			snap:        snap,
			data:        data,
			now:         now,
			transcriber: s.transcriber,
			scenes:      s.scenes,
		}
		if err := spec.handler(ctx, msg.Payload); err != nil {
			return err
		}
		skipEcho = ctx.skipEcho
		return commitSnapshot(store, session, snap, data)
	})
	if err != nil {
		return AckMessage{}, false, err
	}
	return AckMessage{
		Type:       "ack",
		CommandID:  msg.CommandID,
		Status:     "applied",
		Command:    msg.Name,
		SessionID:  sessionUID,
		ServerTime: serverTime(now),
	}, skipEcho, nil
}

func commitSnapshot(store *Store, session *SimulationSession, snap *SessionStateSnapshot, data *SnapshotData) error {
	raw, err := encodeSnapshotData(data)
	if err != nil {
		return err
	}
	snap.SnapshotData = raw
	snap.SchemaVersion = snapshotSchemaVersion
	if err := store.SaveSnapshot(snap, true); err != nil {
		return err
	}
	return store.SaveSession(session)
}

// idleTick advances a session while its subscribers are quiet. Like command
// application, the tick and its commit share one transaction.
func (s *Server) idleTick(sessionUID string) {
	unlock := s.locks.Lock(sessionUID)
	defer unlock()

	advanced := false
	err := s.store.Transaction(func(store *Store) error {
		session, err := store.SessionByUID(sessionUID)
		if err != nil {
			return err
		}
		snap, err := store.CurrentSnapshot(sessionUID)
		if err != nil {
			return err
		}
		data, err := decodeSnapshotData(snap.SnapshotData)
		if err != nil {
			return err
		}
		start := time.Now()
		advanced, err = runLessonTick(store, s.cfg, session, snap, data, start)
		if err != nil || !advanced {
			return err
		}
		s.telemetry.RecordTick(time.Since(start))
		return commitSnapshot(store, session, snap, data)
	})
	if err != nil {
		logger.Error().Err(err).Str("session", sessionUID).Msg("idle tick failed")
		return
	}
	if !advanced {
		return
	}
	if frame := s.marshalSessionState(sessionUID); frame != nil {
		s.hub.Broadcast(sessionUID, frame, 0)
	}
}

// marshalSessionState builds and marshals the session_state frame once so
// every subscriber receives identical bytes.
func (s *Server) marshalSessionState(sessionUID string) []byte {
	session, err := s.store.SessionByUID(sessionUID)
	if err != nil {
		return nil
	}
	snap, err := s.store.CurrentSnapshot(sessionUID)
	if err != nil {
		return nil
	}
	data, err := decodeSnapshotData(snap.SnapshotData)
	if err != nil {
		return nil
	}
	data.ensureRadioRuntime()
	bundle, err := buildStateBundle(s.store, session, snap, data)
	if err != nil {
		return nil
	}
	frame, err := json.Marshal(SessionStateMessage{
		Type:      "session_state",
		SessionID: sessionUID,
		Bundle:    bundle,
	})
	if err != nil {
		logger.Error().Err(err).Msg("marshal session_state failed")
		return nil
	}
	return frame
}

func (s *Server) sendSessionState(sub *subscriber, sessionUID string) {
	if frame := s.marshalSessionState(sessionUID); frame != nil {
		sub.send(frame, s.cfg.WriteWait)
	}
}

func (s *Server) sendJSON(sub *subscriber, v any) {
	frame, err := json.Marshal(v)
	if err != nil {
		logger.Error().Err(err).Msg("marshal frame failed")
		return
	}
	sub.send(frame, s.cfg.WriteWait)
}

// sendError reports a failure without dropping the connection. Command
// errors keep their HTTP-style status, anything else is an internal error.
func (s *Server) sendError(sub *subscriber, err error, commandID string) {
	msg := ErrorMessage{
		Type:      "error",
		Detail:    "Internal server error",
		Code:      "INTERNAL_ERROR",
		Status:    500,
		CommandID: commandID,
	}
	if cmdErr, ok := asCommandError(err); ok {
		msg.Detail = cmdErr.Detail
		msg.Code = "HTTP_ERROR"
		msg.Status = cmdErr.Status
	} else {
		logger.Error().Err(err).Msg("command failed")
	}
	s.sendJSON(sub, msg)
}
