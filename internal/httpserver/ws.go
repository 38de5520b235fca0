// internal/httpserver/ws.go
//
// Websocket transport for multiplayer lobbies.
// Responsibilities:
//   - Authenticate the upgrade with a player token for this lobby.
//   - readPump: decode inbound messages into match.Commands and submit them.
//   - writePump: relay the player's subscription (state, chat, kicked) and
//     command errors, plus keepalive pings.
//   - Pongs count as activity so idle-but-connected players are not swept.
//
// A dropped connection does not leave the match; the player may reconnect
// with the same token until the inactivity sweep removes them.

package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/reelfling/internal/match"
	"github.com/robalobadob/reelfling/internal/puzzle"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	submitTimeout  = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Identity comes from the signed token, not the page origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// inbound is one client message. Only the fields its type uses are read.
type inbound struct {
	Type       string `json:"type"` // ready | configure | start | guess | hint | kick | chat | leave | play_again
	Ready      *bool  `json:"ready,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
	Rounds     int    `json:"rounds,omitempty"`
	Genre      string `json:"genre,omitempty"`
	Industry   string `json:"industry,omitempty"`
	Round      int    `json:"round,omitempty"`
	Letter     string `json:"letter,omitempty"`
	Target     string `json:"target,omitempty"`
	Text       string `json:"text,omitempty"`
}

var errUnknownMessage = errors.New("httpserver: unknown message type")

// command maps a client message onto the lobby's command set.
func (m inbound) command(playerID string) (match.Command, error) {
	cmd := match.Command{PlayerID: playerID}
	switch m.Type {
	case "ready":
		cmd.Kind = match.CmdReady
		cmd.Ready = m.Ready == nil || *m.Ready
	case "configure":
		d, err := puzzle.ParseDifficulty(m.Difficulty)
		if err != nil {
			return cmd, err
		}
		cmd.Kind = match.CmdConfigure
		cmd.Settings = match.Settings{Difficulty: d, TotalRounds: m.Rounds, Genre: m.Genre, Industry: m.Industry}
	case "start":
		cmd.Kind = match.CmdStart
	case "guess":
		cmd.Kind = match.CmdGuess
		cmd.Round = m.Round
		// Anything but one character becomes a rune the engine ignores.
		if utf8.RuneCountInString(m.Letter) == 1 {
			cmd.Letter, _ = utf8.DecodeRuneInString(m.Letter)
		}
	case "hint":
		cmd.Kind = match.CmdHint
		cmd.Round = m.Round
	case "kick":
		cmd.Kind = match.CmdKick
		cmd.Target = m.Target
	case "chat":
		cmd.Kind = match.CmdChat
		cmd.Text = m.Text
	case "leave":
		cmd.Kind = match.CmdLeave
	case "play_again":
		cmd.Kind = match.CmdPlayAgain
	default:
		return cmd, errUnknownMessage
	}
	return cmd, nil
}

// wsClient is one player's connection to a lobby.
type wsClient struct {
	conn     *websocket.Conn
	lobby    *match.Lobby
	sub      *match.Subscription
	playerID string
	errs     chan match.Outbound // command errors for this connection only
}

// handleLobbyWS upgrades GET /lobby/{id}/ws?token=.
func (s *Server) handleLobbyWS(w http.ResponseWriter, r *http.Request) {
	id := strings.ToUpper(chi.URLParam(r, "id"))
	claims, err := s.parsePlayerToken(bearerOrQuery(r))
	if err != nil || claims.LobbyID != id {
		http.Error(w, `{"error":"invalid_token"}`, http.StatusUnauthorized)
		return
	}
	l, err := s.Lobbies.Get(id)
	if err != nil {
		http.Error(w, `{"error":"lobby_not_found"}`, http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Str("lobby", id).Msg("websocket upgrade failed")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	sub, err := l.Subscribe(ctx, claims.PlayerID)
	cancel()
	if err != nil {
		// Kicked, swept or never joined.
		_ = conn.WriteJSON(match.Outbound{Type: "error", Error: match.ErrorCode(err)})
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, match.ErrorCode(err)))
		_ = conn.Close()
		return
	}
	log.Debug().Str("lobby", id).Str("player", claims.PlayerID).Msg("player connected")

	c := &wsClient{
		conn:     conn,
		lobby:    l,
		sub:      sub,
		playerID: claims.PlayerID,
		errs:     make(chan match.Outbound, 4),
	}
	go c.writePump()
	c.readPump()
}

func (c *wsClient) submit(cmd match.Command) error {
	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()
	return c.lobby.Submit(ctx, cmd)
}

// reply queues an error for this client, dropping it if the writer is behind.
func (c *wsClient) reply(err error) {
	select {
	case c.errs <- match.Outbound{Type: "error", Error: match.ErrorCode(err)}:
	default:
	}
}

func (c *wsClient) readPump() {
	defer func() {
		// Closing the subscription stops writePump, which closes the conn.
		c.lobby.Unsubscribe(c.sub)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		_ = c.submit(match.Command{Kind: match.CmdTouch, PlayerID: c.playerID})
		return nil
	})

	for {
		var msg inbound
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("player", c.playerID).Msg("websocket closed")
			}
			return
		}
		cmd, err := msg.command(c.playerID)
		if err != nil {
			c.reply(err)
			continue
		}
		if err := c.submit(cmd); err != nil {
			if errors.Is(err, match.ErrLobbyClosed) {
				return
			}
			c.reply(err)
		}
		if cmd.Kind == match.CmdLeave {
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.sub.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case msg := <-c.errs:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
