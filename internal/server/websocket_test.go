package server

import (
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/Telesphore-Uwabera/EcoRwanda-Conservation-Portal-sub001/internal/auth"
	"github.com/Telesphore-Uwabera/EcoRwanda-Conservation-Portal-sub001/internal/frame"
	"github.com/Telesphore-Uwabera/EcoRwanda-Conservation-Portal-sub001/internal/hub"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func signToken(t *testing.T, secret string, subject string) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Unix(),
		"aud": auth.Audience,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secret))
	assert.NoError(t, err)

	return tokenString
}

func readFrame(t *testing.T, conn *websocket.Conn) frame.Frame {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, raw, err := conn.ReadMessage()
	assert.NoError(t, err)

	f, err := frame.Decode(raw)
	assert.NoError(t, err)

	return f
}

func TestWebSocketServer(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	registry := hub.NewInMemoryRegistry(logger)
	authenticator := auth.NewAuthenticator("test-secret", nil)
	upgrader := &websocket.Upgrader{}

	wsServer := NewWebSocketServer(logger, upgrader, authenticator, registry, 16)

	mainRouter := mux.NewRouter()
	wsServer.Register(mainRouter)

	server := httptest.NewServer(mainRouter)
	defer server.Close()

	wsURL := func(token string) string {
		u, _ := url.Parse(server.URL)
		u.Scheme = "ws"
		u.Path = "/ws"
		if token != "" {
			u.RawQuery = "token=" + token
		}

		return u.String()
	}

	t.Run("authenticated connect receives ack and notifications", func(t *testing.T) {
		tokenString := signToken(t, "test-secret", "ranger-1")

		conn, _, err := websocket.DefaultDialer.Dial(wsURL(tokenString), nil)
		assert.NoError(t, err)
		defer conn.Close()

		ack := readFrame(t, conn)
		assert.Equal(t, frame.TypeConnection, ack.Type)
		assert.NotEmpty(t, ack.Message)

		registry.Notify("ranger-1", map[string]any{"reportId": "r-12"})

		notification := readFrame(t, conn)
		assert.Equal(t, frame.TypeNotification, notification.Type)
		assert.Equal(t, map[string]any{"reportId": "r-12"}, notification.Data)

		registry.Broadcast("system maintenance")

		system := readFrame(t, conn)
		assert.Equal(t, frame.TypeSystem, system.Type)
		assert.Equal(t, "system maintenance", system.Message)
	})

	t.Run("missing token is rejected with policy violation", func(t *testing.T) {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL(""), nil)
		assert.NoError(t, err)
		defer conn.Close()

		conn.SetReadDeadline(time.Now().Add(time.Second))
		_, _, err = conn.ReadMessage()
		assert.Error(t, err)
		assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation))
	})

	t.Run("invalid token is rejected with policy violation", func(t *testing.T) {
		tokenString := signToken(t, "wrong-secret", "ranger-1")

		conn, _, err := websocket.DefaultDialer.Dial(wsURL(tokenString), nil)
		assert.NoError(t, err)
		defer conn.Close()

		conn.SetReadDeadline(time.Now().Add(time.Second))
		_, _, err = conn.ReadMessage()
		assert.Error(t, err)
		assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation))
	})

	t.Run("reconnect replaces the previous connection", func(t *testing.T) {
		tokenString := signToken(t, "test-secret", "ranger-2")

		first, _, err := websocket.DefaultDialer.Dial(wsURL(tokenString), nil)
		assert.NoError(t, err)
		defer first.Close()

		ack := readFrame(t, first)
		assert.Equal(t, frame.TypeConnection, ack.Type)

		second, _, err := websocket.DefaultDialer.Dial(wsURL(tokenString), nil)
		assert.NoError(t, err)
		defer second.Close()

		ack = readFrame(t, second)
		assert.Equal(t, frame.TypeConnection, ack.Type)

		registry.Notify("ranger-2", "for the new connection")

		notification := readFrame(t, second)
		assert.Equal(t, frame.TypeNotification, notification.Type)

		// The replaced connection must not receive anything.
		first.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		_, _, err = first.ReadMessage()
		assert.Error(t, err)
	})

	t.Run("stale close does not evict the newer connection", func(t *testing.T) {
		tokenString := signToken(t, "test-secret", "ranger-3")

		first, _, err := websocket.DefaultDialer.Dial(wsURL(tokenString), nil)
		assert.NoError(t, err)

		ack := readFrame(t, first)
		assert.Equal(t, frame.TypeConnection, ack.Type)

		second, _, err := websocket.DefaultDialer.Dial(wsURL(tokenString), nil)
		assert.NoError(t, err)
		defer second.Close()

		ack = readFrame(t, second)
		assert.Equal(t, frame.TypeConnection, ack.Type)

		// The old channel's close event fires after the reconnect.
		first.Close()
		time.Sleep(100 * time.Millisecond)

		registry.Notify("ranger-3", "still delivered")

		notification := readFrame(t, second)
		assert.Equal(t, frame.TypeNotification, notification.Type)
		assert.Equal(t, "still delivered", notification.Data)
	})
}
