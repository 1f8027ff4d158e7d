package connection

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWSConn_WriteReadClose(t *testing.T) {
	serverConns := make(chan *WSConn, 1)
	upgrader := NewUpgrader()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverConns <- NewWSConn(c, time.Second)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer client.Close()

	server := <-serverConns
	assert.True(t, server.IsOpen())

	require.NoError(t, server.Write([]byte(`{"type":"dispatch"}`)))
	_, msg, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, `{"type":"dispatch"}`, string(msg))

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"type":"status"}`)))
	got, err := server.Read()
	require.NoError(t, err)
	assert.Equal(t, `{"type":"status"}`, string(got))

	require.NoError(t, server.Close())
	assert.False(t, server.IsOpen())
	assert.ErrorIs(t, server.Write([]byte("late")), ErrClosed)
	assert.NoError(t, server.Close())

	_, _, err = client.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}
