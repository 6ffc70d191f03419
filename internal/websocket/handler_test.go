package websocket

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LaxmiNarayana31/ChatWithDB/internal/chat"
	"github.com/LaxmiNarayana31/ChatWithDB/internal/db"
	"github.com/LaxmiNarayana31/ChatWithDB/internal/messages"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAsker struct {
	events []chat.Event
	answer *chat.Answer
	err    error
	// block waits for cancellation before returning
	block bool
}

func (f *fakeAsker) AskStream(ctx context.Context, _ *chat.Connection, question string, emit func(chat.Event) error) (*chat.Answer, error) {
	for _, e := range f.events {
		if err := emit(e); err != nil {
			return f.answer, err
		}
	}
	if f.block {
		<-ctx.Done()
		return nil, fmt.Errorf("markdown stream: %w", ctx.Err())
	}
	return f.answer, f.err
}

type record struct {
	sessionID string
	schemaKey string
	question  string
	err       error
}

type fakeBinding struct {
	err error

	mu      sync.Mutex
	records []record
	done    chan struct{}
}

func newBinding() *fakeBinding {
	return &fakeBinding{done: make(chan struct{}, 4)}
}

func (b *fakeBinding) Bind(c *gin.Context) (string, *chat.Connection, error) {
	if b.err != nil {
		return "", nil, b.err
	}
	return "sess-1", &chat.Connection{DBType: db.DatabaseTypeSQLite, Database: "shop.db", SchemaKey: "k.sql", Tables: []string{"orders"}}, nil
}

func (b *fakeBinding) Record(_ context.Context, sessionID string, conn *chat.Connection, question string, _ *chat.Answer, askErr error) error {
	b.mu.Lock()
	b.records = append(b.records, record{sessionID: sessionID, schemaKey: conn.SchemaKey, question: question, err: askErr})
	b.mu.Unlock()
	b.done <- struct{}{}
	return nil
}

func startServer(t *testing.T, asker Asker, binding Binding) (string, *Hub) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil)
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/ws/ask", NewHandler(ctx, hub, asker, binding, []string{"*"}, nil).HandleWebSocket)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/ask", hub
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))

	var hello map[string]interface{}
	require.NoError(t, ws.ReadJSON(&hello))
	require.Equal(t, messages.TypeConnected, hello["type"])
	return ws
}

func readUntil(t *testing.T, ws *websocket.Conn, last string) []map[string]interface{} {
	t.Helper()
	var frames []map[string]interface{}
	for {
		var frame map[string]interface{}
		require.NoError(t, ws.ReadJSON(&frame))
		frames = append(frames, frame)
		if frame["type"] == last {
			return frames
		}
	}
}

func TestAskStreamsStages(t *testing.T) {
	answer := &chat.Answer{Question: "orders?", SQL: "SELECT * FROM orders", Summary: "## Orders"}
	asker := &fakeAsker{
		answer: answer,
		events: []chat.Event{
			{Stage: chat.StageSchema},
			{Stage: chat.StageSQL, SQL: "SELECT * FROM orders"},
			{Stage: chat.StageSummary, Content: "## Orders"},
			{Stage: chat.StageDone, Answer: answer},
		},
	}
	binding := newBinding()
	url, _ := startServer(t, asker, binding)
	ws := dial(t, url)

	require.NoError(t, ws.WriteJSON(map[string]interface{}{"type": "ask", "id": "q1", "data": map[string]string{"question": "orders?"}}))
	frames := readUntil(t, ws, string(chat.StageDone))

	var types []string
	for _, f := range frames {
		types = append(types, f["type"].(string))
		assert.Equal(t, "q1", f["id"])
	}
	assert.Equal(t, []string{"schema_loaded", "sql_generated", "summary_chunk", "done"}, types)
	assert.Equal(t, "SELECT * FROM orders", frames[1]["data"].(map[string]interface{})["sql"])

	<-binding.done
	binding.mu.Lock()
	defer binding.mu.Unlock()
	require.Len(t, binding.records, 1)
	assert.Equal(t, record{sessionID: "sess-1", schemaKey: "k.sql", question: "orders?"}, binding.records[0])
}

func TestAskUnsafeQuerySendsError(t *testing.T) {
	asker := &fakeAsker{
		answer: &chat.Answer{SQL: "DROP TABLE orders"},
		err:    fmt.Errorf("%w: contains DROP", chat.ErrUnsafeQuery),
	}
	binding := newBinding()
	url, _ := startServer(t, asker, binding)
	ws := dial(t, url)

	require.NoError(t, ws.WriteJSON(map[string]interface{}{"type": "ask", "data": map[string]string{"question": "drop it"}}))
	frames := readUntil(t, ws, messages.TypeError)
	data := frames[len(frames)-1]["data"].(map[string]interface{})
	assert.Equal(t, chat.CodeUnsafeQuery, data["code"])
	assert.Equal(t, "Unsafe query detected. Execution blocked.", data["error"])
	assert.Equal(t, "DROP TABLE orders", data["sql"])

	<-binding.done
	binding.mu.Lock()
	defer binding.mu.Unlock()
	assert.ErrorIs(t, binding.records[0].err, chat.ErrUnsafeQuery)
}

func TestPingAndBadFrames(t *testing.T) {
	url, _ := startServer(t, &fakeAsker{}, newBinding())
	ws := dial(t, url)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping","id":"p"}`)))
	frames := readUntil(t, ws, messages.TypePong)
	assert.Equal(t, "p", frames[0]["id"])

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`garbage`)))
	frames = readUntil(t, ws, messages.TypeError)
	assert.Equal(t, messages.CodeBadRequest, frames[0]["data"].(map[string]interface{})["code"])

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"shout"}`)))
	frames = readUntil(t, ws, messages.TypeError)
	assert.Contains(t, frames[0]["data"].(map[string]interface{})["error"], "shout")
}

func TestCancelStopsQuestion(t *testing.T) {
	asker := &fakeAsker{block: true, events: []chat.Event{{Stage: chat.StageSchema}}}
	binding := newBinding()
	url, _ := startServer(t, asker, binding)
	ws := dial(t, url)

	require.NoError(t, ws.WriteJSON(map[string]interface{}{"type": "ask", "id": "q1", "data": map[string]string{"question": "slow"}}))
	readUntil(t, ws, string(chat.StageSchema))

	require.NoError(t, ws.WriteJSON(map[string]interface{}{"type": "ask", "id": "q2", "data": map[string]string{"question": "again"}}))
	frames := readUntil(t, ws, messages.TypeError)
	assert.Equal(t, messages.CodeBusy, frames[0]["data"].(map[string]interface{})["code"])

	require.NoError(t, ws.WriteJSON(map[string]string{"type": "cancel"}))
	frames = readUntil(t, ws, messages.TypeError)
	assert.Equal(t, chat.CodeCancelled, frames[0]["data"].(map[string]interface{})["code"])
	<-binding.done
}

func TestUpgradeRequiresConnectedSession(t *testing.T) {
	binding := newBinding()
	binding.err = chat.ErrNotConnected
	url, _ := startServer(t, &fakeAsker{}, binding)

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHubCountsConnections(t *testing.T) {
	url, hub := startServer(t, &fakeAsker{}, newBinding())
	ws := dial(t, url)
	assert.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	ws.Close()
	assert.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://app.test/"})
	req := httptest.NewRequest(http.MethodGet, "http://api.test/ws/ask", nil)
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://app.test")
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://api.test")
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://evil.test")
	assert.False(t, check(req))

	assert.True(t, originChecker(nil)(req))
	assert.True(t, originChecker([]string{"*"})(req))
}
