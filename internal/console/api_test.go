// ABOUTME: HTTP API tests exercising handlers against an in-memory store
// ABOUTME: Covers conversation/message routes, CRUD resources, and the SSE stream

package console

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waplane/waplane/internal/bot"
	"github.com/waplane/waplane/internal/config"
	"github.com/waplane/waplane/internal/conversation"
	"github.com/waplane/waplane/internal/gateway"
	"github.com/waplane/waplane/internal/status"
	"github.com/waplane/waplane/internal/store"
	"github.com/waplane/waplane/internal/webhook"
)

type stubGateway struct {
	mu    sync.Mutex
	sends int
	fail  bool
}

func (g *stubGateway) SendText(ctx context.Context, inboxID, to, clientRef, content string) (*gateway.SendResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sends++
	if g.fail {
		return nil, fmt.Errorf("%w: provider unavailable", gateway.ErrSendFailed)
	}
	return &gateway.SendResult{MessageID: fmt.Sprintf("wamid.%d", g.sends)}, nil
}

func (g *stubGateway) SendMedia(ctx context.Context, inboxID, to, clientRef, contentType, mediaURL, caption string) (*gateway.SendResult, error) {
	return g.SendText(ctx, inboxID, to, clientRef, caption)
}

func newTestConsole(t *testing.T) (*Console, *stubGateway) {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	cfg := &config.Config{}
	cfg.Account.ID = "acct-1"

	gw := &stubGateway{}
	broadcaster := conversation.NewMemoryBroadcaster(logger)
	dispatcher := webhook.NewDispatcher(s, []byte("test-key"), time.Second, []time.Duration{time.Millisecond}, logger)
	svc := conversation.NewService(s, gw, bot.NewHTTPForwarder(time.Second, logger), dispatcher, broadcaster, "acct-1", logger)

	c := &Console{
		config:      cfg,
		store:       s,
		service:     svc,
		broadcaster: broadcaster,
		dispatcher:  dispatcher,
		logger:      logger,
	}
	t.Cleanup(func() {
		dispatcher.Wait()
		broadcaster.Close()
	})
	return c, gw
}

func newTestServer(t *testing.T) (*httptest.Server, *Console, *stubGateway) {
	t.Helper()
	c, gw := newTestConsole(t)
	mux := http.NewServeMux()
	c.registerAPIRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, c, gw
}

func seedConversation(t *testing.T, c *Console) *store.Conversation {
	t.Helper()
	msg, err := c.service.ReceiveInbound(context.Background(), "inbox-1", "+15550001111", "Ada", &conversation.Draft{
		ContentType: store.ContentText,
		Content:     "Hello",
		ExternalID:  "wamid.seed." + t.Name(),
	})
	require.NoError(t, err)
	conv, err := c.store.GetConversation(context.Background(), msg.ConversationID)
	require.NoError(t, err)
	return conv
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestListConversations(t *testing.T) {
	srv, c, _ := newTestServer(t)
	conv := seedConversation(t, c)

	resp, err := http.Get(srv.URL + "/api/conversations?inbox_id=inbox-1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Conversations []ConversationResponse `json:"conversations"`
	}
	decode(t, resp, &body)
	require.Len(t, body.Conversations, 1)
	assert.Equal(t, conv.ID, body.Conversations[0].ID)
	assert.Equal(t, "Ada", body.Conversations[0].ContactName)
	assert.Equal(t, 1, body.Conversations[0].UnreadCount)
	assert.Equal(t, "Hello", body.Conversations[0].LastMessagePreview)
}

func TestListConversations_OtherInboxExcluded(t *testing.T) {
	srv, c, _ := newTestServer(t)
	seedConversation(t, c)

	resp, err := http.Get(srv.URL + "/api/conversations?inbox_id=inbox-other")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Conversations []ConversationResponse `json:"conversations"`
	}
	decode(t, resp, &body)
	assert.Empty(t, body.Conversations)
}

func TestGetConversation_NotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/conversations/no-such-id")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSendMessage(t *testing.T) {
	srv, c, gw := newTestServer(t)
	conv := seedConversation(t, c)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/conversations/"+conv.ID+"/messages", SendMessageRequest{Content: "On my way"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var msg MessageResponse
	decode(t, resp, &msg)
	assert.Equal(t, status.DirectionOutgoing, msg.Direction)
	assert.Equal(t, status.Sent, msg.Status)
	assert.Equal(t, store.SenderHuman, msg.SenderKind)

	gw.mu.Lock()
	defer gw.mu.Unlock()
	assert.Equal(t, 1, gw.sends)
}

func TestSendMessage_EmptyContent(t *testing.T) {
	srv, c, gw := newTestServer(t)
	conv := seedConversation(t, c)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/conversations/"+conv.ID+"/messages", SendMessageRequest{Content: "   "})
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	gw.mu.Lock()
	defer gw.mu.Unlock()
	assert.Zero(t, gw.sends)
}

func TestSendMessage_GatewayRejection(t *testing.T) {
	srv, c, gw := newTestServer(t)
	conv := seedConversation(t, c)
	gw.fail = true

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/conversations/"+conv.ID+"/messages", SendMessageRequest{Content: "hi"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var msg MessageResponse
	decode(t, resp, &msg)
	assert.Equal(t, status.Failed, msg.Status)
}

func TestCreateNote(t *testing.T) {
	srv, c, gw := newTestServer(t)
	conv := seedConversation(t, c)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/conversations/"+conv.ID+"/notes", NoteRequest{Content: "VIP customer"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var msg MessageResponse
	decode(t, resp, &msg)
	assert.True(t, msg.Private)
	assert.Equal(t, status.Sent, msg.Status)

	gw.mu.Lock()
	defer gw.mu.Unlock()
	assert.Zero(t, gw.sends)
}

func TestListMessages(t *testing.T) {
	srv, c, _ := newTestServer(t)
	conv := seedConversation(t, c)
	_, err := c.service.SendOutbound(context.Background(), conv.ID, &conversation.Draft{Content: "reply"}, store.SenderHuman, "")
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/api/conversations/" + conv.ID + "/messages")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Messages []MessageResponse `json:"messages"`
	}
	decode(t, resp, &body)
	require.Len(t, body.Messages, 2)
	assert.Equal(t, status.DirectionIncoming, body.Messages[0].Direction)
	assert.Equal(t, status.DirectionOutgoing, body.Messages[1].Direction)
}

func TestSetConversationStatus(t *testing.T) {
	srv, c, _ := newTestServer(t)
	conv := seedConversation(t, c)

	resp := doJSON(t, http.MethodPut, srv.URL+"/api/conversations/"+conv.ID+"/status", StatusRequest{Status: store.ConversationResolved})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body ConversationResponse
	decode(t, resp, &body)
	assert.Equal(t, store.ConversationResolved, body.Status)
}

func TestSetConversationStatus_Invalid(t *testing.T) {
	srv, c, _ := newTestServer(t)
	conv := seedConversation(t, c)

	resp := doJSON(t, http.MethodPut, srv.URL+"/api/conversations/"+conv.ID+"/status", StatusRequest{Status: "archived"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAssignAndUnassignBot(t *testing.T) {
	srv, c, _ := newTestServer(t)
	conv := seedConversation(t, c)

	b := &store.AgentBot{AccountID: "acct-1", Name: "support", OutgoingURL: "http://bot.example/hook"}
	require.NoError(t, c.store.CreateAgentBot(context.Background(), b))

	resp := doJSON(t, http.MethodPut, srv.URL+"/api/conversations/"+conv.ID+"/bot", AssignBotRequest{BotID: b.ID})
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	got, err := c.store.GetConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.AssignedBotID)

	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/conversations/"+conv.ID+"/bot", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	got, err = c.store.GetConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Empty(t, got.AssignedBotID)
}

func TestAssignBot_Unknown(t *testing.T) {
	srv, c, _ := newTestServer(t)
	conv := seedConversation(t, c)

	resp := doJSON(t, http.MethodPut, srv.URL+"/api/conversations/"+conv.ID+"/bot", AssignBotRequest{BotID: "ghost"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteMessage(t *testing.T) {
	srv, c, _ := newTestServer(t)
	conv := seedConversation(t, c)
	msgs, err := c.store.ListMessages(context.Background(), conv.ID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	resp := doJSON(t, http.MethodDelete, srv.URL+"/api/conversations/"+conv.ID+"/messages/"+msgs[0].ID, nil)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	got, err := c.store.GetMessage(context.Background(), msgs[0].ID)
	require.NoError(t, err)
	assert.NotNil(t, got.DeletedAt)
}

func TestDeleteMessage_WrongConversation(t *testing.T) {
	srv, c, _ := newTestServer(t)
	conv := seedConversation(t, c)
	msgs, err := c.store.ListMessages(context.Background(), conv.ID, 10)
	require.NoError(t, err)

	resp := doJSON(t, http.MethodDelete, srv.URL+"/api/conversations/other-conv/messages/"+msgs[0].ID, nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBotCRUD(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/bots", BotRequest{Name: "faq-bot", OutgoingURL: "http://bot.example/hook", AccessToken: "secret"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created BotResponse
	decode(t, resp, &created)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, store.BotActive, created.Status)

	resp = doJSON(t, http.MethodPut, srv.URL+"/api/bots/"+created.ID, BotRequest{Status: store.BotPaused})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated BotResponse
	decode(t, resp, &updated)
	assert.Equal(t, store.BotPaused, updated.Status)

	listResp, err := http.Get(srv.URL + "/api/bots")
	require.NoError(t, err)
	var list struct {
		Bots []BotResponse `json:"bots"`
	}
	decode(t, listResp, &list)
	require.Len(t, list.Bots, 1)

	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/bots/"+created.ID, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestBotResponseOmitsToken(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/bots", BotRequest{Name: "faq-bot", OutgoingURL: "http://bot.example/hook", AccessToken: "secret"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	defer resp.Body.Close()

	var raw map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	_, present := raw["access_token"]
	assert.False(t, present)
}

func TestWebhookCRUD(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/webhooks", WebhookRequest{
		URL:    "https://crm.example/hook",
		Events: []string{webhook.EventMessageReceived},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created WebhookResponse
	decode(t, resp, &created)
	assert.True(t, created.Active)

	inactive := false
	resp = doJSON(t, http.MethodPut, srv.URL+"/api/webhooks/"+created.ID, WebhookRequest{Active: &inactive})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated WebhookResponse
	decode(t, resp, &updated)
	assert.False(t, updated.Active)

	// A deactivated subscription stays listed so it can be reactivated.
	resp, err := http.Get(srv.URL + "/api/webhooks")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listed struct {
		Webhooks []WebhookResponse `json:"webhooks"`
	}
	decode(t, resp, &listed)
	require.Len(t, listed.Webhooks, 1)
	assert.Equal(t, created.ID, listed.Webhooks[0].ID)
	assert.False(t, listed.Webhooks[0].Active)

	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/webhooks/"+created.ID, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestWebhookCreate_RequiresEvents(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/webhooks", WebhookRequest{URL: "https://crm.example/hook"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebhookDeliveries(t *testing.T) {
	srv, c, _ := newTestServer(t)

	wh := &store.Webhook{AccountID: "acct-1", URL: "https://crm.example/hook", Events: []string{webhook.EventMessageReceived}, Active: true}
	require.NoError(t, c.store.CreateWebhook(context.Background(), wh))
	d := &store.WebhookDelivery{WebhookID: wh.ID, EventType: webhook.EventMessageReceived, Payload: "{}", Status: store.DeliverySuccess, ResponseCode: 200, AttemptCount: 1}
	require.NoError(t, c.store.CreateDelivery(context.Background(), d))

	resp, err := http.Get(srv.URL + "/api/webhooks/" + wh.ID + "/deliveries")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Deliveries []DeliveryResponse `json:"deliveries"`
	}
	decode(t, resp, &body)
	require.Len(t, body.Deliveries, 1)
	assert.Equal(t, store.DeliverySuccess, body.Deliveries[0].Status)
	assert.Equal(t, 200, body.Deliveries[0].ResponseCode)
}

func TestLabelCRUDAndAttachment(t *testing.T) {
	srv, c, _ := newTestServer(t)
	conv := seedConversation(t, c)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/labels", LabelRequest{Name: "billing", Color: "#ff0000"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var label LabelResponse
	decode(t, resp, &label)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/labels", LabelRequest{Name: "Billing"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	attach := doJSON(t, http.MethodPut, srv.URL+"/api/conversations/"+conv.ID+"/labels/"+label.ID, nil)
	attach.Body.Close()
	require.Equal(t, http.StatusNoContent, attach.StatusCode)

	listResp, err := http.Get(srv.URL + "/api/conversations/" + conv.ID + "/labels")
	require.NoError(t, err)
	var list struct {
		Labels []LabelResponse `json:"labels"`
	}
	decode(t, listResp, &list)
	require.Len(t, list.Labels, 1)
	assert.Equal(t, "billing", list.Labels[0].Name)

	detach := doJSON(t, http.MethodDelete, srv.URL+"/api/conversations/"+conv.ID+"/labels/"+label.ID, nil)
	detach.Body.Close()
	require.Equal(t, http.StatusNoContent, detach.StatusCode)
}

func TestCannedCRUD(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/canned", CannedRequest{Shortcut: "/hours", Content: "We are open 9-5."})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created CannedResponseBody
	decode(t, resp, &created)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/canned", CannedRequest{Shortcut: "/HOURS", Content: "dup"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	listResp, err := http.Get(srv.URL + "/api/canned")
	require.NoError(t, err)
	var list struct {
		CannedResponses []CannedResponseBody `json:"canned_responses"`
	}
	decode(t, listResp, &list)
	require.Len(t, list.CannedResponses, 1)

	del := doJSON(t, http.MethodDelete, srv.URL+"/api/canned/"+created.ID, nil)
	del.Body.Close()
	assert.Equal(t, http.StatusNoContent, del.StatusCode)
}

func TestStream_RequiresScope(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStream_DeliversEvents(t *testing.T) {
	srv, c, _ := newTestServer(t)
	conv := seedConversation(t, c)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/stream?scope="+conv.ID, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)

	// First frame is the connected handshake.
	event, _ := readSSEFrame(t, reader)
	assert.Equal(t, "connected", event)

	_, err = c.service.SendOutbound(context.Background(), conv.ID, &conversation.Draft{Content: "streamed"}, store.SenderHuman, "")
	require.NoError(t, err)

	event, data := readSSEFrame(t, reader)
	assert.Equal(t, conversation.EventMessageAppended, event)
	var ev conversation.Event
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	require.NotNil(t, ev.Message)
	assert.Equal(t, "streamed", ev.Message.Content)
}

func readSSEFrame(t *testing.T, r *bufio.Reader) (event, data string) {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && event != "":
			return event, data
		}
	}
}
