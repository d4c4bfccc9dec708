package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type recorded struct {
	path string
	body map[string]interface{}
}

func newTestClient(t *testing.T, reply string) (*Client, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		calls = append(calls, recorded{path: r.URL.Path, body: body})
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return NewClient("TOKEN", WithBaseURL(srv.URL)), &calls
}

func TestSendMessage(t *testing.T) {
	c, calls := newTestClient(t, `{"ok":true,"result":{"message_id":42,"chat":{"id":1254080795,"type":"private"},"text":"hi"}}`)

	msg, err := c.SendMessage(context.Background(), SendMessageRequest{
		ChatID:      "1254080795",
		Text:        "hi",
		ReplyMarkup: Keyboard(InlineKeyboardButton{Text: "Stock", CallbackData: "current_stock"}),
	})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if msg.MessageID != 42 || msg.Chat.ID != 1254080795 {
		t.Errorf("Unexpected message: %+v", msg)
	}

	if len(*calls) != 1 || (*calls)[0].path != "/botTOKEN/sendMessage" {
		t.Fatalf("Unexpected calls: %+v", *calls)
	}
	markup, ok := (*calls)[0].body["reply_markup"].(map[string]interface{})
	if !ok || markup["inline_keyboard"] == nil {
		t.Errorf("Expected inline keyboard in payload, got %+v", (*calls)[0].body)
	}
}

func TestAPIError(t *testing.T) {
	c, _ := newTestClient(t, `{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`)

	err := c.EditMessageText(context.Background(), EditMessageTextRequest{ChatID: "1", MessageID: 2, Text: "x"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected APIError, got %v", err)
	}
	if apiErr.Code != 403 || apiErr.Method != "editMessageText" {
		t.Errorf("Unexpected error: %+v", apiErr)
	}
}

func TestGetUpdates(t *testing.T) {
	c, calls := newTestClient(t, `{"ok":true,"result":[
		{"update_id":10,"message":{"message_id":1,"chat":{"id":5,"type":"private"},"from":{"id":5,"first_name":"A"},"text":"/start"}},
		{"update_id":11,"callback_query":{"id":"cb1","from":{"id":5,"first_name":"A"},"data":"stats_week","message":{"message_id":3,"chat":{"id":5,"type":"private"}}}}
	]}`)

	updates, err := c.GetUpdates(context.Background(), 10, time.Second)
	if err != nil {
		t.Fatalf("GetUpdates failed: %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("Expected 2 updates, got %d", len(updates))
	}
	if updates[0].Message == nil || updates[0].Message.Text != "/start" {
		t.Errorf("Unexpected first update: %+v", updates[0])
	}
	if cb := updates[1].CallbackQuery; cb == nil || cb.Data != "stats_week" || cb.Message.MessageID != 3 {
		t.Errorf("Unexpected callback: %+v", updates[1])
	}
	if (*calls)[0].body["offset"].(float64) != 10 {
		t.Errorf("Offset not sent: %+v", (*calls)[0].body)
	}
}

func TestTransportErrorHidesToken(t *testing.T) {
	c := NewClient("SECRET", WithBaseURL("http://127.0.0.1:1"))

	err := c.AnswerCallbackQuery(context.Background(), "cb", "")
	if err == nil {
		t.Fatal("Expected transport error")
	}
	if strings.Contains(err.Error(), "SECRET") {
		t.Errorf("Token leaked into error: %v", err)
	}
}
