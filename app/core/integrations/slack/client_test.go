package slack

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMentionsFiltersAndCollects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations.history" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("oldest"); got != "1700000000.000000" {
			t.Errorf("unexpected oldest %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer xoxb-test" {
			t.Errorf("unexpected auth %q", got)
		}
		w.Write([]byte(`{"ok": true, "messages": [
			{"text": "<@U123> please check the deploy", "ts": "1700000001.000100"},
			{"text": "<@U123> joined", "ts": "1700000002.000100", "subtype": "channel_join"},
			{"text": "unrelated chatter", "ts": "1700000003.000100"},
			{"text": "<@U999> not our user", "ts": "1700000004.000100"}
		]}`))
	}))
	defer srv.Close()

	client := NewClientWithBaseURL(srv.URL, "xoxb-test", "U123", []string{"C1"})
	mentions, err := client.Mentions(context.Background(), "1700000000.000000")
	if err != nil {
		t.Fatalf("Mentions: %v", err)
	}
	if len(mentions) != 1 {
		t.Fatalf("expected 1 mention, got %d: %v", len(mentions), mentions)
	}
	if mentions[0].ChannelID != "C1" || mentions[0].Ts != "1700000001.000100" {
		t.Fatalf("unexpected mention %+v", mentions[0])
	}
}

func TestMentionsSkipsFailingChannel(t *testing.T) {
	calls := make(chan string, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		channel := r.URL.Query().Get("channel")
		calls <- channel
		if channel == "C1" {
			w.Write([]byte(`{"ok": false, "error": "channel_not_found"}`))
			return
		}
		w.Write([]byte(`{"ok": true, "messages": [{"text": "<@U1> hi", "ts": "2.0"}]}`))
	}))
	defer srv.Close()

	client := NewClientWithBaseURL(srv.URL, "t", "U1", []string{"C1", "C2"})
	mentions, err := client.Mentions(context.Background(), "")
	if err != nil {
		t.Fatalf("Mentions: %v", err)
	}
	if len(mentions) != 1 || mentions[0].ChannelID != "C2" {
		t.Fatalf("expected only C2 mention, got %v", mentions)
	}
	if len(calls) != 2 {
		t.Fatalf("expected both channels queried")
	}
}

func TestThreadSummaryJoinsMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations.replies" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"ok": true, "messages": [{"text": "first"}, {"text": "  "}, {"text": "second"}]}`))
	}))
	defer srv.Close()

	client := NewClientWithBaseURL(srv.URL, "t", "U1", nil)
	summary, err := client.ThreadSummary(context.Background(), "C1", "1.0")
	if err != nil {
		t.Fatalf("ThreadSummary: %v", err)
	}
	if summary != "first\nsecond" {
		t.Fatalf("unexpected summary %q", summary)
	}
}

func TestThreadSummaryEmptyThread(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"ok": true, "messages": []}`))
	}))
	defer srv.Close()

	client := NewClientWithBaseURL(srv.URL, "t", "U1", nil)
	summary, err := client.ThreadSummary(context.Background(), "C1", "1.0")
	if err != nil {
		t.Fatalf("ThreadSummary: %v", err)
	}
	if summary != "No messages found in this thread." {
		t.Fatalf("unexpected summary %q", summary)
	}
}
