package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTavilyClientSearch(t *testing.T) {
	var got tavilyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"query":"go","results":[
			{"title":"A","url":"https://a.example","content":"first","score":0.9},
			{"title":"B","url":"https://b.example","content":"second","score":0.5},
			{"title":"C","url":"https://c.example","content":"third","score":0.1}
		]}`))
	}))
	defer srv.Close()

	client := NewTavilyClientWithConfig(srv.URL, time.Second)
	results, err := client.Search(context.Background(), "go", "tvly-key", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if got.APIKey != "tvly-key" || got.Query != "go" || got.MaxResults != 2 {
		t.Errorf("request = %+v", got)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Title != "A" || results[1].URL != "https://b.example" || results[1].Content != "second" {
		t.Errorf("results = %+v", results)
	}
}

func TestTavilyClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"invalid key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewTavilyClientWithConfig(srv.URL, time.Second)
	if _, err := client.Search(context.Background(), "go", "bad", 0); err == nil {
		t.Fatal("expected error for 401 response")
	}
}
