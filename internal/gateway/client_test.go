package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDo_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if got := r.Header.Get("x-hasura-admin-secret"); got != "secret" {
			t.Fatalf("admin secret header = %q, want %q", got, "secret")
		}

		var req graphqlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Query == "" {
			t.Fatalf("empty query in request")
		}
		if req.Variables["id"] != "42" {
			t.Fatalf("variables = %+v, want id=42", req.Variables)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"wallets":[{"id":"42"}]}}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "secret")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var out struct {
		Wallets []struct {
			ID string `json:"id"`
		} `json:"wallets"`
	}

	err := client.Do(ctx, `query ($id: uuid!) { wallets(where: {id: {_eq: $id}}) { id } }`,
		map[string]any{"id": "42"}, &out)
	if err != nil {
		t.Fatalf("Do error: %v", err)
	}
	if len(out.Wallets) != 1 || out.Wallets[0].ID != "42" {
		t.Fatalf("unexpected response: %+v", out)
	}
}

func TestDo_GraphQLError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"errors":[{"message":"field not found","extensions":{"code":"validation-failed"}}]}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "")

	err := client.Do(context.Background(), `query { nope }`, nil, nil)
	if err == nil {
		t.Fatalf("expected error for errors array")
	}

	var qe *QueryError
	if !errors.As(err, &qe) {
		t.Fatalf("expected *QueryError, got %T: %v", err, err)
	}
	if qe.Code != "validation-failed" || qe.Message != "field not found" {
		t.Fatalf("unexpected query error: %+v", qe)
	}
}

func TestDo_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "")

	err := client.Do(context.Background(), `query { x }`, nil, nil)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestDo_NotConfigured(t *testing.T) {
	var client *Client

	err := client.Do(context.Background(), `query { x }`, nil, nil)
	if err == nil {
		t.Fatalf("expected error for nil client")
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"localhost:8080/v1/graphql", "http://localhost:8080/v1/graphql"},
		{"https://api.example.com/v1/graphql/", "https://api.example.com/v1/graphql"},
		{"http://api.example.com", "http://api.example.com"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := normalizeEndpoint(tt.in); got != tt.want {
			t.Fatalf("normalizeEndpoint(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
