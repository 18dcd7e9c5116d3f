package app

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"plantboard/api/internal/events"
	"plantboard/api/internal/store"
)

const testAPIKey = "test-key"

func newTestServer(t *testing.T, fs *fakeStore) (*httptest.Server, *Service) {
	t.Helper()
	service := newTestService(fs)
	httpServer := NewHTTPServer(service, "*", []string{testAPIKey})
	server := httptest.NewServer(httpServer.Handler())
	t.Cleanup(server.Close)
	return server, service
}

func doRequest(t *testing.T, method, url string, body string) *http.Response {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("X-API-Key", testAPIKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealthIsOpen(t *testing.T) {
	server, _ := newTestServer(t, &fakeStore{})

	resp, err := http.Get(server.URL + "/api/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health must not require a key, got %d", resp.StatusCode)
	}
}

func TestAPIKeyGuard(t *testing.T) {
	server, _ := newTestServer(t, &fakeStore{})

	resp, err := http.Get(server.URL + "/api/diagrams")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing key should be 401, got %d", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodGet, server.URL+"/api/diagrams", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("valid key should pass, got %d", resp.StatusCode)
	}
}

func TestGetDiagramNotFound(t *testing.T) {
	server, _ := newTestServer(t, &fakeStore{})

	resp := doRequest(t, http.MethodGet, server.URL+"/api/diagrams/ghost", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	var body map[string]any
	decodeResponse(t, resp, &body)
	if body["code"] != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND code, got %v", body["code"])
	}
}

func TestUpdateCodeEndpoint(t *testing.T) {
	fs := &fakeStore{
		getDiagramFn: func(_ context.Context, id string) (store.Diagram, error) {
			return existingDiagram(id, 1, "old"), nil
		},
	}
	server, _ := newTestServer(t, fs)

	resp := doRequest(t, http.MethodPost, server.URL+"/api/diagrams/d1/code", `{"code":"@startuml\nx\n@enduml"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body UpdateResult
	decodeResponse(t, resp, &body)
	if !body.Success || body.Version != 2 {
		t.Fatalf("unexpected update result: %+v", body)
	}
}

func TestDeleteMissingDiagramIsSoft(t *testing.T) {
	server, _ := newTestServer(t, &fakeStore{})

	resp := doRequest(t, http.MethodDelete, server.URL+"/api/diagrams/ghost", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("soft failure still answers 200, got %d", resp.StatusCode)
	}
	var body MutationResult
	decodeResponse(t, resp, &body)
	if body.Success {
		t.Fatalf("expected success=false for an absent diagram")
	}
}

func TestRestoreEndpointValidatesVersion(t *testing.T) {
	server, _ := newTestServer(t, &fakeStore{
		getDiagramFn: func(_ context.Context, id string) (store.Diagram, error) {
			return existingDiagram(id, 2, "code"), nil
		},
	})

	resp := doRequest(t, http.MethodPost, server.URL+"/api/diagrams/d1/restore/abc", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("non-numeric version should be 422, got %d", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodPost, server.URL+"/api/diagrams/d1/restore/9", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing version should be 404, got %d", resp.StatusCode)
	}
}

func TestCommentLifecycleEndpoints(t *testing.T) {
	fs := &fakeStore{
		getDiagramFn: func(_ context.Context, id string) (store.Diagram, error) {
			return existingDiagram(id, 1, "l1\nl2\nl3"), nil
		},
	}
	server, _ := newTestServer(t, fs)

	resp := doRequest(t, http.MethodPost, server.URL+"/api/diagrams/d1/comments", `{"text":"check","startLine":1,"endLine":2}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var created CommentView
	decodeResponse(t, resp, &created)
	if created.CodeSnapshot != "l1\nl2" {
		t.Fatalf("snapshot missing from created comment: %+v", created)
	}

	resp = doRequest(t, http.MethodPost, server.URL+"/api/diagrams/d1/comments", `{"text":"","startLine":1,"endLine":1}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("blank text should be 400, got %d", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodPost, server.URL+"/api/diagrams/d1/comments/ghost/processed", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("soft failure still answers 200, got %d", resp.StatusCode)
	}
	var processed ProcessedResult
	decodeResponse(t, resp, &processed)
	if processed.Success {
		t.Fatalf("marking an absent comment reports success=false")
	}
}

func TestEventsStream(t *testing.T) {
	server, service := newTestServer(t, &fakeStore{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/diagrams/d1/events?api_key="+testAPIKey, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("expected text/event-stream, got %q", got)
	}

	// The subscription exists once the response headers are out.
	deadline := time.Now().Add(2 * time.Second)
	for service.bus.SubscriberCount("d1") == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	service.bus.Publish(events.Event{DiagramID: "d1", Version: 4, Kind: events.KindUpdate})

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event events.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			t.Fatalf("bad event payload %q: %v", line, err)
		}
		if event.DiagramID != "d1" || event.Version != 4 || event.Kind != events.KindUpdate {
			t.Fatalf("unexpected event: %+v", event)
		}
		return
	}
	t.Fatalf("stream closed without an event: %v", scanner.Err())
}

func TestEventsStreamOtherDiagramFiltered(t *testing.T) {
	server, service := newTestServer(t, &fakeStore{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/diagrams/d1/events?api_key="+testAPIKey, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()

	deadline := time.Now().Add(time.Second)
	for service.bus.SubscriberCount("d1") == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	service.bus.Publish(events.Event{DiagramID: "other", Version: 1, Kind: events.KindUpdate})

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if strings.HasPrefix(scanner.Text(), "data: ") {
			t.Fatalf("received an event for another diagram: %q", scanner.Text())
		}
	}
	// Context timeout tears the stream down without data lines.
}

func TestMapErrorNoRows(t *testing.T) {
	status, code, _, _ := mapError(sql.ErrNoRows)
	if status != http.StatusNotFound || code != "NOT_FOUND" {
		t.Fatalf("sql.ErrNoRows should map to 404, got %d %s", status, code)
	}
}
