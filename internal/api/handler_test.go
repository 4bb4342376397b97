package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/meridianfi/meridian/internal/conversation"
	"github.com/meridianfi/meridian/internal/finctx"
	"github.com/meridianfi/meridian/internal/model"
	"github.com/meridianfi/meridian/internal/tool"
	"github.com/meridianfi/meridian/internal/trace"
)

// In-memory conversation deps; the pg-backed store endpoints are
// covered by the e2e suite.

type memSessions struct {
	sessions map[string]*conversation.Session
}

func (s *memSessions) CreateSession(ctx context.Context, sess *conversation.Session) error {
	if s.sessions == nil {
		s.sessions = make(map[string]*conversation.Session)
	}
	s.sessions[sess.ID] = sess
	return nil
}

func (s *memSessions) GetSession(ctx context.Context, id string) (*conversation.Session, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, errors.New("session not found")
	}
	return sess, nil
}

func (s *memSessions) GetTranscript(ctx context.Context, sessionID string) ([]model.Message, error) {
	return nil, nil
}

func (s *memSessions) AppendTranscript(ctx context.Context, sessionID string, msgs []model.Message) error {
	return nil
}

type textGateway struct{}

func (textGateway) Invoke(ctx context.Context, req *model.InvokeRequest) (*model.InvokeResponse, error) {
	return &model.InvokeResponse{
		Content:    []model.ContentBlock{{Type: model.BlockText, Text: "advice"}},
		StopReason: "end_turn",
	}, nil
}

type noopRunner struct{}

func (noopRunner) Definitions() []model.ToolSchema { return nil }

func (noopRunner) Dispatch(ctx context.Context, userID, sessionID, skill string, block model.ContentBlock) (*tool.Outcome, error) {
	return &tool.Outcome{Result: `{}`}, nil
}

type noopBuilder struct{}

func (noopBuilder) Build(ctx context.Context, userID string) (*finctx.Snapshot, error) {
	return &finctx.Snapshot{UserID: userID}, nil
}

type noopTraces struct{}

func (noopTraces) InsertTrace(ctx context.Context, t *trace.DecisionTrace) error { return nil }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := zap.NewNop()
	orc := conversation.New(textGateway{}, noopRunner{}, &memSessions{}, noopBuilder{},
		trace.NewRecorder(noopTraces{}, logger), nil, conversation.Options{Model: "test"}, logger)
	h := NewHandler(orc, nil, nil, logger)
	ts := httptest.NewServer(h.Router())
	t.Cleanup(ts.Close)
	return ts
}

func doReq(t *testing.T, method, url, userID string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)
	resp := doReq(t, http.MethodGet, ts.URL+"/api/health", "", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("got status %d, want 200", resp.StatusCode)
	}
}

func TestListSkills(t *testing.T) {
	ts := newTestServer(t)
	resp := doReq(t, http.MethodGet, ts.URL+"/api/skills", "", nil)
	defer resp.Body.Close()

	var body struct {
		Skills []string `json:"skills"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Skills) == 0 {
		t.Error("expected at least one skill")
	}
}

func TestStartSessionRequiresUser(t *testing.T) {
	ts := newTestServer(t)
	resp := doReq(t, http.MethodPost, ts.URL+"/api/sessions", "", map[string]string{})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("got status %d, want 401", resp.StatusCode)
	}
}

func TestStartSession(t *testing.T) {
	ts := newTestServer(t)
	resp := doReq(t, http.MethodPost, ts.URL+"/api/sessions", "u1", map[string]string{"skill": "retirement"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("got status %d, want 201", resp.StatusCode)
	}
	var sess conversation.Session
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sess.ID == "" || sess.UserID != "u1" || sess.Skill != "retirement" {
		t.Errorf("got session %+v", sess)
	}
}

func TestStartSessionUnknownSkill(t *testing.T) {
	ts := newTestServer(t)
	resp := doReq(t, http.MethodPost, ts.URL+"/api/sessions", "u1", map[string]string{"skill": "astrology"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("got status %d, want 400", resp.StatusCode)
	}
}

func TestSendMessageRequiresBody(t *testing.T) {
	ts := newTestServer(t)
	resp := doReq(t, http.MethodPost, ts.URL+"/api/sessions/abc/messages", "u1", map[string]string{})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("got status %d, want 400", resp.StatusCode)
	}
}

func TestSendMessageStreamsNDJSON(t *testing.T) {
	ts := newTestServer(t)

	createResp := doReq(t, http.MethodPost, ts.URL+"/api/sessions", "u1", map[string]string{})
	var sess conversation.Session
	if err := json.NewDecoder(createResp.Body).Decode(&sess); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	createResp.Body.Close()

	resp := doReq(t, http.MethodPost, ts.URL+"/api/sessions/"+sess.ID+"/messages", "u1",
		map[string]string{"message": "how am I doing?"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("got content type %q, want application/x-ndjson", ct)
	}

	dec := json.NewDecoder(resp.Body)
	var chunks []conversation.Chunk
	for dec.More() {
		var c conversation.Chunk
		if err := dec.Decode(&c); err != nil {
			t.Fatalf("decode chunk: %v", err)
		}
		chunks = append(chunks, c)
	}
	if len(chunks) != 1 || chunks[0].Type != conversation.ChunkText || chunks[0].Text != "advice" {
		t.Errorf("got chunks %+v, want one text chunk", chunks)
	}
}
