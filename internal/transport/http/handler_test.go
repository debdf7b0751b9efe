package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"quiz-duel-service/internal/app"
	"quiz-duel-service/internal/domain"
	"quiz-duel-service/internal/infra/memory"

	"go.uber.org/zap"
)

func TestRequiresIdentityHeader(t *testing.T) {
	srv := newTestServer(t, fixedRounds{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/duels/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestHealthzIsOpen(t *testing.T) {
	srv := newTestServer(t, fixedRounds{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestCreateDuel(t *testing.T) {
	srv := newTestServer(t, fixedRounds{})
	defer srv.Close()

	status, body := doJSON(t, srv, "alice", "POST", "/duels/new", map[string]string{"opponent": "bob"})
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", status, body)
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected duel id in response")
	}

	// The opponent sees the duel too.
	status, body = doJSON(t, srv, "bob", "GET", "/duels/"+created.ID, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	var view domain.ViewerDuel
	if err := json.Unmarshal(body, &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.Opponent != "alice" {
		t.Fatalf("expected opponent alice, got %q", view.Opponent)
	}
}

func TestCreateDuelUnknownOpponent(t *testing.T) {
	srv := newTestServer(t, fixedRounds{})
	defer srv.Close()

	status, _ := doJSON(t, srv, "alice", "POST", "/duels/new", map[string]string{"opponent": "ghost"})
	if status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
}

func TestCreateDuelNotEnoughData(t *testing.T) {
	srv := newTestServer(t, failingRounds{})
	defer srv.Close()

	status, body := doJSON(t, srv, "alice", "POST", "/duels/new", map[string]string{"opponent": "bob"})
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", status, body)
	}
	var payload struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Code != "NED" {
		t.Fatalf("expected code NED, got %q", payload.Code)
	}
}

func TestPlayRound(t *testing.T) {
	srv := newTestServer(t, fixedRounds{})
	defer srv.Close()

	_, body := doJSON(t, srv, "alice", "POST", "/duels/new", map[string]string{"opponent": "bob"})
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	status, body := doJSON(t, srv, "alice", "POST", "/duels/"+created.ID+"/1", map[string][]int{"answers": {0, 1}})
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	var view domain.ViewerDuel
	if err := json.Unmarshal(body, &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.UserScore != 1 {
		t.Fatalf("expected score 1 after one good answer, got %d", view.UserScore)
	}

	// Playing the same round again is rejected.
	status, _ = doJSON(t, srv, "alice", "POST", "/duels/"+created.ID+"/1", map[string][]int{"answers": {0, 0}})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 on replay, got %d", status)
	}
}

func TestPlayRoundBadInput(t *testing.T) {
	srv := newTestServer(t, fixedRounds{})
	defer srv.Close()

	_, body := doJSON(t, srv, "alice", "POST", "/duels/new", map[string]string{"opponent": "bob"})
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	// Wrong answer count.
	status, _ := doJSON(t, srv, "alice", "POST", "/duels/"+created.ID+"/1", map[string][]int{"answers": {0}})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 on short answers, got %d", status)
	}

	// Non-numeric round.
	status, _ = doJSON(t, srv, "alice", "POST", "/duels/"+created.ID+"/first", map[string][]int{"answers": {0, 0}})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 on bad round, got %d", status)
	}

	// Outsiders cannot tell the duel exists.
	status, _ = doJSON(t, srv, "carol", "GET", "/duels/"+created.ID, nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 for outsider, got %d", status)
	}
}

func TestListDuels(t *testing.T) {
	srv := newTestServer(t, fixedRounds{})
	defer srv.Close()

	for i := 0; i < 2; i++ {
		status, body := doJSON(t, srv, "alice", "POST", "/duels/new", map[string]string{"opponent": "bob"})
		if status != http.StatusCreated {
			t.Fatalf("create %d: got %d: %s", i, status, body)
		}
	}

	status, body := doJSON(t, srv, "bob", "GET", "/duels/", nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	var views []domain.ViewerDuel
	if err := json.Unmarshal(body, &views); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 duels, got %d", len(views))
	}

	status, body = doJSON(t, srv, "carol", "GET", "/duels/", nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if err := json.Unmarshal(body, &views); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(views) != 0 {
		t.Fatalf("expected no duels for carol, got %d", len(views))
	}
}

type fixedRounds struct{}

func (fixedRounds) CreateRounds(_ context.Context, roundsPerDuel, questionsPerRound int) ([]domain.Round, error) {
	rounds := make([]domain.Round, roundsPerDuel)
	for i := range rounds {
		round := make(domain.Round, questionsPerRound)
		for j := range round {
			round[j] = domain.Question{
				Type:       domain.QuestionType(i + 1),
				Title:      "Active substance",
				Subject:    fmt.Sprintf("Drug %d-%d", i, j),
				Wording:    "Which active substance does this drug contain?",
				Answers:    []string{"Paracetamol", "Ibuprofen", "Aspirin", "Codeine"},
				GoodAnswer: 0,
			}
		}
		rounds[i] = round
	}
	return rounds, nil
}

type failingRounds struct{}

func (failingRounds) CreateRounds(context.Context, int, int) ([]domain.Round, error) {
	return nil, domain.ErrNotEnoughData
}

func newTestServer(t *testing.T, rounds app.RoundBuilder) *httptest.Server {
	t.Helper()
	store := memory.NewDuelStore()
	users := memory.NewUserDirectory("alice", "bob", "carol")
	settings := func() app.Settings {
		return app.Settings{RoundsPerDuel: 2, QuestionsPerRound: 2}
	}
	service := app.NewDuelService(store, users, rounds, settings, zap.NewNop())
	handler := NewHandler(service, zap.NewNop())
	return httptest.NewServer(handler.Routes())
}

func doJSON(t *testing.T, srv *httptest.Server, username, method, path string, payload interface{}) (int, []byte) {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}
	req, err := http.NewRequest(method, srv.URL+path, &body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("X-Username", username)
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, buf.Bytes()
}
