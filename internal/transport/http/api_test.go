package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"icebreaker-bingo/internal/domain"
)

func TestJoinEndpoint(t *testing.T) {
	service := newTestService(t)
	server := httptest.NewServer(NewRouter(NewAPI(service), nil))
	defer server.Close()

	body := `{"userId":"alice","answers":[{"questionId":"role","answer":"CTO"}]}`
	resp := post(t, server.URL+"/events/event-1/participants", body)
	var joined joinResponse
	decodeBody(t, resp, http.StatusCreated, &joined)
	if joined.Participant.UserID != "alice" || joined.Participant.Identity.Name != "Alice" {
		t.Fatalf("unexpected participant %+v", joined.Participant)
	}
	if len(joined.Card.Card.Cells) != domain.CardCells || joined.Card.Bingo {
		t.Fatalf("unexpected card view %+v", joined.Card)
	}

	cases := []struct {
		name   string
		url    string
		body   string
		status int
	}{
		{"rejoin", "/events/event-1/participants", body, http.StatusCreated},
		{"unknown event", "/events/nope/participants", `{"userId":"bob"}`, http.StatusNotFound},
		{"unknown user", "/events/event-1/participants", `{"userId":"mallory"}`, http.StatusForbidden},
		{"bad answer", "/events/event-1/participants", `{"userId":"bob","answers":[{"questionId":"shoe-size","answer":"42"}]}`, http.StatusBadRequest},
		{"bad body", "/events/event-1/participants", `{`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		resp := post(t, server.URL+tc.url, tc.body)
		resp.Body.Close()
		if resp.StatusCode != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.status, resp.StatusCode)
		}
	}
}

func TestQRAndScanEndpoints(t *testing.T) {
	service := newTestService(t)
	alice, bob := joinPair(t, service)
	server := httptest.NewServer(NewRouter(NewAPI(service), nil))
	defer server.Close()

	resp, err := http.Get(server.URL + "/cards/" + alice.CardID + "/tasks/cto/qr")
	if err != nil {
		t.Fatalf("get qr png: %v", err)
	}
	png, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("unexpected qr response %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Fatalf("expected png body")
	}

	resp, err = http.Get(server.URL + "/cards/" + alice.CardID + "/tasks/cto/qr?format=text")
	if err != nil {
		t.Fatalf("get qr text: %v", err)
	}
	var qr qrResponse
	decodeBody(t, resp, http.StatusOK, &qr)
	if !strings.Contains(qr.Payload, `"participantId":"`+alice.ID+`"`) {
		t.Fatalf("unexpected payload %s", qr.Payload)
	}

	scan := func(verifier string) *http.Response {
		data, _ := json.Marshal(scanRequest{Payload: qr.Payload, VerifierID: verifier})
		return post(t, server.URL+"/scan", string(data))
	}

	// alice cannot vouch for herself
	resp = scan(alice.ID)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for self scan, got %d", resp.StatusCode)
	}

	var result struct {
		Awarded     int  `json:"awarded"`
		TotalPoints int  `json:"totalPoints"`
		Bingo       bool `json:"bingo"`
	}
	decodeBody(t, scan(bob.ID), http.StatusOK, &result)
	if result.Awarded != 10 || result.TotalPoints != 10 || result.Bingo {
		t.Fatalf("unexpected result %+v", result)
	}

	resp = scan(bob.ID)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for repeated scan, got %d", resp.StatusCode)
	}

	resp = post(t, server.URL+"/scan", `{"payload":"not-json","verifierId":"x"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed payload, got %d", resp.StatusCode)
	}

	resp, _ = http.Get(server.URL + "/cards/" + alice.CardID + "/tasks/nope/qr")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown task, got %d", resp.StatusCode)
	}

	resp, _ = http.Get(server.URL + "/events/event-1/leaderboard")
	var lb domain.Leaderboard
	decodeBody(t, resp, http.StatusOK, &lb)
	if len(lb.Entries) != 2 || lb.Entries[0].ParticipantID != alice.ID || lb.Entries[0].Points != 10 {
		t.Fatalf("unexpected leaderboard %+v", lb.Entries)
	}

	resp, _ = http.Get(server.URL + "/events/event-1/stats")
	var stats domain.EventStats
	decodeBody(t, resp, http.StatusOK, &stats)
	if stats.Participants != 2 || stats.CompletedTasks != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		domain.ErrMalformedPayload:                         http.StatusBadRequest,
		domain.ErrNotAuthorizedVerifier:                    http.StatusForbidden,
		fmt.Errorf("wrap: %w", domain.ErrAlreadyCompleted): http.StatusConflict,
		domain.ErrExpiredPayload:                           http.StatusGone,
		domain.ErrCardNotFound:                             http.StatusNotFound,
		errors.New("boom"):                                 http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got := statusFor(err); got != want {
			t.Fatalf("statusFor(%v) = %d, want %d", err, got, want)
		}
	}
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, status int, v any) {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != status {
		data, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected status %d, got %d: %s", status, resp.StatusCode, data)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}
