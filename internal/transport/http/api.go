package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
	"icebreaker-bingo/internal/app"
	"icebreaker-bingo/internal/domain"
)

const qrSize = 320

// API exposes the bingo use cases over REST.
type API struct {
	service *app.BingoService
}

func NewAPI(service *app.BingoService) *API {
	return &API{service: service}
}

// NewRouter wires the REST endpoints and the websocket handler.
func NewRouter(api *API, ws *WSHandler) *httprouter.Router {
	mux := httprouter.New()
	mux.GET("/healthz", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.POST("/events/:eventId/participants", api.join)
	mux.GET("/events/:eventId/leaderboard", api.leaderboard)
	mux.GET("/events/:eventId/stats", api.stats)
	mux.GET("/cards/:cardId", api.card)
	mux.GET("/cards/:cardId/tasks/:taskId/qr", api.qr)
	mux.POST("/scan", api.scan)
	if ws != nil {
		mux.HandlerFunc(http.MethodGet, "/ws", ws.ServeWS)
	}
	return mux
}

type joinRequest struct {
	UserID  string                `json:"userId"`
	Answers []domain.SurveyAnswer `json:"answers"`
}

type joinResponse struct {
	Participant domain.Participant `json:"participant"`
	Card        app.CardView       `json:"card"`
}

type scanRequest struct {
	Payload    string `json:"payload"`
	VerifierID string `json:"verifierId"`
}

type qrResponse struct {
	Payload  string `json:"payload"`
	IssuedAt int64  `json:"issuedAt"`
}

func (a *API) join(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "invalid join request")
		return
	}
	participant, card, err := a.service.Join(r.Context(), ps.ByName("eventId"), req.UserID, req.Answers)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	view, err := a.service.CardView(r.Context(), card.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, joinResponse{Participant: participant, Card: view})
}

func (a *API) leaderboard(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	lb, err := a.service.Leaderboard(r.Context(), ps.ByName("eventId"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

func (a *API) stats(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	stats, err := a.service.Stats(r.Context(), ps.ByName("eventId"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) card(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	view, err := a.service.CardView(r.Context(), ps.ByName("cardId"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// qr renders the completion proof for a task as a PNG QR code, or as the raw
// payload with ?format=text.
func (a *API) qr(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	payload, raw, err := a.service.IssueQR(r.Context(), ps.ByName("cardId"), ps.ByName("taskId"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if r.URL.Query().Get("format") == "text" {
		writeJSON(w, http.StatusOK, qrResponse{Payload: string(raw), IssuedAt: payload.IssuedAt.UnixMilli()})
		return
	}

	png, err := qrcode.Encode(string(raw), qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

func (a *API) scan(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Payload == "" {
		writeError(w, http.StatusBadRequest, "invalid scan request")
		return
	}
	result, err := a.service.Scan(r.Context(), []byte(req.Payload), req.VerifierID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("request failed: %v", err)
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrMalformedPayload),
		errors.Is(err, domain.ErrInvalidAnswer),
		errors.Is(err, domain.ErrInvalidGridSize):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotAuthorizedVerifier),
		errors.Is(err, domain.ErrPayloadMismatch),
		errors.Is(err, domain.ErrUnknownParticipant):
		return http.StatusForbidden
	case domain.IsBenign(err),
		errors.Is(err, domain.ErrAlreadyJoined),
		errors.Is(err, domain.ErrEventFull),
		errors.Is(err, domain.ErrConcurrentUpdate):
		return http.StatusConflict
	case errors.Is(err, domain.ErrExpiredPayload),
		errors.Is(err, domain.ErrEventClosed):
		return http.StatusGone
	case errors.Is(err, domain.ErrEventNotFound),
		errors.Is(err, domain.ErrCardNotFound),
		errors.Is(err, domain.ErrParticipantNotFound),
		errors.Is(err, domain.ErrUnknownTask):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorPayload{Message: message})
}
