package http

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"icebreaker-bingo/internal/app"
	"icebreaker-bingo/internal/domain"
)

type WSHandler struct {
	service  *app.BingoService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.BingoService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type scanPayload struct {
	Payload string `json:"payload"`
}

type joinedPayload struct {
	Participant domain.Participant `json:"participant"`
	Card        app.CardView       `json:"card"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets for a participant who already
// joined the event. The socket streams leaderboard snapshots and accepts
// scanned QR payloads, with the participant acting as verifier.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	eventID := r.URL.Query().Get("eventId")
	participantID := r.URL.Query().Get("participantId")
	if eventID == "" || participantID == "" {
		http.Error(w, "missing eventId or participantId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	participant, view, err := h.service.ParticipantCard(r.Context(), participantID)
	if err == nil && participant.EventID != eventID {
		err = domain.ErrUnknownParticipant
	}
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}

	updates, cancel, err := h.service.Subscribe(r.Context(), eventID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// single writer: gorilla connections do not support concurrent writes
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "leaderboard", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "joined", Payload: joinedPayload{Participant: participant, Card: view}}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "scan":
			var payload scanPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.Payload == "" {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid scan payload"}}
				continue
			}
			result, err := h.service.Scan(r.Context(), []byte(payload.Payload), participantID)
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			send <- outboundMessage[any]{Type: "scanResult", Payload: result}
		case "card":
			_, view, err := h.service.ParticipantCard(r.Context(), participantID)
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			send <- outboundMessage[any]{Type: "card", Payload: view}
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
