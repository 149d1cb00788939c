package ws

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/ludopro/ludo-services/internal/comm"
	"github.com/ludopro/ludo-services/internal/socketsvc/broker"
	log "github.com/sirupsen/logrus"
)

type Ws struct {
	connMap sync.Map // to keep track of socket connection with socketId
	roomMap sync.Map // to keep track of matchId (room) with socketId
	userMap sync.Map // to keep track of userId with socketId
	Broker  *broker.Broker
}

func NewWs() *Ws {
	return &Ws{}
}

// handle socket message from web clients
func (s *Ws) SocketMessage(socketId string, message *comm.WSMessage) {
	switch message.Type {
	case "init":
		s.handleInit(socketId, message)
	case "seat-player":
		s.handleSeat(socketId, message)
	case "get-balance", "create-match", "roll-dice", "legal-moves",
		"apply-move", "get-state", "player-reconnected":
		s.forward(socketId, message)
	default:
		log.Warnf("unknown event received: %s", message.Type)
	}
}

func (s *Ws) handleInit(socketId string, msg *comm.WSMessage) {

	var payload struct {
		UserId int64  `json:"user_id"`
		Name   string `json:"name"`
		Phone  string `json:"phone"`
		Email  string `json:"email"`
		Avatar string `json:"avatar"`
	}

	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		log.Errorf("Error: invalid_init_data Malformed init payload %s", err)
		return
	}

	// Ensure required fields are present (e.g., UserID, Email)
	if payload.UserId == 0 {
		log.Error("Invalid init payload: missing required user fields")
		return
	}

	s.userMap.Store(socketId, payload.UserId)

	s.forward(socketId, msg)

	log.Infof("Published init message for user %d", payload.UserId)
}

// handleSeat joins the socket to the match room before forwarding, so the
// seat broadcast and everything after reaches this client.
func (s *Ws) handleSeat(socketId string, msg *comm.WSMessage) {
	var payload struct {
		UserId  int64  `json:"user_id"`
		MatchId string `json:"match_id"`
	}

	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		log.Errorf("Error: malformed seat payload %s", err)
		return
	}
	if payload.UserId == 0 || payload.MatchId == "" {
		log.Error("Invalid seat payload: missing user or match id")
		return
	}

	s.StoreRoom(socketId, payload.MatchId)
	s.userMap.Store(socketId, payload.UserId)

	s.forward(socketId, msg)
}

// forward stamps the socket id and publishes the message for the game
// service to consume.
func (s *Ws) forward(socketId string, msg *comm.WSMessage) {
	msg.SocketId = socketId

	bytes, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("Failed to marshal WSMessage for NATS: %v", err)
		return
	}

	topic := "socket.service"
	if err := s.Broker.Publish(topic, bytes); err != nil {
		log.Errorf("Failed to publish to NATS topic %s: %v", topic, err)
		return
	}
}

// HandleDisconnect drops the connection state and tells the game service,
// so the engine can start the reconnect grace timer.
func (s *Ws) HandleDisconnect(socketId string) {
	s.connMap.Delete(socketId)

	userId, hasUser := s.userMap.LoadAndDelete(socketId)
	roomId, hasRoom := s.roomMap.LoadAndDelete(socketId)
	if !hasUser || !hasRoom {
		return
	}

	payload, err := json.Marshal(map[string]interface{}{
		"user_id":  userId.(int64),
		"match_id": roomId.(string),
	})
	if err != nil {
		log.Errorf("Failed to marshal disconnect payload: %v", err)
		return
	}

	msg := &comm.WSMessage{
		Type:     "player-disconnected",
		Data:     payload,
		SocketId: socketId,
	}

	bytes, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("Failed to marshal WSMessage for NATS: %v", err)
		return
	}

	if err := s.Broker.Publish("socket.service", bytes); err != nil {
		log.Errorf("Failed to publish disconnect: %v", err)
	}
}

func (s *Ws) StoreConnection(socketId string, conn *websocket.Conn) {
	s.connMap.Store(socketId, conn)
}

func (s *Ws) GetConnection(socketId string) (*websocket.Conn, bool) {
	conn, ok := s.connMap.Load(socketId)
	if !ok {
		return nil, false
	}
	return conn.(*websocket.Conn), true
}

func (s *Ws) StoreRoom(socketId string, roomId string) {
	s.roomMap.Store(socketId, roomId)
}

func (s *Ws) GetRoom(socketId string) (string, bool) {
	room, ok := s.roomMap.Load(socketId)
	if !ok {
		return "", false
	}
	return room.(string), true
}

func (s *Ws) GetRoomSockets(roomId string) ([]string, bool) {
	var sockets []string
	found := false

	s.roomMap.Range(func(key, value interface{}) bool {
		if value.(string) == roomId {
			sockets = append(sockets, key.(string))
			found = true
		}
		return true // continue iterating
	})

	return sockets, found
}
