package broker

import (
	"encoding/json"

	"github.com/gorilla/websocket"
	"github.com/ludopro/ludo-services/internal/comm"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

type Broker struct {
	Conn           *nats.Conn
	GetConnection  func(string) (*websocket.Conn, bool)
	GetRoomSockets func(string) ([]string, bool)
}

func NewBroker(conn *nats.Conn, fncGetConnection func(string) (*websocket.Conn, bool), fncGetRoomSockets func(string) ([]string, bool)) *Broker {
	return &Broker{
		Conn:           conn,
		GetConnection:  fncGetConnection,
		GetRoomSockets: fncGetRoomSockets,
	}
}

// consume message from game service
func (b *Broker) QueueSubscribe(topic, queueGroup string) (*nats.Subscription, error) {
	sub, err := b.Conn.QueueSubscribe(topic, queueGroup, b.handleMessages)
	if err != nil {
		return nil, err
	}

	return sub, nil
}

// consume message from game service
func (b *Broker) Subscribe(topic string) (*nats.Subscription, error) {
	sub, err := b.Conn.Subscribe(topic, b.handleMessages)
	if err != nil {
		return nil, err
	}

	return sub, nil
}

// publish message to game service
func (b *Broker) Publish(topic string, payload []byte) error {
	err := b.Conn.Publish(topic, payload)
	if err != nil {
		log.Errorf("Error publishing to topic %s: %s", topic, err)
		return err
	}

	return nil
}

// handleMessages receive message from game service
func (b *Broker) handleMessages(msgNats *nats.Msg) {
	message := &comm.WSMessage{}
	err := json.Unmarshal(msgNats.Data, &message)
	if err != nil {
		log.Errorf("Error %s", err)
	}

	switch message.Type {
	case "init-response", "balance-resp", "insufficient-balance-response",
		"create-match-response", "seat-player-response",
		"roll-dice-response", "legal-moves-response",
		"apply-move-response", "get-state-response":
		b.sendMessage(message)
	case "seat-player-broadcast", "match-started",
		"roll-dice-broadcast", "apply-move-broadcast",
		"turn-changed", "player-forfeited", "match-settled":
		b.sendToRoom(message)
	default:
		log.Error("Unknown message")
		return
	}
}

// send socket message to the web client
func (b *Broker) sendMessage(m *comm.WSMessage) {
	socketId := m.SocketId
	if conn, ok := b.GetConnection(socketId); ok {
		if err := conn.WriteJSON(m); err != nil {
			log.Println(err)
		}
	}
}

// sendToRoom fans a match event out to every socket seated in that match.
// The room id is the match_id carried in the payload.
func (b *Broker) sendToRoom(m *comm.WSMessage) {
	var ref struct {
		MatchId string `json:"match_id"`
	}
	if err := json.Unmarshal(m.Data, &ref); err != nil || ref.MatchId == "" {
		log.Errorf("broadcast %s without match_id", m.Type)
		return
	}

	sockets, ok := b.GetRoomSockets(ref.MatchId)
	if !ok {
		return
	}

	for _, socketId := range sockets {
		if conn, ok := b.GetConnection(socketId); ok {
			if err := conn.WriteJSON(m); err != nil {
				log.Println(err)
			}
		}
	}
}
