// cmd/robosvc/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	config "github.com/ludopro/ludo-services/configs"
	"github.com/ludopro/ludo-services/internal/comm"
	"github.com/ludopro/ludo-services/internal/gamesvc/db"
	"github.com/ludopro/ludo-services/internal/ludo"
	natscli "github.com/ludopro/ludo-services/internal/nats"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

const SERVICE_NAME = "robot"

var instanceId string

func init() {
	instanceId = "001"
	config.Logging(SERVICE_NAME + "_service_" + instanceId)
	config.LoadEnv(SERVICE_NAME)
	rand.Seed(time.Now().UnixNano())
}

// Robot user IDs - sequential starting from 9000000001
var robotUserIDs = []int64{
	9000000001, 9000000002, 9000000003, 9000000004, 9000000005,
	9000000006, 9000000007, 9000000008, 9000000009, 9000000010,
	9000000011, 9000000012,
}

// Robot names - mix of first names only and first+last names
var robotNames = []string{
	"Abelo", "meron bekele", "dawit", "mulugeta", "ted",
	"yonas", "liya", "Bereket Alemu", "Eden", "Samuel Yimer",
	"rahel", "Daniel Negash",
}

// waitingMatch is a short-handed match the robots may fill
type waitingMatch struct {
	MatchID string
	Seats   int
	Seated  int
}

// robotSeats tracks which robot sits in which match, keyed "matchID_userID"
var (
	seatsMu    sync.Mutex
	robotSeats = make(map[string]int64)
)

func main() {
	log.Printf("Starting Robot Service...")

	// pg connection
	dbpool, err := db.Connect()
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer db.ClosePool()
	log.Printf("pg connection established successfully")

	// Connect to NATS
	nc, err := natscli.Connect()
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer nc.Conn.Close()
	log.Infof("NATS connected at %s", nc.Url)

	ctx := context.Background()

	// Ensure robot accounts exist
	if err := ensureRobotAccounts(ctx, dbpool); err != nil {
		log.Fatalf("Failed to ensure robot accounts: %v", err)
	}
	log.Printf("Robot accounts verified/created successfully")

	// Top-up robot wallets (only if no previous entries)
	if err := topUpRobotWallets(ctx, dbpool); err != nil {
		log.Errorf("Failed to top-up robot wallets: %v", err)
	} else {
		log.Printf("Robot wallets top-up completed")
	}

	// Fill short-handed matches
	go startMatchMonitoring(ctx, dbpool, nc)

	// Play the robots' turns off the match broadcasts
	_, err = nc.Conn.Subscribe("game.service", func(m *nats.Msg) {
		handleGameServiceMessage(nc, m)
	})
	if err != nil {
		log.Fatalf("Failed to subscribe to game.service: %v", err)
	}

	log.Printf("Robot Service fully operational!")

	// Keep service running
	select {}
}

// handleGameServiceMessage reacts to match broadcasts: whenever the turn
// lands on a robot it rolls, and after its roll it plays the first legal
// token.
func handleGameServiceMessage(nc *natscli.Nats, msg *nats.Msg) {
	var ws comm.WSMessage
	if err := json.Unmarshal(msg.Data, &ws); err != nil {
		log.Errorf("Failed to unmarshal WSMessage: %v", err)
		return
	}

	switch ws.Type {
	case "match-started":
		var started comm.MatchStarted
		if err := json.Unmarshal(ws.Data, &started); err != nil {
			log.Errorf("Failed to unmarshal MatchStarted: %v", err)
			return
		}
		if isRobotSeat(started.MatchId, started.Snapshot.TurnUserID) {
			scheduleRoll(nc, started.MatchId, started.Snapshot.TurnUserID)
		}
	case "roll-dice-broadcast":
		var roll comm.RollRes
		if err := json.Unmarshal(ws.Data, &roll); err != nil {
			log.Errorf("Failed to unmarshal RollRes: %v", err)
			return
		}
		if roll.Roll.TurnEnded {
			if isRobotSeat(roll.MatchId, roll.Roll.NextUserID) {
				scheduleRoll(nc, roll.MatchId, roll.Roll.NextUserID)
			}
			return
		}
		if isRobotSeat(roll.MatchId, roll.UserId) && len(roll.Roll.Movers) > 0 {
			scheduleMove(nc, roll.MatchId, roll.UserId, pickToken(roll.Roll.Movers))
		}
	case "apply-move-broadcast":
		var move comm.MoveRes
		if err := json.Unmarshal(ws.Data, &move); err != nil {
			log.Errorf("Failed to unmarshal MoveRes: %v", err)
			return
		}
		if move.Move.Terminal {
			clearMatch(move.MatchId)
			return
		}
		if move.Move.ExtraRoll && isRobotSeat(move.MatchId, move.UserId) {
			scheduleRoll(nc, move.MatchId, move.UserId)
			return
		}
		if move.Move.TurnEnded && isRobotSeat(move.MatchId, move.Move.NextUserID) {
			scheduleRoll(nc, move.MatchId, move.Move.NextUserID)
		}
	case "turn-changed":
		var turn comm.TurnChanged
		if err := json.Unmarshal(ws.Data, &turn); err != nil {
			log.Errorf("Failed to unmarshal TurnChanged: %v", err)
			return
		}
		if isRobotSeat(turn.MatchId, turn.UserId) {
			scheduleRoll(nc, turn.MatchId, turn.UserId)
		}
	case "match-settled":
		var ev comm.SettlementEvent
		if err := json.Unmarshal(ws.Data, &ev); err != nil {
			log.Errorf("Failed to unmarshal SettlementEvent: %v", err)
			return
		}
		clearMatch(ev.MatchId)
	}
}

// pickToken plays the first legal token; winning and capturing moves are
// already encoded in the mover order the engine reports.
func pickToken(movers []int) int {
	return movers[0]
}

// scheduleRoll rolls for a robot after a short human-ish delay.
func scheduleRoll(nc *natscli.Nats, matchID string, userID int64) {
	delay := time.Duration(1+rand.Intn(2)) * time.Second
	go func() {
		time.Sleep(delay)
		req := comm.RollRequest{UserId: userID, MatchId: matchID}
		publishAsRobot(nc, "roll-dice", req, userID)
	}()
}

// scheduleMove applies a token move for a robot after a short delay.
func scheduleMove(nc *natscli.Nats, matchID string, userID int64, tokenID int) {
	delay := time.Duration(1+rand.Intn(2)) * time.Second
	go func() {
		time.Sleep(delay)
		req := comm.MoveRequest{UserId: userID, MatchId: matchID, TokenId: tokenID}
		publishAsRobot(nc, "apply-move", req, userID)
	}()
}

// publishAsRobot sends a command the way the socket service would, with a
// synthetic socket id so responses are routable (and ignorable).
func publishAsRobot(nc *natscli.Nats, msgType string, v interface{}, userID int64) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Errorf("Failed to marshal robot %s: %v", msgType, err)
		return
	}

	wsMsg := comm.WSMessage{
		Type:     msgType,
		Data:     data,
		SocketId: fmt.Sprintf("robot-%d", userID),
	}

	payload, err := json.Marshal(wsMsg)
	if err != nil {
		log.Errorf("Failed to marshal WSMessage for robot %s: %v", msgType, err)
		return
	}

	if err := nc.Conn.Publish("socket.service", payload); err != nil {
		log.Errorf("Failed to publish robot %s: %v", msgType, err)
	}
}

func isRobotUserID(userID int64) bool {
	for _, robotID := range robotUserIDs {
		if robotID == userID {
			return true
		}
	}
	return false
}

func isRobotSeat(matchID string, userID int64) bool {
	if userID == 0 || !isRobotUserID(userID) {
		return false
	}
	seatsMu.Lock()
	defer seatsMu.Unlock()
	_, ok := robotSeats[fmt.Sprintf("%s_%d", matchID, userID)]
	return ok
}

func rememberSeat(matchID string, userID int64) {
	seatsMu.Lock()
	defer seatsMu.Unlock()
	robotSeats[fmt.Sprintf("%s_%d", matchID, userID)] = userID
}

func clearMatch(matchID string) {
	seatsMu.Lock()
	defer seatsMu.Unlock()
	for key, uid := range robotSeats {
		if key == fmt.Sprintf("%s_%d", matchID, uid) {
			delete(robotSeats, key)
		}
	}
}

// startMatchMonitoring checks every 5 seconds for waiting matches that
// have real players but not enough of them, and fills the empty seats.
func startMatchMonitoring(ctx context.Context, dbpool *pgxpool.Pool, nc *natscli.Nats) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	log.Printf("Match monitoring started - checking every 5 seconds")

	for range ticker.C {
		matches, err := getShortHandedMatches(ctx, dbpool)
		if err != nil {
			log.Errorf("Error getting short-handed matches: %v", err)
			continue
		}

		for _, m := range matches {
			if err := fillMatch(ctx, dbpool, nc, m); err != nil {
				log.Errorf("Error filling match %s: %v", m.MatchID, err)
			}
		}
	}
}

// getShortHandedMatches finds waiting matches with at least one human
// seated that have been open for a while without filling.
func getShortHandedMatches(ctx context.Context, dbpool *pgxpool.Pool) ([]waitingMatch, error) {
	rows, err := dbpool.Query(ctx, `
		SELECT m.match_id, m.seats, COUNT(mp.id)
		FROM matches m
		JOIN match_players mp ON mp.match_id = m.match_id
		WHERE m.status = 'waiting'
		  AND m.created_at < now() - interval '30 seconds'
		GROUP BY m.match_id, m.seats
		HAVING COUNT(mp.id) < m.seats
		   AND bool_or(mp.user_id < 9000000001)
	`)
	if err != nil {
		return nil, fmt.Errorf("query short-handed matches: %w", err)
	}
	defer rows.Close()

	var matches []waitingMatch
	for rows.Next() {
		var m waitingMatch
		if err := rows.Scan(&m.MatchID, &m.Seats, &m.Seated); err != nil {
			return nil, fmt.Errorf("scan match row: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return matches, nil
}

// fillMatch seats robots on the free colors of one match, one at a time
// with realistic delays. The seat requests go through the normal message
// path so balances, uniqueness and match start all behave as for humans.
func fillMatch(ctx context.Context, dbpool *pgxpool.Pool, nc *natscli.Nats, m waitingMatch) error {
	needed := m.Seats - m.Seated
	log.Printf("Match %s is short %d players - seating robots", m.MatchID, needed)

	for i := 0; i < needed; i++ {
		takenColors, seatedRobots, err := getSeatedInfo(ctx, dbpool, m.MatchID)
		if err != nil {
			return fmt.Errorf("get seated info: %w", err)
		}

		color := pickFreeColor(takenColors)
		if color == "" {
			break
		}

		robotID, robotName := pickFreeRobot(seatedRobots)
		if robotID == 0 {
			log.Warnf("No free robots for match %s", m.MatchID)
			break
		}

		req := comm.SeatRequest{
			UserId:  robotID,
			Name:    robotName,
			MatchId: m.MatchID,
			Color:   color,
		}
		publishAsRobot(nc, "seat-player", req, robotID)
		rememberSeat(m.MatchID, robotID)

		log.Printf("Seated robot %d (%s) on %s in match %s", robotID, robotName, color, m.MatchID)

		if i < needed-1 {
			time.Sleep(time.Duration(1+rand.Intn(2)) * time.Second)
		}
	}

	return nil
}

func getSeatedInfo(ctx context.Context, dbpool *pgxpool.Pool, matchID string) (map[string]bool, map[int64]bool, error) {
	rows, err := dbpool.Query(ctx, `
		SELECT user_id, color
		FROM match_players
		WHERE match_id = $1
	`, matchID)
	if err != nil {
		return nil, nil, fmt.Errorf("query match players: %w", err)
	}
	defer rows.Close()

	takenColors := make(map[string]bool)
	seatedRobots := make(map[int64]bool)
	for rows.Next() {
		var userID int64
		var color string
		if err := rows.Scan(&userID, &color); err != nil {
			return nil, nil, fmt.Errorf("scan player row: %w", err)
		}
		takenColors[color] = true
		if isRobotUserID(userID) {
			seatedRobots[userID] = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("rows error: %w", err)
	}

	return takenColors, seatedRobots, nil
}

func pickFreeColor(taken map[string]bool) string {
	for _, c := range ludo.Colors {
		if !taken[string(c)] {
			return string(c)
		}
	}
	return ""
}

func pickFreeRobot(seated map[int64]bool) (int64, string) {
	// random start so the same robots don't always front-run
	offset := rand.Intn(len(robotUserIDs))
	for i := range robotUserIDs {
		idx := (offset + i) % len(robotUserIDs)
		if !seated[robotUserIDs[idx]] {
			return robotUserIDs[idx], robotNames[idx]
		}
	}
	return 0, ""
}

// ensureRobotAccounts creates robot accounts if they don't exist
func ensureRobotAccounts(ctx context.Context, dbpool *pgxpool.Pool) error {
	tx, err := dbpool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, userID := range robotUserIDs {
		var count int
		err := tx.QueryRow(ctx, `
			SELECT COUNT(*)
			FROM users
			WHERE user_id = $1
		`, userID).Scan(&count)

		if err != nil {
			return fmt.Errorf("failed to check if user %d exists: %w", userID, err)
		}

		if count == 0 {
			var createdUserID int64
			err := tx.QueryRow(ctx, `
				INSERT INTO users (user_id, name, email, phone, avatar, status)
				VALUES ($1, $2, $3, $4, $5, $6)
				RETURNING user_id
			`, userID, robotNames[i], fmt.Sprintf("%d@play.ludopro.app", userID), "",
				"", "ACTIVE").Scan(&createdUserID)

			if err != nil {
				return fmt.Errorf("failed to create robot account %d: %w", userID, err)
			}

			log.Printf("Created robot account: ID=%d, Name='%s'", createdUserID, robotNames[i])
		} else {
			log.Printf("Robot account already exists: ID=%d, Name='%s'", userID, robotNames[i])
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// topUpRobotWallets adds initial balance to robot accounts that have no previous entries
func topUpRobotWallets(ctx context.Context, dbpool *pgxpool.Pool) error {
	tx, err := dbpool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, robotUserID := range robotUserIDs {
		var count int
		err := tx.QueryRow(ctx, `
			SELECT COUNT(*)
			FROM balances
			WHERE user_id = $1
		`, robotUserID).Scan(&count)

		if err != nil {
			log.Printf("Failed to check robot balance history for %d: %v", robotUserID, err)
			continue
		}

		// If no previous entries, create initial deposit
		if count == 0 {
			tref := fmt.Sprintf("ROBOT-INIT-%d", robotUserID)

			_, err = tx.Exec(ctx, `
				INSERT INTO balances (user_id, ttype, dr, cr, tref, status)
				VALUES ($1, 'deposit', 200000, 0, $2, 'completed')
			`, robotUserID, tref)

			if err != nil {
				log.Printf("Failed to create robot initial deposit for %d: %v", robotUserID, err)
				continue
			}

			log.Printf("Created initial deposit of 200000 for robot %d", robotUserID)
		} else {
			log.Printf("Robot %d already has balance entries, skipping top-up", robotUserID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
