package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	config "github.com/ludopro/ludo-services/configs"
	"github.com/ludopro/ludo-services/internal/comm"
	"github.com/ludopro/ludo-services/internal/gamesvc/db"
	natscli "github.com/ludopro/ludo-services/internal/nats"

	"github.com/jackc/pgx/v5/pgxpool"
)

const SERVICE_NAME = "ctl"

// a waiting match that has not filled within this window gets aborted
// and its seated players refunded
const staleAfter = "5 minutes"

var instanceId string

func init() {
	instanceId = config.CreateUniqueInstance(SERVICE_NAME)
	config.Logging(SERVICE_NAME + "_service_" + instanceId)
	config.LoadEnv(SERVICE_NAME)
}

type staleMatch struct {
	MatchID string
	Seats   int
	Seated  int
}

func main() {
	// pg connection
	dbpool, err := db.Connect()
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer db.ClosePool()
	log.Printf("pg connection established successfully")

	// Connect to NATS
	n, err := natscli.Connect()
	if err != nil {
		log.Errorf("Error: unable to connect to NATS server %v", err)
		os.Exit(1)
	}
	defer n.Conn.Close()
	log.Printf("NATS connection established successfully %s", n.Url)

	ctx := context.Background()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		stale, err := findStaleMatches(ctx, dbpool)
		if err != nil {
			log.Printf("findStaleMatches error: %v", err)
			continue
		}

		for _, m := range stale {
			log.Infof("aborting stale match %s (%d/%d seated)", m.MatchID, m.Seated, m.Seats)
			PublishAbortMatch(n, m.MatchID)
		}
	}
}

// findStaleMatches returns waiting matches past the fill window. The game
// service owns the state transition; this only nominates candidates, so a
// match is reported until the abort lands and its row leaves 'waiting'.
func findStaleMatches(ctx context.Context, pool *pgxpool.Pool) ([]staleMatch, error) {
	rows, err := pool.Query(ctx, `
        SELECT m.match_id, m.seats, COUNT(mp.id)
        FROM matches m
        LEFT JOIN match_players mp ON mp.match_id = m.match_id
        WHERE m.status = 'waiting'
          AND m.created_at < now() - interval '`+staleAfter+`'
        GROUP BY m.match_id, m.seats
    `)
	if err != nil {
		return nil, fmt.Errorf("select stale matches: %w", err)
	}
	defer rows.Close()

	var stale []staleMatch
	for rows.Next() {
		var m staleMatch
		if err := rows.Scan(&m.MatchID, &m.Seats, &m.Seated); err != nil {
			return nil, fmt.Errorf("scan match row: %w", err)
		}
		stale = append(stale, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return stale, nil
}

func PublishAbortMatch(n *natscli.Nats, matchID string) {
	data, err := json.Marshal(map[string]string{"match_id": matchID})
	if err != nil {
		log.Errorf("error [PublishAbortMatch] marshaling for match %s: %v", matchID, err)
		return
	}

	msg := &comm.WSMessage{
		Type:     "abort-match",
		Data:     data,
		SocketId: "",
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("error [PublishAbortMatch] marshaling WSMessage: %v", err)
		return
	}

	topic := "socket.service"
	if err := n.Conn.Publish(topic, payload); err != nil {
		log.Errorf("error publishing abort-match for %s: %v", matchID, err)
	}
}
