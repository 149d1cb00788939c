package broker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ludopro/ludo-services/internal/comm"
	"github.com/ludopro/ludo-services/internal/gamesvc/models"
	"github.com/ludopro/ludo-services/internal/gamesvc/service"
	"github.com/ludopro/ludo-services/internal/gamesvc/store"
	"github.com/ludopro/ludo-services/internal/ludo"
	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type Broker struct {
	Conn               *nats.Conn
	Coordinator        *ludo.Coordinator
	UserService        *service.UserService
	BalanceService     *service.BalanceService
	MatchService       *service.MatchService
	MatchPlayerService *service.MatchPlayerService
}

func NewBroker(nc *nats.Conn, coord *ludo.Coordinator, userService *service.UserService,
	balanceService *service.BalanceService, matchService *service.MatchService,
	matchPlayerService *service.MatchPlayerService) *Broker {
	return &Broker{
		Conn:               nc,
		Coordinator:        coord,
		UserService:        userService,
		BalanceService:     balanceService,
		MatchService:       matchService,
		MatchPlayerService: matchPlayerService,
	}
}

// handles message coming from socket
func (b *Broker) handleMessage(msgNat *nats.Msg) {
	//unmarshal nats message
	msg := &comm.WSMessage{}
	err := json.Unmarshal(msgNat.Data, &msg)
	if err != nil {
		log.Errorf("Error nats message %s", err)
	}

	switch msg.Type {
	case "init":
		// unmarshal socket message
		userInfo := models.User{}
		err := json.Unmarshal(msg.Data, &userInfo)
		if err != nil {
			log.Errorf("Error %s", err)
		}

		user, err := b.UserService.GetOrCreateUser(userInfo)
		if err != nil {
			log.Errorf("Error [UserService.GetOrCreateUser] %s", err)
		}

		// get user balance
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		balance, err := b.BalanceService.GetUserBalance(ctx, user.UserId)
		if err != nil {
			log.Errorf("Error [BalanceService.GetUserBalance] %s", err)
		}

		playerData := comm.PlayerData{
			Name:    user.Name,
			Balance: balance.StringFixed(2),
			UserId:  user.UserId,
		}

		// publish to socket service
		b.PublishInitResponse(playerData, msg.SocketId)
	case "get-balance":
		var request struct {
			UserID int64 `json:"userId"`
		}
		err := json.Unmarshal(msg.Data, &request)
		if err != nil {
			log.Errorf("Error %s", err)
		}

		// get user balance
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		balance, err := b.BalanceService.GetUserBalance(ctx, request.UserID)
		if err != nil {
			log.Errorf("Error getBalance %s", err)
		}

		playerData := comm.PlayerData{
			Balance: balance.StringFixed(2),
		}

		b.PublishBalance(playerData, msg.SocketId)
	case "create-match":
		var request comm.CreateMatchRequest
		err := json.Unmarshal(msg.Data, &request)
		if err != nil {
			log.Errorf("Error decoding create-match: %s", err)
			return
		}

		b.handleCreateMatch(request, msg.SocketId)
	case "seat-player":
		var request comm.SeatRequest
		err := json.Unmarshal(msg.Data, &request)
		if err != nil {
			log.Errorf("Error decoding seat-player: %s", err)
			return
		}

		b.handleSeatPlayer(request, msg.SocketId)
	case "roll-dice":
		var request comm.RollRequest
		err := json.Unmarshal(msg.Data, &request)
		if err != nil {
			log.Errorf("Error decoding roll-dice: %s", err)
			return
		}

		roll, err := b.Coordinator.RollDice(request.MatchId, request.UserId)
		if err != nil {
			b.PublishRollResponse(comm.RollRes{
				Status:  statusFor(err),
				MatchId: request.MatchId,
				UserId:  request.UserId,
			}, msg.SocketId)
			return
		}

		b.PublishRollBroadcast(comm.RollRes{
			Status:  "ok",
			MatchId: request.MatchId,
			UserId:  request.UserId,
			Roll:    roll,
		}, msg.SocketId)
	case "legal-moves":
		var request comm.LegalMovesRequest
		err := json.Unmarshal(msg.Data, &request)
		if err != nil {
			log.Errorf("Error decoding legal-moves: %s", err)
			return
		}

		tokens, err := b.Coordinator.LegalMoves(request.MatchId, request.UserId)
		res := comm.LegalMovesRes{Status: "ok", MatchId: request.MatchId, Tokens: tokens}
		if err != nil {
			res.Status = statusFor(err)
			res.Tokens = nil
		}
		b.PublishLegalMoves(res, msg.SocketId)
	case "apply-move":
		var request comm.MoveRequest
		err := json.Unmarshal(msg.Data, &request)
		if err != nil {
			log.Errorf("Error decoding apply-move: %s", err)
			return
		}

		b.handleApplyMove(request, msg.SocketId)
	case "get-state":
		var request comm.StateRequest
		err := json.Unmarshal(msg.Data, &request)
		if err != nil {
			log.Errorf("Error decoding get-state: %s", err)
			return
		}

		snap, err := b.Coordinator.GetState(request.MatchId)
		if err != nil {
			b.PublishState(comm.StateRes{Status: statusFor(err)}, msg.SocketId)
			return
		}
		b.PublishState(comm.StateRes{Status: "ok", Snapshot: snap}, msg.SocketId)
	case "player-disconnected":
		var request struct {
			UserId  int64  `json:"user_id"`
			MatchId string `json:"match_id"`
		}
		err := json.Unmarshal(msg.Data, &request)
		if err != nil {
			log.Errorf("Error decoding player-disconnected: %s", err)
			return
		}

		if err := b.Coordinator.PlayerDisconnected(request.MatchId, request.UserId); err != nil {
			log.Warnf("disconnect for user %d match %s: %s", request.UserId, request.MatchId, err)
		}
	case "abort-match":
		// control-plane message from the lifecycle service
		var request struct {
			MatchId string `json:"match_id"`
		}
		err := json.Unmarshal(msg.Data, &request)
		if err != nil {
			log.Errorf("Error decoding abort-match: %s", err)
			return
		}

		if err := b.Coordinator.AbortMatch(request.MatchId); err != nil {
			if errors.Is(err, ludo.ErrMatchNotFound) {
				// a restart drops waiting matches from the engine; rebuild
				// the refund from the rows so the lifecycle service stops
				// renominating the match
				b.abortOrphanedMatch(request.MatchId)
				return
			}
			log.Warnf("abort for match %s: %s", request.MatchId, err)
		}
	case "player-reconnected":
		var request struct {
			UserId  int64  `json:"user_id"`
			MatchId string `json:"match_id"`
		}
		err := json.Unmarshal(msg.Data, &request)
		if err != nil {
			log.Errorf("Error decoding player-reconnected: %s", err)
			return
		}

		if err := b.Coordinator.PlayerReconnected(request.MatchId, request.UserId); err != nil {
			log.Warnf("reconnect for user %d match %s: %s", request.UserId, request.MatchId, err)
		}
	default:
		log.Error("Unknown message")
		return
	}
}

func (b *Broker) handleCreateMatch(request comm.CreateMatchRequest, socketId string) {
	cfg := ludo.GameConfig{
		Seats:         request.Seats,
		EntryFee:      request.EntryFee,
		CommissionPct: request.CommissionPct,
		Distribution:  ludo.DistributionPolicy(request.Distribution),
	}
	if cfg.Distribution == "" {
		cfg.Distribution = ludo.WinnerTakeAll
	}
	if cfg.Distribution == ludo.RankSplit {
		cfg.SplitBps = []int64{6000, 3000, 1000}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// pool players at the same stake onto one table when an open seat exists
	open, err := b.MatchService.GetOpenMatchByFee(ctx, request.EntryFee, request.Seats)
	if err != nil {
		log.Errorf("Error [MatchService.GetOpenMatchByFee]: %s", err)
	}
	if open != nil && open.Distribution == string(cfg.Distribution) {
		if _, err := b.Coordinator.GetState(open.MatchID); err == nil {
			b.PublishCreateMatchResponse(comm.CreateMatchRes{Status: "ok", MatchId: open.MatchID}, socketId)
			return
		}
	}

	matchID, err := b.Coordinator.CreateMatch(cfg)
	if err != nil {
		log.Errorf("Error [Coordinator.CreateMatch]: %s", err)
		b.PublishCreateMatchResponse(comm.CreateMatchRes{Status: "invalid-config"}, socketId)
		return
	}

	_, err = b.MatchService.CreateMatch(ctx, models.MatchRecord{
		MatchID:       matchID,
		Seats:         request.Seats,
		EntryFee:      request.EntryFee,
		CommissionPct: request.CommissionPct,
		Distribution:  string(cfg.Distribution),
	})
	if err != nil {
		log.Errorf("Error [MatchService.CreateMatch]: %s", err)
		// the in-memory match must not outlive a failed record insert
		b.Coordinator.AbortMatch(matchID)
		b.PublishCreateMatchResponse(comm.CreateMatchRes{Status: "error"}, socketId)
		return
	}

	b.PublishCreateMatchResponse(comm.CreateMatchRes{Status: "ok", MatchId: matchID}, socketId)
}

func (b *Broker) handleSeatPlayer(request comm.SeatRequest, socketId string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rec, err := b.MatchService.GetMatch(ctx, request.MatchId)
	if err != nil {
		log.Errorf("Error [MatchService.GetMatch]: %s", err)
		return
	}
	if rec == nil {
		b.PublishSeatResponse(comm.SeatRes{Status: "match-not-found", MatchId: request.MatchId}, socketId)
		return
	}

	// 1. Check user balance before proceeding
	balance, err := b.BalanceService.GetUserBalance(ctx, request.UserId)
	if err != nil {
		log.Errorf("Error [BalanceService.GetUserBalance]: %s", err)
		return
	}

	fee := decimal.NewFromInt(rec.EntryFee)
	if balance.LessThan(fee) {
		log.Infof("User %d has insufficient balance: %s", request.UserId, balance.StringFixed(2))

		// Publish insufficient balance response
		resp := comm.BalanceStatus{
			Status:    false,
			Timestamp: time.Now().UnixMilli(),
		}

		b.PublishInsufficientBalance(resp, socketId)
		return
	}

	// 2. Claim the seat row; the unique constraints arbitrate races
	_, err = b.MatchPlayerService.SeatPlayer(ctx, request.MatchId, request.UserId, request.Color)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrSeatUnavailable):
			b.PublishSeatResponse(comm.SeatRes{Status: "seat-taken", MatchId: request.MatchId, Color: request.Color}, socketId)
		case errors.Is(err, store.ErrAlreadySeated):
			b.PublishSeatResponse(comm.SeatRes{Status: "already-seated", MatchId: request.MatchId}, socketId)
		case errors.Is(err, store.ErrMatchNotOpen):
			b.PublishSeatResponse(comm.SeatRes{Status: "match-not-open", MatchId: request.MatchId}, socketId)
		default:
			log.Errorf("Error [MatchPlayerService.SeatPlayer]: %s", err)
		}
		return
	}

	// 3. Mirror the seat into the live match
	err = b.Coordinator.SeatPlayer(request.MatchId, request.UserId, request.Name, ludo.PlayerColor(request.Color))
	if err != nil {
		log.Errorf("Error [Coordinator.SeatPlayer]: %s", err)
		b.PublishSeatResponse(comm.SeatRes{Status: statusFor(err), MatchId: request.MatchId}, socketId)
		return
	}

	// 4. Charge the entry fee, idempotent on the tref
	err = b.BalanceService.ChargeEntryFee(ctx, request.UserId, request.MatchId, fee)
	if err != nil {
		log.Errorf("Error [BalanceService.ChargeEntryFee]: %s", err)
	}

	players, err := b.MatchPlayerService.GetPlayersByMatchID(ctx, request.MatchId)
	if err != nil {
		log.Errorf("Error [MatchPlayerService.GetPlayersByMatchID]: %s", err)
	}

	b.PublishSeatBroadcast(comm.SeatRes{
		Status:  "ok",
		MatchId: request.MatchId,
		Color:   request.Color,
		Seated:  len(players),
	}, socketId)

	// 5. Last seat starts the match
	if len(players) == rec.Seats {
		snap, err := b.Coordinator.StartMatch(request.MatchId)
		if err != nil {
			log.Errorf("Error [Coordinator.StartMatch]: %s", err)
			return
		}
		if err := b.MatchService.MarkActive(ctx, request.MatchId); err != nil {
			log.Errorf("Error [MatchService.MarkActive]: %s", err)
		}
		b.PublishMatchStarted(comm.MatchStarted{MatchId: request.MatchId, Snapshot: snap}, socketId)
	}
}

func (b *Broker) handleApplyMove(request comm.MoveRequest, socketId string) {
	move, err := b.Coordinator.ApplyMove(request.MatchId, request.UserId, request.TokenId)
	if err != nil {
		b.PublishMoveResponse(comm.MoveRes{
			Status:  statusFor(err),
			MatchId: request.MatchId,
			UserId:  request.UserId,
		}, socketId)
		return
	}

	b.PublishMoveBroadcast(comm.MoveRes{
		Status:  "ok",
		MatchId: request.MatchId,
		UserId:  request.UserId,
		Move:    move,
	}, socketId)

	if move.Rank > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := b.MatchPlayerService.RecordRank(ctx, request.MatchId, request.UserId, move.Rank, "finished"); err != nil {
			log.Errorf("Error [MatchPlayerService.RecordRank]: %s", err)
		}
	}
}

// statusFor maps engine errors to the wire status vocabulary.
func statusFor(err error) string {
	switch {
	case errors.Is(err, ludo.ErrMatchNotFound):
		return "match-not-found"
	case errors.Is(err, ludo.ErrMatchNotActive):
		return "match-not-active"
	case errors.Is(err, ludo.ErrMatchFull):
		return "match-full"
	case errors.Is(err, ludo.ErrSeatTaken):
		return "seat-taken"
	case errors.Is(err, ludo.ErrNotYourTurn):
		return "not-your-turn"
	case errors.Is(err, ludo.ErrInvalidPhase):
		return "invalid-phase"
	case errors.Is(err, ludo.ErrIllegalMove):
		return "illegal-move"
	case errors.Is(err, ludo.ErrRngUnavailable):
		return "rng-unavailable"
	default:
		return "error"
	}
}

// --- engine event sink ---

// TurnSkipped is called by the coordinator sweeper when a turn times out
// or a forfeited player is passed over.
func (b *Broker) TurnSkipped(matchID string, skipped, next int64, reason string) {
	b.publishBroadcast("turn-changed", comm.TurnChanged{
		MatchId: matchID,
		UserId:  next,
		Reason:  reason,
	}, "")
}

func (b *Broker) PlayerForfeited(matchID string, userID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := b.MatchPlayerService.MarkForfeited(ctx, matchID, userID); err != nil {
		log.Errorf("Error [MatchPlayerService.MarkForfeited]: %s", err)
	}

	b.publishBroadcast("player-forfeited", comm.PlayerForfeited{
		MatchId: matchID,
		UserId:  userID,
	}, "")
}

func (b *Broker) MatchSettled(s ludo.Settlement) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var winner int64
	if len(s.Ranking) > 0 {
		winner = s.Ranking[0]
	}
	if err := b.MatchService.MarkCompleted(ctx, s.MatchID, winner); err != nil {
		log.Errorf("Error [MatchService.MarkCompleted]: %s", err)
	}

	// ranks handed out at match end never pass through apply-move, so the
	// full standings are written here
	for i, uid := range s.Ranking {
		if err := b.MatchPlayerService.RecordRank(ctx, s.MatchID, uid, i+1, "finished"); err != nil {
			log.Errorf("Error [MatchPlayerService.RecordRank]: %s", err)
		}
	}

	b.publishSettlement(s)
}

func (b *Broker) MatchAborted(s ludo.Settlement) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := b.MatchService.MarkAborted(ctx, s.MatchID); err != nil {
		log.Errorf("Error [MatchService.MarkAborted]: %s", err)
	}

	b.publishSettlement(s)
}

// abortOrphanedMatch retires a waiting match the engine no longer tracks,
// rebuilding the refund from the seat rows. The ledger-side trefs keep the
// refund single-shot even if the abort is renominated.
func (b *Broker) abortOrphanedMatch(matchID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rec, err := b.MatchService.GetMatch(ctx, matchID)
	if err != nil {
		log.Errorf("Error [MatchService.GetMatch]: %s", err)
		return
	}
	if rec == nil || rec.Status != "waiting" {
		return
	}

	players, err := b.MatchPlayerService.GetPlayersByMatchID(ctx, matchID)
	if err != nil {
		log.Errorf("Error [MatchPlayerService.GetPlayersByMatchID]: %s", err)
		return
	}
	seated := make([]int64, 0, len(players))
	for _, p := range players {
		seated = append(seated, p.UserID)
	}

	b.MatchAborted(ludo.Refund(matchID, ludo.GameConfig{EntryFee: rec.EntryFee}, seated))
}

func (b *Broker) publishSettlement(s ludo.Settlement) {
	ev := comm.SettlementEvent{
		MatchId:    s.MatchID,
		Aborted:    s.Aborted,
		GrossPool:  s.GrossPool,
		Commission: s.Commission,
		Ranking:    s.Ranking,
		Payouts:    s.Payouts,
		EmittedAt:  time.Now(),
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		log.Errorf("unable to marshal settlement for match %s", s.MatchID)
		return
	}

	b.Publish("settlement.service", payload)

	b.publishBroadcast("match-settled", ev, "")
}

// --- socket-bound publishers ---

func (b *Broker) PublishBalance(p comm.PlayerData, socketId string) {
	b.publishToSocket("balance-resp", p, socketId)
}

func (b *Broker) PublishInitResponse(p comm.PlayerData, socketId string) {
	b.publishToSocket("init-response", p, socketId)
}

func (b *Broker) PublishInsufficientBalance(p comm.BalanceStatus, socketId string) {
	b.publishToSocket("insufficient-balance-response", p, socketId)
}

func (b *Broker) PublishCreateMatchResponse(r comm.CreateMatchRes, socketId string) {
	b.publishToSocket("create-match-response", r, socketId)
}

func (b *Broker) PublishSeatResponse(r comm.SeatRes, socketId string) {
	b.publishToSocket("seat-player-response", r, socketId)
}

func (b *Broker) PublishSeatBroadcast(r comm.SeatRes, socketId string) {
	b.publishBroadcast("seat-player-broadcast", r, socketId)
}

func (b *Broker) PublishMatchStarted(m comm.MatchStarted, socketId string) {
	b.publishBroadcast("match-started", m, socketId)
}

func (b *Broker) PublishRollResponse(r comm.RollRes, socketId string) {
	b.publishToSocket("roll-dice-response", r, socketId)
}

func (b *Broker) PublishRollBroadcast(r comm.RollRes, socketId string) {
	b.publishBroadcast("roll-dice-broadcast", r, socketId)
}

func (b *Broker) PublishLegalMoves(r comm.LegalMovesRes, socketId string) {
	b.publishToSocket("legal-moves-response", r, socketId)
}

func (b *Broker) PublishMoveResponse(r comm.MoveRes, socketId string) {
	b.publishToSocket("apply-move-response", r, socketId)
}

func (b *Broker) PublishMoveBroadcast(r comm.MoveRes, socketId string) {
	b.publishBroadcast("apply-move-broadcast", r, socketId)
}

func (b *Broker) PublishState(r comm.StateRes, socketId string) {
	b.publishToSocket("get-state-response", r, socketId)
}

// publishToSocket wraps the payload for the socket service, addressed to
// one socket.
func (b *Broker) publishToSocket(msgType string, v interface{}, socketId string) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Errorf("[%s] unable to marshal payload", msgType)
		return
	}

	msg := &comm.WSMessage{
		Type:     msgType,
		Data:     data,
		SocketId: socketId,
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("Error %s", err)
		return
	}

	b.Publish("game.service", payload)
}

// publishBroadcast wraps the payload for the socket service to fan out to
// every socket in the match room.
func (b *Broker) publishBroadcast(msgType string, v interface{}, socketId string) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Errorf("[%s] unable to marshal payload", msgType)
		return
	}

	msg := &comm.WSMessage{
		Type:     msgType,
		Data:     data,
		SocketId: socketId,
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("Error %s", err)
		return
	}

	b.Publish("game.service", payload)
}

// consume message from socket service
func (b *Broker) SubscribSocketService(topic string) (*nats.Subscription, error) {
	sub, err := b.Conn.Subscribe(topic, b.handleMessage)
	if err != nil {
		return nil, err
	}

	return sub, nil
}

// Publish sends a payload for the socket (or settlement) service to consume.
func (b *Broker) Publish(topic string, payload []byte) error {
	err := b.Conn.Publish(topic, payload)
	if err != nil {
		log.Errorf("Error publishing to topic %s: %s", topic, err)
		return err
	}

	return nil
}
