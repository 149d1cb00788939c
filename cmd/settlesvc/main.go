package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	config "github.com/ludopro/ludo-services/configs"
	"github.com/ludopro/ludo-services/internal/comm"
	"github.com/ludopro/ludo-services/internal/gamesvc/db"
	natscli "github.com/ludopro/ludo-services/internal/nats"
	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const SERVICE_NAME = "settle"

var instanceId string

func init() {
	instanceId = "001"
	config.Logging(SERVICE_NAME + "_service_" + instanceId)
	config.LoadEnv(SERVICE_NAME)
}

// TelegramNotifier handles sending notifications to multiple users
type TelegramNotifier struct {
	bot     *tgbotapi.BotAPI
	chatIDs []int64
}

// NewTelegramNotifier creates a new Telegram notifier
func NewTelegramNotifier(botToken string, chatIDs []int64) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %v", err)
	}

	return &TelegramNotifier{
		bot:     bot,
		chatIDs: chatIDs,
	}, nil
}

// SendNotification sends a message to all configured chat IDs
func (tn *TelegramNotifier) SendNotification(message string) {
	if tn == nil || tn.bot == nil {
		return
	}

	for _, chatID := range tn.chatIDs {
		go func(cid int64) {
			msg := tgbotapi.NewMessage(cid, message)
			msg.ParseMode = "Markdown"
			if _, err := tn.bot.Send(msg); err != nil {
				log.Errorf("Failed to send telegram message to chat %d: %v", cid, err)
			}
		}(chatID)
	}
}

// Initialize Telegram notifier
func initTelegramNotifier() *TelegramNotifier {
	botToken := os.Getenv("TELEGRAM_BOT_TOKEN")
	if botToken == "" {
		log.Warn("TELEGRAM_BOT_TOKEN not set, notifications disabled")
		return nil
	}

	// Parse chat IDs from environment variables
	var chatIDs []int64
	for i := 1; i <= 3; i++ {
		chatIDStr := os.Getenv(fmt.Sprintf("TELEGRAM_CHAT_ID_%d", i))
		if chatIDStr != "" {
			if chatID, err := strconv.ParseInt(chatIDStr, 10, 64); err == nil {
				chatIDs = append(chatIDs, chatID)
			} else {
				log.Errorf("Invalid TELEGRAM_CHAT_ID_%d format: %v", i, err)
			}
		}
	}

	if len(chatIDs) == 0 {
		log.Warn("No valid telegram chat IDs found, notifications disabled")
		return nil
	}

	notifier, err := NewTelegramNotifier(botToken, chatIDs)
	if err != nil {
		log.Errorf("Failed to initialize Telegram notifier: %v", err)
		return nil
	}

	log.Infof("Telegram notifier initialized with %d chat IDs", len(chatIDs))
	return notifier
}

var telegramNotifier *TelegramNotifier

func main() {
	// Initialize Telegram notifier
	telegramNotifier = initTelegramNotifier()

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

	// Subscribe to settlement instructions from the game engine
	_, err = nc.Conn.Subscribe("settlement.service", func(m *nats.Msg) {
		handleSettlement(dbpool, m)
	})
	if err != nil {
		log.Fatalf("Subscribe settlement.service error: %v", err)
	}

	select {}
}

func handleSettlement(pool *pgxpool.Pool, msg *nats.Msg) {
	var ev comm.SettlementEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		log.Errorf("invalid SettlementEvent: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	applied, err := applySettlement(ctx, pool, ev)
	if err != nil {
		log.Errorf("apply settlement for match %s: %v", ev.MatchId, err)
		return
	}
	if !applied {
		log.Infof("settlement for match %s already applied, skipping", ev.MatchId)
		return
	}

	notifySettlement(ev)
}

// applySettlement posts every payout of one settlement in a single
// transaction. The per-payout tref makes redelivery a no-op: false means
// the match was already settled.
func applySettlement(ctx context.Context, pool *pgxpool.Pool, ev comm.SettlementEvent) (bool, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	ttype := "prize"
	if ev.Aborted {
		ttype = "refund"
	}

	applied := false
	for _, p := range ev.Payouts {
		tref := fmt.Sprintf("LUDO-%s-%d", ev.MatchId, p.UserID)

		var exists bool
		err = tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM balances WHERE tref = $1)`,
			tref,
		).Scan(&exists)
		if err != nil {
			return false, fmt.Errorf("idempotency check: %w", err)
		}
		if exists {
			continue
		}

		amount := decimal.NewFromInt(p.Amount)
		_, err = tx.Exec(ctx, `
			INSERT INTO balances (user_id, ttype, dr, cr, tref, status)
			VALUES ($1, $2, $3, 0, $4, 'completed')
		`, p.UserID, ttype, amount, tref)
		if err != nil {
			return false, fmt.Errorf("insert payout for user %d: %w", p.UserID, err)
		}
		applied = true
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}
	return applied, nil
}

func notifySettlement(ev comm.SettlementEvent) {
	if telegramNotifier == nil {
		return
	}

	kind := "SETTLEMENT"
	if ev.Aborted {
		kind = "REFUND"
	}

	message := fmt.Sprintf(
		"*%s*\n\n"+
			"*Match:* %s\n"+
			"*Gross Pool:* %d\n"+
			"*Commission:* %d\n"+
			"*Payouts:* %d\n"+
			"*Time:* %s",
		kind,
		ev.MatchId,
		ev.GrossPool,
		ev.Commission,
		len(ev.Payouts),
		time.Now().Format("2006-01-02 15:04:05"),
	)
	telegramNotifier.SendNotification(message)
}
