package main

import (
	"context"
	"os"
	"time"

	tg "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"studybot/cache"
	"studybot/db"
	"studybot/form"
	"studybot/reminder"
	"studybot/tgbot"
)

type config struct {
	Token     string
	DBConnStr string
	RedisAddr string
	Timezone  string
}

// readConfig loads the environment, optionally from a .env file.
func readConfig(logger *zap.SugaredLogger) config {
	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file, using process environment")
	}

	cfg := config{
		Token:     os.Getenv("TOKEN"),
		DBConnStr: os.Getenv("POSTGRES_CONNECTION_STRING"),
		RedisAddr: os.Getenv("REDIS_ADDR"),
		Timezone:  os.Getenv("BOT_TIMEZONE"),
	}

	if cfg.Token == "" {
		logger.Fatal("TOKEN isn't set")
	}
	if cfg.DBConnStr == "" {
		logger.Fatal("POSTGRES_CONNECTION_STRING isn't set")
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}

	return cfg
}

func main() {
	zl, _ := zap.NewDevelopment()
	defer zl.Sync()
	logger := zl.Sugar()

	cfg := readConfig(logger)

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Fatalw("failed loading time zone", "tz", cfg.Timezone, "err", err)
	}

	d, err := db.NewDatabase(cfg.DBConnStr)
	if err != nil {
		logger.Fatalw("failed to initialize database", "err", err)
	}
	if err := d.Migrate(); err != nil {
		logger.Fatalw("failed to migrate database", "err", err)
	}

	// reference data is served straight from the DB when Redis isn't there
	var refs tgbot.RefSource = d
	if cfg.RedisAddr != "" {
		c, err := cache.New(cfg.RedisAddr, d, logger)
		if err != nil {
			logger.Warnw("redis unavailable, serving menus from the database", "err", err)
		} else {
			refs = c
		}
	}

	b, err := tgbot.NewTBot(cfg.Token, d, refs, logger)
	if err != nil {
		logger.Fatalw("failed to initialize Telegram Bot", "err", err)
	}

	b.Form = form.NewEngine(d, d, b, loc, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go b.Form.Run(ctx)
	go reminder.NewScheduler(d, d, b, logger).Run(ctx)

	uCfg := tg.NewUpdate(0)
	uCfg.Timeout = 60

	for u := range b.Bot.GetUpdatesChan(uCfg) {
		switch {
		case u.CallbackQuery != nil:
			go b.HandleCallback(u.CallbackQuery)
		case u.Message != nil && u.Message.IsCommand():
			go b.HandleCommand(u.Message)
		case u.Message != nil:
			go b.HandleMessage(u.Message)
		}
	}
}
