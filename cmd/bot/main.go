package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/avetra/funnel-bot/internal/assistant"
	"github.com/avetra/funnel-bot/internal/bot"
	"github.com/avetra/funnel-bot/internal/entitlements"
	"github.com/avetra/funnel-bot/internal/funnel"
	"github.com/avetra/funnel-bot/internal/getcourse"
	"github.com/avetra/funnel-bot/internal/payments"
	"github.com/avetra/funnel-bot/internal/referral"
	"github.com/avetra/funnel-bot/internal/sched"
	"github.com/avetra/funnel-bot/internal/storage"
	"github.com/avetra/funnel-bot/internal/telegram"
	"github.com/avetra/funnel-bot/internal/webhook"
	"github.com/avetra/funnel-bot/pkg/config"
)

const stageSweepInterval = 10 * time.Second

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	configPath := "config.yaml"
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		configPath = p
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", configPath))
	}

	loc, err := time.LoadLocation(cfg.Funnel.Timezone)
	if err != nil {
		logger.Fatal("Failed to load timezone", zap.Error(err), zap.String("tz", cfg.Funnel.Timezone))
	}

	// Initialize storage
	var store storage.Storage
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	} else {
		logger.Info("Using PostgreSQL storage")
		store, err = storage.NewPostgresStorage(storage.DatabaseConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer store.Close()

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal("Failed to create bot api", zap.Error(err))
	}
	logger.Info("Authorized on account", zap.String("username", api.Self.UserName))

	sender := telegram.NewSender(api, store, logger)

	commerce := getcourse.NewClient(cfg.GetCourse.APIURL, cfg.GetCourse.APIKey, cfg.GetCourse.BalanceURL, logger)
	entitlementSvc := entitlements.NewService(store, cfg.Funnel.PermanentIDs, logger)
	referralSvc := referral.NewService(store, commerce, cfg.Funnel.ReferralBonus, logger)

	ai := assistant.NewClient(
		cfg.OpenAI.APIKey,
		cfg.OpenAI.AssistantID,
		time.Duration(cfg.OpenAI.RunTimeoutSeconds)*time.Second,
		logger,
	)
	registry := assistant.NewRegistry(store, ai, loc, logger)

	// The bot is also the stage/promo sender and the payment notifier,
	// so the tracker is wired up after it.
	tracker := funnel.NewTracker(store, nil, logger)

	b := bot.New(api, bot.Deps{
		Store:        store,
		Sender:       sender,
		Tracker:      tracker,
		Entitlements: entitlementSvc,
		Referrals:    referralSvc,
		Registry:     registry,
		AI:           ai,
		Commerce:     commerce,
		Prices: bot.TariffPrices{
			Basic:      cfg.Funnel.PriceBasic,
			VIP:        cfg.Funnel.PriceVIP,
			Course:     cfg.Funnel.PriceCourse,
			OfferBasic: cfg.Funnel.OfferBasic,
			OfferVIP:   cfg.Funnel.OfferVIP,
			OfferCrs:   cfg.Funnel.OfferCourse,
		},
		BonusUnit:  cfg.Funnel.ReferralBonus,
		AdminIDs:   cfg.Telegram.AdminIDs,
		ContentDir: cfg.Funnel.ContentDir,
	}, logger)
	tracker.SetSender(b)

	reconciler := payments.NewReconciler(store, entitlementSvc, referralSvc, b, cfg.Funnel.ReferralBonus, logger)
	webhookSrv := webhook.NewServer(cfg.Webhook.Addr, reconciler, logger)

	promoSweep := sched.NewPromoSweep(store, b, "intro", promoCutovers(), cfg.Funnel.PromoResetDates, loc, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return b.Start(ctx) })
	g.Go(func() error { return webhookSrv.Run(ctx) })
	g.Go(func() error {
		return sched.Run(ctx, logger, "stage_sweep", stageSweepInterval, tracker.Sweep)
	})
	g.Go(func() error {
		return sched.Run(ctx, logger, "promo_sweep", sched.PromoInterval, promoSweep.Tick)
	})
	g.Go(func() error { return sched.ThreadResetLoop(ctx, registry, loc, logger) })
	g.Go(func() error {
		return sched.ReportLoop(ctx, b, cfg.Funnel.ReportHour, cfg.Funnel.ReportMinute, loc, logger)
	})

	logger.Info("Bot started")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("Bot stopped with error", zap.Error(err))
	}
	logger.Info("Bot stopped")
}

// promoCutovers lists the dates each promo creative goes live.
func promoCutovers() []sched.Creative {
	return []sched.Creative{
		{From: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), Name: "summer"},
		{From: time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC), Name: "autumn"},
	}
}
