package main

import (
	"context"
	"flag"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kkkkikiki/promotion/internal/config"
	"github.com/kkkkikiki/promotion/internal/database"
	"github.com/kkkkikiki/promotion/internal/logger"
	"github.com/kkkkikiki/promotion/internal/repository"
	"github.com/kkkkikiki/promotion/internal/seed"
)

func main() {
	defaults := seed.DefaultOptions()

	name := flag.String("name", defaults.Name, "campaign name")
	capacity := flag.Int("max-participants", int(defaults.MaxParticipants), "campaign capacity")
	percentage := flag.String("discount", defaults.DiscountPercentage.String(), "discount percentage")
	minTopup := flag.String("min-topup", defaults.MinTopupAmount.String(), "minimum top-up amount")
	maxDiscount := flag.String("max-discount", defaults.MaxDiscountAmount.Decimal.String(), "discount cap, 0 for none")
	validity := flag.Int("validity-days", defaults.VoucherValidityDays, "voucher validity in days")
	duration := flag.Duration("duration", defaults.Duration, "campaign duration")
	force := flag.Bool("force", false, "create even if an active campaign exists")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		zap.NewExample().Fatal("failed to load config", zap.Error(err))
	}
	log := logger.New(cfg).Named("seeder")
	defer log.Sync() //nolint:errcheck

	opts := seed.Options{
		Name:                *name,
		MaxParticipants:     int32(*capacity),
		DiscountPercentage:  mustDecimal(log, "discount", *percentage),
		MinTopupAmount:      mustDecimal(log, "min-topup", *minTopup),
		VoucherValidityDays: *validity,
		Duration:            *duration,
	}
	if limit := mustDecimal(log, "max-discount", *maxDiscount); limit.IsPositive() {
		opts.MaxDiscountAmount = decimal.NewNullDecimal(limit)
	}

	postgres, err := database.NewPostgres(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer postgres.Close()

	st := repository.NewStore(postgres, cfg.Database.LockTimeout())

	if *force {
		if _, err := seed.CreateCampaign(ctx, st, time.Now(), opts, log); err != nil {
			log.Fatal("failed to seed campaign", zap.Error(err))
		}
		return
	}
	if _, _, err := seed.EnsureCampaign(ctx, st, time.Now(), opts, log); err != nil {
		log.Fatal("failed to seed campaign", zap.Error(err))
	}
}

func mustDecimal(log *zap.Logger, flagName, value string) decimal.Decimal {
	d, err := decimal.NewFromString(value)
	if err != nil {
		log.Fatal("invalid decimal flag", zap.String("flag", flagName), zap.String("value", value), zap.Error(err))
	}
	return d
}
