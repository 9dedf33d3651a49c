package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-invoice/internal/client"
	"github.com/noah-isme/backend-invoice/internal/config"
	"github.com/noah-isme/backend-invoice/internal/db"
	"github.com/noah-isme/backend-invoice/internal/invoice"
	"github.com/noah-isme/backend-invoice/internal/lock"
	"github.com/noah-isme/backend-invoice/internal/payment"
	"github.com/noah-isme/backend-invoice/internal/profile"
	"github.com/noah-isme/backend-invoice/internal/totals"
)

func main() {
	userID := flag.String("user", "", "owner of the seeded data; a random UUID when empty")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	owner := *userID
	if owner == "" {
		owner = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer pool.Close()
	store := db.NewStore(pool)

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("parse redis url: %v", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	invoices := invoice.NewService(invoice.ServiceConfig{
		Store:        store,
		Locker:       lock.Locker{R: redisClient, Prefix: "lock:", RetryBackoff: cfg.LockRetryBackoff},
		NumberPrefix: cfg.InvoiceNumberPrefix,
		Currency:     cfg.CurrencyCode,
		LockTTL:      cfg.LockTTL,
	})
	payments := payment.NewService(payment.ServiceConfig{Store: store})
	clients := client.NewService(store)

	if _, err := profile.NewService(store).Update(ctx, owner, profile.Input{
		BusinessName: "Sample Studio",
		Email:        "billing@sample.example",
		Address:      "12 Market Road, Pune",
		GST:          "27ABCDE1234F1Z5",
	}); err != nil {
		log.Fatalf("seed profile: %v", err)
	}

	acme, err := clients.Create(ctx, owner, client.Input{Name: "Acme Traders", Email: "accounts@acme.example", GST: "29AAACA1234A1Z5"})
	if err != nil {
		log.Fatalf("seed client: %v", err)
	}
	globex, err := clients.Create(ctx, owner, client.Input{Name: "Globex Retail", Phone: "+91 98200 00000"})
	if err != nil {
		log.Fatalf("seed client: %v", err)
	}

	today := time.Now().UTC()
	day := func(offset int) string { return today.AddDate(0, 0, offset).Format("2006-01-02") }

	seeds := []struct {
		clientID string
		items    []totals.LineItem
		paid     string
		cancel   bool
	}{
		{
			clientID: acme.ID,
			items: []totals.LineItem{
				{Description: "Website design", Quantity: totals.Text("1"), UnitPrice: totals.Text("45000"), TaxRate: totals.Text("18")},
				{Description: "Hosting (12 months)", Quantity: totals.Text("12"), UnitPrice: totals.Text("899"), Discount: totals.Text("50"), TaxRate: totals.Text("18")},
			},
		},
		{
			clientID: acme.ID,
			items: []totals.LineItem{
				{Description: "Support retainer", Quantity: totals.Text("10"), UnitPrice: totals.Text("1500"), TaxRate: totals.Text("18")},
			},
			paid: "5000",
		},
		{
			clientID: globex.ID,
			items: []totals.LineItem{
				{Description: "Product photography", Quantity: totals.Text("40"), UnitPrice: totals.Text("250"), Discount: totals.Text("25"), TaxRate: totals.Text("12")},
			},
			paid: "full",
		},
		{
			clientID: globex.ID,
			items: []totals.LineItem{
				{Description: "Print catalogue", Quantity: totals.Text("500"), UnitPrice: totals.Text("42.5"), TaxRate: totals.Text("5")},
			},
			cancel: true,
		},
	}

	for i, seed := range seeds {
		inv, err := invoices.Create(ctx, owner, invoice.Input{
			ClientID:    seed.clientID,
			InvoiceDate: day(-10 * (i + 1)),
			DueDate:     day(-10*(i+1) + 15),
			Items:       seed.items,
		})
		if err != nil {
			log.Fatalf("seed invoice %d: %v", i+1, err)
		}
		switch {
		case seed.cancel:
			if _, err := invoices.Cancel(ctx, owner, inv.ID); err != nil {
				log.Fatalf("cancel invoice %s: %v", inv.InvoiceNumber, err)
			}
		case seed.paid != "":
			amount := totals.Text(seed.paid)
			if seed.paid == "full" {
				amount = totals.Dec(inv.Totals.GrandTotal)
			}
			if _, err := payments.Record(ctx, owner, inv.ID, payment.Input{PaymentDate: day(-5), Amount: amount, Mode: "UPI"}); err != nil {
				log.Fatalf("pay invoice %s: %v", inv.InvoiceNumber, err)
			}
		}
		fmt.Printf("%s  %s  %s\n", inv.InvoiceNumber, inv.Totals.Display().GrandTotal, inv.Currency)
	}
	log.Printf("seeded %d invoices for user %s", len(seeds), owner)
}
