// Package credits is the credit and plan accounting engine of an AI image and
// video studio.
//
// Credits is a library first. Import it into a Go service and put it in front
// of whichever generation providers you call. It provides:
//
//   - Per-email accounts seeded with a free trial grant on first login
//   - Subscriptions that expire 30 days after purchase and one-time top-ups
//   - One or several credit pools, debited oldest purchase first
//   - A login throttle for Free accounts
//   - Optimistic concurrency, so instances sharing a store never double-spend
//   - Audit and metrics hooks through the plugin registry
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/credits"
//	    "github.com/xraph/credits/store/memory"
//	)
//
//	l, err := credits.New(memory.New())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := l.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Stop(ctx)
//
//	sess, err := l.Login(ctx, "ada@example.com")
//	sum, err := sess.Summary(ctx)
//	fmt.Println(sum.ActivePlan, sum.Balances)
//
// # Core Concepts
//
// The catalog lists what can be bought. Every plan grants credits per pool:
//
//	pro, _ := l.Catalog().Get("pro")
//	_, err = sess.PurchasePlan(ctx, pro.ID, credits.WithIdempotencyKey(checkoutID))
//
// Costs are looked up before a generation and deducted after it succeeded:
//
//	q, err := l.CreditCost(pricing.ProviderImagen, pricing.QualityHD, pricing.MediaImage)
//	ok, err := sess.DeductCredits(ctx, q.Credits, q.Pool)
//
// A deduction is all-or-nothing. When the pool is short it reports false and
// nothing changes. The generate package wraps the whole check, call, deduct
// sequence.
//
// # Storage
//
// Accounts are JSON records in a key-value store.Store keyed by email.
// Backends live under store/: memory, redis, sqlite, postgres, mongo and a
// database/sql one. Every write carries the version it was read at, and a
// stale write is retried from a fresh read. When the store is down the
// change stays in memory for the rest of the session and OnPersistFailed is
// emitted.
//
// # Surfaces
//
// checkout applies payment-page redirects, httpapi serves the ledger as
// JSON over gorilla/mux, extension plugs it into a Forge app and
// cmd/creditsd runs it standalone.
//
// # TypeID
//
// Purchases, deductions, sessions and generations carry TypeIDs:
//
//	pur_01h2xcejqtf2nbrexx3vqjhp41  // Purchase ID
//	ded_01h2xcejqtf2nbrexx3vqjhp41  // Deduction ID
//	ses_01h455vb4pex5vsknk084sn02q  // Session ID
package credits
