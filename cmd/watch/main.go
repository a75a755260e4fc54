// Command watch renders the order board in a terminal. It reuses the
// session persisted by the server, so a display can be sanity-checked from
// a shell without a browser.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/men4u/cds/internal/classify"
	"github.com/men4u/cds/internal/config"
	"github.com/men4u/cds/internal/enum"
	"github.com/men4u/cds/internal/session"
	"github.com/men4u/cds/internal/upstream"
)

func main() {
	outletID := flag.Int64("outlet", 0, "outlet to display (defaults to the session's outlet)")
	follow := flag.Bool("follow", false, "keep refreshing at the poll interval")
	flag.Parse()

	cfg := config.Load()

	store, err := session.NewFileStore(cfg.SessionFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open session store: %v\n", err)
		os.Exit(1)
	}

	rec, ok := store.Get()
	if !ok {
		fmt.Fprintln(os.Stderr, "not logged in; start the server and complete the OTP login first")
		os.Exit(1)
	}

	oid := *outletID
	if oid == 0 {
		oid = rec.OutletID
	}

	client := upstream.NewClient(cfg.UpstreamURL, cfg.LegacyURL)
	policy := classify.ParsePolicy(cfg.ClassifyPolicy)

	for {
		if err := render(client, rec, store.Filter(), oid, policy); err != nil {
			fmt.Fprintf(os.Stderr, "fetch: %v\n", err)
			if !*follow {
				os.Exit(1)
			}
		}
		if !*follow {
			return
		}
		time.Sleep(cfg.PollInterval)
	}
}

func render(client *upstream.Client, rec session.Record, filter session.Filter, oid int64, policy classify.Policy) error {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	resp, err := client.OrderListView(ctx, rec.AccessToken, upstream.OrderListRequest{
		OutletID:   oid,
		DateFilter: filter.Type,
		StartDate:  filter.Start,
		EndDate:    filter.End,
		OwnerID:    rec.OwnerID,
		AppSource:  enum.AppSource,
	})
	if err != nil {
		return err
	}

	orders, err := classify.Classify(&resp, policy)
	if err != nil {
		return err
	}

	name := classify.OutletName(&resp)
	if name == "" {
		name = fmt.Sprintf("outlet %d", oid)
	}
	fmt.Printf("\n%s  [%s]  %s\n", name, filter.Type, time.Now().Format("15:04:05"))

	for _, bucket := range []string{enum.BucketPlaced, enum.BucketOngoing, enum.BucketCompleted} {
		fmt.Printf("\n== %s ==\n", strings.ToUpper(bucket))
		empty := true
		for _, o := range orders {
			if o.Bucket != bucket {
				continue
			}
			empty = false
			tables := strings.Join(o.TableNumbers, ",")
			if tables == "" {
				tables = "-"
			}
			fmt.Printf("  #%s  table %s  %s  (%d items)\n", o.OrderNumber, tables, o.GrandTotal.StringFixed(2), len(o.Items))
		}
		if empty {
			fmt.Println("  (none)")
		}
	}
	return nil
}
