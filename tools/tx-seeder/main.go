// tx-seeder runs a local stand-in for the Vendista transactions API, serving
// generated data over the same wire format. Point the backend at it with
// VENDHUB_VENDISTA_BASE_URL for development without real credentials.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

type seededTx struct {
	ID          int64   `json:"id"`
	TermID      int64   `json:"term_id"`
	Time        string  `json:"time"`
	Sum         int     `json:"sum"`
	ProductName string  `json:"product_name"`
	CardNumber  string  `json:"card_number"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

type page struct {
	Items        []seededTx `json:"items"`
	ItemsCount   int        `json:"items_count"`
	ItemsPerPage int        `json:"items_per_page"`
	PageNumber   int        `json:"page_number"`
	Success      bool       `json:"success"`
}

func generate(count, terminals int, seed int64) []seededTx {
	faker := gofakeit.New(seed)

	txs := make([]seededTx, count)
	base := time.Now().UTC().AddDate(0, -1, 0)
	for i := range txs {
		txs[i] = seededTx{
			ID:          int64(1000 + i),
			TermID:      int64(1 + faker.IntRange(0, terminals-1)),
			Time:        base.Add(time.Duration(i) * 13 * time.Minute).Format("2006-01-02T15:04:05"),
			Sum:         faker.IntRange(50, 500) * 100,
			ProductName: faker.BeerName(),
			CardNumber:  faker.CreditCardNumber(nil),
			Latitude:    faker.Latitude(),
			Longitude:   faker.Longitude(),
		}
	}
	return txs
}

func intQuery(r *http.Request, name, fallback string) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		raw = fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		n, _ = strconv.Atoi(fallback)
	}
	return n
}

func main() {
	addr := flag.String("addr", ":9090", "listen address")
	count := flag.Int("count", 500, "number of transactions to generate")
	terminals := flag.Int("terminals", 8, "number of distinct terminals")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	txs := generate(*count, *terminals, *seed)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /transactions", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") == "" {
			http.Error(w, `{"success":false}`, http.StatusForbidden)
			return
		}

		perPage := intQuery(r, "ItemsPerPage", "50")
		pageNumber := intQuery(r, "PageNumber", "1")

		start := (pageNumber - 1) * perPage
		end := start + perPage
		if start > len(txs) {
			start = len(txs)
		}
		if end > len(txs) {
			end = len(txs)
		}

		resp := page{
			Items:        txs[start:end],
			ItemsCount:   len(txs),
			ItemsPerPage: perPage,
			PageNumber:   pageNumber,
			Success:      true,
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Printf("encode response: %v", err)
		}
	})

	fmt.Printf("tx-seeder listening on %s with %d transactions across %d terminals\n",
		*addr, len(txs), *terminals)
	log.Fatal(http.ListenAndServe(*addr, mux))
}
