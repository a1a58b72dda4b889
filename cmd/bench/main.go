// bench drives concurrent transaction creates against a running API server
// and reports throughput, latency percentiles and conflict counts. After the
// run it recounts stored transactions to verify none were lost.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type benchConfig struct {
	addr     string
	token    string
	writers  int
	duration time.Duration
	accounts int
}

type client struct {
	http  *http.Client
	addr  string
	token string
}

func (c *client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.addr+path, rd)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	} else {
		io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode, nil
}

type idResponse struct {
	ID string `json:"id"`
}

type stats struct {
	success   atomic.Int64
	conflicts atomic.Int64
	failures  atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (s *stats) record(d time.Duration) {
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.mu.Unlock()
}

func (s *stats) percentile(p float64) time.Duration {
	if len(s.latencies) == 0 {
		return 0
	}
	idx := int(float64(len(s.latencies)-1) * p)
	return s.latencies[idx]
}

func main() {
	cfg := benchConfig{}
	flag.StringVar(&cfg.addr, "addr", "http://localhost:8080", "API base URL")
	flag.StringVar(&cfg.token, "token", os.Getenv("BENCH_TOKEN"), "bearer token (defaults to BENCH_TOKEN)")
	flag.IntVar(&cfg.writers, "writers", 16, "concurrent writer goroutines")
	flag.DurationVar(&cfg.duration, "duration", 30*time.Second, "benchmark duration")
	flag.IntVar(&cfg.accounts, "accounts", 8, "account fan-out")
	flag.Parse()

	if cfg.token == "" {
		fmt.Fprintln(os.Stderr, "bench: a token is required (flag -token or BENCH_TOKEN); see cmd/devtoken")
		os.Exit(1)
	}
	if cfg.accounts < 2 {
		fmt.Fprintln(os.Stderr, "bench: at least two accounts are required")
		os.Exit(1)
	}

	ctx := context.Background()
	c := &client{
		http:  &http.Client{Timeout: 30 * time.Second},
		addr:  cfg.addr,
		token: cfg.token,
	}

	ledgerID, accountIDs, err := setup(ctx, c, cfg.accounts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bench: setup failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("ledger %s with %d accounts\n", ledgerID, len(accountIDs))

	st := &stats{}
	runCtx, cancel := context.WithTimeout(ctx, cfg.duration)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	for w := 0; w < cfg.writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			writer(runCtx, c, ledgerID, accountIDs, st)
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	sort.Slice(st.latencies, func(i, j int) bool { return st.latencies[i] < st.latencies[j] })

	success := st.success.Load()
	fmt.Printf("\nwriters:     %d\n", cfg.writers)
	fmt.Printf("duration:    %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("created:     %d (%.1f/s)\n", success, float64(success)/elapsed.Seconds())
	fmt.Printf("conflicts:   %d\n", st.conflicts.Load())
	fmt.Printf("failures:    %d\n", st.failures.Load())
	fmt.Printf("latency p50: %s\n", st.percentile(0.50).Round(time.Microsecond))
	fmt.Printf("latency p95: %s\n", st.percentile(0.95).Round(time.Microsecond))
	fmt.Printf("latency p99: %s\n", st.percentile(0.99).Round(time.Microsecond))

	stored, err := recount(ctx, c, ledgerID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bench: recount failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("recounted:   %d stored transactions\n", stored)
	if stored != success {
		fmt.Fprintf(os.Stderr, "bench: LOST TRANSACTIONS: created %d, stored %d\n", success, stored)
		os.Exit(1)
	}
	fmt.Println("recount matches; no transactions lost")
}

// setup creates a dedicated ledger and its benchmark accounts.
func setup(ctx context.Context, c *client, accounts int) (string, []string, error) {
	var l idResponse
	status, err := c.do(ctx, http.MethodPost, "/api/ledgers", map[string]any{
		"name":             fmt.Sprintf("bench-%s", uuid.NewString()[:8]),
		"currency":         "USD",
		"currencyExponent": 2,
	}, &l)
	if err != nil {
		return "", nil, err
	}
	if status != http.StatusCreated {
		return "", nil, fmt.Errorf("ledger create returned %d", status)
	}

	ids := make([]string, accounts)
	for i := range ids {
		normal := "debit"
		if i%2 == 1 {
			normal = "credit"
		}
		var a idResponse
		status, err := c.do(ctx, http.MethodPost, "/api/ledgers/"+l.ID+"/accounts", map[string]any{
			"name":          fmt.Sprintf("bench-account-%d", i),
			"normalBalance": normal,
		}, &a)
		if err != nil {
			return "", nil, err
		}
		if status != http.StatusCreated {
			return "", nil, fmt.Errorf("account create returned %d", status)
		}
		ids[i] = a.ID
	}
	return l.ID, ids, nil
}

// writer creates transactions between random account pairs until the
// context expires. Contention on popular accounts is the point.
func writer(ctx context.Context, c *client, ledgerID string, accountIDs []string, st *stats) {
	for {
		if ctx.Err() != nil {
			return
		}

		from := rand.Intn(len(accountIDs))
		to := rand.Intn(len(accountIDs) - 1)
		if to >= from {
			to++
		}
		amount := rand.Int63n(100_000) + 1

		body := map[string]any{
			"status":         "posted",
			"idempotencyKey": uuid.NewString(),
			"ledgerEntries": []map[string]any{
				{"accountId": accountIDs[from], "direction": "debit", "amount": amount},
				{"accountId": accountIDs[to], "direction": "credit", "amount": amount},
			},
		}

		begin := time.Now()
		status, err := c.do(ctx, http.MethodPost, "/api/ledgers/"+ledgerID+"/transactions", body, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			st.failures.Add(1)
			continue
		}

		switch {
		case status == http.StatusOK:
			st.success.Add(1)
			st.record(time.Since(begin))
		case status == http.StatusConflict:
			st.conflicts.Add(1)
		default:
			st.failures.Add(1)
		}
	}
}

// recount pages through the stored transactions, counting them all.
func recount(ctx context.Context, c *client, ledgerID string) (int64, error) {
	const page = 500
	var total int64
	for offset := 0; ; offset += page {
		var resp struct {
			Transactions []idResponse `json:"transactions"`
		}
		path := fmt.Sprintf("/api/ledgers/%s/transactions?limit=%d&offset=%d", ledgerID, page, offset)
		status, err := c.do(ctx, http.MethodGet, path, nil, &resp)
		if err != nil {
			return 0, err
		}
		if status != http.StatusOK {
			return 0, fmt.Errorf("transaction list returned %d", status)
		}
		total += int64(len(resp.Transactions))
		if len(resp.Transactions) < page {
			return total, nil
		}
	}
}
