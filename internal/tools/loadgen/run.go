package loadgen

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

type Config struct {
	BaseURL     string
	Profile     string
	Duration    time.Duration
	RPS         int
	Concurrency int
	Seed        int64
}

type Result struct {
	TotalRequests int64
	Failures      int64
	ByStatusClass map[string]int64
}

// profiles lists the BFF paths each traffic profile hits.
var profiles = map[string][]string{
	"session":   {"/api/v1/session"},
	"guest":     {"/listings", "/listings/featured", "/api/v1/session"},
	"protected": {"/my", "/agency/listings", "/premium/reports"},
	"health":    {"/health/live", "/health/ready"},
}

// Run drives GET traffic against a running BFF. Redirects are counted, not
// followed, so protected areas report 3xx for signed-out sessions.
func Run(ctx context.Context, cfg Config) (Result, error) {
	cfg.Profile = normalizeProfile(cfg.Profile)
	paths, err := pathsFor(cfg.Profile)
	if err != nil {
		return Result{}, err
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 10
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 5 * time.Second
	}
	base := strings.TrimRight(cfg.BaseURL, "/")

	client := &http.Client{
		Timeout: 5 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	jobs := make(chan string)
	var (
		total    atomic.Int64
		failures atomic.Int64
		mu       sync.Mutex
		classes  = map[string]int64{}
	)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Concurrency; i++ {
		g.Go(func() error {
			for path := range jobs {
				status := hit(gctx, client, base+path)
				if status == 0 && gctx.Err() != nil {
					// cut off by the run deadline
					continue
				}
				total.Add(1)
				class := classifyStatusClass(status)
				if status == 0 || status >= 500 {
					failures.Add(1)
				}
				mu.Lock()
				classes[class]++
				mu.Unlock()
			}
			return nil
		})
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	ticker := time.NewTicker(time.Second / time.Duration(cfg.RPS))
	defer ticker.Stop()
feed:
	for {
		select {
		case <-ctx.Done():
			break feed
		case <-ticker.C:
			select {
			case jobs <- paths[rng.Intn(len(paths))]:
			case <-ctx.Done():
				break feed
			}
		}
	}
	close(jobs)
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	return Result{TotalRequests: total.Load(), Failures: failures.Load(), ByStatusClass: classes}, nil
}

func hit(ctx context.Context, client *http.Client, target string) int {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0
	}
	_ = resp.Body.Close()
	return resp.StatusCode
}

func pathsFor(profile string) ([]string, error) {
	if profile == "mixed" {
		var all []string
		for _, name := range []string{"session", "guest", "protected", "health"} {
			all = append(all, profiles[name]...)
		}
		return all, nil
	}
	paths, ok := profiles[profile]
	if !ok {
		return nil, fmt.Errorf("unknown traffic profile %q", profile)
	}
	return paths, nil
}

func normalizeProfile(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return "mixed"
	}
	return v
}

func classifyStatusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500 && status < 600:
		return "5xx"
	default:
		return "other"
	}
}
