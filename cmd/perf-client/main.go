package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"connectrpc.com/connect"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kkkkikiki/promotion/internal/api"
)

// PerfResult gathers aggregated metrics for the test run.
// Atomic counters are used to avoid lock-contention on hot paths.
// LatencySum is in nanoseconds.
type PerfResult struct {
	TotalRequests int64
	Admitted      int64
	WithVoucher   int64
	Rejected      int64
	ErrorCount    int64
	LatencySum    int64
}

const defaultTimeout = 30 * time.Second

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "promotion service base URL")
	campaignID := flag.Int64("campaign", 0, "campaign to enroll into, 0 for the latest active")
	users := flag.Int("users", 150, "number of distinct users logging in for the first time")
	firstUser := flag.Int64("first-user", 1, "first user id, later users count up from it")
	rps := flag.Int("rps", 700, "target requests per second")
	workers := flag.Int("workers", 50, "concurrent workers")
	threshold := flag.Int("threshold", 100, "voucher threshold configured on the server")
	flag.Parse()

	// ─── HTTP Client & Transport ─────────────────────────────────
	transport := &http.Transport{
		MaxIdleConns:        *workers * 4,
		MaxIdleConnsPerHost: *workers * 4,
		IdleConnTimeout:     90 * time.Second,
	}
	httpClient := &http.Client{
		Transport: transport,
		Timeout:   defaultTimeout,
	}
	client := api.NewPromotionServiceClient(httpClient, *baseURL)

	// ─── Banner ──────────────────────────────────────────────────
	fmt.Println("==========================================")
	fmt.Println("first-login enrollment load test")
	fmt.Println("==========================================")
	fmt.Printf("Target     : %s\n", *baseURL)
	fmt.Printf("Users      : %d (from id %d)\n", *users, *firstUser)
	fmt.Printf("RPS        : %d\n", *rps)
	fmt.Printf("Workers    : %d\n", *workers)
	fmt.Println("==========================================")

	// ─── Rate limiter ───────────────────────────────────────────
	burst := *rps / *workers
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(*rps), burst)

	var (
		result    PerfResult
		wg        sync.WaitGroup
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, *users)
		campaigns = make(map[int64]struct{})
	)

	userIDs := make(chan int64)
	go func() {
		defer close(userIDs)
		for i := 0; i < *users; i++ {
			userIDs <- *firstUser + int64(i)
		}
	}()

	var campaignPin *int64
	if *campaignID > 0 {
		campaignPin = campaignID
	}

	start := time.Now()

	// ─── Workers ────────────────────────────────────────────────
	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for userID := range userIDs {
				if err := limiter.Wait(context.Background()); err != nil {
					return
				}
				res, latency, err := doRequest(client, userID, campaignPin)
				atomic.AddInt64(&result.TotalRequests, 1)
				if err != nil {
					atomic.AddInt64(&result.ErrorCount, 1)
					continue
				}
				atomic.AddInt64(&result.LatencySum, latency.Nanoseconds())

				mu.Lock()
				latencies = append(latencies, latency)
				if res.Eligible {
					campaigns[res.CampaignID] = struct{}{}
				}
				mu.Unlock()

				if !res.Eligible {
					atomic.AddInt64(&result.Rejected, 1)
					continue
				}
				atomic.AddInt64(&result.Admitted, 1)
				if res.VoucherCode != "" {
					atomic.AddInt64(&result.WithVoucher, 1)
				}
			}
		}()
	}
	wg.Wait()

	totalDur := time.Since(start)

	// ─── Report ─────────────────────────────────────────────────
	fmt.Println("==========================================")
	fmt.Println("results")
	fmt.Println("==========================================")
	fmt.Printf("Duration           : %.2fs\n", totalDur.Seconds())
	fmt.Printf("Total requests     : %d\n", result.TotalRequests)
	fmt.Printf("Admitted           : %d\n", result.Admitted)
	fmt.Printf("  with voucher     : %d\n", result.WithVoucher)
	fmt.Printf("Rejected           : %d\n", result.Rejected)
	fmt.Printf("Errors             : %d\n", result.ErrorCount)

	answered := result.TotalRequests - result.ErrorCount
	fmt.Printf("Actual RPS         : %.2f\n", float64(answered)/totalDur.Seconds())
	if answered > 0 {
		fmt.Printf("Avg latency        : %v\n", time.Duration(result.LatencySum/answered))
		fmt.Printf("P95 latency        : %v\n", percentile(latencies, 0.95))
	}

	// ─── Data Consistency Check ─────────────────────────────────
	fmt.Println("==========================================")
	fmt.Println("data consistency")
	fmt.Println("==========================================")

	if len(campaigns) != 1 {
		fmt.Printf("cannot verify: admissions landed in %d campaigns\n", len(campaigns))
		os.Exit(1)
	}
	var enrolledInto int64
	for id := range campaigns {
		enrolledInto = id
	}

	if err := verifyDataConsistency(client, enrolledInto, *firstUser, *users, result.Admitted, int64(*threshold)); err != nil {
		fmt.Printf("FAILED: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("OK")
	fmt.Println("==========================================")
}

// doRequest performs a single TrackFirstLogin RPC
func doRequest(client *api.PromotionServiceClient, userID int64, campaignID *int64) (*api.TrackFirstLoginResponse, time.Duration, error) {
	// Use independent context to avoid cancellation when test ends
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	req := connect.NewRequest(&api.TrackFirstLoginRequest{UserID: userID, CampaignID: campaignID})

	start := time.Now()
	resp, err := client.TrackFirstLogin(ctx, req)
	latency := time.Since(start)
	if err != nil {
		return nil, latency, err
	}
	return resp.Msg, latency, nil
}

func percentile(latencies []time.Duration, p float64) time.Duration {
	if len(latencies) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// verifyDataConsistency checks the campaign counter against the participations the
// users can see: counter == participations, orders 1..n without gaps, and vouchers
// issued exactly to the first threshold participants.
func verifyDataConsistency(client *api.PromotionServiceClient, campaignID, firstUser int64, users int, admitted, threshold int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	resp, err := client.GetCampaign(ctx, connect.NewRequest(&api.GetCampaignRequest{CampaignID: campaignID}))
	if err != nil {
		return fmt.Errorf("failed to get campaign: %w", err)
	}
	campaign := resp.Msg.Campaign

	var (
		mu       sync.Mutex
		orders   []int
		vouchers int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(20)
	for i := 0; i < users; i++ {
		userID := firstUser + int64(i)
		g.Go(func() error {
			list, err := client.ListParticipations(gctx, connect.NewRequest(&api.ListParticipationsRequest{UserID: userID}))
			if err != nil {
				return fmt.Errorf("failed to list participations of user %d: %w", userID, err)
			}

			mu.Lock()
			defer mu.Unlock()
			for _, p := range list.Msg.Participations {
				if p.CampaignID != campaignID {
					continue
				}
				if len(p.Vouchers) > 0 && int64(p.ParticipationOrder) > threshold {
					return fmt.Errorf("participant #%d received a voucher beyond threshold %d", p.ParticipationOrder, threshold)
				}
				orders = append(orders, int(p.ParticipationOrder))
				vouchers += int64(len(p.Vouchers))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	sort.Ints(orders)

	fmt.Printf("Campaign ID        : %d\n", campaignID)
	fmt.Printf("Capacity           : %d\n", campaign.MaxParticipants)
	fmt.Printf("Counter            : %d\n", campaign.CurrentParticipants)
	fmt.Printf("Participations     : %d\n", len(orders))
	fmt.Printf("Admitted (client)  : %d\n", admitted)
	fmt.Printf("Vouchers           : %d\n", vouchers)
	fmt.Printf("Status             : %s\n", campaign.Status)

	if campaign.CurrentParticipants > campaign.MaxParticipants {
		return fmt.Errorf("over-admission: counter=%d > capacity=%d", campaign.CurrentParticipants, campaign.MaxParticipants)
	}
	if int64(len(orders)) != admitted {
		return fmt.Errorf("participations=%d, client saw %d admissions", len(orders), admitted)
	}
	// the campaign may hold participants from earlier runs, which occupy the lowest orders
	offset := int(campaign.CurrentParticipants) - len(orders)
	for i, order := range orders {
		if order != offset+i+1 {
			return fmt.Errorf("participation orders have a gap at %d", offset+i+1)
		}
	}
	if offset == 0 {
		want := admitted
		if want > threshold {
			want = threshold
		}
		if vouchers != want {
			return fmt.Errorf("vouchers=%d, want min(admitted, threshold)=%d", vouchers, want)
		}
	}
	return nil
}
