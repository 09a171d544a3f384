package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/merchantrisk/internal/domain"
)

// Levels in matrix order.
var Levels = []string{"LOW", "MEDIUM", "HIGH", "CRITICAL"}

// Case is one labelled profile.
type Case struct {
	Profile  domain.MerchantProfile
	Expected string
}

// readCases parses a CSV with a header row. Column names match the JSON field names,
// case-insensitively, plus expected_level. Rows with an unknown level or bad numbers are skipped.
func readCases(r io.Reader, limit int) ([]Case, int, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"merchantid", "country", "industry", "expected_level"} {
		if _, ok := col[required]; !ok {
			return nil, 0, fmt.Errorf("missing column %q", required)
		}
	}

	var (
		cases   []Case
		skipped int
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			skipped++
			continue
		}

		c, ok := parseCase(record, col)
		if !ok {
			skipped++
			continue
		}
		cases = append(cases, c)
		if limit > 0 && len(cases) >= limit {
			break
		}
	}
	return cases, skipped, nil
}

func parseCase(record []string, col map[string]int) (Case, bool) {
	get := func(name string) string {
		if i, ok := col[name]; ok && i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}
	flag := func(name string) bool {
		b, _ := strconv.ParseBool(get(name))
		return b
	}
	ok := true
	num := func(name string) float64 {
		s := get(name)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			ok = false
		}
		return f
	}

	expected := strings.ToUpper(get("expected_level"))
	if _, err := domain.ParseRiskLevel(expected); err != nil {
		return Case{}, false
	}
	volume := decimal.Zero
	if s := get("annualvolume"); s != "" {
		v, err := decimal.NewFromString(s)
		if err != nil {
			return Case{}, false
		}
		volume = v
	}

	p := domain.MerchantProfile{
		MerchantID:       get("merchantid"),
		Country:          get("country"),
		Industry:         get("industry"),
		MCCCode:          get("mcccode"),
		AnnualVolume:     volume,
		OwnerPEP:         flag("ownerpep"),
		OwnerSanctioned:  flag("ownersanctioned"),
		YearsInBusiness:  int(num("yearsinbusiness")),
		OffshoreStruct:   flag("offshorestructure"),
		CashIntensive:    flag("cashintensive"),
		ComplexOwnership: flag("complexownership"),
		RefundRate:       num("refundrate"),
		ChargebackRate:   num("chargebackrate"),
		VolumeChangePct:  num("volumechangepct"),
	}
	return Case{Profile: p, Expected: expected}, ok
}

// Runner replays cases against a running server.
type Runner struct {
	Client   *http.Client
	BaseURL  string
	Workers  int
	OnResult func(c Case, got string, err error)
}

// Report is the outcome of a replay.
type Report struct {
	// Matrix[expected][assessed]
	Matrix    map[string]map[string]int
	Total     int
	Agreed    int
	Errors    int
	Latencies []time.Duration
}

func newReport() *Report {
	m := make(map[string]map[string]int, len(Levels))
	for _, l := range Levels {
		m[l] = make(map[string]int, len(Levels))
	}
	return &Report{Matrix: m}
}

// Run evaluates every case. Request failures are counted, not returned.
func (r *Runner) Run(ctx context.Context, cases []Case) (*Report, error) {
	report := newReport()
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(r.Workers, 1))
	for _, c := range cases {
		g.Go(func() error {
			start := time.Now()
			got, err := r.evaluate(gctx, c.Profile)
			elapsed := time.Since(start)

			mu.Lock()
			defer mu.Unlock()
			if r.OnResult != nil {
				r.OnResult(c, got, err)
			}
			if err != nil {
				report.Errors++
				return nil
			}
			report.Total++
			report.Latencies = append(report.Latencies, elapsed)
			if row, ok := report.Matrix[c.Expected]; ok {
				row[got]++
			}
			if got == c.Expected {
				report.Agreed++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return report, ctx.Err()
}

func (r *Runner) evaluate(ctx context.Context, p domain.MerchantProfile) (string, error) {
	body, err := json.Marshal(map[string]any{
		"merchantId":        p.MerchantID,
		"country":           p.Country,
		"industry":          p.Industry,
		"mccCode":           p.MCCCode,
		"annualVolume":      p.AnnualVolume,
		"ownerPep":          p.OwnerPEP,
		"ownerSanctioned":   p.OwnerSanctioned,
		"yearsInBusiness":   p.YearsInBusiness,
		"offshoreStructure": p.OffshoreStruct,
		"cashIntensive":     p.CashIntensive,
		"complexOwnership":  p.ComplexOwnership,
		"refundRate":        p.RefundRate,
		"chargebackRate":    p.ChargebackRate,
		"volumeChangePct":   p.VolumeChangePct,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+"/evaluate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var out struct {
		RiskLevel string `json:"riskLevel"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.RiskLevel, nil
}

// Agreement is the share of evaluated cases whose level matched the label.
func (rep *Report) Agreement() float64 {
	if rep.Total == 0 {
		return 0
	}
	return float64(rep.Agreed) / float64(rep.Total)
}

// Percentile returns the p-th latency percentile, 0 < p <= 100.
func (rep *Report) Percentile(p float64) time.Duration {
	if len(rep.Latencies) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), rep.Latencies...)
	slices.Sort(sorted)
	idx := int(float64(len(sorted))*p/100+0.5) - 1
	idx = min(max(idx, 0), len(sorted)-1)
	return sorted[idx]
}

// Print writes the human-readable summary.
func (rep *Report) Print(w io.Writer, duration time.Duration) {
	fmt.Fprintf(w, "\nCONFUSION MATRIX (rows expected, columns assessed)\n")
	fmt.Fprintf(w, "%-10s", "")
	for _, l := range Levels {
		fmt.Fprintf(w, "%10s", l)
	}
	fmt.Fprintln(w)
	for _, exp := range Levels {
		fmt.Fprintf(w, "%-10s", exp)
		for _, got := range Levels {
			fmt.Fprintf(w, "%10s", humanize.Comma(int64(rep.Matrix[exp][got])))
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "\nAGREEMENT\n")
	fmt.Fprintf(w, "   Matched:   %s / %s (%.2f%%)\n",
		humanize.Comma(int64(rep.Agreed)), humanize.Comma(int64(rep.Total)), rep.Agreement()*100)
	fmt.Fprintf(w, "   Errors:    %s\n", humanize.Comma(int64(rep.Errors)))

	fmt.Fprintf(w, "\nPERFORMANCE\n")
	fmt.Fprintf(w, "   Duration:  %v\n", duration.Round(time.Millisecond))
	fmt.Fprintf(w, "   p50:       %v\n", rep.Percentile(50))
	fmt.Fprintf(w, "   p95:       %v\n", rep.Percentile(95))
	fmt.Fprintf(w, "   p99:       %v\n", rep.Percentile(99))
	if duration > 0 && rep.Total > 0 {
		fmt.Fprintf(w, "   Throughput: %.2f profiles/sec\n", float64(rep.Total)/duration.Seconds())
	}
	fmt.Fprintln(w)
}
