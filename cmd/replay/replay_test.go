package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const portfolio = `merchantId,country,industry,annualVolume,ownerPep,ownerSanctioned,yearsInBusiness,refundRate,expected_level
M-1,Germany,Retail,500000,false,false,5,0.5,LOW
M-2,Germany,Retail,2000000,true,false,5,1,high
M-3,Iran,Retail,100,false,true,1,0,CRITICAL
M-4,Germany,Retail,100,false,false,5,not-a-number,LOW
M-5,Germany,Retail,100,false,false,5,0,SEVERE
M-6,France,Retail,100,true,false,5,0,LOW
`

func TestReadCases(t *testing.T) {
	cases, skipped, err := readCases(strings.NewReader(portfolio), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, skipped)
	require.Len(t, cases, 4)

	assert.Equal(t, "M-2", cases[1].Profile.MerchantID)
	assert.Equal(t, "HIGH", cases[1].Expected)
	assert.True(t, cases[1].Profile.OwnerPEP)
	assert.Equal(t, "2000000", cases[1].Profile.AnnualVolume.String())
	assert.True(t, cases[2].Profile.OwnerSanctioned)

	t.Run("Limit", func(t *testing.T) {
		cases, _, err := readCases(strings.NewReader(portfolio), 2)
		require.NoError(t, err)
		assert.Len(t, cases, 2)
	})

	t.Run("MissingColumn", func(t *testing.T) {
		_, _, err := readCases(strings.NewReader("merchantId,country\nM-1,Germany\n"), 0)
		assert.ErrorContains(t, err, "industry")
	})
}

func TestRunner(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, `{"error":"bad"}`, http.StatusBadRequest)
			return
		}
		level := "LOW"
		switch {
		case body["ownerSanctioned"] == true:
			level = "CRITICAL"
		case body["ownerPep"] == true:
			level = "HIGH"
		}
		json.NewEncoder(w).Encode(map[string]any{"riskLevel": level})
	}))
	defer srv.Close()

	cases, _, err := readCases(strings.NewReader(portfolio), 0)
	require.NoError(t, err)

	var diffs []string
	r := &Runner{Client: srv.Client(), BaseURL: srv.URL, Workers: 3,
		OnResult: func(c Case, got string, err error) {
			if err == nil && got != c.Expected {
				diffs = append(diffs, c.Profile.MerchantID)
			}
		},
	}
	report, err := r.Run(context.Background(), cases)
	require.NoError(t, err)

	assert.Equal(t, 4, report.Total)
	assert.Equal(t, 3, report.Agreed)
	assert.Zero(t, report.Errors)
	assert.Equal(t, 1, report.Matrix["LOW"]["HIGH"])
	assert.Equal(t, 1, report.Matrix["CRITICAL"]["CRITICAL"])
	assert.Equal(t, []string{"M-6"}, diffs)
	assert.InDelta(t, 0.75, report.Agreement(), 1e-9)

	var out bytes.Buffer
	report.Print(&out, time.Second)
	assert.Contains(t, out.String(), "CONFUSION MATRIX")
	assert.Contains(t, out.String(), "75.00%")
}

func TestRunnerCountsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limit exceeded"}`))
	}))
	defer srv.Close()

	cases, _, err := readCases(strings.NewReader(portfolio), 0)
	require.NoError(t, err)

	report, err := (&Runner{Client: srv.Client(), BaseURL: srv.URL}).Run(context.Background(), cases)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Errors)
	assert.Zero(t, report.Total)
	assert.Zero(t, report.Percentile(95))
}

func TestPercentile(t *testing.T) {
	rep := &Report{}
	for i := 1; i <= 100; i++ {
		rep.Latencies = append(rep.Latencies, time.Duration(i)*time.Millisecond)
	}
	assert.Equal(t, 50*time.Millisecond, rep.Percentile(50))
	assert.Equal(t, 95*time.Millisecond, rep.Percentile(95))
	assert.Equal(t, 100*time.Millisecond, rep.Percentile(100))
}
