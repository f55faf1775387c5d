package graph

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/bimakw/referral-dashboard/internal/config"
	"github.com/bimakw/referral-dashboard/internal/domain/entities"
	"github.com/bimakw/referral-dashboard/internal/testutil"
)

const userResponse = `{
  "data": {
    "user": {
      "id": "0x1111111111111111111111111111111111111111",
      "totalReferrals": "3",
      "totalEarned": "15000000000000000000",
      "totalWithdrawn": 4000000000000000000,
      "referralEvents": [
        {
          "id": "ref-1",
          "buyer": "0x2222222222222222222222222222222222222222",
          "usdAmount": "100000000000000000000",
          "nativeAmount": "50000000000000000",
          "cashbackAmount": "5000000000000000000",
          "bonusPercent": "5",
          "timestamp": "1705314600",
          "transactionHash": "0xABC",
          "blockNumber": "4000000",
          "chain": "bnb"
        }
      ],
      "withdrawalEvents": [
        {
          "id": "wd-1",
          "amount": "4000000000000000000",
          "totalWithdrawn": "4000000000000000000",
          "timestamp": 1705400000,
          "transactionHash": "0xDEF",
          "blockNumber": 4000001,
          "chain": null
        }
      ]
    }
  }
}`

type capturedRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

func setupGraphServer(t *testing.T, status int, body string) (*Client, *[]capturedRequest) {
	t.Helper()
	var requests []capturedRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected JSON content type, got %s", ct)
		}
		var req capturedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		requests = append(requests, req)

		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	client := NewClient(entities.ChainBNB, server.URL,
		config.GraphConfig{PageSize: 100, RequestTimeout: 5 * time.Second},
		zap.NewNop(),
	)
	return client, &requests
}

func TestClient_QueryUser_Success(t *testing.T) {
	client, requests := setupGraphServer(t, http.StatusOK, userResponse)

	user, err := client.QueryUser(context.Background(), "0x1111111111111111111111111111111111111111")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user == nil {
		t.Fatal("expected user record")
	}

	if user.TotalReferrals.Int64() != 3 {
		t.Errorf("expected 3 referrals, got %s", user.TotalReferrals)
	}
	if user.TotalEarned.Cmp(testutil.Ether(15)) != 0 {
		t.Errorf("expected 15 ether earned, got %s", user.TotalEarned)
	}
	if user.TotalWithdrawn.Cmp(testutil.Ether(4)) != 0 {
		t.Errorf("expected numeric totalWithdrawn to decode, got %s", user.TotalWithdrawn)
	}

	if len(user.ReferralEvents) != 1 {
		t.Fatalf("expected 1 referral event, got %d", len(user.ReferralEvents))
	}
	ref := user.ReferralEvents[0]
	if ref.Chain != entities.ChainBNB {
		t.Errorf("expected reported chain BNB, got %s", ref.Chain)
	}
	if ref.TransactionHash != "0xabc" {
		t.Errorf("expected lowercased hash, got %s", ref.TransactionHash)
	}
	if ref.Timestamp.Int64() != 1705314600 {
		t.Errorf("unexpected timestamp %s", ref.Timestamp)
	}

	if len(user.WithdrawalEvents) != 1 {
		t.Fatalf("expected 1 withdrawal event, got %d", len(user.WithdrawalEvents))
	}
	wd := user.WithdrawalEvents[0]
	if wd.Chain != entities.ChainBNB {
		t.Errorf("expected fallback chain BNB, got %s", wd.Chain)
	}
	if wd.BlockNumber.Int64() != 4000001 {
		t.Errorf("unexpected block number %s", wd.BlockNumber)
	}

	if len(*requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(*requests))
	}
	req := (*requests)[0]
	if !strings.Contains(req.Query, "user(id: $userAddress)") {
		t.Errorf("unexpected query: %s", req.Query)
	}
	if req.Variables["first"].(float64) != 100 || req.Variables["skip"].(float64) != 0 {
		t.Errorf("unexpected pagination variables: %v", req.Variables)
	}
}

func TestClient_QueryUser_LowercasesAddress(t *testing.T) {
	client, requests := setupGraphServer(t, http.StatusOK, `{"data":{"user":null}}`)

	if _, err := client.QueryUser(context.Background(), "0xABCDEFabcdef0000000000000000000000000000"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := (*requests)[0].Variables["userAddress"]
	if got != "0xabcdefabcdef0000000000000000000000000000" {
		t.Errorf("expected lowercased address, got %v", got)
	}
}

func TestClient_QueryUser_NoRecord(t *testing.T) {
	client, _ := setupGraphServer(t, http.StatusOK, `{"data":{"user":null}}`)

	user, err := client.QueryUser(context.Background(), testutil.AliceAddress)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user != nil {
		t.Errorf("expected nil user, got %+v", user)
	}
}

func TestClient_QueryUserPage(t *testing.T) {
	client, requests := setupGraphServer(t, http.StatusOK, `{"data":{"user":null}}`)

	if _, err := client.QueryUserPage(context.Background(), testutil.AliceAddress, 20, 40); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	vars := (*requests)[0].Variables
	if vars["first"].(float64) != 20 || vars["skip"].(float64) != 40 {
		t.Errorf("unexpected pagination variables: %v", vars)
	}
}

func TestClient_QueryUser_Errors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		unavailable bool
		errContain  string
	}{
		{"http error", http.StatusBadGateway, `bad gateway`, true, "HTTP 502"},
		{"graphql errors", http.StatusOK, `{"errors":[{"message":"indexing_error"},{"message":"store error"}]}`, false, "indexing_error; store error"},
		{"malformed json", http.StatusOK, `{"data":`, false, "failed to decode"},
		{"no data", http.StatusOK, `{"data":null}`, false, "no data"},
		{"bad bigint", http.StatusOK, `{"data":{"user":{"id":"x","totalReferrals":"abc"}}}`, false, "invalid BigInt"},
		{"negative amount", http.StatusOK, `{"data":{"user":{"id":"x","referralEvents":[{"id":"r1","usdAmount":"-5","timestamp":"1705314600"}]}}}`, false, "negative BigInt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := setupGraphServer(t, tt.status, tt.body)

			_, err := client.QueryUser(context.Background(), testutil.AliceAddress)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.errContain) {
				t.Errorf("expected error containing %q, got %v", tt.errContain, err)
			}
			if errors.Is(err, entities.ErrSourceUnavailable) != tt.unavailable {
				t.Errorf("unexpected ErrSourceUnavailable classification for %v", err)
			}
		})
	}
}

func TestClient_QueryUser_NullTimestampStaysAbsent(t *testing.T) {
	client, _ := setupGraphServer(t, http.StatusOK, `{"data":{"user":{
		"id":"x","totalReferrals":"1",
		"referralEvents":[{"id":"r1","usdAmount":"5","timestamp":null}],
		"withdrawalEvents":[{"id":"w1","amount":"5"}]
	}}}`)

	user, err := client.QueryUser(context.Background(), testutil.AliceAddress)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ReferralEvents[0].Timestamp != nil {
		t.Errorf("expected nil referral timestamp, got %s", user.ReferralEvents[0].Timestamp)
	}
	if user.WithdrawalEvents[0].Timestamp != nil {
		t.Errorf("expected nil withdrawal timestamp, got %s", user.WithdrawalEvents[0].Timestamp)
	}
	if user.ReferralEvents[0].USDAmount.String() != "5" {
		t.Errorf("expected usd amount 5, got %s", user.ReferralEvents[0].USDAmount)
	}
}

func TestClient_QueryUser_Unreachable(t *testing.T) {
	client := NewClient(entities.ChainETH, "http://127.0.0.1:1",
		config.GraphConfig{PageSize: 10, RequestTimeout: time.Second},
		zap.NewNop(),
	)

	_, err := client.QueryUser(context.Background(), testutil.AliceAddress)
	if !errors.Is(err, entities.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestClient_LatestIndexedBlock(t *testing.T) {
	client, requests := setupGraphServer(t, http.StatusOK, `{"data":{"_meta":{"block":{"number":45123456}}}}`)

	block, err := client.LatestIndexedBlock(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if block != 45123456 {
		t.Errorf("expected 45123456, got %d", block)
	}
	if (*requests)[0].Query != MetaQuery {
		t.Errorf("unexpected query: %s", (*requests)[0].Query)
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("unexpected health error: %v", err)
	}
}

func TestClient_LatestIndexedBlock_MissingMeta(t *testing.T) {
	client, _ := setupGraphServer(t, http.StatusOK, `{"data":{"_meta":null}}`)

	if _, err := client.LatestIndexedBlock(context.Background()); err == nil {
		t.Error("expected error for missing _meta")
	}
}

func TestBigInt_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		isNil    bool
		wantErr  bool
	}{
		{`"123456789012345678901234567890"`, "123456789012345678901234567890", false, false},
		{`42`, "42", false, false},
		{`null`, "", true, false},
		{`"0x10"`, "", false, true},
		{`"1.5"`, "", false, true},
		{`"-5"`, "", false, true},
		{`-5`, "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var b BigInt
			err := json.Unmarshal([]byte(tt.input), &b)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.isNil {
				if b.Int != nil {
					t.Errorf("expected nil, got %s", b.Int)
				}
				return
			}
			if b.String() != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, b.String())
			}
		})
	}
}
