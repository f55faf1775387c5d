package services

import (
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/bimakw/referral-dashboard/internal/config"
	"github.com/bimakw/referral-dashboard/internal/domain/entities"
	"github.com/bimakw/referral-dashboard/internal/domain/repositories"
	"github.com/bimakw/referral-dashboard/internal/testutil"
)

func TestNewHistorySource(t *testing.T) {
	indexes := []repositories.UserIndex{testutil.NewMockUserIndex(entities.ChainETH)}
	scanners := []repositories.ChainHistoryScanner{testutil.NewMockChainHistoryScanner(entities.ChainETH)}

	tests := []struct {
		name       string
		useIndexed bool
		indexes    []repositories.UserIndex
		scanners   []repositories.ChainHistoryScanner
		expected   entities.DataSource
		wantErr    bool
	}{
		{"indexed", true, indexes, nil, entities.DataSourceIndexed, false},
		{"scan", false, nil, scanners, entities.DataSourceScan, false},
		{"indexed without backends", true, nil, scanners, "", true},
		{"scan without backends", false, indexes, nil, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{}
			cfg.Source.UseIndexed = tt.useIndexed
			cfg.Scan.MaxEvents = 50

			source, err := NewHistorySource(cfg, tt.indexes, tt.scanners, zap.NewNop())
			if tt.wantErr {
				if !errors.Is(err, ErrNoBackends) {
					t.Errorf("expected ErrNoBackends, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if source.Source() != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, source.Source())
			}
		})
	}
}

func TestNativeDecimals(t *testing.T) {
	cfg := &config.Config{}
	cfg.ETH.NativeDecimals = 18
	cfg.BNB.NativeDecimals = 8

	decimals := NativeDecimals(cfg)
	if decimals[entities.ChainETH] != 18 || decimals[entities.ChainBNB] != 8 {
		t.Errorf("unexpected decimals %v", decimals)
	}
}
