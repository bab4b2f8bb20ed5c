package config

import "testing"

func TestValidate_ValidMainnet(t *testing.T) {
	cfg := &Config{Network: "mainnet", Port: 8088, InitRatePerSecond: 5}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v, want nil", err)
	}
}

func TestValidate_ValidTestnet(t *testing.T) {
	cfg := &Config{Network: "testnet", Port: 8088, InitRatePerSecond: 5}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v, want nil", err)
	}
}

func TestValidate_InvalidNetwork(t *testing.T) {
	tests := []struct {
		name    string
		network string
	}{
		{"empty", ""},
		{"foobar", "foobar"},
		{"Mainnet case sensitive", "Mainnet"},
		{"regtest", "regtest"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Network: tt.network, Port: 8088, InitRatePerSecond: 5}
			if err := cfg.Validate(); err == nil {
				t.Fatalf("Validate() expected error for network=%q, got nil", tt.network)
			}
		})
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	tests := []struct {
		name string
		port int
	}{
		{"zero", 0},
		{"negative", -1},
		{"too high", 65536},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Network: "testnet", Port: tt.port, InitRatePerSecond: 5}
			if err := cfg.Validate(); err == nil {
				t.Fatalf("Validate() expected error for port=%d, got nil", tt.port)
			}
		})
	}
}

func TestValidate_InvalidInitRate(t *testing.T) {
	cfg := &Config{Network: "testnet", Port: 8088, InitRatePerSecond: 0}
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() expected error for zero init rate, got nil")
	}
}

func TestValidate_ValidPortBoundaries(t *testing.T) {
	tests := []struct {
		name string
		port int
	}{
		{"minimum valid", 1},
		{"maximum valid", 65535},
		{"common port", 8088},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Network: "testnet", Port: tt.port, InitRatePerSecond: 5}
			if err := cfg.Validate(); err != nil {
				t.Fatalf("Validate() error = %v for port=%d, want nil", err, tt.port)
			}
		})
	}
}
