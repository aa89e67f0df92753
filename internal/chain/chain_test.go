package chain

import (
	"strings"
	"testing"
)

func TestResolveBySlug(t *testing.T) {
	ctx, err := Resolve("mantle")
	if err != nil {
		t.Fatalf("Resolve(mantle): %v", err)
	}
	if ctx.ChainID != 5000 {
		t.Fatalf("mantle chain id = %d, want 5000", ctx.ChainID)
	}
	if ctx.NativeSymbol != "MNT" {
		t.Fatalf("mantle native symbol = %q, want MNT", ctx.NativeSymbol)
	}
}

func TestResolveByNumericID(t *testing.T) {
	ctx, err := Resolve("8453")
	if err != nil {
		t.Fatalf("Resolve(8453): %v", err)
	}
	if ctx.Slug != "base" {
		t.Fatalf("chain 8453 slug = %q, want base", ctx.Slug)
	}
}

func TestResolveUnknown(t *testing.T) {
	_, err := Resolve("notachain")
	if err == nil {
		t.Fatal("expected error for unknown chain")
	}
	if !strings.Contains(err.Error(), "mantle") {
		t.Fatalf("unknown-chain error should list the supported slugs: %v", err)
	}
	if _, err := Resolve("999999"); err == nil {
		t.Fatal("expected error for unknown chain id")
	}
}

func TestOverrides(t *testing.T) {
	ctx, err := Resolve("mantle")
	if err != nil {
		t.Fatalf("Resolve(mantle): %v", err)
	}
	ctx = ctx.WithRPCURL("http://127.0.0.1:8545").WithExplorer("https://explorer.test")
	if ctx.RPCURL != "http://127.0.0.1:8545" {
		t.Fatalf("rpc override not applied: %q", ctx.RPCURL)
	}
	url := ctx.TxURL("0xabc")
	if !strings.HasPrefix(url, "https://explorer.test") || !strings.Contains(url, "0xabc") {
		t.Fatalf("unexpected tx url %q", url)
	}
}
