package utils

import (
	"context"
	"errors"
	"net"
	"regexp"
	"testing"
)

func TestGenerateProfileID(t *testing.T) {
	id := GenerateProfileID("https://example.com/sub")
	if !regexp.MustCompile(`^p-\d+-[0-9a-f]{8}$`).MatchString(id) {
		t.Fatalf("id = %s", id)
	}
	if other := GenerateProfileID("https://example.com/other"); other == id {
		t.Fatalf("ids should differ")
	}
}

func TestPingAllDelay(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	var d net.Dialer
	p := NewPing(func(ctx context.Context, network, addr string) (net.Conn, error) {
		if addr == "blocked.invalid:443" {
			return nil, errors.New("refused")
		}
		return d.DialContext(ctx, network, ln.Addr().String())
	})

	results := p.TestAllDelay([]string{"example.com:443", "blocked.invalid:443"})
	if results["example.com:443"] < 0 {
		t.Errorf("reachable target = %d", results["example.com:443"])
	}
	if results["blocked.invalid:443"] != -1 {
		t.Errorf("failed target = %d", results["blocked.invalid:443"])
	}
}
