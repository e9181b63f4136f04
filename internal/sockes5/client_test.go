package sockes5

import (
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"
)

// serveOnce 最小 SOCKS5 服务端：接受一个连接，校验 CONNECT 请求后回显数据
func serveOnce(t *testing.T, requireAuth bool, reply byte) (string, <-chan []byte) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	requests := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		head := make([]byte, 2)
		if _, err := io.ReadFull(conn, head); err != nil {
			return
		}
		methods := make([]byte, head[1])
		_, _ = io.ReadFull(conn, methods)
		if requireAuth {
			_, _ = conn.Write([]byte{Version, AuthUserPass})
			ver := make([]byte, 2)
			_, _ = io.ReadFull(conn, ver)
			user := make([]byte, ver[1])
			_, _ = io.ReadFull(conn, user)
			plen := make([]byte, 1)
			_, _ = io.ReadFull(conn, plen)
			pass := make([]byte, plen[0])
			_, _ = io.ReadFull(conn, pass)
			status := byte(0x01)
			if string(user) == "u" && string(pass) == "p" {
				status = ReplySuccess
			}
			_, _ = conn.Write([]byte{0x01, status})
			if status != ReplySuccess {
				return
			}
		} else {
			_, _ = conn.Write([]byte{Version, AuthNoAuth})
		}

		req := make([]byte, 5)
		if _, err := io.ReadFull(conn, req); err != nil {
			return
		}
		rest := make([]byte, int(req[4])+2)
		_, _ = io.ReadFull(conn, rest)
		requests <- append(req, rest...)

		_, _ = conn.Write([]byte{Version, reply, 0x00, ATypIPv4, 127, 0, 0, 1, 0x1f, 0x90})
		if reply == ReplySuccess {
			_, _ = io.Copy(conn, conn)
		}
	}()
	return ln.Addr().String(), requests
}

func TestDialConnect(t *testing.T) {
	addr, requests := serveOnce(t, false, ReplySuccess)
	c := &SOCKS5Client{ProxyAddr: addr}

	conn, err := c.Dial("tcp", "example.com:443")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	want := append([]byte{Version, CmdConnect, 0x00, ATypDomain, 11}, "example.com"...)
	want = append(want, 0x01, 0xbb)
	if got := <-requests; !bytes.Equal(got, want) {
		t.Fatalf("request = %v, want %v", got, want)
	}

	if _, err := conn.Write([]byte("ping")); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 4)
	if _, err := io.ReadFull(conn, buf); err != nil || string(buf) != "ping" {
		t.Fatalf("echo = %q, %v", buf, err)
	}
}

func TestDialWithAuth(t *testing.T) {
	addr, _ := serveOnce(t, true, ReplySuccess)
	c := &SOCKS5Client{ProxyAddr: addr, Username: "u", Password: "p"}
	conn, err := c.Dial("tcp", "example.com:80")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Close()

	addr, _ = serveOnce(t, true, ReplySuccess)
	c = &SOCKS5Client{ProxyAddr: addr, Username: "u", Password: "wrong"}
	if _, err := c.Dial("tcp", "example.com:80"); err == nil || !strings.Contains(err.Error(), "认证失败") {
		t.Fatalf("err = %v", err)
	}
}

func TestDialRejected(t *testing.T) {
	addr, _ := serveOnce(t, false, 0x05)
	c := &SOCKS5Client{ProxyAddr: addr}
	_, err := c.Dial("tcp", "example.com:80")
	if err == nil || !strings.Contains(err.Error(), "状态码: 5") {
		t.Fatalf("err = %v", err)
	}
}

func TestDialContextTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			time.Sleep(time.Second)
			conn.Close()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	c := &SOCKS5Client{ProxyAddr: ln.Addr().String()}
	start := time.Now()
	if _, err := c.DialContext(ctx, "tcp", "example.com:80"); err == nil {
		t.Fatal("expected timeout")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatalf("handshake ignored deadline")
	}
}

func TestEncodeRequest(t *testing.T) {
	got, err := encodeRequest(CmdConnect, "1.2.3.4:80")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{Version, CmdConnect, 0, ATypIPv4, 1, 2, 3, 4, 0, 80}) {
		t.Fatalf("ipv4 = %v", got)
	}
	got, _ = encodeRequest(CmdConnect, "[::1]:8080")
	if got[3] != ATypIPv6 || len(got) != 4+16+2 {
		t.Fatalf("ipv6 = %v", got)
	}
	if _, err := encodeRequest(CmdConnect, "example.com"); err == nil {
		t.Fatal("missing port should fail")
	}
	if _, err := encodeRequest(CmdConnect, "example.com:http"); err == nil {
		t.Fatal("named port should fail")
	}
}
