package controller

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"linkpad.com/p/internal/apperr"
)

func TestSelectProxy(t *testing.T) {
	var gotPath, gotAuth, gotName string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s", r.Method)
		}
		gotPath = r.URL.EscapedPath()
		gotAuth = r.Header.Get("Authorization")
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotName = body["name"]
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(strings.TrimPrefix(srv.URL, "http://"), "s3cret")
	if err := c.SelectProxy("My Group", "node-1"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if gotPath != "/proxies/My%20Group" {
		t.Errorf("path = %s", gotPath)
	}
	if gotAuth != "Bearer s3cret" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotName != "node-1" {
		t.Errorf("name = %q", gotName)
	}
}

func TestSelectProxyRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Errorf("unexpected auth header")
		}
		http.Error(w, `{"message":"Selector update error: proxy not exist"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "").SelectProxy("auto", "missing")
	if apperr.CodeOf(err) != apperr.CodeNetwork {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(err.Error(), "400") || !strings.Contains(err.Error(), "proxy not exist") {
		t.Errorf("error should carry status and body: %v", err)
	}
}

func TestVersionAndProxies(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"meta":true,"version":"v1.19.2"}`))
	})
	mux.HandleFunc("/proxies", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"proxies":{"auto":{"name":"auto","type":"Selector","now":"node-1","all":["node-1","node-2"]},"node-1":{"name":"node-1","type":"Shadowsocks"}}}`))
	})
	mux.HandleFunc("/proxies/node-1/delay", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("timeout") != "2000" || r.URL.Query().Get("url") == "" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"delay":87}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL+"/", "")
	v, err := c.Version()
	if err != nil || v != "v1.19.2" {
		t.Fatalf("version = %q, %v", v, err)
	}
	proxies, err := c.Proxies()
	if err != nil {
		t.Fatal(err)
	}
	if proxies["auto"].Now != "node-1" || len(proxies["auto"].All) != 2 {
		t.Errorf("auto = %+v", proxies["auto"])
	}
	delay, err := c.Delay("node-1", "https://www.gstatic.com/generate_204", 2*time.Second)
	if err != nil || delay != 87 {
		t.Fatalf("delay = %d, %v", delay, err)
	}
}

func TestUnreachableController(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := NewClient(addr, "").Version()
	if apperr.CodeOf(err) != apperr.CodeNetwork {
		t.Fatalf("err = %v", err)
	}
}

func TestNewClientWildcardAddress(t *testing.T) {
	cases := map[string]string{
		":9090":             "http://127.0.0.1:9090",
		"0.0.0.0:9097":      "http://127.0.0.1:9097",
		"[::]:9097":         "http://127.0.0.1:9097",
		"127.0.0.1:9097":    "http://127.0.0.1:9097",
		"http://host:1234/": "http://host:1234",
	}
	for in, want := range cases {
		if got := NewClient(in, "").baseURL; got != want {
			t.Errorf("NewClient(%q).baseURL = %q, want %q", in, got, want)
		}
	}
}
