package database

import (
	"path/filepath"
	"testing"

	"linkpad.com/p/internal/model"
)

func openTestDB(t *testing.T) {
	t.Helper()
	if err := InitDB(filepath.Join(t.TempDir(), "data", "linkpad.db")); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { CloseDB() })
}

func TestAppConfig(t *testing.T) {
	openTestDB(t)

	if v, err := GetAppConfig("mode"); err != nil || v != "" {
		t.Fatalf("missing key = %q, %v", v, err)
	}
	if err := SetAppConfig("mode", "rule"); err != nil {
		t.Fatal(err)
	}
	if err := SetAppConfig("mode", "global"); err != nil {
		t.Fatal(err)
	}
	if v, _ := GetAppConfig("mode"); v != "global" {
		t.Fatalf("mode = %q", v)
	}

	if err := SetAppConfigs(map[string]string{"mixed_port": "7890", "allow_lan": "true"}); err != nil {
		t.Fatal(err)
	}
	all, err := GetAllAppConfig()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all["mixed_port"] != "7890" || all["allow_lan"] != "true" {
		t.Fatalf("all = %v", all)
	}
}

func TestReplaceProfilesKeepsOrder(t *testing.T) {
	openTestDB(t)

	profiles := []model.Profile{
		{ID: "b", SourceURL: "https://b.example.com", RawConfig: "proxies: []", ProfileContent: model.ProfileContent{Name: "B", NodeCount: 2}},
		{ID: "a", SourceURL: "https://a.example.com", Active: true, ProfileContent: model.ProfileContent{
			Name:        "A",
			ProxyGroups: []model.ProxyGroup{model.NewProxyGroup("auto", "select", []string{"n1"})},
			Rules:       []string{"MATCH,auto"},
		}},
	}
	if err := ReplaceProfiles(profiles); err != nil {
		t.Fatal(err)
	}
	if err := ReplaceProfiles(profiles[1:]); err != nil {
		t.Fatal(err)
	}
	if err := ReplaceProfiles(profiles); err != nil {
		t.Fatal(err)
	}

	got, err := GetAllProfiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "a" {
		t.Fatalf("order = %+v", got)
	}
	if got[0].RawConfig != "proxies: []" || got[0].NodeCount != 2 || got[0].Active {
		t.Fatalf("first = %+v", got[0])
	}
	if !got[1].Active || got[1].ProxyGroups[0].Size != 1 || got[1].Rules[0] != "MATCH,auto" {
		t.Fatalf("second = %+v", got[1])
	}
}
