package config

import (
	"reflect"
	"testing"

	"github.com/pelletier/go-toml/v2"
)

func TestPartitionsRoundTripList(t *testing.T) {
	cfg := Default()
	cfg.Partitions = Partitions{"vendor_dlkm", "system_dlkm"}

	data, err := Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got File
	if err := toml.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if !reflect.DeepEqual(got.Partitions, cfg.Partitions) {
		t.Errorf("round trip mismatch: got %v, want %v", got.Partitions, cfg.Partitions)
	}
}

func TestPartitionsAcceptsCommaString(t *testing.T) {
	src := []byte(`partitions = "vendor_dlkm, system_dlkm ,  "`)

	var got File
	if err := toml.Unmarshal(src, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	want := Partitions{"vendor_dlkm", "system_dlkm"}
	if !reflect.DeepEqual(got.Partitions, want) {
		t.Errorf("got %v, want %v", got.Partitions, want)
	}
}

func TestPartitionsAcceptsArray(t *testing.T) {
	src := []byte(`partitions = ["a", "b"]`)

	var got File
	if err := toml.Unmarshal(src, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	want := Partitions{"a", "b"}
	if !reflect.DeepEqual(got.Partitions, want) {
		t.Errorf("got %v, want %v", got.Partitions, want)
	}
}

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load("/nonexistent/modmount.toml")
	if err != nil {
		t.Fatalf("Load on missing file should not error: %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("expected default config, got %+v", cfg)
	}
}
