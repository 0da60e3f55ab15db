// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"bytes"
	"net/http/httptest"
	"testing"

	"grimm.is/fivemguard/internal/attacklog"
	"grimm.is/fivemguard/internal/fconfig"
	"grimm.is/fivemguard/internal/fctlapi"
	"grimm.is/fivemguard/internal/fstats"
)

type emptyShards struct{}

func (emptyShards) Shards() []*fstats.Shard { return nil }
func (emptyShards) Perfs() []*fstats.Perf   { return nil }

func TestRunAppliesPresetAgainstServer(t *testing.T) {
	store := fconfig.NewStore(fconfig.Default())
	srv := fctlapi.New(store, attacklog.New(nil), emptyShards{})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	var out, errOut bytes.Buffer
	code := run([]string{"fivemguardctl", "192.168.1.100", "large", ts.URL + "/config"}, &out, &errOut)

	if code != 0 {
		t.Fatalf("run() = %d, stderr: %s", code, errOut.String())
	}
	if got := store.Get(); got.GlobalLimit != 100000 {
		t.Fatalf("store GlobalLimit = %d, want 100000", got.GlobalLimit)
	}
	if got := store.Get(); got.TargetAddress != "192.168.1.100" {
		t.Fatalf("store TargetAddress = %q", got.TargetAddress)
	}
}

func TestRunRejectsUnknownPreset(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run([]string{"fivemguardctl", "10.0.0.1", "huge"}, &out, &errOut)
	if code != 1 {
		t.Fatalf("run() = %d, want 1", code)
	}
}

func TestRunPrintsUsageWithoutArgs(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run([]string{"fivemguardctl"}, &out, &errOut)
	if code != 1 {
		t.Fatalf("run() = %d, want 1", code)
	}
}
