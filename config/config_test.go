package config_test

import (
	"testing"

	"github.com/ftlman-go/modpatch/config"
)

func TestLoadMissingFileReturnsZeroValue(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	c, err := config.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(c.ModOrder) != 0 {
		t.Errorf("ModOrder = %v, want empty", c.ModOrder)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	want := &config.Config{
		ModOrder: []config.ModOrderEntry{
			{Name: "better-weapons", Enabled: true},
			{Name: "harder-bosses", Enabled: false},
		},
		Companion: config.CompanionSelection{Kind: "mono", Version: "1.2.3"},
	}
	if err := config.Save(want); err != nil {
		t.Fatal(err)
	}

	got, err := config.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(got.ModOrder) != 2 || got.ModOrder[0] != want.ModOrder[0] || got.ModOrder[1] != want.ModOrder[1] {
		t.Errorf("ModOrder = %+v, want %+v", got.ModOrder, want.ModOrder)
	}
	if got.Companion != want.Companion {
		t.Errorf("Companion = %+v, want %+v", got.Companion, want.Companion)
	}
}
