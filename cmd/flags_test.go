package main

import (
	"testing"

	"github.com/zzenonn/zpreserve/internal/domain"
)

func TestEventFlagsAreIndependent(t *testing.T) {
	t.Cleanup(func() {
		candidatesEvent = domain.EventPreserve
		dueEvent = domain.EventPreserve
	})

	if err := candidatesCmd.Flags().Set("event", "ingest"); err != nil {
		t.Fatal(err)
	}
	if dueEvent != domain.EventPreserve {
		t.Errorf("setting candidates --event changed due to %q", dueEvent)
	}
	if err := dueCmd.Flags().Set("event", "migrate"); err != nil {
		t.Fatal(err)
	}
	if candidatesEvent != "ingest" {
		t.Errorf("expected candidates event ingest, got %q", candidatesEvent)
	}
	for _, cmd := range []string{"candidates", "due"} {
		c, _, err := rootCmd.Find([]string{cmd})
		if err != nil {
			t.Fatal(err)
		}
		if def := c.Flags().Lookup("event").DefValue; def != domain.EventPreserve {
			t.Errorf("%s: expected default %q, got %q", cmd, domain.EventPreserve, def)
		}
	}
}
