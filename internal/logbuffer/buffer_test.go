/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logbuffer

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
)

func TestRingKeepsNewest(t *testing.T) {
	b := New(3)
	for i := 1; i <= 5; i++ {
		b.Add(Entry{Message: fmt.Sprint(i)})
	}
	all := b.All()
	if len(all) != 3 || all[0].Message != "3" || all[2].Message != "5" {
		t.Errorf("All() = %+v", all)
	}
}

func TestZerologCapture(t *testing.T) {
	b := New(10)
	logger := zerolog.New(b)
	logger.Info().Str("component", "cleanup").Int("deleted", 2).Msg("cleanup finished")
	logger.Warn().Str("component", "seeding").Msg("seeding check failed")
	logger.Info().Str("component", "cleanup").Msg("item deleted")

	warns := b.Find(Query{Level: "warn"})
	if len(warns) != 1 || warns[0].Component != "seeding" {
		t.Fatalf("warns = %+v", warns)
	}
	cleanup := b.Find(Query{Component: "cleanup", Limit: 1})
	if len(cleanup) != 1 || cleanup[0].Message != "item deleted" {
		t.Fatalf("limited query = %+v", cleanup)
	}
	found := b.Find(Query{Search: "FINISHED"})
	if len(found) != 1 || found[0].Fields["deleted"] != float64(2) {
		t.Errorf("search = %+v", found)
	}
}

func TestPlainLines(t *testing.T) {
	b := New(2)
	if _, err := b.Write([]byte("not json\n")); err != nil {
		t.Fatal(err)
	}
	if all := b.All(); len(all) != 1 || all[0].Message != "not json" {
		t.Errorf("All() = %+v", all)
	}
}
