package config

import (
	"strings"
	"testing"
	"time"
)

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte("environment: test\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Trading.Symbol != "MGC" {
		t.Fatalf("expected default symbol MGC, got %s", c.Trading.Symbol)
	}
	if c.Trading.Cooldown != 300*time.Second || c.Trading.LoopDelay != 30*time.Second {
		t.Fatalf("unexpected timing defaults %v %v", c.Trading.Cooldown, c.Trading.LoopDelay)
	}
	if c.Risk.DailyLossLimit != 800 || c.Risk.MaxConsecutiveLosses != 2 {
		t.Fatalf("unexpected risk defaults %+v", c.Risk)
	}
	if c.Pattern.MaxAgeCandles != 50 || c.Pattern.Tolerance != 0.002 {
		t.Fatalf("unexpected pattern defaults %+v", c.Pattern)
	}
	if c.Scoring.ConfluenceWeights["5m"] != 0.5 || c.Scoring.TrendWeights["15m"] != 0.7 {
		t.Fatalf("unexpected weight defaults %+v", c.Scoring)
	}
	if len(c.Targets.Split) != 3 {
		t.Fatalf("unexpected split %v", c.Targets.Split)
	}
	if c.Source != "paper" || c.Sink != "paper" {
		t.Fatalf("unexpected adapters %s/%s", c.Source, c.Sink)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad source":   "environment: test\nsource: ftp\n",
		"bad session":  "environment: test\nrisk:\n  session_start: \"25:00\"\n",
		"missing host": "environment: test\nsource: clickhouse\n",
		"rest no url":  "environment: test\nsink: rest\n",
		"kafka empty":  "environment: test\nkafka:\n  enabled: true\n",
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	c, err := Parse([]byte("environment: test\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	env := map[string]string{
		"SYMBOL":        "mnq",
		"KAFKA_BROKERS": "k1:9092,k2:9092",
		"REDIS_ADDR":    "cache:6380",
	}
	c.applyEnv(func(k string) string { return env[k] })

	if c.Trading.Symbol != "MNQ" {
		t.Fatalf("expected MNQ, got %s", c.Trading.Symbol)
	}
	if !c.Kafka.Enabled || strings.Join(c.Kafka.Brokers, ",") != "k1:9092,k2:9092" {
		t.Fatalf("unexpected kafka %+v", c.Kafka.Brokers)
	}
	if !c.Redis.Enabled || c.Redis.Host != "cache" || c.Redis.Port != 6380 {
		t.Fatalf("unexpected redis %s:%d", c.Redis.Host, c.Redis.Port)
	}
}
