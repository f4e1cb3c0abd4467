package main

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/nestmate/roommates/internal/compat"
	"github.com/nestmate/roommates/internal/grouping"
	"github.com/nestmate/roommates/internal/interest"
	"github.com/nestmate/roommates/internal/roster"
)

//go:embed sample.json
var sampleFixture []byte

type like struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type fixture struct {
	Profiles []compat.Profile `json:"profiles"`
	Likes    []like           `json:"likes"`
}

type cfg struct {
	DSN       string
	RedisAddr string
	File      string
	Truncate  bool
}

func main() {
	var c cfg
	flag.StringVar(&c.DSN, "dsn", os.Getenv("DATABASE_URL"), "Postgres DSN [env: DATABASE_URL]")
	flag.StringVar(&c.RedisAddr, "redis", envOr("REDIS_ADDR", "localhost:6379"), "Redis address [env: REDIS_ADDR]")
	flag.StringVar(&c.File, "file", "", "JSON fixture with profiles and likes (default: built-in sample)")
	flag.BoolVar(&c.Truncate, "truncate", false, "delete existing profiles and interests first")
	flag.Parse()

	if c.DSN == "" {
		log.Fatal("Missing DSN: provide --dsn or set DATABASE_URL")
	}

	fx, err := loadFixture(c.File)
	if err != nil {
		log.Fatalf("load fixture: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := sql.Open("postgres", c.DSN)
	if err != nil {
		log.Fatalf("DB open error: %v", err)
	}
	defer db.Close()
	if err := roster.Migrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}

	profiles := roster.NewStore(db)
	interests := interest.NewStore(rdb)

	if c.Truncate {
		if _, err := db.ExecContext(ctx, `TRUNCATE profiles`); err != nil {
			log.Fatalf("truncate profiles: %v", err)
		}
		if err := interests.Clear(ctx); err != nil {
			log.Fatalf("clear interests: %v", err)
		}
		log.Println("Truncated profiles and interests.")
	}

	// Roster order is insertion order, so insert in fixture order.
	for _, p := range fx.Profiles {
		if err := profiles.Upsert(ctx, p); err != nil {
			log.Fatalf("upsert %s: %v", p.ID, err)
		}
	}
	log.Printf("Upserted %d profiles", len(fx.Profiles))

	added := 0
	for _, l := range fx.Likes {
		ok, err := interests.Add(ctx, l.From, l.To)
		if err != nil {
			log.Printf("skip like %s->%s: %v", l.From, l.To, err)
			continue
		}
		if ok {
			added++
		}
	}
	log.Printf("Recorded %d new likes (%d in fixture)", added, len(fx.Likes))
}

func loadFixture(path string) (fixture, error) {
	data := sampleFixture
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return fixture{}, err
		}
	}

	var fx fixture
	if err := json.Unmarshal(data, &fx); err != nil {
		return fixture{}, fmt.Errorf("parse %s: %w", orSample(path), err)
	}
	for _, p := range fx.Profiles {
		if err := grouping.ValidateID(p.ID); err != nil {
			return fixture{}, fmt.Errorf("%s: %w", orSample(path), err)
		}
	}
	return fx, nil
}

func orSample(path string) string {
	if path == "" {
		return "built-in sample"
	}
	return path
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
