// Repository katmanı başlatma.
//
// initRepositories, repository implementasyonlarını oluşturur. Participant ve
// push log her zaman SQLite'tadır; push token registry REGISTRY_BACKEND ile
// sqlite, redis veya postgres olabilir.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"

	"github.com/akinalp/callrelay/config"
	"github.com/akinalp/callrelay/repository"
)

// Repositories, tüm repository instance'larını tutan container struct.
type Repositories struct {
	PushToken   repository.PushTokenRepository
	PushLog     repository.PushLogRepository
	Participant repository.ParticipantRepository

	// Harici backend bağlantıları; shutdown'da kapatılır.
	closers []io.Closer
}

// initRepositories, SQLite bağlantısından ve registry ayarlarından repository'leri oluşturur.
//
// Her NewSQLite* fonksiyonu aynı *sql.DB'yi alır; sql.DB thread-safe bir
// connection pool'dur.
func initRepositories(ctx context.Context, conn *sql.DB, cfg config.RegistryConfig) (*Repositories, error) {
	repos := &Repositories{
		PushLog:     repository.NewSQLitePushLogRepo(conn),
		Participant: repository.NewSQLiteParticipantRepo(conn),
	}

	switch cfg.Backend {
	case config.RegistryRedis:
		rdb, err := repository.NewRedisPushTokenRepo(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis registry: %w", err)
		}
		repos.PushToken = rdb
		repos.closers = append(repos.closers, rdb)
	case config.RegistryPostgres:
		pg, err := repository.NewPostgresPushTokenRepo(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("postgres registry: %w", err)
		}
		repos.PushToken = pg
		repos.closers = append(repos.closers, pg)
	default:
		repos.PushToken = repository.NewSQLitePushTokenRepo(conn)
	}

	log.Printf("[main] push token registry backend: %s", cfg.Backend)
	return repos, nil
}

// Close, harici registry bağlantılarını kapatır. SQLite bağlantısı main'de kapanır.
func (r *Repositories) Close() {
	for _, c := range r.closers {
		if err := c.Close(); err != nil {
			log.Printf("[main] failed to close registry backend: %v", err)
		}
	}
}
