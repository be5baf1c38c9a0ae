package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/akinalp/callrelay/models"
	"github.com/akinalp/callrelay/pkg"
)

// Redis anahtar düzeni:
//
//	pushtoken:<token>           hash  {owner, os, bundle, at}
//	pushtokens:owner:<ownerID>  set   token'lar
//
// Hash token başına tek kayıttır; set sadece owner → token indeksidir.
// Set'te kalmış ama hash'i silinmiş token'lar ListByOwner sırasında temizlenir.
const (
	redisTokenPrefix = "pushtoken:"
	redisOwnerPrefix = "pushtokens:owner:"
)

// RedisPushTokenRepo, PushTokenRepository'nin Redis implementasyonu.
// Birden fazla relay instance'ı aynı registry'yi paylaşacaksa kullanılır.
type RedisPushTokenRepo struct {
	rdb *redis.Client
}

// NewRedisPushTokenRepo, URL'i parse edip client açar. URL parse edilemezse
// düz host:port adresi olarak denenir.
func NewRedisPushTokenRepo(ctx context.Context, addr string) (*RedisPushTokenRepo, error) {
	opt, err := redis.ParseURL(addr)
	if err != nil {
		opt = &redis.Options{Addr: addr}
	}
	rdb := redis.NewClient(opt)

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect redis: %w", err)
	}
	log.Printf("[registry] redis backend connected (%s)", opt.Addr)
	return &RedisPushTokenRepo{rdb: rdb}, nil
}

// NewRedisPushTokenRepoFromClient, hazır bir client ile constructor.
func NewRedisPushTokenRepoFromClient(rdb *redis.Client) *RedisPushTokenRepo {
	return &RedisPushTokenRepo{rdb: rdb}
}

func tokenKey(token string) string { return redisTokenPrefix + token }
func ownerKey(owner string) string { return redisOwnerPrefix + owner }

func (r *RedisPushTokenRepo) Upsert(ctx context.Context, ep *models.PushEndpoint) error {
	return r.Rotate(ctx, "", ep)
}

// redisTxRetries, WATCH edilen anahtar araya giren bir yazma ile değişirse
// transaction'ın kaç kez tekrar deneneceği.
const redisTxRetries = 3

// Rotate, eski token silme + yeni token yazma + owner değişimi temizliğini
// tek MULTI/EXEC bloğunda yapar. İki token hash'i de WATCH altındadır.
//
// Eski token sadece ep.OwnerID'ye aitse silinir; başka bir katılımcının
// endpoint'i previousToken olarak verilse bile dokunulmaz.
func (r *RedisPushTokenRepo) Rotate(ctx context.Context, previousToken string, ep *models.PushEndpoint) error {
	if ep.RegisteredAt.IsZero() {
		ep.RegisteredAt = time.Now().UTC()
	}
	ep.ID = ep.Token

	rotating := previousToken != "" && previousToken != ep.Token
	keys := []string{tokenKey(ep.Token)}
	if rotating {
		keys = append(keys, tokenKey(previousToken))
	}

	txf := func(tx *redis.Tx) error {
		currentOwner, err := hashOwner(ctx, tx, ep.Token)
		if err != nil {
			return err
		}
		var previousOwner string
		if rotating {
			if previousOwner, err = hashOwner(ctx, tx, previousToken); err != nil {
				return err
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if rotating {
				if previousOwner == ep.OwnerID {
					pipe.Del(ctx, tokenKey(previousToken))
				}
				pipe.SRem(ctx, ownerKey(ep.OwnerID), previousToken)
			}
			if currentOwner != "" && currentOwner != ep.OwnerID {
				pipe.SRem(ctx, ownerKey(currentOwner), ep.Token)
			}
			pipe.HSet(ctx, tokenKey(ep.Token),
				"owner", ep.OwnerID,
				"os", string(ep.Platform),
				"bundle", ep.BundleID,
				"at", ep.RegisteredAt.Format(time.RFC3339Nano),
			)
			pipe.SAdd(ctx, ownerKey(ep.OwnerID), ep.Token)
			return nil
		})
		return err
	}

	var err error
	for attempt := 0; attempt < redisTxRetries; attempt++ {
		err = r.rdb.Watch(ctx, txf, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("failed to upsert push token: %w", err)
	}
	return nil
}

// hashOwner, token hash'inin owner alanı. Hash yoksa boş döner.
func hashOwner(ctx context.Context, tx *redis.Tx, token string) (string, error) {
	owner, err := tx.HGet(ctx, tokenKey(token), "owner").Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read push token owner: %w", err)
	}
	return owner, nil
}

func (r *RedisPushTokenRepo) ListByOwner(ctx context.Context, ownerID string) ([]models.PushEndpoint, error) {
	tokens, err := r.rdb.SMembers(ctx, ownerKey(ownerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list push tokens: %w", err)
	}
	endpoints := make([]models.PushEndpoint, 0, len(tokens))
	if len(tokens) == 0 {
		return endpoints, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(tokens))
	_, err = r.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, tok := range tokens {
			cmds[i] = pipe.HGetAll(ctx, tokenKey(tok))
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to load push tokens: %w", err)
	}

	var stale []any
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 || fields["owner"] != ownerID {
			stale = append(stale, tokens[i])
			continue
		}
		endpoints = append(endpoints, endpointFromHash(tokens[i], fields))
	}

	if len(stale) > 0 {
		if err := r.rdb.SRem(ctx, ownerKey(ownerID), stale...).Err(); err != nil {
			log.Printf("[registry] failed to prune %d stale token(s) for %s: %v", len(stale), ownerID, err)
		}
	}
	return endpoints, nil
}

func (r *RedisPushTokenRepo) DeleteByToken(ctx context.Context, ownerID, token string) error {
	owner, err := r.rdb.HGet(ctx, tokenKey(token), "owner").Result()
	if errors.Is(err, redis.Nil) || (err == nil && owner != ownerID) {
		return pkg.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read push token: %w", err)
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, tokenKey(token))
		pipe.SRem(ctx, ownerKey(ownerID), token)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete push token: %w", err)
	}
	return nil
}

// Close, client bağlantılarını kapatır.
func (r *RedisPushTokenRepo) Close() error {
	return r.rdb.Close()
}

func endpointFromHash(token string, fields map[string]string) models.PushEndpoint {
	at, err := time.Parse(time.RFC3339Nano, fields["at"])
	if err != nil {
		at = time.Time{}
	}
	return models.PushEndpoint{
		ID:           token,
		OwnerID:      fields["owner"],
		Token:        token,
		Platform:     models.Platform(fields["os"]),
		BundleID:     fields["bundle"],
		RegisteredAt: at,
	}
}
