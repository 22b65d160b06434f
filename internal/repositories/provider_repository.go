package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"taskhive/internal/models"
)

// ErrProviderNotFound: no snapshot exists for the given provider id.
var ErrProviderNotFound = errors.New("provider not found")

// ProviderRepository is the Redis-backed liveness oracle and geo index.
// The realtime connection layer writes through SetOnline/Heartbeat/
// UpdatePosition/SetOffline; the dispatch engine only reads Snapshot and
// NearbyOnline. Online/offline is a TTL'd presence key, so a provider whose
// connection dies without a clean disconnect goes dark on its own.
type ProviderRepository interface {
	SetOnline(ctx context.Context, snap *models.ProviderSnapshot) error
	Heartbeat(ctx context.Context, providerID string) error
	UpdatePosition(ctx context.Context, providerID string, pos models.Point) error
	SetOffline(ctx context.Context, providerID string) error

	Snapshot(ctx context.Context, providerID string) (*models.ProviderSnapshot, error)
	NearbyOnline(ctx context.Context, capability string, origin models.Point, radiusM float64) ([]models.Candidate, error)
}

type providerRepository struct {
	rdb         *redis.Client
	presenceTTL time.Duration
}

func NewProviderRepository(rdb *redis.Client, presenceTTL time.Duration) ProviderRepository {
	return &providerRepository{rdb: rdb, presenceTTL: presenceTTL}
}

func providerKey(id string) string { return fmt.Sprintf("provider:%s", id) }

func presenceKey(id string) string { return fmt.Sprintf("presence:%s", id) }

func geoKey(capability string) string { return fmt.Sprintf("geo:%s", capability) }

func (r *providerRepository) SetOnline(ctx context.Context, snap *models.ProviderSnapshot) error {
	snap.Online = true
	snap.UpdatedAt = time.Now()
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, providerKey(snap.ID), data, 0)
	pipe.Set(ctx, presenceKey(snap.ID), "1", r.presenceTTL)
	for _, cap := range snap.Capabilities {
		pipe.GeoAdd(ctx, geoKey(cap), &redis.GeoLocation{
			Name:      snap.ID,
			Longitude: snap.LastPosition.Lon,
			Latitude:  snap.LastPosition.Lat,
		})
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (r *providerRepository) Heartbeat(ctx context.Context, providerID string) error {
	ok, err := r.rdb.Expire(ctx, presenceKey(providerID), r.presenceTTL).Result()
	if err != nil {
		return err
	}
	if !ok {
		// presence key is gone; the provider must re-announce with SetOnline
		return ErrProviderNotFound
	}
	return nil
}

func (r *providerRepository) UpdatePosition(ctx context.Context, providerID string, pos models.Point) error {
	snap, err := r.Snapshot(ctx, providerID)
	if err != nil {
		return err
	}
	snap.LastPosition = pos
	snap.UpdatedAt = time.Now()
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, providerKey(providerID), data, 0)
	pipe.Set(ctx, presenceKey(providerID), "1", r.presenceTTL)
	for _, cap := range snap.Capabilities {
		pipe.GeoAdd(ctx, geoKey(cap), &redis.GeoLocation{
			Name:      providerID,
			Longitude: pos.Lon,
			Latitude:  pos.Lat,
		})
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (r *providerRepository) SetOffline(ctx context.Context, providerID string) error {
	snap, err := r.Snapshot(ctx, providerID)
	if err != nil {
		if errors.Is(err, ErrProviderNotFound) {
			return nil
		}
		return err
	}

	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, presenceKey(providerID))
	for _, cap := range snap.Capabilities {
		pipe.ZRem(ctx, geoKey(cap), providerID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (r *providerRepository) Snapshot(ctx context.Context, providerID string) (*models.ProviderSnapshot, error) {
	data, err := r.rdb.Get(ctx, providerKey(providerID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}

	var snap models.ProviderSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}

	alive, err := r.rdb.Exists(ctx, presenceKey(providerID)).Result()
	if err != nil {
		return nil, err
	}
	snap.Online = alive > 0
	return &snap, nil
}

func (r *providerRepository) NearbyOnline(ctx context.Context, capability string, origin models.Point, radiusM float64) ([]models.Candidate, error) {
	locs, err := r.rdb.GeoSearchLocation(ctx, geoKey(capability), &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  origin.Lon,
			Latitude:   origin.Lat,
			Radius:     radiusM,
			RadiusUnit: "m",
			Sort:       "ASC",
		},
		WithDist: true,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(locs) == 0 {
		return nil, nil
	}

	// geo set members survive a dropped connection; the presence key is the
	// authoritative online signal, so filter against it.
	pipe := r.rdb.Pipeline()
	checks := make([]*redis.IntCmd, len(locs))
	for i, loc := range locs {
		checks[i] = pipe.Exists(ctx, presenceKey(loc.Name))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	var out []models.Candidate
	for i, loc := range locs {
		if checks[i].Val() == 0 {
			continue
		}
		// Dist comes back in the query unit, meters here.
		out = append(out, models.Candidate{ProviderID: loc.Name, DistanceM: loc.Dist})
	}
	return out, nil
}
