package geo

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/roadside-assist/internal/models"
)

// RedisGeo implements the provider directory using Redis GEO commands.
// Positions live in one geo set; everything else in a hash per provider.
type RedisGeo struct {
	client *redis.Client
	key    string
}

func NewRedisGeo(client *redis.Client, key string) *RedisGeo {
	if key == "" {
		key = "providers_geo"
	}
	return &RedisGeo{client: client, key: key}
}

func (r *RedisGeo) Upsert(ctx context.Context, p models.Provider) error {
	pipe := r.client.TxPipeline()
	pipe.GeoAdd(ctx, r.key, &redis.GeoLocation{Longitude: p.Location.Lng, Latitude: p.Location.Lat, Name: p.ID})
	pipe.HSet(ctx, metaKey(p.ID), metaFields(p, time.Now()))
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisGeo) UpdatePosition(ctx context.Context, rep models.LocationReport) error {
	pipe := r.client.TxPipeline()
	pipe.GeoAdd(ctx, r.key, &redis.GeoLocation{Longitude: rep.Lng, Latitude: rep.Lat, Name: rep.ProviderID})
	pipe.HSet(ctx, metaKey(rep.ProviderID), map[string]interface{}{
		"online":  strconv.FormatBool(rep.Online),
		"updated": reportTime(rep).UTC().Format(time.RFC3339),
	})
	_, err := pipe.Exec(ctx)
	return err
}

// CountOnline scans provider metadata for online providers.
func (r *RedisGeo) CountOnline(ctx context.Context) (int, error) {
	ids, err := r.client.ZRange(ctx, r.key, 0, -1).Result()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		v, err := r.client.HGet(ctx, metaKey(id), "online").Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return 0, err
		}
		if v == "true" {
			n++
		}
	}
	return n, nil
}

func (r *RedisGeo) Remove(ctx context.Context, id string) error {
	pipe := r.client.TxPipeline()
	pipe.ZRem(ctx, r.key, id)
	pipe.Del(ctx, metaKey(id))
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisGeo) Get(ctx context.Context, id string) (models.Provider, bool, error) {
	pos, err := r.client.GeoPos(ctx, r.key, id).Result()
	if err != nil {
		return models.Provider{}, false, err
	}
	if len(pos) == 0 || pos[0] == nil {
		return models.Provider{}, false, nil
	}
	meta, err := r.client.HGetAll(ctx, metaKey(id)).Result()
	if err != nil {
		return models.Provider{}, false, err
	}
	p := providerFromMeta(id, meta)
	p.Location = models.Coordinate{Lat: pos[0].Latitude, Lng: pos[0].Longitude}
	return p, true, nil
}

func (r *RedisGeo) Nearby(ctx context.Context, origin models.Coordinate, radiusMiles float64, category string) ([]models.Provider, error) {
	res, err := r.client.GeoSearchLocation(ctx, r.key, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  origin.Lng,
			Latitude:   origin.Lat,
			Radius:     radiusMiles,
			RadiusUnit: "mi",
			Sort:       "ASC",
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(res) == 0 {
		return nil, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(res))
	for i, g := range res {
		cmds[i] = pipe.HGetAll(ctx, metaKey(g.Name))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	out := make([]models.Provider, 0, len(res))
	for i, g := range res {
		meta, err := cmds[i].Result()
		if err != nil {
			continue
		}
		p := providerFromMeta(g.Name, meta)
		p.Location = models.Coordinate{Lat: g.Latitude, Lng: g.Longitude}
		if !p.Online {
			continue
		}
		if category != "" && p.Category != category {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func metaKey(id string) string { return "provider:meta:" + id }

func metaFields(p models.Provider, now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"name":           p.Name,
		"category":       p.Category,
		"rating":         strconv.FormatFloat(p.Rating, 'f', -1, 64),
		"price":          strconv.FormatFloat(p.Price, 'f', -1, 64),
		"online":         strconv.FormatBool(p.Online),
		"completed_jobs": strconv.Itoa(p.CompletedJobs),
		"specialties":    strings.Join(p.Specialties, "|"),
		"updated":        now.UTC().Format(time.RFC3339),
	}
}

func providerFromMeta(id string, m map[string]string) models.Provider {
	p := models.Provider{ID: id, Name: m["name"], Category: m["category"]}
	if v, ok := m["rating"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			p.Rating = f
		}
	}
	if v, ok := m["price"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			p.Price = f
		}
	}
	p.Online = m["online"] == "true"
	if v, ok := m["completed_jobs"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			p.CompletedJobs = n
		}
	}
	if v := m["specialties"]; v != "" {
		p.Specialties = strings.Split(v, "|")
	}
	if v, ok := m["updated"]; ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			p.Updated = t
		}
	}
	return p
}
