// Package statusstore holds vehiclestatus.Store implementations backed by
// external storage.
package statusstore

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kilianp07/etr/core/logger"
	"github.com/kilianp07/etr/core/model"
	"github.com/kilianp07/etr/core/vehiclestatus"
)

const (
	statusPrefix  = "etr:status:"
	commandPrefix = "etr:lastcmd:"
	pendingPrefix = "etr:pending:"
	earlyPrefix   = "etr:early:"

	// correlation keys outlive any reasonable command round trip
	correlationTTL = time.Hour
	opTimeout      = 2 * time.Second
)

// RedisStore keeps the latest status of every vehicle in Redis so several
// service instances can serve the same fleet view. Store errors are logged;
// the Store contract has no error path.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
	log logger.Logger
}

var _ vehiclestatus.Store = (*RedisStore)(nil)

// NewRedisStore uses rdb. Status entries expire after ttl; zero keeps them.
func NewRedisStore(rdb *redis.Client, ttl time.Duration, log logger.Logger) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl, log: logger.OrNop(log)}
}

func (s *RedisStore) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), opTimeout)
}

// Update stores every frame carrying an id.
func (s *RedisStore) Update(frames []model.Frame, at time.Time) {
	ctx, cancel := s.ctx()
	defer cancel()
	pipe := s.rdb.Pipeline()
	n := 0
	for _, f := range frames {
		id := f.ID()
		if id == "" {
			continue
		}
		data, err := json.Marshal(vehiclestatus.Status{
			VehicleID:   id,
			DisplayName: f.DisplayName(),
			State:       string(f.State()),
			UpdatedAt:   at,
			Frame:       f,
		})
		if err != nil {
			s.log.Errorf("encode status %s: %v", id, err)
			continue
		}
		pipe.Set(ctx, statusPrefix+id, data, s.ttl)
		n++
	}
	if n == 0 {
		return
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Errorf("store %d statuses: %v", n, err)
	}
}

// List scans the stored statuses and joins their last command.
func (s *RedisStore) List(f vehiclestatus.Filter) []vehiclestatus.Status {
	ctx, cancel := s.ctx()
	defer cancel()
	var keys []string
	iter := s.rdb.Scan(ctx, 0, statusPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		s.log.Errorf("scan statuses: %v", err)
		return nil
	}
	if len(keys) == 0 {
		return []vehiclestatus.Status{}
	}
	cmdKeys := make([]string, len(keys))
	for i, k := range keys {
		cmdKeys[i] = commandPrefix + strings.TrimPrefix(k, statusPrefix)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		s.log.Errorf("read statuses: %v", err)
		return nil
	}
	cmds, err := s.rdb.MGet(ctx, cmdKeys...).Result()
	if err != nil {
		s.log.Errorf("read last commands: %v", err)
		cmds = make([]any, len(keys))
	}

	res := make([]vehiclestatus.Status, 0, len(keys))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue // expired between scan and read
		}
		var st vehiclestatus.Status
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			s.log.Warnf("decode status %s: %v", keys[i], err)
			continue
		}
		if f.State != "" && st.State != f.State {
			continue
		}
		if c, ok := cmds[i].(string); ok {
			var lc vehiclestatus.LastCommand
			if err := json.Unmarshal([]byte(c), &lc); err == nil {
				st.LastCommand = &lc
			}
		}
		res = append(res, st)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].VehicleID < res[j].VehicleID })
	return res
}

// Track maps commandID to vehicleID, or applies a completion that arrived
// first.
func (s *RedisStore) Track(commandID, vehicleID string) {
	ctx, cancel := s.ctx()
	defer cancel()
	raw, err := s.rdb.GetDel(ctx, earlyPrefix+commandID).Bytes()
	switch {
	case err == nil:
		var cmd vehiclestatus.LastCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			s.log.Warnf("decode early completion %s: %v", commandID, err)
			return
		}
		s.attach(ctx, vehicleID, cmd)
		return
	case !errors.Is(err, redis.Nil):
		s.log.Errorf("read early completion %s: %v", commandID, err)
	}
	if err := s.rdb.Set(ctx, pendingPrefix+commandID, vehicleID, correlationTTL).Err(); err != nil {
		s.log.Errorf("track command %s: %v", commandID, err)
	}
}

// Complete attaches cmd to its tracked vehicle. Untracked completions are
// kept for a later Track until they expire.
func (s *RedisStore) Complete(cmd vehiclestatus.LastCommand) bool {
	ctx, cancel := s.ctx()
	defer cancel()
	vehicleID, err := s.rdb.GetDel(ctx, pendingPrefix+cmd.ID).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Errorf("read pending command %s: %v", cmd.ID, err)
			return false
		}
		data, _ := json.Marshal(cmd)
		if err := s.rdb.Set(ctx, earlyPrefix+cmd.ID, data, correlationTTL).Err(); err != nil {
			s.log.Errorf("keep early completion %s: %v", cmd.ID, err)
		}
		return false
	}
	s.attach(ctx, vehicleID, cmd)
	return true
}

func (s *RedisStore) attach(ctx context.Context, vehicleID string, cmd vehiclestatus.LastCommand) {
	data, _ := json.Marshal(cmd)
	placeholder, _ := json.Marshal(vehiclestatus.Status{VehicleID: vehicleID})
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, commandPrefix+vehicleID, data, s.ttl)
	pipe.SetNX(ctx, statusPrefix+vehicleID, placeholder, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Errorf("store last command of %s: %v", vehicleID, err)
	}
}
