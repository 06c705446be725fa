package favorites

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
)

const (
	updatesChannelPrefix = "favorites:"

	// debounceWindow coalesces notification bursts: rapid toggles on
	// another device produce one reload, not one per message.
	debounceWindow = 150 * time.Millisecond
)

func updatesChannel(accountID string) string {
	return updatesChannelPrefix + accountID
}

// RedisPublisher fans favorite updates out to other running instances
// through a redis pub/sub channel per account.
type RedisPublisher struct {
	rdb *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

func (p *RedisPublisher) PublishUpdate(ctx context.Context, accountID string) error {
	return p.rdb.Publish(ctx, updatesChannel(accountID), "updated").Err()
}

// Subscription listens for remote favorite updates and reloads the shared
// view from the store, debounced so message bursts collapse into one reload.
type Subscription struct {
	rdb          *redis.Client
	synchronizer *Synchronizer
	accountID    string
}

func NewSubscription(rdb *redis.Client, synchronizer *Synchronizer, accountID string) *Subscription {
	return &Subscription{
		rdb:          rdb,
		synchronizer: synchronizer,
		accountID:    accountID,
	}
}

// Run blocks until ctx is done, consuming update notifications.
func (s *Subscription) Run(ctx context.Context) {
	pubsub := s.rdb.Subscribe(ctx, updatesChannel(s.accountID))
	defer func() {
		if err := pubsub.Close(); err != nil {
			log.Errorf("favorites subscription: close pubsub: %s", err)
		}
	}()

	notifications := make(chan struct{}, 1)
	go func() {
		for range pubsub.Channel() {
			select {
			case notifications <- struct{}{}:
			default:
			}
		}
	}()

	s.consume(ctx, notifications)
}

// consume is the debounce loop, split out so tests can feed it directly.
func (s *Subscription) consume(ctx context.Context, notifications <-chan struct{}) {
	debounce := time.NewTimer(debounceWindow)
	if !debounce.Stop() {
		<-debounce.C
	}

	for {
		select {
		case <-ctx.Done():
			debounce.Stop()
			return
		case <-notifications:
			if !debounce.Stop() {
				select {
				case <-debounce.C:
				default:
				}
			}
			debounce.Reset(debounceWindow)
		case <-debounce.C:
			if err := s.synchronizer.Reload(ctx, s.accountID); err != nil {
				log.Errorf("favorites subscription: %s", err)
			}
		}
	}
}
