package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"filesmanager/internal/models"
	"filesmanager/internal/redis"
)

const (
	redisPendingKey       = "files:thumbnails:pending"
	redisProcessingPrefix = "files:thumbnails:processing:"
	redisHeartbeatPrefix  = "files:thumbnails:heartbeat:"
	redisConsumersKey     = "files:thumbnails:consumers"
	redisEventsChannel    = "files:thumbnails:events"
	redisPopTimeout       = time.Second
)

func processingKey(consumer string) string { return redisProcessingPrefix + consumer }

func heartbeatKey(consumer string) string { return redisHeartbeatPrefix + consumer }

var errRedisUnavailable = errors.New("redis client not initialized")

// redisQueue keeps pending jobs in one list and moves each popped job into the
// consumer's own processing list until it is acknowledged. Consumers are
// tracked in a set; a consumer whose heartbeat key expired is considered dead.
type redisQueue struct {
	client *redis.Client
}

func NewRedisQueue(client *redis.Client) Queue {
	return &redisQueue{client: client}
}

func (q *redisQueue) Push(ctx context.Context, job models.ThumbnailJob) error {
	raw := q.client.Raw()
	if raw == nil {
		return errRedisUnavailable
	}
	payload, err := encodeJob(job)
	if err != nil {
		return err
	}
	if err := raw.LPush(ctx, redisPendingKey, payload).Err(); err != nil {
		return fmt.Errorf("push thumbnail job: %w", err)
	}
	return nil
}

func (q *redisQueue) Pop(ctx context.Context, consumer string) (*Delivery, error) {
	raw := q.client.Raw()
	if raw == nil {
		return nil, errRedisUnavailable
	}
	// registered before the first move so a crash right after it is recoverable
	if err := raw.SAdd(ctx, redisConsumersKey, consumer).Err(); err != nil {
		return nil, fmt.Errorf("register thumbnail consumer: %w", err)
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// short block so cancellation is noticed between polls
		payload, err := raw.BLMove(ctx, redisPendingKey, processingKey(consumer), "RIGHT", "LEFT", redisPopTimeout).Result()
		if errors.Is(err, redis.ErrCacheMiss) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("pop thumbnail job: %w", err)
		}
		d := decodeDelivery(payload)
		d.consumer = consumer
		return d, nil
	}
}

func (q *redisQueue) Ack(ctx context.Context, d *Delivery) error {
	raw := q.client.Raw()
	if raw == nil {
		return errRedisUnavailable
	}
	if err := raw.LRem(ctx, processingKey(d.consumer), 1, d.raw).Err(); err != nil {
		return fmt.Errorf("ack thumbnail job: %w", err)
	}
	return nil
}

func (q *redisQueue) Heartbeat(ctx context.Context, consumer string) error {
	raw := q.client.Raw()
	if raw == nil {
		return errRedisUnavailable
	}
	if err := raw.Set(ctx, heartbeatKey(consumer), time.Now().UTC().Format(time.RFC3339), consumerTTL).Err(); err != nil {
		return fmt.Errorf("thumbnail consumer heartbeat: %w", err)
	}
	if err := raw.SAdd(ctx, redisConsumersKey, consumer).Err(); err != nil {
		return fmt.Errorf("register thumbnail consumer: %w", err)
	}
	return nil
}

// Requeue moves the deliveries of every consumer whose heartbeat expired back
// to the consuming end of the pending list. Live consumers are left alone.
func (q *redisQueue) Requeue(ctx context.Context) (int, error) {
	raw := q.client.Raw()
	if raw == nil {
		return 0, errRedisUnavailable
	}
	consumers, err := raw.SMembers(ctx, redisConsumersKey).Result()
	if err != nil {
		return 0, fmt.Errorf("list thumbnail consumers: %w", err)
	}
	total := 0
	for _, consumer := range consumers {
		alive, err := raw.Exists(ctx, heartbeatKey(consumer)).Result()
		if err != nil {
			return total, fmt.Errorf("check thumbnail consumer %s: %w", consumer, err)
		}
		if alive > 0 {
			continue
		}
		n, err := q.forget(ctx, consumer)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Release hands a stopping consumer's unacknowledged deliveries back to the
// pending list and unregisters it.
func (q *redisQueue) Release(ctx context.Context, consumer string) (int, error) {
	raw := q.client.Raw()
	if raw == nil {
		return 0, errRedisUnavailable
	}
	if err := raw.Del(ctx, heartbeatKey(consumer)).Err(); err != nil {
		return 0, fmt.Errorf("release thumbnail consumer: %w", err)
	}
	return q.forget(ctx, consumer)
}

func (q *redisQueue) forget(ctx context.Context, consumer string) (int, error) {
	raw := q.client.Raw()
	n := 0
	for {
		err := raw.LMove(ctx, processingKey(consumer), redisPendingKey, "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.ErrCacheMiss) {
			break
		}
		if err != nil {
			return n, fmt.Errorf("requeue thumbnail jobs of %s: %w", consumer, err)
		}
		n++
	}
	if err := raw.SRem(ctx, redisConsumersKey, consumer).Err(); err != nil {
		return n, fmt.Errorf("unregister thumbnail consumer: %w", err)
	}
	return n, nil
}

type redisNotifier struct {
	client *redis.Client
}

// NewRedisNotifier logs events and publishes them on the events channel.
func NewRedisNotifier(client *redis.Client) Notifier {
	return &redisNotifier{client: client}
}

func (r *redisNotifier) Notify(ctx context.Context, ev Event) {
	logEvent("thumbnail", ev)
	if r == nil || r.client == nil {
		return
	}
	raw := r.client.Raw()
	if raw == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("thumbnail event marshal failed: %v", err)
		return
	}
	if err := raw.Publish(ctx, redisEventsChannel, payload).Err(); err != nil {
		log.Printf("thumbnail event publish failed: %v", err)
	}
}

// Listen subscribes to job events until ctx is done. It returns once the
// subscription is confirmed; handler runs on the subscription goroutine.
func Listen(ctx context.Context, client *redis.Client, handler func(Event)) error {
	if client == nil || handler == nil {
		return errors.New("listener needs a client and a handler")
	}
	raw := client.Raw()
	if raw == nil {
		return errRedisUnavailable
	}
	pubsub := raw.Subscribe(ctx, redisEventsChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribe thumbnail events: %w", err)
	}
	go func() {
		<-ctx.Done()
		pubsub.Close()
	}()
	go func() {
		ch := pubsub.Channel()
		// use sub chan to receive msg
		for msg := range ch {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("thumbnail event decode failed: %v", err)
				continue
			}
			handler(ev)
		}
	}()
	return nil
}

// LogEvents is a Listen handler that writes remote events to the log.
func LogEvents(ev Event) {
	logEvent("remote thumbnail", ev)
}
