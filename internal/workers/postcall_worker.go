package workers

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/callrelay/internal/models"
)

// Processor is the post-call pipeline the pool feeds.
type Processor interface {
	Process(ctx context.Context, pc models.PostCall)
}

// PostCallPool queues finished calls on a Redis stream and drains them with
// NumWorkers consumers, so hand-offs survive a restart of this process.
// It satisfies relay.PostCallProcessor.
type PostCallPool struct {
	Redis      *redis.Client
	Processor  Processor
	NumWorkers int

	Logger *logrus.Logger

	Stream         string
	Group          string
	ConsumerPrefix string
	MaxLen         int64
	JobTimeout     time.Duration

	once sync.Once
	wg   sync.WaitGroup
}

func (p *PostCallPool) init() { p.once.Do(p.defaults) }

func (p *PostCallPool) defaults() {
	if p.Stream == "" {
		p.Stream = "postcall:stream"
	}
	if p.Group == "" {
		p.Group = "postcall-workers"
	}
	if p.ConsumerPrefix == "" {
		p.ConsumerPrefix = "c"
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 4
	}
	if p.MaxLen <= 0 {
		p.MaxLen = 10000
	}
	if p.JobTimeout <= 0 {
		p.JobTimeout = 2 * time.Minute
	}
	if p.Logger == nil {
		p.Logger = logrus.New()
	}
}

func (p *PostCallPool) Start(ctx context.Context) error {
	if p.Redis == nil || p.Processor == nil {
		return errors.New("PostCallPool missing dependency: Redis/Processor must be set")
	}
	p.init()

	_ = p.Redis.XGroupCreateMkStream(ctx, p.Stream, p.Group, "0").Err() // ignore BUSYGROUP

	for i := 0; i < p.NumWorkers; i++ {
		consumer := p.ConsumerPrefix + "-" + strconv.Itoa(i+1)
		p.wg.Add(1)
		go p.runConsumer(ctx, consumer)
	}
	return nil
}

// Wait returns once every consumer has stopped.
func (p *PostCallPool) Wait() { p.wg.Wait() }

// Process enqueues pc. If the stream is unreachable the call is processed inline.
func (p *PostCallPool) Process(ctx context.Context, pc models.PostCall) {
	p.init()
	log := p.Logger.WithField("session_id", pc.SessionID)

	payload, err := json.Marshal(pc)
	if err == nil {
		err = p.Redis.XAdd(ctx, &redis.XAddArgs{
			Stream: p.Stream,
			MaxLen: p.MaxLen,
			Approx: true,
			Values: map[string]any{"session_id": pc.SessionID, "payload": string(payload)},
		}).Err()
	}
	if err != nil {
		log.WithError(err).Warn("enqueue post-call failed, processing inline")
		p.Processor.Process(ctx, pc)
		return
	}
	log.Debug("post-call queued")
}

func (p *PostCallPool) runConsumer(ctx context.Context, consumer string) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := p.Redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    p.Group,
			Consumer: consumer,
			Streams:  []string{p.Stream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()

		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				p.handleMsg(ctx, msg)
				_ = p.Redis.XAck(context.WithoutCancel(ctx), p.Stream, p.Group, msg.ID).Err()
			}
		}
	}
}

func decodePostCall(msg redis.XMessage) (models.PostCall, error) {
	var pc models.PostCall
	raw, _ := msg.Values["payload"].(string)
	if raw == "" {
		return pc, errors.New("post-call message without payload")
	}
	if err := json.Unmarshal([]byte(raw), &pc); err != nil {
		return pc, err
	}
	if pc.SessionID == "" {
		return pc, errors.New("post-call message without session id")
	}
	return pc, nil
}

func (p *PostCallPool) handleMsg(ctx context.Context, msg redis.XMessage) {
	log := p.Logger.WithField("redis_id", msg.ID)

	pc, err := decodePostCall(msg)
	if err != nil {
		log.WithError(err).Warn("dropping malformed post-call message")
		return
	}

	// a shutdown must not cut a half-delivered webhook short
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.JobTimeout)
	defer cancel()
	p.Processor.Process(jobCtx, pc)
}
