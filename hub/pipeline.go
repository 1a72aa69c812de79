package hub

import (
	"context"
	"fmt"
	"time"

	"github.com/room4-2/callbridge/messages"
	"github.com/room4-2/callbridge/session"
	"github.com/room4-2/callbridge/translation"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// PipelineConfig configures a Pipeline
type PipelineConfig struct {
	Translator translation.Service
	// Timeout bounds a single translation; zero means no bound.
	Timeout time.Duration
	// MaxConcurrent caps in-flight translations across all senders; zero
	// means no cap.
	MaxConcurrent int64
}

// Pipeline turns audio chunks into translation-result broadcasts. Chunks from
// one sender are translated one at a time, in arrival order; different
// senders proceed in parallel.
type Pipeline struct {
	registry    *session.Registry
	broadcaster *Broadcaster
	translator  translation.Service
	timeout     time.Duration
	sem         *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc
	logger zerolog.Logger
}

func NewPipeline(cfg PipelineConfig, registry *session.Registry, broadcaster *Broadcaster, logger *zerolog.Logger) *Pipeline {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		registry:    registry,
		broadcaster: broadcaster,
		translator:  cfg.Translator,
		timeout:     cfg.Timeout,
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger.With().Str("component", "pipeline").Logger(),
	}
	if cfg.MaxConcurrent > 0 {
		p.sem = semaphore.NewWeighted(cfg.MaxConcurrent)
	}
	return p
}

// Attach starts the worker that drains s's audio queue. It exits when the
// session closes.
func (p *Pipeline) Attach(s *session.Session) {
	go p.worker(s)
}

// Stop cancels in-flight translations and stops all workers.
func (p *Pipeline) Stop() {
	p.cancel()
}

// HandleAudio accepts one chunk from senderID. The chunk is tagged with the
// sender's language as of now, so a later language-toggle does not affect it.
func (p *Pipeline) HandleAudio(senderID string, data []byte) {
	s, ok := p.registry.Get(senderID)
	if !ok {
		// Sender left between read and dispatch. The chunk was already
		// received, so translate it with the default direction.
		go p.process(senderID, session.Chunk{
			Data:       data,
			Language:   session.DefaultLanguage,
			ReceivedAt: time.Now(),
		})
		return
	}

	chunk := session.Chunk{Data: data, Language: s.Language(), ReceivedAt: time.Now()}
	if err := s.Audio.Push(chunk); err != nil {
		p.logger.Warn().Err(err).
			Str("sid", senderID).
			Int("pending", s.Audio.Len()).
			Msg("dropping audio chunk")
		if err := p.broadcaster.SendTo(senderID, messages.NewErrorMessage(messages.ErrTextQueueFull)); err != nil {
			p.logger.Debug().Err(err).Str("sid", senderID).Msg("queue-full notice not delivered")
		}
	}
}

func (p *Pipeline) worker(s *session.Session) {
	for {
		select {
		case <-s.CloseChan:
			return
		case <-p.ctx.Done():
			return
		case <-s.Audio.Ready():
			for !s.IsClosed() {
				chunk, ok := s.Audio.Pop()
				if !ok {
					break
				}
				p.process(s.ID, chunk)
			}
		}
	}
}

func (p *Pipeline) process(senderID string, chunk session.Chunk) {
	sourceLang, targetLang := chunk.Language.Direction()
	logger := p.logger.With().
		Str("sid", senderID).
		Str("source", sourceLang).
		Str("target", targetLang).
		Logger()

	result, err := p.translate(chunk.Data, sourceLang, targetLang)
	if err != nil {
		logger.Error().Err(err).Int("bytes", len(chunk.Data)).Msg("translation failed")
		if err := p.broadcaster.SendTo(senderID, messages.NewErrorMessage(messages.ErrTextTranslationFailed)); err != nil {
			logger.Debug().Err(err).Msg("error event dropped, sender gone")
		}
		return
	}

	n := p.broadcaster.Broadcast(messages.NewTranslationResult(
		senderID,
		result.OriginalText,
		result.TranslatedText,
		sourceLang,
		targetLang,
	), "")
	logger.Info().
		Int("recipients", n).
		Dur("latency", time.Since(chunk.ReceivedAt)).
		Msg("translation broadcast")
}

// translate runs one call to the service under the concurrency cap and
// timeout. A panic in the service is reported as an error.
func (p *Pipeline) translate(audio []byte, sourceLang, targetLang string) (res translation.Result, err error) {
	if p.sem != nil {
		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			return res, err
		}
		defer p.sem.Release(1)
	}

	ctx := p.ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("translation service panic: %v", r)
		}
	}()
	return p.translator.ProcessAudio(ctx, audio, sourceLang, targetLang)
}
