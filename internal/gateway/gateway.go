// Package gateway ties the assistant pipeline together: it decides whether to
// answer, checks the device's spend ceilings, calls the configured provider,
// records the attempt and shapes the reply for the messaging transport.
package gateway

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ai_gateway/internal/billing"
	"ai_gateway/internal/business"
	"ai_gateway/internal/conversation"
	"ai_gateway/internal/logging"
	"ai_gateway/internal/models"
	"ai_gateway/internal/postprocess"
	"ai_gateway/internal/providers"
	"ai_gateway/internal/utils"
)

// ChatCompleter executes one provider call; implemented by providers.Adapter.
type ChatCompleter interface {
	ChatCompletion(ctx context.Context, messages []providers.Message, opts providers.ChatOptions) (*providers.Result, error)
}

// PriceLookup returns the priced model a call was served by; implemented by providers.Registry.
type PriceLookup interface {
	Model(ctx context.Context, providerID, modelID string) (*models.Model, bool)
}

// CostGovernor enforces and records spend; implemented by billing.Governor.
type CostGovernor interface {
	Preflight(ctx context.Context, deviceID string, limits billing.Limits) error
	RecordUsage(ctx context.Context, record *models.UsageRecord) error
	CheckAndAlert(ctx context.Context, deviceID string, limits billing.Limits, costUSD float64) ([]*models.CostAlert, error)
}

// HistoryWriter appends to a chat's log; implemented by storage.HistoryRepository.
type HistoryWriter interface {
	Append(ctx context.Context, entry *models.HistoryEntry) error
}

// Journal receives one record per handled message; implemented by logging.ExchangeLog.
type Journal interface {
	Log(rec *logging.ExchangeRecord)
}

// Reply is the outcome of handling one inbound message.
type Reply struct {
	Responded  bool                  `json:"responded"`
	SkipReason string                `json:"skip_reason,omitempty"`
	Response   *postprocess.Response `json:"response,omitempty"`
	Provider   string                `json:"provider,omitempty"`
	Model      string                `json:"model,omitempty"`
	Usage      providers.Usage       `json:"usage"`
	CostUSD    float64               `json:"cost_usd"`
	Alerts     []*models.CostAlert   `json:"alerts,omitempty"`
}

// DefaultBookkeepingTimeout bounds the ledger, alert and history writes that
// follow a provider call.
const DefaultBookkeepingTimeout = 5 * time.Second

// Options holds the optional collaborators of a Gateway.
type Options struct {
	// History, when set, receives the inbound message and the produced reply.
	History HistoryWriter
	// Journal, when set, receives a record for every skipped, blocked, failed
	// or answered message.
	Journal Journal
	Now     func() time.Time

	// BookkeepingTimeout bounds the writes after a provider call. They run
	// even when the caller has gone away.
	BookkeepingTimeout time.Duration
}

// Gateway runs the assemble, preflight, call, record and post-process pipeline.
type Gateway struct {
	contexts  business.Store
	assembler *conversation.Assembler
	governor  CostGovernor
	completer ChatCompleter
	prices    PriceLookup
	processor *postprocess.Processor
	history   HistoryWriter
	journal   Journal
	now       func() time.Time
	logger    *utils.Logger

	bookkeepingTimeout time.Duration
}

// New creates a gateway
func New(
	contexts business.Store,
	assembler *conversation.Assembler,
	governor CostGovernor,
	completer ChatCompleter,
	prices PriceLookup,
	processor *postprocess.Processor,
	opts Options,
) *Gateway {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.BookkeepingTimeout <= 0 {
		opts.BookkeepingTimeout = DefaultBookkeepingTimeout
	}
	return &Gateway{
		contexts:  contexts,
		assembler: assembler,
		governor:  governor,
		completer: completer,
		prices:    prices,
		processor: processor,
		history:   opts.History,
		journal:   opts.Journal,
		now:       opts.Now,
		logger:    utils.NewLogger("gateway"),

		bookkeepingTimeout: opts.BookkeepingTimeout,
	}
}

// Reply handles one inbound message for deviceID.
//
// Configuration, credential and spend-limit errors are returned before any
// provider call and leave no ledger row. Transport and upstream failures are
// recorded as failed attempts and then returned unchanged.
func (g *Gateway) Reply(ctx context.Context, deviceID string, msg *conversation.InboundMessage) (*Reply, error) {
	bctx, err := g.contexts.Load(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	assembly, err := g.assembler.Assemble(ctx, msg, bctx)
	if err != nil {
		return nil, err
	}
	if !assembly.ShouldRespond {
		g.journalLog(&logging.ExchangeRecord{DeviceID: deviceID, ChatID: msg.Chat(), SkipReason: assembly.SkipReason})
		return &Reply{SkipReason: assembly.SkipReason}, nil
	}

	limits := billing.Limits(bctx.Limits)
	if err := g.governor.Preflight(ctx, deviceID, limits); err != nil {
		g.logger.Info("Request blocked before provider call", "device", deviceID, "error", err)
		g.journalLog(&logging.ExchangeRecord{DeviceID: deviceID, ChatID: msg.Chat(), Error: err.Error()})
		return nil, err
	}

	opts := providers.ChatOptions{
		Provider:    bctx.AI.Provider,
		Model:       bctx.AI.Model,
		MaxTokens:   bctx.AI.MaxTokens,
		Temperature: bctx.AI.Temperature,
	}

	start := g.now()
	result, err := g.completer.ChatCompletion(ctx, assembly.Messages, opts)
	elapsed := g.now().Sub(start)

	// The attempt is recorded even if the caller cancelled during the call.
	bookCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.bookkeepingTimeout)
	defer cancel()

	if err != nil {
		g.recordFailure(bookCtx, deviceID, opts, elapsed, err)
		g.journalLog(&logging.ExchangeRecord{
			DeviceID: deviceID, ChatID: msg.Chat(), Provider: opts.Provider, Model: opts.Model,
			LatencyMS: elapsed.Milliseconds(), Error: err.Error(),
		})
		return nil, err
	}

	cost := g.price(bookCtx, result)
	record := &models.UsageRecord{
		DeviceID:         deviceID,
		Provider:         result.Provider,
		Model:            result.Model,
		PromptTokens:     result.Usage.PromptTokens,
		CompletionTokens: result.Usage.CompletionTokens,
		CostUSD:          cost,
		Success:          true,
		ResponseTimeMS:   int(elapsed.Milliseconds()),
	}
	if err := g.governor.RecordUsage(bookCtx, record); err != nil {
		// The provider has already charged for this call.
		g.logger.Error("Failed to record usage", "device", deviceID, "provider", result.Provider, "cost", cost, "error", err)
	}

	alerts, err := g.governor.CheckAndAlert(bookCtx, deviceID, limits, cost)
	if err != nil {
		g.logger.Error("Failed to evaluate cost alerts", "device", deviceID, "error", err)
	}

	resp := g.processor.PostProcess(result.Content, msg.Content, bctx)
	g.recordExchange(bookCtx, deviceID, msg, resp.Content)
	g.journalLog(&logging.ExchangeRecord{
		DeviceID:         deviceID,
		ChatID:           msg.Chat(),
		Provider:         result.Provider,
		Model:            result.Model,
		PromptTokens:     result.Usage.PromptTokens,
		CompletionTokens: result.Usage.CompletionTokens,
		CostUSD:          cost,
		LatencyMS:        elapsed.Milliseconds(),
		Responded:        true,
		Handover:         resp.NeedsHandover,
		ImageID:          resp.ImageID,
	})

	g.logger.Debug("Reply produced", "device", deviceID, "provider", result.Provider, "model", result.Model,
		"history_turns", assembly.HistoryTurns, "tokens", result.Usage.TotalTokens, "handover", resp.NeedsHandover)

	return &Reply{
		Responded: true,
		Response:  &resp,
		Provider:  result.Provider,
		Model:     result.Model,
		Usage:     result.Usage,
		CostUSD:   cost,
		Alerts:    alerts,
	}, nil
}

func (g *Gateway) price(ctx context.Context, result *providers.Result) float64 {
	model, ok := g.prices.Model(ctx, result.Provider, result.Model)
	if !ok {
		g.logger.Warn("No pricing for model, recording zero cost", "provider", result.Provider, "model", result.Model)
		return 0
	}
	return model.Cost(result.Usage.PromptTokens, result.Usage.CompletionTokens).InexactFloat64()
}

// recordFailure writes a failed attempt for errors raised after the request
// left for the provider. Earlier errors leave no ledger row.
func (g *Gateway) recordFailure(ctx context.Context, deviceID string, opts providers.ChatOptions, elapsed time.Duration, callErr error) {
	providerID, modelID := opts.Provider, opts.Model

	var transportErr *providers.TransportError
	var upstreamErr *providers.UpstreamError
	switch {
	case errors.As(callErr, &transportErr):
		providerID, modelID = transportErr.Provider, transportErr.Model
	case errors.As(callErr, &upstreamErr):
		providerID, modelID = upstreamErr.Provider, upstreamErr.Model
	default:
		g.logger.Warn("Provider call not attempted", "device", deviceID, "error", callErr)
		return
	}

	record := &models.UsageRecord{
		DeviceID:       deviceID,
		Provider:       providerID,
		Model:          modelID,
		Success:        false,
		ResponseTimeMS: int(elapsed.Milliseconds()),
		ErrorMessage:   sql.NullString{String: callErr.Error(), Valid: true},
	}
	if err := g.governor.RecordUsage(ctx, record); err != nil {
		g.logger.Error("Failed to record failed attempt", "device", deviceID, "provider", providerID, "error", err)
	}
	g.logger.Warn("Provider call failed", "device", deviceID, "provider", providerID, "model", modelID, "error", callErr)
}

func (g *Gateway) journalLog(rec *logging.ExchangeRecord) {
	if g.journal == nil {
		return
	}
	rec.Timestamp = g.now()
	g.journal.Log(rec)
}

func (g *Gateway) recordExchange(ctx context.Context, deviceID string, msg *conversation.InboundMessage, reply string) {
	if g.history == nil {
		return
	}

	now := g.now()
	inboundAt := msg.Timestamp
	if inboundAt.IsZero() || inboundAt.After(now) {
		inboundAt = now
	}
	outboundAt := now
	if !outboundAt.After(inboundAt) {
		outboundAt = inboundAt.Add(time.Millisecond)
	}

	entries := []*models.HistoryEntry{
		{DeviceID: deviceID, ChatID: msg.Chat(), Direction: models.DirectionInbound, Content: msg.Content, CreatedAt: models.NewMillis(inboundAt)},
	}
	if reply != "" {
		entries = append(entries, &models.HistoryEntry{
			DeviceID: deviceID, ChatID: msg.Chat(), Direction: models.DirectionOutbound, Content: reply, CreatedAt: models.NewMillis(outboundAt),
		})
	}
	for _, e := range entries {
		if err := g.history.Append(ctx, e); err != nil {
			g.logger.Warn("Failed to record exchange", "device", deviceID, "chat", e.ChatID, "error", err)
			return
		}
	}
}
