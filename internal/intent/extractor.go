package intent

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Generator is a text model that answers with a JSON document.
type Generator interface {
	GenerateJSON(ctx context.Context, system, prompt string) (string, error)
}

const (
	SourceLocal = "local"
	SourceLLM   = "llm"
)

const extractorSystemPrompt = `You are IBRL-agent's intent extraction engine.

Convert the user's prompt into ONE JSON object matching exactly one of these intents:
- {"kind":"CHAT","message":string} for greetings or smalltalk; reply briefly in "message".
- {"kind":"PORTFOLIO_QA","question":string} for questions about the user's SOL/USDC holdings.
- {"kind":"SWAP","from":"SOL"|"USDC","to":"SOL"|"USDC","amount":{"value":number,"unit":"SOL"|"USDC"},"slippageBps":int}
- {"kind":"EXIT_TO_USDC","amount":{"value":number,"unit":"SOL"},"slippageBps":int}
- {"kind":"PRICE_TRIGGER_EXIT","amount":{"value":number,"unit":"SOL"},"slippageBps":int,"thresholdUsd":number}
- {"kind":"PRICE_TRIGGER_ENTRY","amount":{"value":number,"unit":"USDC"},"slippageBps":int,"thresholdUsd":number}
- {"kind":"DCA_SWAP","from":"SOL"|"USDC","to":"SOL"|"USDC","amount":{"value":number,"unit":"SOL"|"USDC"},"slippageBps":int,"intervalMinutes":int}
- {"kind":"UNSUPPORTED","reason":string} for anything else (yield, leverage, other tokens).

Rules:
- Output valid JSON only. No markdown.
- amount.unit must equal the asset being sold.
- Use slippageBps 50 unless the user specifies one.
- intervalMinutes must be between 5 and 1440.
- Never invent balances, prices, or chain state.`

// Extractor runs the local parser first and asks the model only when the parser gives up.
type Extractor struct {
	LLM    Generator
	Logger *zap.Logger
}

func (e *Extractor) Parse(ctx context.Context, prompt string) (Intent, string) {
	local := ParseLocal(prompt)
	if local.Kind() != KindUnsupported || e == nil || e.LLM == nil {
		return local, SourceLocal
	}

	out, err := e.LLM.GenerateJSON(ctx, extractorSystemPrompt, prompt)
	if err != nil {
		e.warn("intent model call failed", err)
		return local, SourceLocal
	}
	if in, err := decodeModelOutput(out); err == nil {
		return in, SourceLLM
	}

	retry := prompt + "\n\nReturn ONLY a valid JSON object that matches the schema. No extra text."
	out, err = e.LLM.GenerateJSON(ctx, extractorSystemPrompt, retry)
	if err != nil {
		e.warn("intent model retry failed", err)
		return local, SourceLocal
	}
	in, err := decodeModelOutput(out)
	if err != nil {
		e.warn("intent model output rejected", err)
		return local, SourceLocal
	}
	return in, SourceLLM
}

func (e *Extractor) warn(msg string, err error) {
	if e.Logger != nil {
		e.Logger.Warn(msg, zap.Error(err))
	}
}

func decodeModelOutput(text string) (Intent, error) {
	text = strings.TrimSpace(text)
	in, err := Unmarshal([]byte(text))
	if err == nil {
		return in, nil
	}
	first := strings.Index(text, "{")
	last := strings.LastIndex(text, "}")
	if first == -1 || last <= first {
		return nil, err
	}
	return Unmarshal([]byte(text[first : last+1]))
}
