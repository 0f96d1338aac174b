package tui

import "time"

const (
	defaultMaxTokens   = 8192
	doubleTapThreshold = 500 * time.Millisecond
	defaultWidth       = 80
	maxTextareaHeight  = 6
	minTextareaHeight  = 1
	minWrapWidth       = 40

	// defaultContextWindow backs the budget counter when the current model
	// hasn't reported an input token limit yet.
	defaultContextWindow = 200_000

	// maxToolLoopsPerTurn caps tool calls the safety validator allows in a
	// single turn before it blocks further calls as a runaway guard.
	maxToolLoopsPerTurn = 30

	// loopDetectThreshold is how many identical (name, args) tool calls in
	// a row the loop detector tolerates before blocking the call as stuck.
	loopDetectThreshold = 3

	// mcpCatalogPollInterval is how often WatchCatalog retries connecting
	// any MCP server that isn't disabled but has no live client.
	mcpCatalogPollInterval = 5 * time.Second

	// executorCacheSize bounds the read-only tool result cache shared by
	// every turn of the session.
	executorCacheSize = 128
)
