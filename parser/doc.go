// Package parser normalizes ChatGPT, Claude and DeepSeek exports into
// core.ParsedConversation values.
//
// Each source has its own raw schema decoded per conversation, so a single
// bad entry never fails the whole export:
//
//	p, err := parser.ForSource(core.SourceChatGPT)
//	convs, err := p.Parse(data) // err only for an undecodable container
//
// Conversations without any non-blank message are dropped.
package parser
