package reply

import (
	"context"
	"hash/fnv"
)

var cannedResponses = []string{
	"Thanks for your message! I'll check on that and get back to you shortly.",
	"Thank you for reaching out. Your host will reply as soon as possible.",
	"Got it, thanks! We'll follow up with the details soon.",
}

// CannedLLMClient answers with a fixed set of responses. It stands in when
// no model provider is configured.
type CannedLLMClient struct{}

// Complete picks a response deterministically from the last message.
func (CannedLLMClient) Complete(_ context.Context, req LLMRequest) (LLMResponse, error) {
	key := ""
	if n := len(req.Messages); n > 0 {
		key = req.Messages[n-1].Content
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return LLMResponse{Text: cannedResponses[h.Sum32()%uint32(len(cannedResponses))], StopReason: "canned"}, nil
}
