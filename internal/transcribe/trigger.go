package transcribe

import "sync"

// TriggerPolicy decides when transcript growth warrants a new incremental
// analysis pass. It is a pure length-based debounce: it fires when growth
// since the last fire reaches the threshold, and firing moves the
// per-consultation watermark to the current length. Bursts of short chunks
// therefore coalesce into fewer cascade runs.
type TriggerPolicy struct {
	threshold int

	mu         sync.Mutex
	watermarks map[string]int
}

func NewTriggerPolicy(threshold int) *TriggerPolicy {
	return &TriggerPolicy{
		threshold:  threshold,
		watermarks: make(map[string]int),
	}
}

// ShouldTrigger is cheap and safe to call on every chunk.
func (p *TriggerPolicy) ShouldTrigger(consultationID string, currentLength int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if currentLength-p.watermarks[consultationID] >= p.threshold {
		p.watermarks[consultationID] = currentLength
		return true
	}
	return false
}

// Reset clears the watermark; called together with BufferStore.Reset on
// session start/stop.
func (p *TriggerPolicy) Reset(consultationID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.watermarks, consultationID)
}
