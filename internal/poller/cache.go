package poller

import lru "github.com/hashicorp/golang-lru/v2"

// seenCache is the process-lifetime record of entry links already evaluated,
// bounded so a long uptime cannot grow it without limit. It also counts
// transient failures per link so fetch retries stay bounded.
//
// Losing the cache on restart is acceptable: the pipeline's durable
// title-existence check always runs and is the correctness backstop.
type seenCache struct {
	entries     *lru.Cache[string, int]
	maxAttempts int
}

// Sentinel value meaning the link was fully evaluated.
const evaluated = -1

func newSeenCache(size, maxAttempts int) (*seenCache, error) {
	entries, err := lru.New[string, int](size)
	if err != nil {
		return nil, err
	}
	return &seenCache{entries: entries, maxAttempts: maxAttempts}, nil
}

// Seen reports whether the link should be skipped without running the
// pipeline again.
func (c *seenCache) Seen(link string) bool {
	attempts, ok := c.entries.Get(link)
	return ok && (attempts == evaluated || attempts >= c.maxAttempts)
}

// MarkEvaluated records that the link went through the pipeline to a verdict.
func (c *seenCache) MarkEvaluated(link string) {
	c.entries.Add(link, evaluated)
}

// Fail counts a transient failure and reports whether the link has exhausted
// its attempts.
func (c *seenCache) Fail(link string) bool {
	attempts, ok := c.entries.Get(link)
	if !ok || attempts == evaluated {
		attempts = 0
	}
	attempts++
	c.entries.Add(link, attempts)

	return attempts >= c.maxAttempts
}
