package resource

// collection is an insertion-ordered, id-indexed set with a retention cap.
// Not safe for concurrent use; the store holds the lock.
type collection struct {
	order []string
	items map[string]interface{}
	max   int
}

func newCollection(max int) collection {
	return collection{items: make(map[string]interface{}), max: max}
}

// upsert stores v under id, replacing in place when the id already exists.
// When adding a new id would exceed the cap, the oldest entry is evicted and
// returned.
func (c *collection) upsert(id string, v interface{}) (evicted interface{}, hadEviction bool) {
	if _, ok := c.items[id]; ok {
		c.items[id] = v
		return nil, false
	}
	if c.max > 0 && len(c.order) >= c.max {
		oldest := c.order[0]
		evicted = c.items[oldest]
		hadEviction = true
		delete(c.items, oldest)
		c.order = c.order[1:]
	}
	c.items[id] = v
	c.order = append(c.order, id)
	return evicted, hadEviction
}

func (c *collection) get(id string) (interface{}, bool) {
	v, ok := c.items[id]
	return v, ok
}

func (c *collection) list() []interface{} {
	out := make([]interface{}, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.items[id])
	}
	return out
}

func (c *collection) len() int { return len(c.order) }

func (c *collection) reset() {
	c.order = nil
	c.items = make(map[string]interface{})
}
