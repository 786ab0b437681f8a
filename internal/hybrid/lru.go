package hybrid

import "container/list"

// nodeCache is a small LRU for (owner, repo, number) → node-ID lookups.
// It lives for one command invocation, so the capacity only matters for
// epics with very wide hierarchies.
type nodeCache struct {
	capacity int
	order    *list.List
	entries  map[nodeKey]*list.Element
}

type nodeKey struct {
	owner  string
	repo   string
	number int
}

type nodeEntry struct {
	key nodeKey
	id  string
}

func newNodeCache(capacity int) *nodeCache {
	return &nodeCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[nodeKey]*list.Element, capacity),
	}
}

func (c *nodeCache) get(key nodeKey) (string, bool) {
	el, ok := c.entries[key]
	if !ok {
		return "", false
	}
	c.order.MoveToFront(el)
	return el.Value.(*nodeEntry).id, true
}

func (c *nodeCache) put(key nodeKey, id string) {
	if el, ok := c.entries[key]; ok {
		el.Value.(*nodeEntry).id = id
		c.order.MoveToFront(el)
		return
	}
	c.entries[key] = c.order.PushFront(&nodeEntry{key: key, id: id})
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*nodeEntry).key)
	}
}
