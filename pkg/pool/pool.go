// Package pool provides object pooling to reduce GC pressure on the hot
// path of rendering tool responses (internal/format), adapted from its
// original map/slice pools to a strings.Builder pool sized for the
// multi-entry text responses kb_search/kb_ask/kb_maintain return.
package pool

import (
	"strings"
	"sync"
)

var builderPool = sync.Pool{
	New: func() interface{} {
		b := &strings.Builder{}
		b.Grow(512)
		return b
	},
}

// GetBuilder returns a reset strings.Builder from the pool.
func GetBuilder() *strings.Builder {
	b := builderPool.Get().(*strings.Builder)
	b.Reset()
	return b
}

// PutBuilder returns b to the pool.
func PutBuilder(b *strings.Builder) {
	builderPool.Put(b)
}
