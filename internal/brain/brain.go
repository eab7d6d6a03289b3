package brain

import (
	"log/slog"
	"sync/atomic"
)

// Brain holds the live [Index] behind an atomic pointer so that the rule
// library can be hot-reloaded: a replacement index is built off to the side
// and swapped in atomically. Lookups already in flight keep reading the old
// index; new lookups see the new one. The index itself is never mutated.
type Brain struct {
	idx atomic.Pointer[Index]
}

// New creates a Brain serving idx.
func New(idx *Index) *Brain {
	b := &Brain{}
	b.idx.Store(idx)
	return b
}

// Index returns the currently live index.
func (b *Brain) Index() *Index {
	return b.idx.Load()
}

// Swap atomically replaces the live index and returns the previous one.
func (b *Brain) Swap(idx *Index) *Index {
	old := b.idx.Swap(idx)
	slog.Info("brain: index swapped", "rules_before", old.Len(), "rules_after", idx.Len())
	return old
}

// Reload rebuilds the index from paths and swaps it in. On failure the live
// index is left untouched and keeps serving.
func (b *Brain) Reload(paths []string) error {
	idx, err := LoadIndex(paths)
	if err != nil {
		return err
	}
	b.Swap(idx)
	return nil
}

// Lookup delegates to the live index. See [Index.Lookup].
func (b *Brain) Lookup(topic, that string, input []string) (*Match, bool) {
	return b.Index().Lookup(topic, that, input)
}

// LookupText delegates to the live index. See [Index.LookupText].
func (b *Brain) LookupText(topic, that, input string) (*Match, bool) {
	return b.Index().LookupText(topic, that, input)
}
