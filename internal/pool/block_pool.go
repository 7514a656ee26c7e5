package pool

import "sync"

// BlockPool recycles fixed-length staging buffers for overlap slots.
//
// Every buffer handed out by a BlockPool has length Size(). Slots hold one
// raw staging buffer and one engine output buffer each; pooling them keeps
// short-lived pipelines from reallocating K×2 block-sized slices per frame.
type BlockPool struct {
	size int
	pool sync.Pool
}

// NewBlockPool creates a pool of buffers of the given length.
func NewBlockPool(size int) *BlockPool {
	p := &BlockPool{size: size}
	p.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}

	return p
}

// Size returns the length of the buffers handed out by the pool.
func (p *BlockPool) Size() int {
	return p.size
}

// Get retrieves a buffer of length Size().
func (p *BlockPool) Get() *[]byte {
	b, _ := p.pool.Get().(*[]byte)
	*b = (*b)[:p.size]

	return b
}

// Put returns b to the pool. Buffers too small for this pool are dropped.
func (p *BlockPool) Put(b *[]byte) {
	if b == nil || cap(*b) < p.size {
		return
	}

	*b = (*b)[:p.size]
	p.pool.Put(b)
}

var blockPools sync.Map // int -> *BlockPool

// ForSize returns the shared BlockPool for buffers of the given length.
func ForSize(size int) *BlockPool {
	if p, ok := blockPools.Load(size); ok {
		return p.(*BlockPool)
	}

	p, _ := blockPools.LoadOrStore(size, NewBlockPool(size))

	return p.(*BlockPool)
}
