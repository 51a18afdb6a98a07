package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/TaXueWWL/matchEngine-x/pkg/logging"
	"go.uber.org/zap"
)

var (
	ErrFull        = errors.New("pipeline is full")
	ErrClosed      = errors.New("pipeline is closed")
	ErrInvalidSize = errors.New("pipeline size must be a positive power of two")
)

// Handler processes one sequenced command on the consumer thread.
type Handler func(ctx context.Context, cmd *Command)

// Pipeline is a bounded multi-producer single-consumer ring buffer.
// Publish assigns a monotonically increasing sequence under the ring
// lock, so delivery order is exactly sequence order; a slot is reused
// only after the consumer has taken its command. Commands are never
// reordered, dropped, or delivered twice.
type Pipeline struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond

	slots []*Command
	mask  int64
	head  int64 // next sequence to assign
	tail  int64 // next sequence to consume

	closed bool

	log *logging.Logger
}

func New(size int, log *logging.Logger) (*Pipeline, error) {
	if size <= 0 || size&(size-1) != 0 {
		return nil, ErrInvalidSize
	}

	p := &Pipeline{
		slots: make([]*Command, size),
		mask:  int64(size) - 1,
		head:  1,
		tail:  1,
		log:   log,
	}
	p.notFull = sync.NewCond(&p.mu)
	p.notEmpty = sync.NewCond(&p.mu)
	return p, nil
}

// Publish blocks while the ring is full, then claims the next
// sequence and makes the command visible to the consumer.
func (p *Pipeline) Publish(cmd *Command) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for p.head-p.tail == int64(len(p.slots)) && !p.closed {
		p.notFull.Wait()
	}
	if p.closed {
		return 0, ErrClosed
	}

	return p.claim(cmd), nil
}

// TryPublish fails fast with ErrFull instead of blocking. On failure
// the caller must compensate any side effects already applied, such
// as fund freezes.
func (p *Pipeline) TryPublish(cmd *Command) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, ErrClosed
	}
	if p.head-p.tail == int64(len(p.slots)) {
		return 0, ErrFull
	}

	return p.claim(cmd), nil
}

// claim is called with the ring lock held.
func (p *Pipeline) claim(cmd *Command) int64 {
	seq := p.head
	cmd.Sequence = seq
	p.slots[seq&p.mask] = cmd
	p.head++
	p.notEmpty.Signal()
	return seq
}

func (p *Pipeline) take() (*Command, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for p.head == p.tail && !p.closed {
		p.notEmpty.Wait()
	}
	if p.head == p.tail {
		return nil, false
	}

	cmd := p.slots[p.tail&p.mask]
	p.slots[p.tail&p.mask] = nil
	p.tail++
	p.notFull.Signal()
	return cmd, true
}

// Run drains the ring strictly in sequence order on the calling
// goroutine, which must be the only consumer. A panicking handler is
// logged and processing continues with the next command. Run returns
// once the pipeline is closed and fully drained.
func (p *Pipeline) Run(ctx context.Context, handler Handler) {
	for {
		cmd, ok := p.take()
		if !ok {
			return
		}
		p.dispatch(ctx, handler, cmd)
	}
}

func (p *Pipeline) dispatch(ctx context.Context, handler Handler, cmd *Command) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error(ctx, "command handler panicked",
				zap.Int64("sequence", cmd.Sequence),
				zap.String("command_type", string(cmd.Type)),
				zap.Any("panic", r))
		}
	}()
	handler(ctx, cmd)
}

// Close stops publishing; the consumer drains what was already
// sequenced and then Run returns.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	p.notFull.Broadcast()
	p.notEmpty.Broadcast()
}

// Depth reports the number of commands waiting to be consumed.
func (p *Pipeline) Depth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int(p.head - p.tail)
}
