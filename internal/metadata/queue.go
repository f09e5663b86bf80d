package metadata

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

type entry struct {
	target Target
	seq    uint64
}

// Queue is a FIFO of targets awaiting metadata. Add never blocks; one worker
// goroutine drains it in enqueue order.
type Queue struct {
	prober Prober
	thumbs Thumbnailer
	store  *Store
	obs    Observer
	log    hclog.Logger

	// OnResult, when set, runs on the worker goroutine after a target has been
	// published. It must not block.
	OnResult func(Target, *Result)

	mu      sync.Mutex
	pending []entry
	seq     uint64
	stopped bool
	wake    chan struct{}
	stopCh  chan struct{}
	done    chan struct{}
	started bool
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithStore records probe results in s.
func WithStore(s *Store) QueueOption {
	return func(q *Queue) { q.store = s }
}

// WithObserver reports pipeline metrics to o.
func WithObserver(o Observer) QueueOption {
	return func(q *Queue) { q.obs = o }
}

// WithLogger sets the queue logger.
func WithLogger(l hclog.Logger) QueueOption {
	return func(q *Queue) { q.log = l }
}

// NewQueue creates an idle queue. Call Start to launch the worker.
func NewQueue(prober Prober, thumbs Thumbnailer, opts ...QueueOption) *Queue {
	q := &Queue{
		prober: prober,
		thumbs: thumbs,
		obs:    nopObserver{},
		log:    hclog.NewNullLogger(),
		wake:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Add appends t to the queue. It returns false once the queue is stopped.
func (q *Queue) Add(t Target) bool {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return false
	}
	q.seq++
	q.pending = append(q.pending, entry{target: t, seq: q.seq})
	depth := len(q.pending)
	q.mu.Unlock()

	q.obs.ObserveQueueDepth(depth)

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// Len returns the number of entries waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Start launches the worker. It stops when ctx is cancelled or Stop is
// called. Calling Start more than once has no effect.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started || q.stopped {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	go q.run(ctx)
}

// Stop refuses further work and tells the worker to exit after its current
// item. Pending entries are abandoned. Stop does not wait; use Done to join.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return
	}
	q.stopped = true
	abandoned := len(q.pending)
	q.pending = nil
	close(q.stopCh)
	if !q.started {
		close(q.done)
	}
	if abandoned > 0 {
		q.log.Info("queue stopped, abandoning pending items", "count", abandoned)
	}
}

// Done is closed when the worker has exited.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

func (q *Queue) run(ctx context.Context) {
	defer close(q.done)
	q.log.Debug("worker started")

	for {
		e, ok := q.next()
		if !ok {
			select {
			case <-ctx.Done():
				q.Stop()
				q.log.Debug("worker cancelled")
				return
			case <-q.stopCh:
				q.log.Debug("worker stopped")
				return
			case <-q.wake:
				continue
			}
		}

		// Checked between items only; an item in progress always completes.
		select {
		case <-ctx.Done():
			q.Stop()
			return
		case <-q.stopCh:
			return
		default:
		}

		q.process(context.WithoutCancel(ctx), e)
	}
}

func (q *Queue) next() (entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped || len(q.pending) == 0 {
		return entry{}, false
	}
	e := q.pending[0]
	q.pending[0] = entry{}
	q.pending = q.pending[1:]
	q.obs.ObserveQueueDepth(len(q.pending))
	return e, true
}

// process computes and publishes one target. Failures degrade to defaults.
func (q *Queue) process(ctx context.Context, e entry) {
	path := e.target.Path()
	class := e.target.Classification()
	res := &Result{}

	info, cached := Info{}, false
	if q.store != nil {
		info, cached = q.store.Lookup(path)
	}
	if !cached {
		start := time.Now()
		var err error
		info, err = q.prober.Probe(ctx, path, class)
		q.obs.ObserveProbe(class.String(), time.Since(start).Seconds(), err)
		if err != nil {
			q.log.Warn("probe failed", "path", path, "error", err)
			res.ProbeErr = err
		} else if q.store != nil {
			q.store.Put(path, info)
		}
	}
	res.Info = info

	start := time.Now()
	thumb, err := q.thumbs.Generate(ctx, path, class)
	q.obs.ObserveThumbnail(class.String(), time.Since(start).Seconds(), err)
	if err != nil {
		q.log.Warn("thumbnail failed", "path", path, "error", err)
		res.ThumbErr = err
	} else {
		res.Thumbnail = thumb
	}

	e.target.Publish(res)
	q.log.Trace("published", "seq", e.seq, "path", path, "duration", info.Duration)

	if q.OnResult != nil {
		q.OnResult(e.target, res)
	}
}
