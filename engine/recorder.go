package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ftahirops/ptop/model"
)

// DefaultMaxReplayGap caps the pause between two replayed frames.
const DefaultMaxReplayGap = 5 * time.Second

// recordFrame is one snapshot frame written to disk.
type recordFrame struct {
	Snapshot model.Snapshot `json:"snapshot"`
}

// Recorder writes every snapshot it is given as one JSON line.
type Recorder struct {
	mu     sync.Mutex
	enc    *json.Encoder
	frames int
	err    error
}

// NewRecorder creates a recorder that writes JSON lines to w.
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{enc: json.NewEncoder(w)}
}

// Record appends snap. The first write error is returned once; after it the
// recorder drops every frame.
func (r *Recorder) Record(snap *model.Snapshot) error {
	if r == nil || snap == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil
	}
	if err := r.enc.Encode(recordFrame{Snapshot: *snap}); err != nil {
		r.err = fmt.Errorf("record frame %d: %w", r.frames, err)
		return r.err
	}
	r.frames++
	return nil
}

// Frames returns how many frames were written.
func (r *Recorder) Frames() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Err returns the write error that stopped the recorder, if any.
func (r *Recorder) Err() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Player replays recorded frames into a SnapshotQueue, in place of a
// Sampler, keeping the recorded spacing between them.
type Player struct {
	frames  []recordFrame
	skipped int
	clock   Clock
	maxGap  time.Duration
	log     zerolog.Logger
}

// PlayerOption customizes a Player.
type PlayerOption func(*Player)

// WithPlayerClock replaces the wall clock.
func WithPlayerClock(c Clock) PlayerOption { return func(p *Player) { p.clock = c } }

// WithPlayerLogger sets the player's logger.
func WithPlayerLogger(l zerolog.Logger) PlayerOption { return func(p *Player) { p.log = l } }

// WithMaxReplayGap caps the pause between frames. Zero replays without pauses.
func WithMaxReplayGap(d time.Duration) PlayerOption { return func(p *Player) { p.maxGap = d } }

// NewPlayer reads a recording made by Recorder. Malformed lines are skipped
// and counted; a recording with no usable frame is an error.
func NewPlayer(r io.Reader, opts ...PlayerOption) (*Player, error) {
	p := &Player{clock: realClock{}, maxGap: DefaultMaxReplayGap, log: zerolog.Nop()}
	for _, o := range opts {
		o(p)
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 64<<20)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var f recordFrame
		if err := json.Unmarshal(line, &f); err != nil {
			p.skipped++
			continue
		}
		p.frames = append(p.frames, f)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read recording: %w", err)
	}
	if len(p.frames) == 0 {
		return nil, errors.New("recording has no frames")
	}
	return p, nil
}

// Len returns the number of frames available.
func (p *Player) Len() int { return len(p.frames) }

// Skipped returns the number of malformed lines left out.
func (p *Player) Skipped() int { return p.skipped }

// Start pushes the frames into out from a new goroutine. The task finishes
// after the last frame, or early when ctx is cancelled or it is stopped.
func (p *Player) Start(ctx context.Context, out *SnapshotQueue) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		p.run(ctx, out)
	}()
	return t
}

func (p *Player) run(ctx context.Context, out *SnapshotQueue) {
	p.log.Info().Int("frames", len(p.frames)).Int("skipped", p.skipped).Msg("replay started")
	for i := range p.frames {
		if i > 0 {
			if gap := p.gap(i); gap > 0 {
				select {
				case <-ctx.Done():
					p.log.Info().Int("frame", i).Msg("replay stopped")
					return
				case <-p.clock.After(gap):
				}
			}
		}
		if ctx.Err() != nil {
			return
		}
		snap := p.frames[i].Snapshot
		out.Push(&snap)
	}
	p.log.Info().Msg("replay finished")
}

// gap is the recorded pause before frame i, clamped to [0, maxGap].
func (p *Player) gap(i int) time.Duration {
	d := p.frames[i].Snapshot.Timestamp.Sub(p.frames[i-1].Snapshot.Timestamp)
	return max(0, min(d, p.maxGap))
}
