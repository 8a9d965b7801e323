package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/roach88/viewstore/internal/action"
	"github.com/roach88/viewstore/internal/config"
	"github.com/roach88/viewstore/internal/errs"
	"github.com/roach88/viewstore/internal/record"
	"github.com/roach88/viewstore/internal/storage"
	"github.com/roach88/viewstore/internal/store"
	"github.com/roach88/viewstore/internal/stream"
)

// Option configures a run.
type Option func(*runConfig)

type runConfig struct {
	logger *slog.Logger
}

// WithLogger sets the logger handed to the store. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) { c.logger = l }
}

// buffer collects stream values between steps.
type buffer[T any] struct {
	mu     sync.Mutex
	values []T
	err    error
}

func (b *buffer[T]) observer() stream.Observer[T] {
	return stream.Observer[T]{
		Next: func(v T) {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.values = append(b.values, v)
		},
		Error: func(err error) {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.err = err
		},
	}
}

func (b *buffer[T]) drain() ([]T, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.values
	b.values = nil
	return out, b.err
}

type trackedView struct {
	name    string
	updates *buffer[store.ViewUpdate]
}

// harness runs one scenario against a fresh store.
type harness struct {
	def    *config.Definition
	root   *store.Store
	views  map[string]*store.Store
	order  []string
	events *buffer[store.Event]
	track  []trackedView
	result *Result
}

// Run executes a scenario and returns its trace.
//
// Each scenario runs against a fresh store built from its definition.
// Mutations are awaited one at a time, so store events and view updates
// are attributed to the step that caused them.
//
// Execution flow:
// 1. Build the root and derive every declared view
// 2. Subscribe to the root and to each tracked view
// 3. Run each step and check its expectation
// 4. Record final contents and check the final state
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	c := runConfig{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&c)
	}

	def, err := scenario.definition()
	if err != nil {
		return nil, err
	}
	root, closeFn, err := def.Open(ctx, store.WithLogger(c.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer closeFn()

	h := &harness{
		def:    def,
		root:   root,
		views:  make(map[string]*store.Store),
		events: &buffer[store.Event]{},
		result: NewResult(),
	}
	sub := root.Observe().Subscribe(h.events.observer())
	defer sub.Unsubscribe()

	for _, spec := range def.Views {
		view, err := def.OpenView(ctx, root, spec.Name)
		if err != nil {
			return nil, err
		}
		h.views[spec.Name] = view
		h.order = append(h.order, spec.Name)
		if view.Tracking() {
			tv := trackedView{name: spec.Name, updates: &buffer[store.ViewUpdate]{}}
			vsub := view.ObserveTracked().Subscribe(tv.updates.observer())
			defer vsub.Unsubscribe()
			h.track = append(h.track, tv)
		}
	}
	if err := h.flush(-1); err != nil {
		return nil, err
	}

	for i, step := range scenario.Steps {
		if err := h.runStep(ctx, i, step); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		if err := h.flush(i); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	if err := h.captureFinal(ctx); err != nil {
		return nil, err
	}
	if scenario.Final != nil {
		for _, msg := range checkFinal(h.result, *scenario.Final) {
			h.result.AddError(msg)
		}
	}
	return h.result, nil
}

func (h *harness) runStep(ctx context.Context, i int, step Step) error {
	var (
		out settled
		err error
	)
	switch {
	case step.Add != nil:
		var opts []store.MutateOption[record.Record]
		if step.AllowOverwrite {
			opts = append(opts, store.AllowOverwrite())
		}
		out, err = settle(ctx, h.root.Add(ctx, records(step.Add), opts...), h.recordID)
	case step.Put != nil:
		out, err = settle(ctx, h.root.Put(ctx, records(step.Put)), h.recordID)
	case step.Patch != nil:
		updates, perr := patchUpdates(step.Patch)
		if perr != nil {
			return perr
		}
		out, err = settle(ctx, h.root.Patch(ctx, updates), func(u storage.PatchUpdate) string { return u.ID })
	case step.Delete != nil:
		out, err = settle(ctx, h.root.Delete(ctx, step.Delete), func(id storage.ID) string { return id })
	}
	if err != nil {
		return err
	}
	out.successful = h.root.Identify(out.items...)
	out.version = h.root.Version()

	h.result.add(KindResult, i, out.fields())
	if step.Expect != nil {
		for _, msg := range checkStep(i, *step.Expect, out) {
			h.result.AddError(msg)
		}
	}
	return nil
}

// flush moves everything delivered since the last flush into the trace:
// root events first, then view updates in declaration order.
func (h *harness) flush(step int) error {
	events, err := h.events.drain()
	if err != nil {
		return fmt.Errorf("root stream failed: %w", err)
	}
	for _, e := range events {
		h.result.add(KindEvent, step, eventFields(e))
	}
	for _, tv := range h.track {
		updates, err := tv.updates.drain()
		if err != nil {
			return fmt.Errorf("view %s stream failed: %w", tv.name, err)
		}
		for _, u := range updates {
			h.result.add(KindView, step, viewFields(tv.name, u))
		}
	}
	return nil
}

func (h *harness) captureFinal(ctx context.Context) error {
	items, err := h.root.Fetch(ctx, nil)
	if err != nil {
		return fmt.Errorf("fetch root: %w", err)
	}
	h.result.Final["root"] = items
	h.result.FinalIDs["root"] = h.root.Identify(items...)
	for _, name := range h.order {
		items, err := h.views[name].Fetch(ctx, nil)
		if err != nil {
			return fmt.Errorf("fetch view %s: %w", name, err)
		}
		h.result.Final[name] = items
		h.result.FinalIDs[name] = h.root.Identify(items...)
	}
	return nil
}

func (h *harness) recordID(item record.Record) string {
	ids := h.root.Identify(item)
	return ids[0]
}

// settled is the type-erased final result of one step.
type settled struct {
	op         storage.OpType
	round      int
	items      []record.Record
	successful []string
	failed     []string
	code       string
	version    int64
}

func settle[T any](ctx context.Context, a *action.Action[T], idOf func(T) string) (settled, error) {
	res, err := a.Wait(ctx)
	if err != nil {
		return settled{}, err
	}
	out := settled{op: res.Type, round: res.Round, items: res.Items}
	for _, d := range res.Failed {
		out.failed = append(out.failed, idOf(d))
	}
	if res.Err != nil {
		out.code = errorCode(res.Err)
	}
	return out, nil
}

func errorCode(err error) string {
	if code := errs.CodeOf(err); code != "" {
		return string(code)
	}
	return err.Error()
}

func (s settled) fields() map[string]any {
	out := map[string]any{
		"op":         string(s.op),
		"round":      int64(s.round),
		"successful": stringList(s.successful),
		"version":    s.version,
	}
	if len(s.failed) > 0 {
		out["failed"] = stringList(s.failed)
	}
	if s.code != "" {
		out["error"] = s.code
	}
	return out
}

func eventFields(e store.Event) map[string]any {
	out := map[string]any{
		"type":    string(e.Type),
		"version": e.Version,
		"ids":     stringList(e.IDs),
		"items":   recordList(e.Items),
	}
	if e.Synthetic {
		out["synthetic"] = true
	}
	return out
}

func viewFields(name string, u store.ViewUpdate) map[string]any {
	out := map[string]any{
		"view":    name,
		"version": u.Version,
	}
	if u.Initial {
		out["initial"] = true
	}
	for key, changes := range map[string][]store.Change{
		"added":   u.Added,
		"removed": u.Removed,
		"moved":   u.Moved,
		"updated": u.Updated,
	} {
		if len(changes) > 0 {
			out[key] = changeList(changes)
		}
	}
	return out
}

func changeList(changes []store.Change) []any {
	out := make([]any, len(changes))
	for i, c := range changes {
		m := map[string]any{"id": c.ID}
		if c.Index >= 0 {
			m["index"] = int64(c.Index)
		}
		if c.PreviousIndex >= 0 {
			m["previous_index"] = int64(c.PreviousIndex)
		}
		if c.Item != nil {
			m["item"] = map[string]any(c.Item)
		}
		out[i] = m
	}
	return out
}

func stringList(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func recordList(items []record.Record) []any {
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = map[string]any(item)
	}
	return out
}
