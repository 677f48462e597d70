package wallet

import "sync"

// Listeners fans account changes out to subscribers, serially and in order.
type Listeners struct {
	mu      sync.Mutex
	next    int
	fns     map[int]func([]string)
	deliver sync.Mutex
}

// Add registers fn and returns an idempotent unsubscribe.
func (l *Listeners) Add(fn func([]string)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]func([]string))
	}
	id := l.next
	l.next++
	l.fns[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.fns, id)
			l.mu.Unlock()
		})
	}
}

func (l *Listeners) Notify(accounts []string) {
	l.deliver.Lock()
	defer l.deliver.Unlock()
	l.mu.Lock()
	fns := make([]func([]string), 0, len(l.fns))
	for i := 0; i < l.next; i++ {
		if fn, ok := l.fns[i]; ok {
			fns = append(fns, fn)
		}
	}
	l.mu.Unlock()
	for _, fn := range fns {
		cp := append([]string(nil), accounts...)
		fn(cp)
	}
}

func (l *Listeners) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fns)
}
