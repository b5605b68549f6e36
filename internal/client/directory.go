package client

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DefaultPollInterval - период опроса каталога комнат.
const DefaultPollInterval = 5 * time.Second

// Сколько может длиться один запрос каталога.
const fetchTimeout = 10 * time.Second

// RoomFetcher получает список активных комнат в произвольном порядке.
type RoomFetcher interface {
	FetchRooms(ctx context.Context) ([]string, error)
}

// RoomFetcherFunc позволяет использовать функцию как RoomFetcher.
type RoomFetcherFunc func(ctx context.Context) ([]string, error)

func (f RoomFetcherFunc) FetchRooms(ctx context.Context) ([]string, error) {
	return f(ctx)
}

// DirectoryPoller периодически забирает список комнат и публикует его
// отсортированным. Читатели получают либо старый, либо новый список целиком.
type DirectoryPoller struct {
	fetcher RoomFetcher
	log     zerolog.Logger

	rooms atomic.Pointer[[]string]
	sf    singleflight.Group

	mu       sync.Mutex
	handle   *PollHandle
	onChange []func([]string)
}

type PollerOption func(*DirectoryPoller)

func WithPollerLogger(l zerolog.Logger) PollerOption {
	return func(p *DirectoryPoller) { p.log = l }
}

// WithOnChange подписывает fn на каждую успешную публикацию списка.
func WithOnChange(fn func([]string)) PollerOption {
	return func(p *DirectoryPoller) { p.onChange = append(p.onChange, fn) }
}

func NewDirectoryPoller(fetcher RoomFetcher, opts ...PollerOption) *DirectoryPoller {
	p := &DirectoryPoller{
		fetcher: fetcher,
		log:     zerolog.Nop(),
	}
	empty := []string{}
	p.rooms.Store(&empty)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Rooms возвращает копию последнего опубликованного списка.
func (p *DirectoryPoller) Rooms() []string {
	cur := *p.rooms.Load()
	out := make([]string, len(cur))
	copy(out, cur)
	return out
}

// PollHandle управляет одним запущенным циклом опроса.
type PollHandle struct {
	poller  *DirectoryPoller
	cancel  context.CancelFunc
	done    chan struct{}
	stopped atomic.Bool
	once    sync.Once
}

// Start сразу делает один запрос, а затем повторяет его каждые interval до Stop.
// Если цикл уже запущен, прежний останавливается.
func (p *DirectoryPoller) Start(ctx context.Context, interval time.Duration) *PollHandle {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	p.mu.Lock()
	prev := p.handle
	p.mu.Unlock()
	if prev != nil {
		prev.Stop()
	}

	ctx, cancel := context.WithCancel(ctx)
	h := &PollHandle{
		poller: p,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	p.mu.Lock()
	p.handle = h
	p.mu.Unlock()

	go h.run(ctx, interval)
	return h
}

// Stop останавливает таймер и ждет выхода цикла. Цикл перестает ждать запрос,
// который был в полете, и его результат отбрасывается. Повторный вызов безопасен.
func (h *PollHandle) Stop() {
	h.once.Do(func() {
		h.stopped.Store(true)
		h.cancel()
	})
	<-h.done

	h.poller.mu.Lock()
	if h.poller.handle == h {
		h.poller.handle = nil
	}
	h.poller.mu.Unlock()
}

// Done закрывается, когда цикл опроса завершился.
func (h *PollHandle) Done() <-chan struct{} {
	return h.done
}

func (h *PollHandle) run(ctx context.Context, interval time.Duration) {
	defer close(h.done)

	// Тики не накладываются: пока идет запрос, Ticker сбрасывает лишние тики.
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.poller.poll(ctx, h)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.poller.poll(ctx, h)
		}
	}
}

// Refresh запрашивает список вне расписания. Одновременные вызовы и запрос
// по таймеру схлопываются в один.
func (p *DirectoryPoller) Refresh(ctx context.Context) ([]string, error) {
	rooms, err := p.fetch(ctx)
	if err != nil {
		p.log.Error().Err(err).Msg("room directory refresh failed")
		return p.Rooms(), err
	}
	p.publish(rooms, nil)
	return p.Rooms(), nil
}

func (p *DirectoryPoller) poll(ctx context.Context, h *PollHandle) {
	rooms, err := p.fetch(ctx)
	if err != nil {
		if h.stopped.Load() {
			return
		}
		p.log.Error().Err(err).Msg("room directory poll failed")
		return
	}
	p.publish(rooms, h)
}

// fetch делит один запрос между всеми, кто пришел, пока он в полете. Общий
// запрос не зависит от отмены ctx того, кто его начал: каждый участник ждет
// только свой ctx, а сам запрос ограничен fetchTimeout.
func (p *DirectoryPoller) fetch(ctx context.Context) ([]string, error) {
	ch := p.sf.DoChan("rooms", func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		return p.fetcher.FetchRooms(fetchCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		rooms, _ := res.Val.([]string)
		return normalizeRooms(rooms), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// publish заменяет список целиком. Для h != nil проверка остановки и запись
// идут под одним мьютексом, поэтому после Stop список не меняется.
func (p *DirectoryPoller) publish(rooms []string, h *PollHandle) {
	p.mu.Lock()
	if h != nil && h.stopped.Load() {
		p.mu.Unlock()
		return
	}
	p.rooms.Store(&rooms)
	subs := p.onChange
	p.mu.Unlock()

	p.log.Debug().Int("rooms", len(rooms)).Msg("room directory updated")
	for _, fn := range subs {
		fn(p.Rooms())
	}
}
