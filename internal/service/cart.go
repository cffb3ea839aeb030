package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/utafrali/cartstate/internal/domain"
	"github.com/utafrali/cartstate/internal/notify"
	"github.com/utafrali/cartstate/internal/repository"
	apperrors "github.com/utafrali/cartstate/pkg/errors"
	"github.com/utafrali/cartstate/pkg/logger"
	"github.com/utafrali/cartstate/pkg/tracing"
)

// StockService looks up how many units of a product are available.
type StockService interface {
	GetStock(ctx context.Context, productID int64) (domain.Stock, error)
}

// CatalogService looks up product metadata.
type CatalogService interface {
	GetProduct(ctx context.Context, productID int64) (domain.Product, error)
}

// Observer is called with a copy of the cart after every committed change.
type Observer func(ctx context.Context, cart domain.Cart)

// UpdateProductAmountInput sets the held quantity of one line.
type UpdateProductAmountInput struct {
	ProductID int64 `json:"product_id"`
	Amount    int   `json:"amount"`
}

// Options tune a CartManager.
type Options struct {
	// StorageKey is the snapshot key in the store.
	StorageKey string
	// OperationTimeout bounds all downstream calls of one operation; zero
	// means no deadline beyond the caller's.
	OperationTimeout time.Duration
}

type operation string

const (
	opAdd    operation = "add_product"
	opRemove operation = "remove_product"
	opUpdate operation = "update_product_amount"
)

// failureMessage is shown for every failed attempt of an operation that is
// not an out-of-stock rejection.
var failureMessage = map[operation]string{
	opAdd:    notify.MsgAddFailed,
	opRemove: notify.MsgRemoveFailed,
	opUpdate: notify.MsgQuantityFailed,
}

// CartManager owns the shopping cart. Every mutation is validated against
// current stock, written through to the snapshot store and only then made
// visible. Mutations run one at a time; Cart never waits for them.
type CartManager struct {
	stock   StockService
	catalog CatalogService
	store   repository.SnapshotStore
	sink    notify.Sink
	logger  *slog.Logger
	tracer  trace.Tracer
	key     string
	timeout time.Duration

	ops *semaphore.Weighted

	stateMu sync.RWMutex
	cart    domain.Cart

	obsMu     sync.Mutex
	observers []observerEntry
	nextObsID uint64
}

type observerEntry struct {
	id uint64
	fn Observer
}

// NewCartManager restores the cart from store. An absent or unreadable
// snapshot yields an empty cart; a store that cannot be reached is an error,
// so a later write never overwrites a snapshot that was not loaded.
func NewCartManager(
	ctx context.Context,
	stock StockService,
	catalog CatalogService,
	store repository.SnapshotStore,
	sink notify.Sink,
	logger *slog.Logger,
	opts Options,
) (*CartManager, error) {
	if opts.StorageKey == "" {
		return nil, apperrors.InvalidInput("storage key is required")
	}
	if sink == nil {
		sink = notify.Discard
	}

	m := &CartManager{
		stock:   stock,
		catalog: catalog,
		store:   store,
		sink:    sink,
		logger:  logger,
		tracer:  tracing.Tracer("github.com/utafrali/cartstate/internal/service"),
		key:     opts.StorageKey,
		timeout: opts.OperationTimeout,
		ops:     semaphore.NewWeighted(1),
	}

	cart, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	m.cart = cart
	cartLines.Set(float64(len(cart)))

	logger.InfoContext(ctx, "cart restored",
		slog.String("storage_key", m.key),
		slog.Int("lines", len(cart)),
		slog.Int("items", cart.ItemCount()),
	)
	return m, nil
}

func (m *CartManager) load(ctx context.Context) (domain.Cart, error) {
	data, err := m.store.Read(ctx, m.key)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return domain.Cart{}, nil
		}
		return nil, fmt.Errorf("load cart snapshot: %w", err)
	}

	cart, err := domain.UnmarshalSnapshot(data)
	if err != nil {
		m.logger.WarnContext(ctx, "discarding corrupt cart snapshot",
			slog.String("storage_key", m.key),
			slog.String("error", err.Error()),
		)
		return domain.Cart{}, nil
	}
	return cart, nil
}

// Cart returns a copy of the committed cart.
func (m *CartManager) Cart() domain.Cart {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.cart.Clone()
}

// Subscribe registers fn to run after every committed change, in
// registration order. The returned func removes it. Observers run while the
// next operation is held back and must not mutate the cart themselves.
func (m *CartManager) Subscribe(fn Observer) (unsubscribe func()) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	m.nextObsID++
	id := m.nextObsID
	m.observers = append(m.observers, observerEntry{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			m.obsMu.Lock()
			defer m.obsMu.Unlock()
			for i, o := range m.observers {
				if o.id == id {
					m.observers = append(m.observers[:i:i], m.observers[i+1:]...)
					return
				}
			}
		})
	}
}

// AddProduct adds one unit of productID, inserting a new line with amount 1
// when the product is not yet in the cart. It returns the cart it committed.
func (m *CartManager) AddProduct(ctx context.Context, productID int64) (domain.Cart, error) {
	return m.run(ctx, opAdd, productID, func(ctx context.Context, cur domain.Cart) (domain.Cart, *notify.Notification, error) {
		stock, err := m.stock.GetStock(ctx, productID)
		if err != nil {
			return nil, nil, apperrors.ServiceFailure("stock lookup", err)
		}

		candidate := cur.AmountOf(productID) + 1
		if candidate > stock.Amount {
			return nil, nil, apperrors.OutOfStock(idString(productID), candidate, stock.Amount)
		}

		if i := cur.FindItemIndex(productID); i >= 0 {
			return cur.WithAmount(i, candidate), nil, nil
		}

		product, err := m.catalog.GetProduct(ctx, productID)
		if err != nil {
			return nil, nil, apperrors.ServiceFailure("catalog lookup", err)
		}
		added := notify.Info(notify.MsgProductAdded, productID)
		return cur.Append(domain.NewCartItem(product, 1)), &added, nil
	})
}

// RemoveProduct removes the line for productID whatever its amount.
func (m *CartManager) RemoveProduct(ctx context.Context, productID int64) (domain.Cart, error) {
	return m.run(ctx, opRemove, productID, func(_ context.Context, cur domain.Cart) (domain.Cart, *notify.Notification, error) {
		if cur.FindItemIndex(productID) < 0 {
			return nil, nil, apperrors.NotFound("cart item", idString(productID))
		}
		return cur.Without(productID), nil, nil
	})
}

// UpdateProductAmount sets the amount of an existing line exactly. The
// checks run in a fixed order: quantity, stock, then presence in the cart.
func (m *CartManager) UpdateProductAmount(ctx context.Context, in UpdateProductAmountInput) (domain.Cart, error) {
	return m.run(ctx, opUpdate, in.ProductID, func(ctx context.Context, cur domain.Cart) (domain.Cart, *notify.Notification, error) {
		if in.Amount < 1 {
			return nil, nil, apperrors.InvalidQuantity(in.Amount)
		}

		stock, err := m.stock.GetStock(ctx, in.ProductID)
		if err != nil {
			return nil, nil, apperrors.ServiceFailure("stock lookup", err)
		}
		if in.Amount > stock.Amount {
			return nil, nil, apperrors.OutOfStock(idString(in.ProductID), in.Amount, stock.Amount)
		}

		i := cur.FindItemIndex(in.ProductID)
		if i < 0 {
			return nil, nil, apperrors.NotFound("cart item", idString(in.ProductID))
		}
		return cur.WithAmount(i, in.Amount), nil, nil
	})
}

// mutation computes the next cart from the current one. It must not modify
// cur. The notification, when non-nil, is emitted after commit.
type mutation func(ctx context.Context, cur domain.Cart) (domain.Cart, *notify.Notification, error)

func (m *CartManager) run(ctx context.Context, op operation, productID int64, mutate mutation) (domain.Cart, error) {
	start := time.Now()
	ctx, span := m.tracer.Start(ctx, "cart."+string(op),
		trace.WithAttributes(attribute.Int64("cart.product_id", productID)),
	)
	defer span.End()

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	committed, err := m.apply(ctx, mutate)
	outcome := outcomeOf(err)

	operationsTotal.WithLabelValues(string(op), outcome).Inc()
	operationDuration.WithLabelValues(string(op)).Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.String("cart.outcome", outcome))

	l := logger.WithContext(ctx, m.logger).With(
		slog.String("operation", string(op)),
		slog.Int64("product_id", productID),
	)

	if err != nil {
		msg := failureMessage[op]
		if errors.Is(err, apperrors.ErrOutOfStock) {
			msg = notify.MsgOutOfStock
		}
		if outcome == outcomeServiceFailure {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			l.ErrorContext(ctx, "cart operation failed", slog.String("error", err.Error()))
		} else {
			l.WarnContext(ctx, "cart operation rejected",
				slog.String("outcome", outcome),
				slog.String("reason", err.Error()),
			)
		}
		m.sink.Notify(ctx, notify.Error(msg, productID))
		return nil, err
	}

	l.InfoContext(ctx, "cart operation committed", slog.Duration("duration", time.Since(start)))
	return committed, nil
}

// apply serializes one mutation: read, validate, persist, commit, then
// notify observers and the sink. It returns a copy of the committed cart.
func (m *CartManager) apply(ctx context.Context, mutate mutation) (domain.Cart, error) {
	if err := m.ops.Acquire(ctx, 1); err != nil {
		return nil, apperrors.ServiceFailure("wait for pending cart operation", err)
	}
	defer m.ops.Release(1)

	cur := m.Cart()
	next, notice, err := mutate(ctx, cur)
	if err != nil {
		return nil, err
	}

	if err := m.persist(ctx, cur, next); err != nil {
		return nil, err
	}

	m.stateMu.Lock()
	m.cart = next.Clone()
	m.stateMu.Unlock()
	cartLines.Set(float64(len(next)))

	m.obsMu.Lock()
	observers := make([]observerEntry, len(m.observers))
	copy(observers, m.observers)
	m.obsMu.Unlock()
	for _, o := range observers {
		o.fn(ctx, next.Clone())
	}

	if notice != nil {
		m.sink.Notify(ctx, *notice)
	}
	return next.Clone(), nil
}

// storeWriteTimeout bounds a single snapshot write. Writes ignore the
// operation's cancellation once started.
const storeWriteTimeout = 5 * time.Second

// persist writes next to the store. When the write fails it may still have
// been applied, so the committed cart cur is written back before returning.
func (m *CartManager) persist(ctx context.Context, cur, next domain.Cart) error {
	data, err := domain.MarshalSnapshot(next)
	if err != nil {
		return apperrors.ServiceFailure("encode cart snapshot", err)
	}
	if err := m.write(ctx, data); err != nil {
		m.restore(ctx, cur)
		return apperrors.ServiceFailure("snapshot write", err)
	}
	return nil
}

func (m *CartManager) restore(ctx context.Context, cur domain.Cart) {
	data, err := domain.MarshalSnapshot(cur)
	if err == nil {
		err = m.write(ctx, data)
	}
	if err != nil {
		logger.WithContext(ctx, m.logger).ErrorContext(ctx, "restore committed cart snapshot failed",
			slog.String("storage_key", m.key),
			slog.Int("lines", len(cur)),
			slog.String("error", err.Error()),
		)
	}
}

func (m *CartManager) write(ctx context.Context, data []byte) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeWriteTimeout)
	defer cancel()
	return m.store.Write(ctx, m.key, data)
}

// outcomeOf classifies err for metrics and logging. A service failure may
// wrap a not-found or invalid-input cause from a downstream API, so it is
// checked first.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return outcomeSuccess
	case errors.Is(err, apperrors.ErrServiceUnavail):
		return outcomeServiceFailure
	case errors.Is(err, apperrors.ErrOutOfStock):
		return outcomeOutOfStock
	case errors.Is(err, apperrors.ErrNotFound):
		return outcomeNotFound
	case errors.Is(err, apperrors.ErrInvalidInput):
		return outcomeInvalidQuantity
	default:
		return outcomeServiceFailure
	}
}

func idString(id int64) string {
	return strconv.FormatInt(id, 10)
}
